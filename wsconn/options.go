package wsconn

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

type options struct {
	header           http.Header
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	closeTimeout     time.Duration
	readLimit        int64
	tlsConfig        *tls.Config
	handlers         protocol.TransportHandlers
	logger           logger.Logger
}

func defaultOptions() *options {
	return &options{
		header:           http.Header{},
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     10 * time.Second,
		closeTimeout:     3 * time.Second,
		logger:           logger.GetLogger(),
	}
}

// Option configures a Conn.
type Option func(*options)

// WithHeader adds HTTP headers sent with the opening handshake.
func WithHeader(header http.Header) Option {
	return func(o *options) {
		for k, vals := range header {
			for _, v := range vals {
				o.header.Add(k, v)
			}
		}
	}
}

// WithHandshakeTimeout sets the timeout of the opening handshake. The default is 10 seconds.
func WithHandshakeTimeout(val time.Duration) Option {
	return func(o *options) {
		if val > 0 {
			o.handshakeTimeout = val
		}
	}
}

// WithWriteTimeout sets the write deadline of each frame. The default is 10 seconds.
func WithWriteTimeout(val time.Duration) Option {
	return func(o *options) {
		if val > 0 {
			o.writeTimeout = val
		}
	}
}

// WithCloseTimeout sets how long Close waits for the server to answer the close frame before the
// network connection is dropped. The default is 3 seconds.
func WithCloseTimeout(val time.Duration) Option {
	return func(o *options) {
		if val > 0 {
			o.closeTimeout = val
		}
	}
}

// WithReadLimit sets the maximum size in bytes of a received message. Zero means no limit.
func WithReadLimit(val int64) Option {
	return func(o *options) {
		if val >= 0 {
			o.readLimit = val
		}
	}
}

// WithTLSConfig sets the TLS configuration used for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// WithLogger sets the logger. The default is the package logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHandlers sets the initial event handlers, so that no event is missed before SetHandlers.
func WithHandlers(handlers protocol.TransportHandlers) Option {
	return func(o *options) {
		o.handlers = handlers
	}
}
