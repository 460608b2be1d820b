package client

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

// ClientConfig represents the configuration parameters of a charWS client.
type ClientConfig struct {
	mu sync.RWMutex

	// url is the WebSocket URL of the charWS server, e.g. ws://127.0.0.1:83/websocket.
	url string

	// callTimeout defines how long a call waits for its correlated response before it fails
	// with protocol.ErrNoResponse. Zero waits until the connection is closed.
	// Defaults to 30 seconds.
	callTimeout time.Duration

	// readyPollInterval defines how often the transport ready state is checked while it is
	// connecting or closing.
	// Defaults to 1 second.
	readyPollInterval time.Duration

	// keepaliveUnit is the unit of the keepalive period announced by the server in the hello response.
	// Defaults to 1 second.
	keepaliveUnit time.Duration

	// autoKeepalive indicates whether to send client_keepalive envelopes at the announced period.
	// Defaults to true.
	autoKeepalive bool

	// retryCeiling defines how many times each call type may be retried before the connection is
	// closed as fatal. The counters are never reset.
	// Defaults to 10.
	retryCeiling int

	// autoReconnect indicates whether a connection that is dropped without the server asking for
	// it is replaced by a new one.
	// Defaults to false.
	autoReconnect bool

	// reconnectMinDelay and reconnectMaxDelay bound the exponential delay between connection attempts.
	// Defaults to 1 and 30 seconds.
	reconnectMinDelay time.Duration
	reconnectMaxDelay time.Duration

	// closeTimeout defines how long Close waits for the background tasks to terminate.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	// logger provides a logger instance for logging client events and errors.
	logger logger.Logger
}

// NewClientConfig creates a new client configuration with the given server URL and optional functional options.
//
// The url parameter must be an absolute ws:// or wss:// URL.
//
// See the documentation for ConnOption and the various WithXXX functions for available configuration options.
func NewClientConfig(serverURL string, opts ...ConnOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		callTimeout:       30 * time.Second,
		readyPollInterval: time.Second,
		keepaliveUnit:     time.Second,
		autoKeepalive:     true,
		retryCeiling:      10,
		autoReconnect:     false,
		reconnectMinDelay: time.Second,
		reconnectMaxDelay: 30 * time.Second,
		closeTimeout:      3 * time.Second,
		logger:            logger.GetLogger(),
	}

	if err := withURL(serverURL).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// URL returns the server URL.
func (cfg *ClientConfig) URL() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.url
}

// CallTimeout returns the response timeout of a call.
func (cfg *ClientConfig) CallTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.callTimeout
}

// ReadyPollInterval returns the transport ready state poll interval.
func (cfg *ClientConfig) ReadyPollInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.readyPollInterval
}

// KeepaliveUnit returns the unit of the server announced keepalive period.
func (cfg *ClientConfig) KeepaliveUnit() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.keepaliveUnit
}

// AutoKeepalive returns whether keepalive envelopes are sent.
func (cfg *ClientConfig) AutoKeepalive() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.autoKeepalive
}

// RetryCeiling returns the number of retries allowed per call type.
func (cfg *ClientConfig) RetryCeiling() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.retryCeiling
}

// AutoReconnect returns whether dropped connections are replaced.
func (cfg *ClientConfig) AutoReconnect() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.autoReconnect
}

// ReconnectDelay returns the bounds of the delay between connection attempts.
func (cfg *ClientConfig) ReconnectDelay() (time.Duration, time.Duration) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.reconnectMinDelay, cfg.reconnectMaxDelay
}

// CloseTimeout returns how long Close waits for the background tasks.
func (cfg *ClientConfig) CloseTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.closeTimeout
}

// Logger returns the configured logger.
func (cfg *ClientConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// ConnOption represents a functional option for configuring a ClientConfig.
type ConnOption interface {
	apply(*ClientConfig) error
}

type connOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*ClientConfig) error
}

func (c *connOptFunc) apply(cfg *ClientConfig) error {
	if cfg == nil {
		return protocol.ErrConnConfigNil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	return c.applyFunc(cfg)
}

func newConnOptFunc(name string, runtime bool, f func(*ClientConfig) error) *connOptFunc {
	return &connOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

// withURL validates and sets the server URL.
func withURL(serverURL string) ConnOption {
	return newConnOptFunc("withURL", false, func(cfg *ClientConfig) error {
		u, err := url.Parse(serverURL)
		if err != nil {
			return fmt.Errorf("invalid server url: %w", err)
		}

		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("invalid server url scheme %q, must be ws or wss", u.Scheme)
		}

		if u.Host == "" {
			return errors.New("invalid server url: empty host")
		}

		cfg.url = serverURL

		return nil
	})
}

// WithLogger sets the logger used by the client.
//
// The default is the package logger, logger.GetLogger().
//
// This option can't be changed at runtime.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", false, func(cfg *ClientConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithCallTimeout sets how long a call waits for its correlated response.
// A timed out call fails with protocol.ErrNoResponse and its registration is removed.
// Zero disables the timeout, the call then waits until it is answered or the connection is closed.
//
// The default value is 30 seconds.
//
// This option can be changed at runtime.
func WithCallTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithCallTimeout", true, func(cfg *ClientConfig) error {
		if val < 0 {
			return errors.New("call timeout must not be negative")
		}
		cfg.callTimeout = val

		return nil
	})
}

// WithReadyPollInterval sets how often a connecting transport is checked for its ready state.
//
// The default value is 1 second.
//
// This option can be changed at runtime.
func WithReadyPollInterval(val time.Duration) ConnOption {
	return newConnOptFunc("WithReadyPollInterval", true, func(cfg *ClientConfig) error {
		if val <= 0 {
			return errors.New("ready poll interval must be positive")
		}
		cfg.readyPollInterval = val

		return nil
	})
}

// WithKeepaliveUnit sets the unit of the keepalive period announced by the server.
// A hello response with keepalive 5 and the default unit sends a keepalive every 5 seconds.
//
// The default value is 1 second.
//
// This option takes effect on the next successful hello.
func WithKeepaliveUnit(val time.Duration) ConnOption {
	return newConnOptFunc("WithKeepaliveUnit", true, func(cfg *ClientConfig) error {
		if val <= 0 {
			return errors.New("keepalive unit must be positive")
		}
		cfg.keepaliveUnit = val

		return nil
	})
}

// WithAutoKeepalive enables or disables sending client_keepalive envelopes.
//
// The default value is true.
//
// This option takes effect on the next successful hello.
func WithAutoKeepalive(val bool) ConnOption {
	return newConnOptFunc("WithAutoKeepalive", true, func(cfg *ClientConfig) error {
		cfg.autoKeepalive = val

		return nil
	})
}

// WithRetryCeiling sets how many retries each call type may use before the connection is
// closed as fatal.
//
// The default value is 10.
//
// This option can be changed at runtime.
func WithRetryCeiling(val int) ConnOption {
	return newConnOptFunc("WithRetryCeiling", true, func(cfg *ClientConfig) error {
		if val < 0 {
			return errors.New("retry ceiling must not be negative")
		}
		cfg.retryCeiling = val

		return nil
	})
}

// WithAutoReconnect enables or disables replacing a connection that dropped without the server
// asking for a reconnection. Server requested reconnections always happen, fatal closes never do.
//
// The default value is false.
//
// This option can be changed at runtime.
func WithAutoReconnect(val bool) ConnOption {
	return newConnOptFunc("WithAutoReconnect", true, func(cfg *ClientConfig) error {
		cfg.autoReconnect = val

		return nil
	})
}

// WithReconnectDelay sets the bounds of the exponential delay between connection attempts.
// A zero minDelay reconnects immediately.
//
// The default values are 1 and 30 seconds.
//
// This option can't be changed at runtime.
func WithReconnectDelay(minDelay, maxDelay time.Duration) ConnOption {
	return newConnOptFunc("WithReconnectDelay", false, func(cfg *ClientConfig) error {
		if minDelay < 0 || maxDelay < minDelay {
			return errors.New("invalid reconnect delay range")
		}
		cfg.reconnectMinDelay = minDelay
		cfg.reconnectMaxDelay = maxDelay

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the background tasks to terminate.
//
// The default value is 3 seconds.
//
// This option can be changed at runtime.
func WithCloseTimeout(val time.Duration) ConnOption {
	return newConnOptFunc("WithCloseTimeout", true, func(cfg *ClientConfig) error {
		if val <= 0 {
			return errors.New("close timeout must be positive")
		}
		cfg.closeTimeout = val

		return nil
	})
}
