package wsconn

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

// ErrNotOpen is returned by Send if the connection is not open.
var ErrNotOpen = errors.New("websocket is not open")

// maxReasonLen is the longest close reason fitting in a control frame.
const maxReasonLen = 123

// Conn is a WebSocket connection implementing protocol.Transport.
type Conn struct {
	url    string
	opts   *options
	logger logger.Logger

	state atomic.Int32

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers protocol.TransportHandlers
	// close code and reason requested locally, reported if the server does not answer
	closeCode   int
	closeReason string

	writeMu    sync.Mutex
	dialCancel context.CancelFunc
	closeOnce  sync.Once
	done       chan struct{}
}

var _ protocol.Transport = (*Conn)(nil)

// Factory returns a protocol.TransportFactory dialing with opts.
func Factory(opts ...Option) protocol.TransportFactory {
	return func(ctx context.Context, url string) (protocol.Transport, error) {
		return Dial(ctx, url, opts...), nil
	}
}

// Dial returns a connection to url in the connecting state and starts the opening handshake in
// the background. ctx bounds the handshake only.
//
// If the handshake fails the connection moves to the closed state and OnError and OnClose are
// called with protocol.CloseAbnormal.
func Dial(ctx context.Context, url string, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		url:        url,
		opts:       o,
		logger:     o.logger.With("url", url),
		handlers:   o.handlers,
		dialCancel: cancel,
		done:       make(chan struct{}),
	}
	c.state.Store(int32(protocol.TransportConnecting))

	go c.dial(dialCtx)

	return c
}

func (c *Conn) dial(ctx context.Context) {
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: c.opts.handshakeTimeout,
		TLSClientConfig:  c.opts.tlsConfig,
	}

	ws, resp, err := dialer.DialContext(ctx, c.url, c.opts.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		c.logger.Warn("failed to dial", "method", "dial", "error", err)
		c.finish(err, protocol.CloseAbnormal, "")

		return
	}

	c.mu.Lock()
	if c.State() != protocol.TransportConnecting {
		// closed while dialing
		c.mu.Unlock()
		_ = ws.Close()

		return
	}

	if c.opts.readLimit > 0 {
		ws.SetReadLimit(c.opts.readLimit)
	}
	c.ws = ws
	c.state.Store(int32(protocol.TransportOpen))
	onOpen := c.handlers.OnOpen
	c.mu.Unlock()

	c.logger.Debug("websocket open", "method", "dial")

	if onOpen != nil {
		onOpen()
	}

	go c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		c.mu.Lock()
		onMessage := c.handlers.OnMessage
		c.mu.Unlock()

		if onMessage != nil {
			onMessage(data)
		}
	}
}

// readFailed reports the end of the read loop with the close code of the closing handshake when
// one took place.
func (c *Conn) readFailed(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.finish(nil, closeErr.Code, closeErr.Text)
		return
	}

	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()

	if c.State() == protocol.TransportClosing {
		c.finish(nil, code, reason)
		return
	}

	c.logger.Warn("websocket read failed", "method", "readLoop", "error", err)
	c.finish(err, protocol.CloseAbnormal, "")
}

// finish moves the connection to the closed state and calls the handlers once.
func (c *Conn) finish(err error, code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state.Store(int32(protocol.TransportClosed))
		ws := c.ws
		handlers := c.handlers
		c.mu.Unlock()

		c.dialCancel()
		if ws != nil {
			_ = ws.Close()
		}
		close(c.done)

		c.logger.Debug("websocket closed", "method", "finish", "code", code, "reason", reason)

		if err != nil && handlers.OnError != nil {
			handlers.OnError(err)
		}

		if handlers.OnClose != nil {
			handlers.OnClose(code, reason)
		}
	})
}

// Send sends data as a text frame.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil || c.State() != protocol.TransportOpen {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	return ws.WriteMessage(websocket.TextMessage, data)
}

// Close starts the closing handshake with code and reason. Codes that can't be sent on the wire
// are replaced by 1000.
//
// The network connection is dropped if the server does not answer within the close timeout.
// OnClose is called once the connection is closed.
func (c *Conn) Close(code int, reason string) error {
	if !isSendableCloseCode(code) {
		code = websocket.CloseNormalClosure
	}
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	c.mu.Lock()
	state := c.State()
	switch state {
	case protocol.TransportClosing, protocol.TransportClosed:
		c.mu.Unlock()
		return nil

	case protocol.TransportConnecting:
		c.state.Store(int32(protocol.TransportClosing))
		c.mu.Unlock()
		c.dialCancel()
		c.finish(nil, code, reason)

		return nil
	}

	c.state.Store(int32(protocol.TransportClosing))
	c.closeCode, c.closeReason = code, reason
	ws := c.ws
	c.mu.Unlock()

	c.logger.Debug("close websocket", "method", "Close", "code", code, "reason", reason)

	msg := websocket.FormatCloseMessage(code, reason)
	err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.writeTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("failed to send close frame", "method", "Close", "error", err)
		_ = ws.Close()

		return err
	}

	go func() {
		timer := time.NewTimer(c.opts.closeTimeout)
		defer timer.Stop()

		select {
		case <-c.done:
		case <-timer.C:
			c.logger.Debug("close timeout, drop connection", "method", "Close")
			_ = ws.Close()
		}
	}()

	return nil
}

// State returns the ready state.
func (c *Conn) State() protocol.TransportState {
	return protocol.TransportState(c.state.Load())
}

// SetHandlers replaces the event handlers.
func (c *Conn) SetHandlers(handlers protocol.TransportHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = handlers
}

// URL returns the URL the connection was dialed to.
func (c *Conn) URL() string {
	return c.url
}

// Done returns a channel closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// isSendableCloseCode reports whether code may be sent in a close frame.
func isSendableCloseCode(code int) bool {
	switch {
	case code >= 3000 && code <= 4999:
		return true
	case code == websocket.CloseNormalClosure,
		code == websocket.CloseGoingAway,
		code == websocket.CloseProtocolError,
		code == websocket.CloseUnsupportedData,
		code == websocket.CloseInvalidFramePayloadData,
		code == websocket.ClosePolicyViolation,
		code == websocket.CloseMessageTooBig,
		code == websocket.CloseMandatoryExtension,
		code == websocket.CloseInternalServerErr,
		code == websocket.CloseServiceRestart,
		code == websocket.CloseTryAgainLater:
		return true
	default:
		return false
	}
}
