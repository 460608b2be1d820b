package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-charws/internal/backoff"
	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

// Client is a charWS protocol client.
//
// It owns one transport at a time, drives the handshake on it, correlates responses to calls,
// applies the server error handling policies and sends keepalives. Retry counters and the
// authentication context outlive individual transports.
type Client struct {
	pctx      context.Context
	ctxMu     sync.RWMutex // guard ctx, ctxCancel and the shutdown reset
	ctx       context.Context
	ctxCancel context.CancelFunc
	cfg       *ClientConfig
	logger    logger.Logger
	factory   protocol.TransportFactory
	app       *AppData

	stateMgr *protocol.ConnStateMgr
	taskMgr  *protocol.TaskManager
	backoff  *backoff.ExponentialBackoff

	transportMu sync.RWMutex
	active      *activeTransport
	generation  uint64

	authMu sync.RWMutex
	auth   *protocol.AuthContext

	registry *callRegistry
	retries  *xsync.MapOf[protocol.CallType, int]

	heartbeatMu sync.Mutex

	opened           atomic.Bool
	shutdown         atomic.Bool // Close was called
	fatal            atomic.Bool // fatal close was requested, no recovery
	reconnectPending atomic.Bool // server asked for a new connection
	reconnectCh      chan struct{}
	// intent pushes waiting for the dispatch task
	pushCh           chan *protocol.Response

	metrics ConnectionMetrics
}

// activeTransport is a transport installed as the authoritative one.
type activeTransport struct {
	tr       protocol.Transport
	gen      uint64
	done     chan struct{} // closed once the transport is closed
	doneOnce sync.Once
}

func (at *activeTransport) markDone() {
	at.doneOnce.Do(func() { close(at.done) })
}

func (at *activeTransport) isDone() bool {
	select {
	case <-at.done:
		return true
	default:
		return false
	}
}

// NewClient creates a new Client with the given context, transport factory, configuration and
// host application data. The connection is started by Open.
func NewClient(ctx context.Context, factory protocol.TransportFactory, cfg *ClientConfig, app *AppData) (*Client, error) {
	if cfg == nil {
		return nil, protocol.ErrConnConfigNil
	}

	if factory == nil {
		return nil, errors.New("transport factory is nil")
	}

	if app == nil {
		app = &AppData{}
	}

	l := cfg.Logger()
	minDelay, maxDelay := cfg.ReconnectDelay()

	c := &Client{
		pctx:        ctx,
		cfg:         cfg,
		logger:      l,
		factory:     factory,
		app:         app,
		taskMgr:     protocol.NewTaskManager(ctx, l),
		backoff:     backoff.NewExponentialBackoff(minDelay, maxDelay),
		registry:    newCallRegistry(),
		retries:     xsync.NewMapOf[protocol.CallType, int](),
		reconnectCh: make(chan struct{}, 1),
		pushCh:      make(chan *protocol.Response, pushQueueSize),
	}
	c.stateMgr = protocol.NewConnStateMgr(l, c.logStateChange)

	return c, nil
}

// Run creates a client for url, opens it and waits until the handshake finished.
//
// Connection attempts are repeated until ctx is done, so ctx bounds how long Run may block.
// The returned client must be closed by the caller.
func Run(ctx context.Context, factory protocol.TransportFactory, url string, app *AppData, opts ...ConnOption) (*Client, error) {
	cfg, err := NewClientConfig(url, opts...)
	if err != nil {
		return nil, err
	}

	c, err := NewClient(ctx, factory, cfg, app)
	if err != nil {
		return nil, err
	}

	if err := c.Open(true); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Open starts connecting in the background.
// If waitReady is true, it blocks until the handshake finished, or returns an error if the client
// stopped before, e.g. after a fatal close.
//
// Open returns protocol.ErrAlreadyOpened until Close is called.
func (c *Client) Open(waitReady bool) error {
	if c.opened.Swap(true) {
		return protocol.ErrAlreadyOpened
	}

	c.ctxMu.Lock()
	c.shutdown.Store(false)
	c.fatal.Store(false)
	c.reconnectPending.Store(false)

	runCtx, runCancel := context.WithCancel(c.pctx)
	c.ctx, c.ctxCancel = runCtx, runCancel
	c.ctxMu.Unlock()

	c.drainPushes()
	if err := c.taskMgr.Start(pushTaskName, c.pushDispatchTask(runCtx)); err != nil {
		runCancel()
		c.opened.Store(false)
		return err
	}

	done := make(chan struct{})
	if err := c.taskMgr.Start("supervisor", c.supervisorTask(runCtx, done)); err != nil {
		runCancel()
		c.opened.Store(false)
		return err
	}

	if !waitReady {
		return nil
	}

	return c.waitReady(runCtx, done)
}

// runContext returns the context of the current Open, cancelled by Close. It is nil before Open.
func (c *Client) runContext() context.Context {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()

	return c.ctx
}

func (c *Client) waitReady(runCtx context.Context, done <-chan struct{}) error {
	ctx, cancel := context.WithCancel(runCtx)
	defer cancel()

	readyCh := make(chan error, 1)
	go func() {
		readyCh <- c.stateMgr.WaitState(ctx, protocol.ReadyState)
	}()

	select {
	case err := <-readyCh:
		return err
	case <-done:
		if c.stateMgr.IsReady() {
			return nil
		}

		return protocol.ErrConnClosed
	}
}

// Close closes the connection and stops all background tasks. Pending calls fail with
// protocol.ErrConnClosed.
func (c *Client) Close() error {
	c.ctxMu.Lock()
	if c.shutdown.Swap(true) {
		c.ctxMu.Unlock()
		return nil
	}
	cancelRun := c.ctxCancel
	c.ctxMu.Unlock()

	c.logger.Debug("start close process", "method", "Close")

	if cancelRun != nil {
		cancelRun()
	}

	c.stopHeartbeat()
	c.dropTransport(c.currentTransport(), protocol.CloseNormal, "client closed")
	c.registry.failAll(protocol.ErrConnClosed)
	c.stateMgr.ToClosed()
	c.taskMgr.Stop()

	timeout := c.cfg.CloseTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		c.taskMgr.Wait()
		cancel()
	}()

	<-ctx.Done()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Error("close timeout", "method", "Close", "timeout", timeout)
	} else {
		c.logger.Debug("close success", "method", "Close")
	}

	c.opened.Store(false)

	return nil
}

// UpdateConfigOptions applies options that can be changed at runtime.
func (c *Client) UpdateConfigOptions(opts ...ConnOption) error {
	for _, opt := range opts {
		connOpt, ok := opt.(*connOptFunc)
		if !ok {
			return errors.New("invalid ConnOption type")
		}

		if !connOpt.runtime {
			return errors.New(connOpt.name + " can't be changed at runtime")
		}

		if err := opt.apply(c.cfg); err != nil {
			return err
		}
	}

	return nil
}

// Handle returns the current transport, the server URL and the host application data.
// Transport is nil while no transport is installed.
func (c *Client) Handle() ConnectionHandle {
	h := ConnectionHandle{Factory: c.factory, URL: c.cfg.URL(), App: c.app}
	if at := c.currentTransport(); at != nil {
		h.Transport = at.tr
	}

	return h
}

// State returns the current connection state.
func (c *Client) State() protocol.ConnState {
	return c.stateMgr.State()
}

// WaitState waits until the connection reaches state or ctx is done.
func (c *Client) WaitState(ctx context.Context, state protocol.ConnState) error {
	return c.stateMgr.WaitState(ctx, state)
}

// AddConnStateChangeHandler adds handlers invoked on each connection state change.
func (c *Client) AddConnStateChangeHandler(handlers ...protocol.ConnStateChangeHandler) {
	c.stateMgr.AddHandler(handlers...)
}

// RetryCount returns how many times calls of callType were retried.
func (c *Client) RetryCount(callType protocol.CallType) int {
	count, _ := c.retries.Load(callType)
	return count
}

// AuthContext returns the authentication context, nil before a successful client_auth.
func (c *Client) AuthContext() *protocol.AuthContext {
	c.authMu.RLock()
	defer c.authMu.RUnlock()

	return c.auth
}

func (c *Client) setAuthContext(auth *protocol.AuthContext) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.auth = auth
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *ConnectionMetrics {
	return &c.metrics
}

// GetLogger returns the logger of the client.
func (c *Client) GetLogger() logger.Logger {
	return c.logger
}

func (c *Client) logStateChange(prevState protocol.ConnState, newState protocol.ConnState) {
	c.logger.Debug("connection state changed", "method", "logStateChange", "prev_state", prevState, "state", newState)
}

// currentTransport returns the authoritative transport, nil if none is installed.
func (c *Client) currentTransport() *activeTransport {
	c.transportMu.RLock()
	defer c.transportMu.RUnlock()

	return c.active
}

func (c *Client) isCurrent(at *activeTransport) bool {
	return at != nil && c.currentTransport() == at
}

// installTransport makes tr the authoritative transport.
func (c *Client) installTransport(tr protocol.Transport) *activeTransport {
	c.transportMu.Lock()
	defer c.transportMu.Unlock()

	c.generation++
	c.active = &activeTransport{tr: tr, gen: c.generation, done: make(chan struct{})}

	return c.active
}

// dropTransport closes at if it is still open, uninstalls it and fails the calls waiting on it.
func (c *Client) dropTransport(at *activeTransport, code int, reason string) {
	if at == nil {
		return
	}

	c.transportMu.Lock()
	if c.active == at {
		c.active = nil
	}
	c.transportMu.Unlock()

	c.closeTransport(at, code, reason)
	at.markDone()

	if n := c.registry.failAll(protocol.ErrConnClosed); n > 0 {
		c.logger.Debug("pending calls dropped", "method", "dropTransport", "count", n, "gen", at.gen)
	}
}

func (c *Client) closeTransport(at *activeTransport, code int, reason string) {
	if at == nil {
		return
	}

	state := at.tr.State()
	if state == protocol.TransportClosed || state == protocol.TransportClosing {
		return
	}

	c.logger.Debug("close transport", "method", "closeTransport", "code", code, "reason", reason, "gen", at.gen)
	if err := at.tr.Close(code, reason); err != nil {
		c.logger.Warn("failed to close transport", "method", "closeTransport", "error", err, "gen", at.gen)
	}
}

// closeCurrent closes the authoritative transport with the given close code and reason.
func (c *Client) closeCurrent(code int, reason string) {
	c.closeTransport(c.currentTransport(), code, reason)
}
