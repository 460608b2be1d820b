package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

const testURL = "ws://charws.test/websocket"

// fakeTransport is an in-memory protocol.Transport answered by a fakeServer.
type fakeTransport struct {
	srv   *fakeServer
	url   string
	state atomic.Int32

	mu          sync.Mutex
	handlers    protocol.TransportHandlers
	sent        []map[string]any
	closeCode   int
	closeReason string
}

var _ protocol.Transport = (*fakeTransport)(nil)

func (t *fakeTransport) Send(data []byte) error {
	if t.State() != protocol.TransportOpen {
		return errors.New("transport not open")
	}

	req := map[string]any{}
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	t.mu.Lock()
	t.sent = append(t.sent, req)
	t.mu.Unlock()

	for _, resp := range t.srv.respond(t, req) {
		go t.push(resp)
	}

	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.closeWith(code, reason)
	return nil
}

func (t *fakeTransport) State() protocol.TransportState {
	return protocol.TransportState(t.state.Load())
}

func (t *fakeTransport) SetHandlers(handlers protocol.TransportHandlers) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers = handlers
}

// push delivers msg as a frame received from the server.
func (t *fakeTransport) push(msg map[string]any) {
	if t.State() != protocol.TransportOpen {
		return
	}

	data, _ := json.Marshal(msg)

	t.mu.Lock()
	onMessage := t.handlers.OnMessage
	t.mu.Unlock()

	if onMessage != nil {
		onMessage(data)
	}
}

// closeWith closes the transport and fires OnClose once.
func (t *fakeTransport) closeWith(code int, reason string) {
	t.mu.Lock()
	if t.State() == protocol.TransportClosed {
		t.mu.Unlock()
		return
	}
	t.state.Store(int32(protocol.TransportClosed))
	t.closeCode = code
	t.closeReason = reason
	onClose := t.handlers.OnClose
	t.mu.Unlock()

	if onClose != nil {
		onClose(code, reason)
	}
}

// fail reports a transport error followed by an abnormal close.
func (t *fakeTransport) fail(err error) {
	t.mu.Lock()
	onError := t.handlers.OnError
	t.mu.Unlock()

	if onError != nil {
		onError(err)
	}
	t.closeWith(protocol.CloseAbnormal, "")
}

func (t *fakeTransport) closeInfo() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeCode, t.closeReason
}

func (t *fakeTransport) sentOf(typ string) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []map[string]any
	for _, req := range t.sent {
		if req["type"] == typ {
			result = append(result, req)
		}
	}

	return result
}

func (t *fakeTransport) sentTypes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	types := make([]string, 0, len(t.sent))
	for _, req := range t.sent {
		if typ, _ := req["type"].(string); typ != string(protocol.CallKeepalive) {
			types = append(types, typ)
		}
	}

	return types
}

type serverHandler func(t *fakeTransport, req map[string]any) []map[string]any

// fakeServer constructs fake transports and answers their requests.
type fakeServer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	handler    serverHandler
	keepalive  float64
	// openStates is the state each constructed transport moves to after openAfter, default open.
	openStates []protocol.TransportState
	openAfter  time.Duration
}

func newFakeServer() *fakeServer {
	return &fakeServer{keepalive: 1000}
}

func (s *fakeServer) factory(_ context.Context, url string) (protocol.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.transports)
	t := &fakeTransport{srv: s, url: url}
	s.transports = append(s.transports, t)

	target := protocol.TransportOpen
	if idx < len(s.openStates) {
		target = s.openStates[idx]
	}

	if s.openAfter <= 0 && target == protocol.TransportOpen {
		t.state.Store(int32(protocol.TransportOpen))
		return t, nil
	}

	t.state.Store(int32(protocol.TransportConnecting))
	go func() {
		time.Sleep(s.openAfter)
		t.state.CompareAndSwap(int32(protocol.TransportConnecting), int32(target))
	}()

	return t, nil
}

func (s *fakeServer) setHandler(h serverHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler = h
}

func (s *fakeServer) respond(t *fakeTransport, req map[string]any) []map[string]any {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		return h(t, req)
	}

	return s.defaultResponse(req)
}

// defaultResponse answers every correlated request with a success response.
func (s *fakeServer) defaultResponse(req map[string]any) []map[string]any {
	switch req["type"] {
	case "client_hello":
		return one(reply(req, map[string]any{"type": "server_hello", "keepalive": s.keepalive}))
	case "client_auth":
		data, _ := req["data"].(map[string]any)
		return one(reply(req, map[string]any{
			"type":        "server_auth",
			"email":       data["email"],
			"token":       "token-1",
			"permissions": []string{"chat.send"},
		}))
	case "client_intents":
		return one(reply(req, map[string]any{"type": "server_intents", "denied_intents": []string{}}))
	case "client_intent_send":
		return one(reply(req, map[string]any{"type": "server_intent_send"}))
	case "client_submessage":
		return one(reply(req, map[string]any{"type": "server_submessage", "data": req["data"]}))
	default:
		return nil
	}
}

func (s *fakeServer) transportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.transports)
}

func (s *fakeServer) transport(idx int) *fakeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transports[idx]
}

func reply(req map[string]any, fields map[string]any) map[string]any {
	fields["call_id"] = req["call_id"]
	return fields
}

func errorReply(req map[string]any, handling protocol.ErrorHandling, code int) map[string]any {
	return reply(req, map[string]any{
		"type":          "error",
		"error":         "request failed",
		"errorCode":     code,
		"errorHandling": string(handling),
	})
}

func one(msg map[string]any) []map[string]any {
	return []map[string]any{msg}
}

func quietLogger() logger.Logger {
	return logger.NewSlogWithWriter(io.Discard, logger.ErrorLevel, false)
}

func newTestClient(t *testing.T, srv *fakeServer, app *AppData, opts ...ConnOption) *Client {
	t.Helper()

	base := []ConnOption{
		WithLogger(quietLogger()),
		WithReadyPollInterval(5 * time.Millisecond),
		WithReconnectDelay(0, 0),
		WithCallTimeout(2 * time.Second),
		WithKeepaliveUnit(10 * time.Millisecond),
		WithCloseTimeout(time.Second),
	}

	cfg, err := NewClientConfig(testURL, append(base, opts...)...)
	require.NoError(t, err)

	c, err := NewClient(context.Background(), srv.factory, cfg, app)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}
