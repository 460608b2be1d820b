package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-charws/client"
	"github.com/arloliu/go-charws/logger"
	"github.com/arloliu/go-charws/protocol"
)

type closeEvent struct {
	code   int
	reason string
}

// testServer is a WebSocket server handing each accepted connection to handler.
type testServer struct {
	*httptest.Server
	upgrader websocket.Upgrader
	handler  func(ws *websocket.Conn)

	mu      sync.Mutex
	headers []http.Header
}

func newTestServer(t *testing.T, handler func(ws *websocket.Conn)) *testServer {
	t.Helper()

	s := &testServer{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		s.handler(ws)
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/websocket"
}

// charWSHandler answers correlated requests like a charWS server and pushes one intent after
// client_intents.
func charWSHandler(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		req := map[string]any{}
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}

		resp := map[string]any{"call_id": req["call_id"]}
		switch req["type"] {
		case "client_hello":
			resp["type"] = "server_hello"
			resp["keepalive"] = 30
		case "client_auth":
			resp["type"] = "server_auth"
			resp["email"] = "player@example.com"
			resp["token"] = "token-1"
			resp["permissions"] = []string{"chat.send"}
		case "client_intents":
			resp["type"] = "server_intents"
			resp["denied_intents"] = []string{"admin"}
		case "client_submessage":
			resp["type"] = "server_submessage"
			resp["data"] = req["data"]
			resp["authData"] = req["authData"]
		default:
			continue
		}

		if err := ws.WriteJSON(resp); err != nil {
			return
		}

		if req["type"] == "client_intents" {
			push := map[string]any{"type": "server_intent_receive", "intent": "chat", "data": "hi"}
			if err := ws.WriteJSON(push); err != nil {
				return
			}
		}
	}
}

func quietLogger() logger.Logger {
	return logger.NewSlogWithWriter(io.Discard, logger.ErrorLevel, false)
}

func dialOpen(t *testing.T, url string, handlers protocol.TransportHandlers, opts ...Option) *Conn {
	t.Helper()

	c := Dial(context.Background(), url, append([]Option{WithLogger(quietLogger()), WithHandlers(handlers)}, opts...)...)
	require.Eventually(t, func() bool {
		return c.State() == protocol.TransportOpen
	}, 2*time.Second, 5*time.Millisecond)

	return c
}

func TestConn_SendAndReceive(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t, func(ws *websocket.Conn) {
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	})

	received := make(chan []byte, 1)
	opened := make(chan struct{})
	c := Dial(context.Background(), srv.wsURL(),
		WithLogger(quietLogger()),
		WithHeader(http.Header{"X-App-Agent": {"charws-test"}}),
		WithHandlers(protocol.TransportHandlers{
			OnOpen:    func() { close(opened) },
			OnMessage: func(data []byte) { received <- data },
		}))

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not opened")
	}
	require.Equal(protocol.TransportOpen, c.State())
	require.Equal(srv.wsURL(), c.URL())

	require.NoError(c.Send([]byte(`{"type":"client_keepalive"}`)))
	select {
	case data := <-received:
		require.JSONEq(`{"type":"client_keepalive"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not echoed")
	}

	srv.mu.Lock()
	require.Equal("charws-test", srv.headers[0].Get("X-App-Agent"))
	srv.mu.Unlock()

	require.NoError(c.Close(protocol.CloseNormal, "bye"))
	<-c.Done()
	require.Equal(protocol.TransportClosed, c.State())
	require.ErrorIs(c.Send([]byte("late")), ErrNotOpen)
}

func TestConn_ClientClose(t *testing.T) {
	require := require.New(t)

	serverSaw := make(chan closeEvent, 1)
	srv := newTestServer(t, func(ws *websocket.Conn) {
		_, _, err := ws.ReadMessage()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			serverSaw <- closeEvent{closeErr.Code, closeErr.Text}
		}
	})

	closed := make(chan closeEvent, 1)
	c := dialOpen(t, srv.wsURL(), protocol.TransportHandlers{
		OnClose: func(code int, reason string) { closed <- closeEvent{code, reason} },
	})

	require.NoError(c.Close(4001, "Closed due to too many retry attempts"))
	require.NoError(c.Close(4001, "again"))

	require.Equal(closeEvent{4001, "Closed due to too many retry attempts"}, <-serverSaw)
	require.Equal(closeEvent{4001, "Closed due to too many retry attempts"}, <-closed)
	require.Equal(protocol.TransportClosed, c.State())
}

func TestConn_ClientCloseReservedCode(t *testing.T) {
	require := require.New(t)

	serverSaw := make(chan closeEvent, 1)
	srv := newTestServer(t, func(ws *websocket.Conn) {
		_, _, err := ws.ReadMessage()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			serverSaw <- closeEvent{closeErr.Code, closeErr.Text}
		}
	})

	c := dialOpen(t, srv.wsURL(), protocol.TransportHandlers{})
	require.NoError(c.Close(protocol.CloseAbnormal, strings.Repeat("x", 200)))

	saw := <-serverSaw
	require.Equal(websocket.CloseNormalClosure, saw.code)
	require.Len(saw.reason, maxReasonLen)
}

func TestConn_CloseTimeout(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	srv := newTestServer(t, func(*websocket.Conn) { <-release })
	defer close(release)

	closed := make(chan closeEvent, 1)
	c := dialOpen(t, srv.wsURL(), protocol.TransportHandlers{
		OnClose: func(code int, reason string) { closed <- closeEvent{code, reason} },
	}, WithCloseTimeout(50*time.Millisecond))

	require.NoError(c.Close(4002, "Server asked for reconnection due to error"))

	select {
	case ev := <-closed:
		require.Equal(closeEvent{4002, "Server asked for reconnection due to error"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("connection not dropped after close timeout")
	}
}

func TestConn_ServerClose(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(4000, "server shutdown")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = ws.ReadMessage()
	})

	closed := make(chan closeEvent, 1)
	var gotErr error
	c := Dial(context.Background(), srv.wsURL(), WithLogger(quietLogger()), WithHandlers(protocol.TransportHandlers{
		OnError: func(err error) { gotErr = err },
		OnClose: func(code int, reason string) { closed <- closeEvent{code, reason} },
	}))

	require.Equal(closeEvent{4000, "server shutdown"}, <-closed)
	require.NoError(gotErr)
	require.Equal(protocol.TransportClosed, c.State())
}

func TestConn_AbnormalClose(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t, func(ws *websocket.Conn) {
		_ = ws.UnderlyingConn().Close()
	})

	closed := make(chan closeEvent, 1)
	errCh := make(chan error, 1)
	Dial(context.Background(), srv.wsURL(), WithLogger(quietLogger()), WithHandlers(protocol.TransportHandlers{
		OnError: func(err error) { errCh <- err },
		OnClose: func(code int, reason string) { closed <- closeEvent{code, reason} },
	}))

	require.Error(<-errCh)
	require.Equal(closeEvent{protocol.CloseAbnormal, ""}, <-closed)
}

func TestConn_DialFailure(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	closed := make(chan closeEvent, 1)
	errCh := make(chan error, 1)
	c := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), WithLogger(quietLogger()),
		WithHandlers(protocol.TransportHandlers{
			OnError: func(err error) { errCh <- err },
			OnClose: func(code int, reason string) { closed <- closeEvent{code, reason} },
		}))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("failed dial not closed")
	}
	require.Equal(protocol.TransportClosed, c.State())
	require.ErrorIs(<-errCh, websocket.ErrBadHandshake)
	require.Equal(closeEvent{protocol.CloseAbnormal, ""}, <-closed)
}

func TestConn_CloseWhileConnecting(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// never answers the opening handshake
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), WithLogger(quietLogger()))
	require.Equal(protocol.TransportConnecting, c.State())

	require.NoError(c.Close(protocol.CloseNormal, "client closed"))
	<-c.Done()
	require.Equal(protocol.TransportClosed, c.State())
}

func TestSendableCloseCode(t *testing.T) {
	require := require.New(t)

	for _, code := range []int{1000, 1001, 1011, 3000, 4001, 4999} {
		require.True(isSendableCloseCode(code), code)
	}
	for _, code := range []int{0, 999, 1004, 1005, 1006, 1015, 2999, 5000} {
		require.False(isSendableCloseCode(code), code)
	}
}

func TestClientOverWebSocket(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t, charWSHandler)

	pushes := make(chan *protocol.Response, 1)
	var denied []string
	var deniedMu sync.Mutex
	app := &client.AppData{
		IntentFail: map[string]func(){
			"admin": func() {
				deniedMu.Lock()
				denied = append(denied, "admin")
				deniedMu.Unlock()
			},
		},
		IntentReceived: map[string]func(*protocol.Response){
			"chat": func(resp *protocol.Response) { pushes <- resp },
		},
		Config: client.AppConfig{
			AuthRequired:  true,
			RunConfigAuth: true,
			Email:         "player@example.com",
			Password:      "secret",
			AppAgent:      "charws-test",
			Intents:       []string{"chat", "admin"},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Run(ctx, Factory(WithLogger(quietLogger())), srv.wsURL(), app,
		client.WithLogger(quietLogger()), client.WithReadyPollInterval(5*time.Millisecond))
	require.NoError(err)
	defer c.Close()

	require.Equal(protocol.ReadyState, c.State())
	require.Equal("token-1", c.AuthContext().AuthToken)

	select {
	case push := <-pushes:
		require.Equal("chat", push.Intent)
	case <-time.After(2 * time.Second):
		t.Fatal("intent push not delivered")
	}

	deniedMu.Lock()
	require.Equal([]string{"admin"}, denied)
	deniedMu.Unlock()

	resp, err := c.Submessage(ctx, map[string]any{"move": "e4"})
	require.NoError(err)

	var body struct {
		Data     map[string]any `json:"data"`
		AuthData map[string]any `json:"authData"`
	}
	require.NoError(resp.Decode(&body))
	require.Equal(map[string]any{"move": "e4"}, body.Data)
	require.Equal("player@example.com", body.AuthData["authEmail"])
	require.Equal("token-1", body.AuthData["authToken"])

	require.NoError(c.Close())
	require.Equal(protocol.ClosedState, c.State())
}

func TestClientOverWebSocket_CallFromIntentHandler(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t, charWSHandler)

	type callResult struct {
		resp *protocol.Response
		err  error
	}
	clients := make(chan *client.Client, 1)
	results := make(chan callResult, 1)

	app := &client.AppData{
		IntentReceived: map[string]func(*protocol.Response){
			"chat": func(*protocol.Response) {
				c := <-clients
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()

				resp, err := c.Submessage(ctx, map[string]any{"reply": "pong"})
				results <- callResult{resp, err}
			},
		},
		Config: client.AppConfig{Intents: []string{"chat"}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Run(ctx, Factory(WithLogger(quietLogger())), srv.wsURL(), app,
		client.WithLogger(quietLogger()), client.WithReadyPollInterval(5*time.Millisecond))
	require.NoError(err)
	defer c.Close()
	clients <- c

	select {
	case res := <-results:
		require.NoError(res.err)
		var body struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(res.resp.Decode(&body))
		require.Equal(map[string]any{"reply": "pong"}, body.Data)
	case <-time.After(3 * time.Second):
		t.Fatal("call from intent handler not answered")
	}
}
