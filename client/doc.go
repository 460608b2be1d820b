// Package client implements the charWS protocol client.
//
// A Client connects through a protocol.TransportFactory, performs the handshake and turns the
// asynchronous message stream into blocking calls:
//
//	cfg, err := client.NewClientConfig("ws://127.0.0.1:83/websocket",
//	    client.WithCallTimeout(10*time.Second),
//	    client.WithAutoReconnect(true),
//	)
//	if err != nil {
//	    // handle error
//	}
//
//	app := &client.AppData{
//	    WSReady: func() { log.Println("ready") },
//	    IntentReceived: map[string]func(*protocol.Response){
//	        "chat": func(resp *protocol.Response) { ... },
//	    },
//	    Config: client.AppConfig{AppAgent: "me/chat : me@example.com : demo", Intents: []string{"chat"}},
//	}
//
//	c, err := client.NewClient(ctx, wsconn.Factory(), cfg, app)
//	if err != nil {
//	    // handle error
//	}
//	defer c.Close()
//
//	if err := c.Open(true); err != nil {
//	    // handle error
//	}
//
//	resp, err := c.Submessage(ctx, map[string]any{"action": "ping"})
//
// Handshake:
// client_hello is sent as soon as the transport is open. Its response announces the keepalive
// period. client_auth follows when AppConfig.AuthRequired and AppConfig.RunConfigAuth are set, and
// client_intents when AppConfig.Intents is not empty. AppData.WSReady is invoked afterwards.
//
// Server errors:
// Error responses are reported to AppData.ErrorCallback (or AppData.Alert, or the log) and handled
// by their errorHandling policy:
//   - retry:          the call is sent again, at most WithRetryCeiling times per call type over the client lifetime.
//     Beyond that the connection is closed and the call fails with protocol.ErrRetriesExhausted.
//   - reconnect:      the connection is closed and a new one is made, starting again with client_hello.
//   - fatal:          the connection is closed for good.
//   - ignore:         the call succeeds without a result.
//   - attemptVersion: handled as fatal.
//
// Failed calls return a *protocol.ServerError. Calls without a response within WithCallTimeout fail
// with protocol.ErrNoResponse, calls pending when the connection closes fail with protocol.ErrConnClosed.
package client
