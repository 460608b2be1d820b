// Package wsconn implements protocol.Transport on a gorilla/websocket connection.
//
// A Conn is returned in the connecting state and dials in the background, the same way a browser
// WebSocket does. Use Factory to plug it into a client:
//
//	c, err := client.Run(ctx, wsconn.Factory(), "ws://127.0.0.1:83/websocket", app)
package wsconn
