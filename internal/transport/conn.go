package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn abstracts the underlying duplex message stream so the Session
// Transport's pump can be exercised against a fake in tests instead of a
// real browser's control-channel WebSocket.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// wsConn adapts *websocket.Conn to the Conn interface.
type wsConn struct {
	c *websocket.Conn
}

// Dial opens a WebSocket connection to the given control-channel URL (the
// debugger URL returned by launching or attaching to a browser target).
func Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}
