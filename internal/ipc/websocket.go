package ipc

import (
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// WebSocket is a transport over a websocket client connection, one text
// message per signal in the same "name=value" format as the stream
// transport.
type WebSocket struct {
	conn *websocket.Conn
}

// DialWebSocket connects to a websocket endpoint, e.g. "ws://host:port/vsm".
func DialWebSocket(url string) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WebSocket{conn: conn}, nil
}

// Send writes one signal as a text message.
func (w *WebSocket) Send(name, value string) error {
	msg := fmt.Sprintf("%s=%s", name, value)
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// Receive blocks for the next text message and splits it.
func (w *WebSocket) Receive() (string, string, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", "", io.EOF
			}
			return "", "", err
		}
		if kind != websocket.TextMessage || len(data) == 0 {
			continue
		}
		return splitMessage(string(data))
	}
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	return w.conn.Close()
}
