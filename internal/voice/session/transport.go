package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the duplex wire the session writes to. Binary frames
// carry outbound audio; control frames carry JSON state events.
type Transport interface {
	WriteBinary(data []byte) error
	WriteControl(v interface{}) error
	WriteClose(code int, reason string) error
	Close() error
}

// wsTransport adapts a gorilla websocket connection. Gorilla conns
// allow only one concurrent writer, so writes are serialized here.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTransport wraps a websocket connection as a session transport.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) WriteBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *wsTransport) WriteControl(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) WriteClose(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
