package transport

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketDialer dials a WebSocket URL.
type WebSocketDialer struct {
	URL    string
	Header http.Header

	// Verbose turns on logging.
	Verbose bool
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, err
	}

	if d.Verbose {
		log.Printf("WebSocketDialer dialing %s", u.String())
	}

	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		return nil, err
	}

	return &wsConn{c: c}, nil
}

// wsConn adapts a gorilla conn.  Gorilla allows one concurrent
// reader and one concurrent writer; the write mutex covers callers
// that race Writes.
type wsConn struct {
	c *websocket.Conn

	wmu sync.Mutex
}

func (t *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, msg, err := t.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *wsConn) Write(ctx context.Context, msg []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.c.WriteMessage(websocket.TextMessage, msg)
}

func (t *wsConn) Close() error {
	return t.c.Close()
}
