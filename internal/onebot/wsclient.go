package onebot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const dialTimeout = 15 * time.Second

// Conn is one gateway websocket connection. Writes are serialized by the
// implementation; reads belong to a single loop.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close(code int, reason string)
}

// wsConn wraps coder/websocket with a thread-safe write method.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// dial opens a forward connection to the gateway, authenticating with the
// access token when one is configured.
func dial(ctx context.Context, wsURL, accessToken string) (Conn, error) {
	headers := http.Header{}
	if accessToken != "" {
		headers.Set("Authorization", "Bearer "+accessToken)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	// Voice downloads arrive as base64 inside one frame; the library's
	// 32KB default is far too small.
	conn.SetReadLimit(1 << 24)
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(code int, reason string) {
	c.conn.Close(websocket.StatusCode(code), reason)
}
