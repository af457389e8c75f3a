package onebot

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts reverse websocket connections from the gateway, for
// deployments where the gateway dials the bot instead of the other way
// around. Accepted connections are handed to the shared Client.
type Server struct {
	addr        string
	accessToken string
	client      *Client
	upgrader    websocket.Upgrader
}

// NewServer builds a reverse listener on addr feeding client.
func NewServer(addr, accessToken string, client *Client) *Server {
	return &Server{
		addr:        addr,
		accessToken: accessToken,
		client:      client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Gateways are not browsers; there is no origin to validate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until ctx ends, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: mux,
		// Ties request contexts to ctx so upgraded connections notice
		// shutdown; plain Shutdown cannot reach hijacked sockets.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("reverse websocket listening", "addr", s.addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	slog.Info("gateway connected (reverse)",
		"remote", r.RemoteAddr,
		"self_id", r.Header.Get("X-Self-ID"),
		"role", r.Header.Get("X-Client-Role"))

	conn := &serverConn{conn: wsConn}
	ctx := r.Context()

	// Unblock the gorilla read loop when the server shuts down.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close(websocket.CloseGoingAway, "server shutting down")
		case <-done:
		}
	}()

	err = s.client.Serve(ctx, conn)
	close(done)
	slog.Info("gateway disconnected (reverse)", "remote", r.RemoteAddr, "error", err)
}

// authorized checks the OneBot access token: Authorization header (with or
// without the Bearer/Token prefix) or the access_token query parameter.
func (s *Server) authorized(r *http.Request) bool {
	if s.accessToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	for _, prefix := range []string{"Bearer ", "Token "} {
		if strings.HasPrefix(auth, prefix) {
			auth = strings.TrimPrefix(auth, prefix)
			break
		}
	}
	if auth == s.accessToken {
		return true
	}
	return r.URL.Query().Get("access_token") == s.accessToken
}

// serverConn adapts a gorilla connection to Conn. Reads ignore ctx; the
// accept loop closes the socket to unblock them.
type serverConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *serverConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *serverConn) WriteMessage(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *serverConn) Close(code int, reason string) {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.mu.Unlock()
	c.conn.Close()
}
