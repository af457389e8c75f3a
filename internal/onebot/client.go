// Package onebot is the OneBot V11 driver: websocket transport (forward
// and reverse), echo-correlated API calls, event decoding and the message
// segment model.
package onebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	eventBuffer = 64
	maxBackoff  = 30 * time.Second
)

// ErrNotConnected is returned by Do when no gateway connection is active.
var ErrNotConnected = errors.New("gateway not connected")

// ErrConnectionClosed is returned by Do when the connection drops while a
// call is in flight.
var ErrConnectionClosed = errors.New("gateway connection closed")

// APIError is a gateway-reported action failure.
type APIError struct {
	Action  string
	Retcode int
	Wording string
}

func (e *APIError) Error() string {
	if e.Wording != "" {
		return fmt.Sprintf("%s: retcode %d: %s", e.Action, e.Retcode, e.Wording)
	}
	return fmt.Sprintf("%s: retcode %d", e.Action, e.Retcode)
}

type apiFrame struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
	Echo   string                 `json:"echo"`
}

type apiResponse struct {
	Status  string              `json:"status"`
	Retcode int                 `json:"retcode"`
	Msg     string              `json:"msg"`
	Wording string              `json:"wording"`
	Data    jsoniter.RawMessage `json:"data"`
	Echo    string              `json:"echo"`
}

// Client multiplexes one gateway connection: it correlates API responses to
// calls by echo and fans events out on a buffered channel. The connection
// may come from Run (forward dial) or Serve (reverse listener); a new one
// supersedes the old.
type Client struct {
	wsURL       string
	accessToken string

	mu      sync.Mutex
	conn    Conn
	pending map[string]chan apiResponse

	seq    atomic.Uint64
	selfID atomic.Int64
	events chan *Envelope
}

// NewClient builds a client. wsURL may be empty when only a reverse
// listener feeds connections.
func NewClient(wsURL, accessToken string) *Client {
	return &Client{
		wsURL:       wsURL,
		accessToken: accessToken,
		pending:     make(map[string]chan apiResponse),
		events:      make(chan *Envelope, eventBuffer),
	}
}

// Events is the stream of decoded gateway events. Slow consumers cause
// drops, not backpressure on the read loop.
func (c *Client) Events() <-chan *Envelope {
	return c.events
}

// SelfID returns the bot account id learned from the gateway, 0 before the
// first event arrives.
func (c *Client) SelfID() int64 {
	return c.selfID.Load()
}

// Run dials the gateway and reads until ctx ends, reconnecting with
// exponential backoff. With no dial URL configured it just waits for
// reverse connections.
func (c *Client) Run(ctx context.Context) error {
	if c.wsURL == "" {
		<-ctx.Done()
		return nil
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := dial(ctx, c.wsURL, c.accessToken)
		if err != nil {
			slog.Warn("gateway dial failed", "url", c.wsURL, "error", err)
		} else {
			slog.Info("gateway connected", "url", c.wsURL)
			backoff = time.Second
			err = c.Serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("gateway connection lost", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Serve attaches conn as the active gateway connection and reads frames
// until it fails or ctx ends. Used directly by the reverse listener.
func (c *Client) Serve(ctx context.Context, conn Conn) error {
	c.attach(conn)
	defer c.detach(conn)

	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		old.Close(1000, "superseded")
	}
}

// detach clears the connection and fails in-flight calls so callers do not
// sit out their full deadlines against a dead socket.
func (c *Client) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
	c.mu.Unlock()
	conn.Close(1000, "")
}

func (c *Client) handleFrame(data []byte) {
	var probe struct {
		Echo     string `json:"echo"`
		PostType string `json:"post_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Warn("gateway frame undecodable", "error", err)
		return
	}

	if probe.Echo != "" {
		var resp apiResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("gateway response undecodable", "error", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Echo]
		if ok {
			delete(c.pending, resp.Echo)
		}
		c.mu.Unlock()
		if !ok {
			slog.Debug("orphan api response", "echo", resp.Echo)
			return
		}
		ch <- resp
		return
	}

	env, err := DecodeEvent(data)
	if err != nil {
		slog.Warn("gateway event undecodable", "error", err)
		return
	}
	if id := env.SelfID(); id != 0 {
		c.selfID.Store(id)
	}
	if env.Meta != nil {
		// Lifecycle and heartbeats stay in the driver.
		if env.Meta.MetaEventType == "lifecycle" {
			slog.Info("gateway lifecycle", "sub_type", env.Meta.SubType, "self_id", env.Meta.SelfID)
		}
		return
	}

	select {
	case c.events <- env:
	default:
		slog.Warn("event buffer full, dropping event", "post_type", env.PostType)
	}
}

// Do sends one API action frame and waits for the matching response.
// Implements Doer.
func (c *Client) Do(ctx context.Context, action string, params map[string]interface{}) (jsoniter.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	echo := strconv.FormatUint(c.seq.Add(1), 10)
	frame, err := json.Marshal(apiFrame{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}

	ch := make(chan apiResponse, 1)
	c.mu.Lock()
	c.pending[echo] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
	}()

	if err := conn.WriteMessage(ctx, frame); err != nil {
		return nil, fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if resp.Retcode != 0 {
			// retcode 1 with "async" means the gateway queued the action.
			if resp.Retcode == 1 && resp.Status == "async" {
				return resp.Data, nil
			}
			wording := resp.Wording
			if wording == "" {
				wording = resp.Msg
			}
			return nil, &APIError{Action: action, Retcode: resp.Retcode, Wording: wording}
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
