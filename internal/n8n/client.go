// Package n8n delivers finalized automation requirements to an n8n
// webhook endpoint.
package n8n

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dispatchTimeout = 30 * time.Second

// Client posts requirements to a configured webhook.
type Client struct {
	baseURL string
	path    string
	apiKey  string
	http    *http.Client
}

// NewClient builds a webhook client. Configuration is validated at
// dispatch time so an unconfigured agent still starts.
func NewClient(baseURL, path, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		path:    path,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: dispatchTimeout},
	}
}

// Dispatch posts requirement together with its session correlation id.
// Any non-2xx response is an error carrying the status and a body
// snippet for the user-facing message.
func (c *Client) Dispatch(ctx context.Context, requirement, sessionID string) error {
	if c.baseURL == "" || c.path == "" {
		return errors.New("n8n webhook not configured (AGENT__N8N_BASE_URL / AGENT__N8N_WEBHOOK_PATH)")
	}
	url := strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(c.path, "/")

	body, err := json.Marshal(map[string]string{
		"requirement": requirement,
		"session_id":  sessionID,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key goes in verbatim; n8n header auth matches the exact value,
	// scheme prefixes and all.
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
