package glasses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// defaultEndpoint is the cloud display control endpoint.
const defaultEndpoint = "wss://prod.augmentos.cloud/glasses-ws"

// Compile-time interface assertion.
var _ Sink = (*Client)(nil)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithEndpoint overrides the WebSocket endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// Client implements [Sink] over the cloud display WebSocket. The connection
// is dialled lazily on the first write and redialled after a write failure,
// so a transient display outage never fails a session.
//
// All exported methods are safe for concurrent use.
type Client struct {
	apiKey      string
	packageName string
	endpoint    string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a display client authenticated with the given key.
func NewClient(apiKey, packageName string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("glasses: apiKey must not be empty")
	}
	if packageName == "" {
		return nil, errors.New("glasses: packageName must not be empty")
	}
	c := &Client{
		apiKey:      apiKey,
		packageName: packageName,
		endpoint:    defaultEndpoint,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// displayMessage is the wire form of a text-wall update.
type displayMessage struct {
	Type        string `json:"type"`
	PackageName string `json:"packageName"`
	View        string `json:"view"`
	LayoutType  string `json:"layoutType"`
	Text        string `json:"text"`
	DurationMS  int64  `json:"durationMs,omitempty"`
}

// ShowTextWall sends a display update, dialling the connection on first use.
// A failed write tears the connection down; the next call redials.
func (c *Client) ShowTextWall(ctx context.Context, req DisplayRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return err
		}
	}

	msg := displayMessage{
		Type:        "display_event",
		PackageName: c.packageName,
		View:        "main",
		LayoutType:  "text_wall",
		Text:        req.Text,
		DurationMS:  req.Duration.Milliseconds(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("glasses: marshal display message: %w", err)
	}

	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.conn.Close(websocket.StatusInternalError, "write failed")
		c.conn = nil
		return fmt.Errorf("glasses: write display message: %w", err)
	}
	return nil
}

// Close shuts the display connection down. Safe to call with no connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "client closed")
		c.conn = nil
	}
	return nil
}

// dialLocked establishes the display connection. Must be called with c.mu
// held.
func (c *Client) dialLocked(ctx context.Context) error {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("glasses: dial %s: %w", c.endpoint, err)
	}
	c.conn = conn
	return nil
}
