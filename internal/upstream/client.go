// Package upstream consumes the cloud translation service's streaming API.
//
// The service speaks JSON over a WebSocket: the client sends one subscribe
// message naming the locale pair, then receives translation events until the
// subscription is disposed or the connection drops. A dropped connection
// surfaces as a closed event channel, which callers treat as session stop.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

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

// defaultEndpoint is the cloud translation stream endpoint.
const defaultEndpoint = "wss://prod.augmentos.cloud/tpa-ws"

// Compile-time interface assertions.
var (
	_ Source       = (*Client)(nil)
	_ Subscription = (*wsSubscription)(nil)
)

// Client implements [Source] against the cloud WebSocket API.
type Client struct {
	apiKey      string
	packageName string
	endpoint    string
}

// NewClient creates a Client. apiKey and packageName must be non-empty; they
// authenticate the relay against the cloud service.
func NewClient(apiKey, packageName string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("upstream: apiKey must not be empty")
	}
	if packageName == "" {
		return nil, errors.New("upstream: packageName must not be empty")
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

// subscribeMessage is the wire form of a stream subscription request.
type subscribeMessage struct {
	Type         string `json:"type"`
	PackageName  string `json:"packageName"`
	SessionID    string `json:"sessionId"`
	SourceLocale string `json:"sourceLocale"`
	TargetLocale string `json:"targetLocale"`
}

// wireEvent is the wire form of a translation event, wrapped in a typed
// envelope so unrelated message kinds can be skipped.
type wireEvent struct {
	Type string `json:"type"`
	TranslationEvent
}

// Subscribe dials the stream endpoint, sends the subscription request, and
// starts the read loop. The returned subscription's event channel closes on
// disconnect.
func (c *Client) Subscribe(ctx context.Context, cfg StreamConfig) (Subscription, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: dial %s: %w", c.endpoint, err)
	}

	msg := subscribeMessage{
		Type:         "subscribe",
		PackageName:  c.packageName,
		SessionID:    cfg.SessionID,
		SourceLocale: cfg.SourceLocale,
		TargetLocale: cfg.TargetLocale,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal subscribe")
		return nil, fmt.Errorf("upstream: marshal subscribe: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe write failed")
		return nil, fmt.Errorf("upstream: send subscribe: %w", err)
	}

	sub := &wsSubscription{
		conn:   conn,
		events: make(chan TranslationEvent, 64),
		done:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.readLoop(ctx)

	return sub, nil
}

// wsSubscription is a live stream over one WebSocket connection.
type wsSubscription struct {
	conn   *websocket.Conn
	events chan TranslationEvent

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Events returns the channel of translation events.
func (s *wsSubscription) Events() <-chan TranslationEvent { return s.events }

// Close disposes the subscription and closes the underlying connection.
func (s *wsSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "subscription disposed")
		s.wg.Wait()
	})
	return nil
}

// readLoop receives wire messages and dispatches translation events until
// the connection drops or the subscription is disposed.
func (s *wsSubscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close, disposal, or disconnect.
			return
		}

		ev, ok := parseEvent(data, time.Now())
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// parseEvent decodes a raw wire message into a TranslationEvent, stamping
// the local receive time. Malformed or unrelated messages are dropped.
func parseEvent(data []byte, at time.Time) (TranslationEvent, bool) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return TranslationEvent{}, false
	}
	if w.Type != "translation" {
		return TranslationEvent{}, false
	}
	if w.TranslatedText == "" && w.OriginalText == "" {
		return TranslationEvent{}, false
	}
	ev := w.TranslationEvent
	ev.ReceivedAt = at
	return ev, true
}
