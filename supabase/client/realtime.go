// Realtime websocket support. Beyond change feeds, the connection doubles
// as the app's connectivity signal: status callbacks fire on connect and
// disconnect so callers can pause and resume background work.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectMinDelay = 1 * time.Second
	reconnectMaxDelay = 30 * time.Second
)

// EventHandler handles realtime events.
type EventHandler func(event *RealtimeEvent)

// StatusHandler is notified when the realtime connection comes up or goes
// down. Handlers run on their own goroutine.
type StatusHandler func(online bool)

// RealtimeEvent represents a message received on a channel.
type RealtimeEvent struct {
	Type    string         `json:"type"`
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
	JoinRef string         `json:"join_ref,omitempty"`
}

// RealtimeClient maintains a websocket connection to the backend's realtime
// endpoint, rejoining channels after reconnects.
type RealtimeClient struct {
	mu       sync.RWMutex
	url      string
	apiKey   string
	conn     *websocket.Conn
	channels map[string]*Channel
	handlers map[string][]EventHandler
	status   []StatusHandler
	online   bool
	done     chan struct{}
	ref      int
	closed   bool
}

// Channel is a joined realtime topic.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joined  bool
	joinRef string
}

// NewRealtimeClient creates a realtime client for the given backend URL.
// Connect must be called before channels receive events.
func NewRealtimeClient(backendURL, apiKey string) *RealtimeClient {
	wsURL := backendURL
	if len(wsURL) > 5 && wsURL[:5] == "https" {
		wsURL = "wss" + wsURL[5:]
	} else if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      wsURL,
		apiKey:   apiKey,
		channels: make(map[string]*Channel),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
}

// OnStatusChange registers a connectivity handler. If the client is already
// connected the handler fires immediately with true.
func (r *RealtimeClient) OnStatusChange(handler StatusHandler) {
	r.mu.Lock()
	r.status = append(r.status, handler)
	online := r.online
	r.mu.Unlock()

	if online {
		go handler(true)
	}
}

// Connect establishes the websocket connection and starts the reader and
// heartbeat loops. Reconnection after a dropped connection is automatic.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("realtime client is closed")
	}
	if r.conn != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.dial(ctx); err != nil {
		return err
	}

	go r.reconnectLoop()
	return nil
}

func (r *RealtimeClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.setOnlineLocked(true)
	r.mu.Unlock()

	go r.readLoop(conn)
	go r.heartbeat(conn)

	r.rejoinChannels()
	return nil
}

// reconnectLoop redials with exponential backoff whenever the connection
// drops, until Close is called.
func (r *RealtimeClient) reconnectLoop() {
	delay := reconnectMinDelay
	for {
		select {
		case <-r.done:
			return
		case <-time.After(500 * time.Millisecond):
		}

		r.mu.RLock()
		connected := r.conn != nil
		closed := r.closed
		r.mu.RUnlock()

		if closed {
			return
		}
		if connected {
			delay = reconnectMinDelay
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := r.dial(ctx)
		cancel()
		if err != nil {
			select {
			case <-r.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}
}

// Close tears down the connection permanently.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)

	if r.conn == nil {
		return nil
	}

	r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil
	r.setOnlineLocked(false)
	return err
}

// Online reports whether the realtime connection is currently up.
func (r *RealtimeClient) Online() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online
}

// Caller holds r.mu.
func (r *RealtimeClient) setOnlineLocked(online bool) {
	if r.online == online {
		return
	}
	r.online = online
	for _, h := range r.status {
		go h(online)
	}
}

// Channel returns or creates a channel for the topic.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: r, topic: topic}
	r.channels[topic] = ch
	return ch
}

// Subscribe joins the channel's topic.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if c.joined {
		return nil
	}
	if c.client.conn == nil {
		return fmt.Errorf("realtime not connected")
	}

	c.client.ref++
	ref := strconv.Itoa(c.client.ref)
	c.joinRef = ref

	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := c.client.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	c.joined = true
	return nil
}

// Unsubscribe leaves the channel's topic and forgets the channel.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if !c.joined {
		return nil
	}

	if c.client.conn != nil {
		c.client.ref++
		msg := map[string]any{
			"topic":    c.topic,
			"event":    "phx_leave",
			"payload":  map[string]any{},
			"ref":      strconv.Itoa(c.client.ref),
			"join_ref": c.joinRef,
		}
		if err := c.client.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send leave: %w", err)
		}
	}

	c.joined = false
	delete(c.client.channels, c.topic)
	return nil
}

// On registers an event handler for this channel.
func (c *Channel) On(event string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	key := c.topic + ":" + event
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

// OnInsert registers a handler for INSERT events.
func (c *Channel) OnInsert(handler EventHandler) *Channel { return c.On("INSERT", handler) }

// OnUpdate registers a handler for UPDATE events.
func (c *Channel) OnUpdate(handler EventHandler) *Channel { return c.On("UPDATE", handler) }

// OnDelete registers a handler for DELETE events.
func (c *Channel) OnDelete(handler EventHandler) *Channel { return c.On("DELETE", handler) }

// OnAll registers a handler for all row events.
func (c *Channel) OnAll(handler EventHandler) *Channel {
	c.On("INSERT", handler)
	c.On("UPDATE", handler)
	c.On("DELETE", handler)
	return c
}

// rejoinChannels re-sends join messages after a reconnect.
func (r *RealtimeClient) rejoinChannels() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.channels {
		if !ch.joined || r.conn == nil {
			continue
		}
		r.ref++
		ref := strconv.Itoa(r.ref)
		ch.joinRef = ref
		r.conn.WriteJSON(map[string]any{
			"topic":    ch.topic,
			"event":    "phx_join",
			"payload":  map[string]any{},
			"ref":      ref,
			"join_ref": ref,
		})
	}
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			if r.conn == conn {
				r.conn = nil
				r.setOnlineLocked(false)
			}
			r.mu.Unlock()
			return
		}

		var event RealtimeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		r.dispatchEvent(&event)
	}
}

func (r *RealtimeClient) dispatchEvent(event *RealtimeEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eventType := event.Event
	if payload, ok := event.Payload["type"].(string); ok {
		eventType = payload
	}

	for _, handler := range r.handlers[event.Topic+":"+eventType] {
		go handler(event)
	}
}

func (r *RealtimeClient) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != conn {
				r.mu.Unlock()
				return
			}
			r.ref++
			conn.WriteJSON(map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     strconv.Itoa(r.ref),
			})
			r.mu.Unlock()
		}
	}
}

// TableChangesConfig configures a row-change subscription.
type TableChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // optional, e.g. "dealer_id=eq.42"
}

// SubscribeToTableChanges joins a channel carrying row changes for a table.
func (r *RealtimeClient) SubscribeToTableChanges(ctx context.Context, cfg TableChangesConfig, handler EventHandler) (*Channel, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	ch := r.Channel(topic)
	switch cfg.Event {
	case "*":
		ch.OnAll(handler)
	case "INSERT":
		ch.OnInsert(handler)
	case "UPDATE":
		ch.OnUpdate(handler)
	case "DELETE":
		ch.OnDelete(handler)
	}

	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}
