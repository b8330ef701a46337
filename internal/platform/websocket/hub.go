// Package websocket pushes slot change notifications to connected booking
// desks. Clients subscribe to per-doctor topics and receive an Event each
// time something that feeds that doctor's day plan changes.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/opd/internal/platform/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// DoctorTopic is the topic carrying changes for one doctor's schedule.
func DoctorTopic(doctorID string) string {
	return "Doctor/" + doctorID
}

// Event is the message written to subscribers. Date is the affected calendar
// day as YYYY-MM-DD, empty when the whole schedule changed; clients refetch
// the affected slots on receipt. Only clients of Tenant receive the event.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Tenant    string          `json:"tenant,omitempty"`
	DoctorID  string          `json:"doctorId,omitempty"`
	Date      string          `json:"date,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one websocket connection and its topic set. Tenant is fixed at
// connect time from the caller's identity.
type Client struct {
	ID     string
	Tenant string
	Topics []string
	Send   chan []byte
}

func NewClient() *Client {
	return &Client{
		ID:     uuid.New().String(),
		Topics: []string{},
		Send:   make(chan []byte, sendBuffer),
	}
}

// Hub tracks clients by topic. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.addTopicsLocked(client, client.Topics)
	metrics.WebSocketClients.Set(float64(len(h.all)))
}

// Unregister drops the client from every topic and closes its Send channel.
// Calling it twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.removeTopicsLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
	metrics.WebSocketClients.Set(float64(len(h.all)))
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var added []string
	seen := make(map[string]struct{}, len(topics))
	for _, t := range cleanTopics(topics) {
		if _, ok := h.topics[t][client]; ok {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		added = append(added, t)
	}
	h.addTopicsLocked(client, added)
	client.Topics = append(client.Topics, added...)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topics = cleanTopics(topics)
	h.removeTopicsLocked(client, topics)

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	kept := client.Topics[:0:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	client.Topics = kept
}

func (h *Hub) addTopicsLocked(client *Client, topics []string) {
	for _, t := range topics {
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Client]struct{})
		}
		h.topics[t][client] = struct{}{}
	}
}

func (h *Hub) removeTopicsLocked(client *Client, topics []string) {
	for _, t := range topics {
		subs, ok := h.topics[t]
		if !ok {
			continue
		}
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, t)
		}
	}
}

func cleanTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ProcessMessage applies a ClientMessage. Unknown actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch strings.ToLower(msg.Action) {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast queues event for every subscriber of topic belonging to
// event.Tenant and returns how many clients received it. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.topics[topic] {
		if client.Tenant != event.Tenant {
			continue
		}
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("client buffer full, event dropped")
		}
	}
	return delivered
}

// Publish fills in a missing timestamp and broadcasts to event.Topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// TenantFunc names the tenant of an authenticated upgrade request.
type TenantFunc func(c echo.Context) string

// Handler upgrades HTTP requests and pumps messages between the socket and
// the hub.
type Handler struct {
	hub      *Hub
	tenantOf TenantFunc
	upgrader gorillawebsocket.Upgrader
}

// NewHandler returns a Handler. An empty or "*" origin list accepts any
// origin. A nil tenantOf leaves clients without a tenant, so they only
// receive events that carry none.
func NewHandler(hub *Hub, allowedOrigins []string, tenantOf TenantFunc) *Handler {
	if tenantOf == nil {
		tenantOf = func(echo.Context) string { return "" }
	}
	return &Handler{
		hub:      hub,
		tenantOf: tenantOf,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

func (wh *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", wh.HandleConnect)
}

// HandleConnect upgrades the connection. Initial topics may be passed as a
// comma separated "topics" query parameter.
func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}

	client := NewClient()
	client.Tenant = wh.tenantOf(c)
	if q := c.QueryParam("topics"); q != "" {
		client.Topics = cleanTopics(strings.Split(q, ","))
	}
	wh.hub.Register(client)
	wh.hub.logger.Debug().Str("client_id", client.ID).Strs("topics", client.Topics).Str("tenant", client.Tenant).Msg("websocket connected")

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)
	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wh.hub.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket read")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
