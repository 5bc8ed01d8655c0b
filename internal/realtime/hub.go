// Package realtime fans domain events out to live websocket connections.
// Every connection joins exactly two channels at connect time: its user's
// identity channel and its role channel.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
)

// Envelope is the frame written to clients and read from them.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func UserChannel(id string) string {
	return "user:" + id
}

func RoleChannel(role models.Role) string {
	return "role:" + string(role)
}

// Hub owns channel membership. It implements events.Publisher; publishing
// never blocks on a slow connection, which is dropped instead.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]struct{}
	log      zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]struct{}),
		log:      log,
	}
}

var _ events.Publisher = (*Hub)(nil)

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for _, ch := range c.channels() {
		members, ok := h.channels[ch]
		if !ok {
			members = make(map[*Client]struct{})
			h.channels[ch] = members
		}
		members[c] = struct{}{}
	}
	h.log.Debug().Str("conn_id", c.ID()).Str("user_id", c.Identity().ID).Msg("client registered")
}

// Unregister removes c from every channel. Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, ch := range c.channels() {
		members := h.channels[ch]
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, ch)
		}
	}
	h.log.Debug().Str("conn_id", c.ID()).Msg("client unregistered")
}

// Count is the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers event to every connection in any channel of its audience,
// once per connection.
func (h *Hub) Publish(event events.Event) {
	frame, err := encode(event.Name, event.Payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.Name).Msg("encode event failed")
		return
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, id := range event.Audience.Users {
		for c := range h.channels[UserChannel(id)] {
			targets[c] = struct{}{}
		}
	}
	for _, role := range event.Audience.Roles {
		for c := range h.channels[RoleChannel(role)] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		h.deliver(c, frame)
	}
}

// Send writes one event to a single connection.
func (h *Hub) Send(c *Client, name string, payload any) {
	frame, err := encode(name, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", name).Msg("encode event failed")
		return
	}
	h.deliver(c, frame)
}

func (h *Hub) deliver(c *Client, frame []byte) {
	if c.enqueue(frame) {
		return
	}
	h.log.Warn().Str("conn_id", c.ID()).Str("user_id", c.Identity().ID).Msg("send buffer full, dropping client")
	h.Unregister(c)
	c.Close()
}

func encode(name string, payload any) ([]byte, error) {
	env := Envelope{Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}
