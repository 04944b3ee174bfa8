package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to a tenant's live subscribers.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, data any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// Subscription is one live listener on a tenant's item feed.
type Subscription struct {
	hub      *Hub
	tenantID string
	send     chan []byte
	once     sync.Once
}

// Events returns the channel of encoded messages. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan []byte {
	return s.send
}

func (s *Subscription) TenantID() string {
	return s.tenantID
}

// Unsubscribe detaches the subscription from the hub. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans messages out to the subscribers of each tenant.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*Subscription]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		tenants: make(map[string]map[*Subscription]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a new listener for tenantID.
func (h *Hub) Subscribe(tenantID string) *Subscription {
	s := &Subscription{
		hub:      h,
		tenantID: tenantID,
		send:     make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	subs, ok := h.tenants[tenantID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.tenants[tenantID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.tenants[s.tenantID]
	if !ok {
		return
	}
	if _, ok := subs[s]; ok {
		delete(subs, s)
		close(s.send)
	}
	if len(subs) == 0 {
		delete(h.tenants, s.tenantID)
	}
}

// Publish sends msg to every subscriber of tenantID. Subscribers whose
// buffer is full miss the message.
func (h *Hub) Publish(tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.tenants[tenantID] {
		select {
		case s.send <- data:
		default:
			h.logger.Warn("subscriber buffer full, dropping event", "tenant", tenantID, "type", msg.Type)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// ClientCount returns the number of live subscribers across all tenants.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.tenants {
		n += len(subs)
	}
	return n
}
