package transport

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/imap143/go-signaling/internal/signaling"
	"github.com/imap143/go-signaling/internal/stats"
)

// Hub is the delivery collaborator: it resolves destination names
// (room.<id>, signal.<userId>, participants.<userId>) to the websocket
// clients subscribed to them. Delivery is fire-and-forget; a client whose
// send buffer is full simply misses the message.
type Hub struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu      sync.RWMutex
	clients map[*Client]struct{}
	subs    map[string]map[*Client]struct{}
}

func NewHub(logger *log.Logger, sp stats.StatsProvider) *Hub {
	return &Hub{
		log:     logger,
		stats:   sp,
		clients: make(map[*Client]struct{}),
		subs:    make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its per-user queues.
// Unidentified clients get no subscriptions: they can stay connected but
// receive nothing.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if c.userID != "" {
		h.Subscribe(c, signaling.SignalDest(c.userID))
		h.Subscribe(c, signaling.ParticipantsDest(c.userID))
	}

	h.stats.Incr(stats.LiveSessions)
	h.log.Printf("client registered: session=%s user=%q", c.sessionID, c.userID)
}

// Deregister removes the client and all its subscriptions.
func (h *Hub) Deregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	for _, dest := range c.subscriptions() {
		h.dropSub(dest, c)
	}
	h.mu.Unlock()

	h.stats.Decr(stats.LiveSessions)
	h.log.Printf("client deregistered: session=%s user=%q", c.sessionID, c.userID)
}

func (h *Hub) Subscribe(c *Client, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[dest] == nil {
		h.subs[dest] = make(map[*Client]struct{})
	}
	h.subs[dest][c] = struct{}{}
	c.addSubscription(dest)
}

func (h *Hub) Unsubscribe(c *Client, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropSub(dest, c)
	c.delSubscription(dest)
}

// dropSub removes c from a destination's subscriber set. Caller holds h.mu.
func (h *Hub) dropSub(dest string, c *Client) {
	if set, ok := h.subs[dest]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, dest)
		}
	}
}

// Publish serializes v once and queues it on every subscriber of dest.
func (h *Hub) Publish(dest string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("marshal message for %q: %v", dest, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subs[dest]))
	for c := range h.subs[dest] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.queueMessage(raw) {
			h.log.Printf("dropped message to %q: session %s send buffer full", dest, c.sessionID)
		}
	}
}

// Shutdown stops every connected client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stopClient()
	}
}
