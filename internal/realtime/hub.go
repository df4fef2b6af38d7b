// Package realtime manages SSE clients, their subscriptions, and the
// permission-filtered fan-out of record mutations. All shared state
// lives behind a single mutex with short critical sections; sends never
// happen under the lock.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/google/uuid"
)

// Default timing knobs.
const (
	DefaultPingInterval      = 30 * time.Second
	DefaultSweepInterval     = 60 * time.Second
	DefaultInactivityTimeout = 5 * time.Minute
)

// AccessFunc decides whether a client with the given captured auth may
// see a record of a collection. wildcard selects the governing rule:
// the list rule for wildcard subscribers, the view rule otherwise.
type AccessFunc func(collection string, wildcard bool, record map[string]any, access *Access) bool

// Options tunes a Hub. Zero values fall back to the defaults.
type Options struct {
	PingInterval      time.Duration
	SweepInterval     time.Duration
	InactivityTimeout time.Duration
}

// Hub is the realtime connection manager.
type Hub struct {
	check AccessFunc
	opts  Options

	mu      sync.Mutex
	clients map[string]*Client
	index   map[Subscription]map[string]*Client
	closed  bool

	done chan struct{}
}

// NewHub creates a hub and starts its inactivity sweeper.
func NewHub(check AccessFunc, opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = DefaultInactivityTimeout
	}
	h := &Hub{
		check:   check,
		opts:    opts,
		clients: make(map[string]*Client),
		index:   make(map[Subscription]map[string]*Client),
		done:    make(chan struct{}),
	}
	go h.sweepLoop()
	return h
}

// PingInterval returns the configured keepalive interval for the SSE
// handler's ticker.
func (h *Hub) PingInterval() time.Duration {
	return h.opts.PingInterval
}

// Register allocates a new client and returns it. The caller owns the
// connection loop and must call Remove when it ends.
func (h *Hub) Register() *Client {
	client := newClient(uuid.NewString())

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	return client
}

// Remove drops a client and closes its send channel. Safe to call more
// than once.
func (h *Hub) Remove(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
		h.removeFromIndexLocked(clientID)
	}
	h.mu.Unlock()

	if ok {
		client.closeSend()
	}
}

// Touch refreshes a client's activity timestamp.
func (h *Hub) Touch(clientID string) {
	h.mu.Lock()
	if client, ok := h.clients[clientID]; ok {
		client.lastActivity = time.Now()
	}
	h.mu.Unlock()
}

// SetSubscriptions replaces a client's subscription set with the parsed
// topics and rebuilds the subscriber index. Invalid topics are silently
// dropped; an empty list clears the set. The first authenticated call
// captures the caller's identity; an anonymous capture may still be
// upgraded by a later authenticated call, but once a non-empty identity
// is captured any call under a different one is rejected.
func (h *Hub) SetSubscriptions(clientID string, topics []string, access *Access) error {
	if access == nil {
		access = &Access{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return apperrors.NotFound("unknown realtime client %q", clientID)
	}

	if client.auth != nil && client.auth.Key != "" && client.auth.Key != access.Key {
		return apperrors.Forbidden("subscription auth does not match the captured session")
	}
	client.auth = access

	client.subscriptions = make(map[Subscription]struct{}, len(topics))
	for _, topic := range topics {
		sub, ok := ParseTopic(topic)
		if !ok {
			continue
		}
		client.subscriptions[sub] = struct{}{}
	}

	h.removeFromIndexLocked(clientID)
	for sub := range client.subscriptions {
		set, ok := h.index[sub]
		if !ok {
			set = make(map[string]*Client)
			h.index[sub] = set
		}
		set[clientID] = client
	}

	client.lastActivity = time.Now()
	return nil
}

// Event is the wire payload of a record mutation.
type Event struct {
	Action string         `json:"action"`
	Record map[string]any `json:"record"`
}

// candidate pairs a client with the rule that governs its delivery.
type candidate struct {
	client   *Client
	wildcard bool
}

// Broadcast fans a committed mutation out to the admitted subscribers.
// It never blocks the caller: candidate selection copies under the
// lock, rule checks run unlocked, and sends are non-blocking with
// overflow eviction.
func (h *Hub) Broadcast(action, collection string, record map[string]any) {
	recordID, _ := record["id"].(string)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	candidates := make(map[string]candidate)
	for _, client := range h.index[Subscription{Collection: collection, RecordID: recordID}] {
		candidates[client.ID] = candidate{client: client, wildcard: false}
	}
	for _, client := range h.index[Subscription{Collection: collection, RecordID: Wildcard}] {
		if _, ok := candidates[client.ID]; !ok {
			candidates[client.ID] = candidate{client: client, wildcard: true}
		}
	}
	h.mu.Unlock()

	if len(candidates) == 0 {
		return
	}

	frame, err := formatEvent("", Event{Action: action, Record: record})
	if err != nil {
		log.Printf("ERROR: encode realtime event: %v", err)
		return
	}

	for _, cand := range candidates {
		if h.check != nil && !h.check(collection, cand.wildcard, record, cand.client.auth) {
			continue
		}
		if !cand.client.trySend(frame) {
			// The client is not draining; evict instead of blocking.
			log.Printf("WARNING: evicting slow realtime client %s", cand.client.ID)
			h.Remove(cand.client.ID)
		}
	}
}

// ConnectFrame formats the initial PB_CONNECT event for a new client.
func ConnectFrame(clientID string) ([]byte, error) {
	return formatEvent("PB_CONNECT", map[string]string{"clientId": clientID})
}

// PingFrame is the SSE keepalive comment.
var PingFrame = []byte(": ping\n\n")

// formatEvent renders one SSE frame. An empty name omits the event
// line, using the default event type.
func formatEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if name == "" {
		return []byte("data: " + string(data) + "\n\n"), nil
	}
	return []byte("event: " + name + "\ndata: " + string(data) + "\n\n"), nil
}

// sweepLoop evicts clients whose last activity is older than the
// inactivity timeout.
func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) sweep() {
	cutoff := time.Now().Add(-h.opts.InactivityTimeout)

	h.mu.Lock()
	var stale []string
	for id, client := range h.clients {
		if client.lastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stale {
		log.Printf("INFO: sweeping inactive realtime client %s", id)
		h.Remove(id)
	}
}

// Close stops the sweeper and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	close(h.done)
	for _, id := range ids {
		h.Remove(id)
	}
}

// removeFromIndexLocked drops clientID from every index entry. Callers
// hold the hub mutex.
func (h *Hub) removeFromIndexLocked(clientID string) {
	for sub, set := range h.index {
		delete(set, clientID)
		if len(set) == 0 {
			delete(h.index, sub)
		}
	}
}
