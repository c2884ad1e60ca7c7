package realtime

import (
	"sync"

	"loadboard/load"
)

// Event is a single message fanned out to subscribers. Name follows the wire
// convention the dashboard listens on: "newLoadPosted" globally and
// "carrierLocationUpdate-{loadId}" per load.
type Event struct {
	Name    string `json:"event"`
	LoadID  string `json:"loadId,omitempty"`
	Payload any    `json:"payload"`
}

// LocationPayload is the body of a carrier position event.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Hub is the in-memory location broadcast channel: a process-lifetime mapping
// from load id to the set of currently connected subscribers, plus a global
// set that receives marketplace-wide events. It is never authoritative; the
// load store keeps the durable last position.
type Hub struct {
	mu     sync.RWMutex
	byLoad map[string]map[*Subscription]struct{}
	global map[*Subscription]struct{}
}

// Subscription is one connected client's handle on the hub. Events arrive on
// C; a subscriber that falls behind has events dropped rather than blocking
// the publisher.
type Subscription struct {
	C chan Event

	hub   *Hub
	loads map[string]struct{}
	once  sync.Once
}

const subscriptionBuffer = 16

func NewHub() *Hub {
	return &Hub{
		byLoad: make(map[string]map[*Subscription]struct{}),
		global: make(map[*Subscription]struct{}),
	}
}

// Register creates a subscription that receives global events immediately.
// Per-load delivery starts only after Join; there is no backlog or replay.
func (h *Hub) Register() *Subscription {
	sub := &Subscription{
		C:     make(chan Event, subscriptionBuffer),
		hub:   h,
		loads: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.global[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Join subscribes to a load's channel. The channel is created on first join.
func (sub *Subscription) Join(loadID string) {
	if loadID == "" {
		return
	}
	h := sub.hub

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.byLoad[loadID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.byLoad[loadID] = set
	}
	set[sub] = struct{}{}
	sub.loads[loadID] = struct{}{}
}

// Leave drops the per-load subscription; the load's channel is discarded once
// its last subscriber leaves.
func (sub *Subscription) Leave(loadID string) {
	h := sub.hub

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, loadID)
}

func (h *Hub) leaveLocked(sub *Subscription, loadID string) {
	if set, ok := h.byLoad[loadID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.byLoad, loadID)
		}
	}
	delete(sub.loads, loadID)
}

// Close removes the subscription from every channel it joined and from the
// global set. Implicit on connection close; safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		h := sub.hub

		h.mu.Lock()
		for loadID := range sub.loads {
			h.leaveLocked(sub, loadID)
		}
		delete(h.global, sub)
		h.mu.Unlock()

		close(sub.C)
	})
}

// Publish delivers an event to every current subscriber of the load's
// channel, in arrival order. Fire-and-forget: no acknowledgement, no retry.
func (h *Hub) Publish(loadID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.byLoad[loadID] {
		sub.send(ev)
	}
}

// PublishGlobal delivers an event to every registered subscription.
func (h *Hub) PublishGlobal(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.global {
		sub.send(ev)
	}
}

func (sub *Subscription) send(ev Event) {
	select {
	case sub.C <- ev:
	default:
		// Subscriber is not draining; drop rather than block the publisher.
	}
}

// SubscriberCount reports how many subscriptions a load currently has.
func (h *Hub) SubscriberCount(loadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byLoad[loadID])
}

// Broadcaster adapts the hub to the lifecycle manager's event surface.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// LoadPosted announces a newly posted load to every connected client.
func (b *Broadcaster) LoadPosted(l load.Load) {
	b.hub.PublishGlobal(Event{
		Name:    "newLoadPosted",
		LoadID:  l.ID,
		Payload: l,
	})
}

// CarrierLocation fans a position update out to the load's subscribers.
func (b *Broadcaster) CarrierLocation(loadID string, lat, lng float64) {
	b.hub.Publish(loadID, Event{
		Name:    "carrierLocationUpdate-" + loadID,
		LoadID:  loadID,
		Payload: LocationPayload{Latitude: lat, Longitude: lng},
	})
}
