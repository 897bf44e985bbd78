package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Subscriber receives the encoded events of one hostel.  C is closed when
// the subscriber is removed, either by Unsubscribe or because it fell
// behind.
type Subscriber struct {
	HostelID uint64
	C        <-chan []byte

	send chan []byte
}

// Hub fans events out to the subscribers of each hostel in this process.
// A subscriber whose buffer is full is dropped rather than blocking the
// publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]map[*Subscriber]struct{}
	buffer int
}

// NewHub returns a hub that gives each subscriber a buffer of the given
// size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]map[*Subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber for hostelID.
func (h *Hub) Subscribe(hostelID uint64) *Subscriber {
	ch := make(chan []byte, h.buffer)
	s := &Subscriber{HostelID: hostelID, C: ch, send: ch}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[hostelID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[hostelID] = set
	}
	set[s] = struct{}{}
	return s
}

// Unsubscribe removes s.  Calling it twice is harmless.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	set, ok := h.subs[s.HostelID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.send)
	if len(set) == 0 {
		delete(h.subs, s.HostelID)
	}
}

// Broadcast delivers an encoded event to every subscriber of hostelID.
func (h *Hub) Broadcast(hostelID uint64, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[hostelID] {
		select {
		case s.send <- msg:
		default:
			h.removeLocked(s)
		}
	}
}

// Subscribers reports how many subscribers hostelID has.
func (h *Hub) Subscribers(hostelID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[hostelID])
}

// Publish makes the hub usable as a Publisher when no broker is
// configured: events go straight to local subscribers.
func (h *Hub) Publish(_ context.Context, ev ChangeEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(ev.HostelID, b)
	return nil
}
