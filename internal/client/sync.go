package client

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
)

const defaultQueueSize = 64

var errMissingRoomID = errors.New("room event without id")

// Sync keeps an in-memory copy of one hostel's rooms in step with the
// server's change feed.  The copy is for display only: it may lag, and no
// booking decision is made from it.
//
// A reader goroutine moves feed events into a bounded queue; when the
// queue is full the event is dropped and a full refetch is scheduled
// instead.  An apply goroutine drains the queue.  Every Start bumps a
// generation counter, and events or refetch results from an older
// generation are discarded.
type Sync struct {
	rooms     RoomLister
	feed      Feed
	self      uint64
	queueSize int
	log       *logrus.Entry
	notices   chan Notice

	mu     sync.Mutex
	gen    uint64
	hostel uint64
	state  map[uint64]model.Room
	stop   func()
}

// NewSync returns a stopped Sync.  self is the signed-in student; their
// own bookings do not produce notices.
func NewSync(rooms RoomLister, feed Feed, self uint64, queueSize int, log *logrus.Entry) *Sync {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Sync{
		rooms:     rooms,
		feed:      feed,
		self:      self,
		queueSize: queueSize,
		log:       log.WithField("component", "room-sync"),
		notices:   make(chan Notice, 16),
		state:     map[uint64]model.Room{},
	}
}

// Notices carries informational messages such as "a bed was just booked".
// Notices are dropped when nobody reads them.
func (s *Sync) Notices() <-chan Notice { return s.notices }

// Start subscribes to hostelID's changes and loads its rooms.  A running
// subscription is stopped first.
func (s *Sync) Start(ctx context.Context, hostelID uint64) error {
	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.hostel = hostelID
	s.state = map[uint64]model.Room{}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	// subscribe before loading so no change between the two is missed
	events, unsubscribe, err := s.feed.Subscribe(runCtx, hostelID)
	if err != nil {
		cancel()
		return err
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			unsubscribe()
		})
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		stop()
		return context.Canceled
	}
	s.stop = stop
	s.mu.Unlock()

	queue := make(chan realtime.ChangeEvent, s.queueSize)
	refetch := make(chan struct{}, 1)
	go s.read(runCtx, gen, events, queue, refetch)

	list, err := s.rooms.Rooms(ctx, hostelID)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.stopLocked()
			s.gen++
		}
		s.mu.Unlock()
		return err
	}
	s.replace(gen, list)

	go s.apply(runCtx, gen, hostelID, queue, refetch)
	return nil
}

// Stop tears the subscription down.  Events that arrive afterwards and
// results of requests already in flight are discarded.
func (s *Sync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
}

// SwitchHostel moves the subscription to another hostel.
func (s *Sync) SwitchHostel(ctx context.Context, hostelID uint64) error {
	s.Stop()
	return s.Start(ctx, hostelID)
}

// HostelID returns the hostel currently followed.
func (s *Sync) HostelID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostel
}

// Rooms returns a snapshot ordered by room id.
func (s *Sync) Rooms() []model.Room {
	s.mu.Lock()
	out := make([]model.Room, 0, len(s.state))
	for _, r := range s.state {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Sync) stopLocked() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

func (s *Sync) read(ctx context.Context, gen uint64, events <-chan realtime.ChangeEvent, queue chan<- realtime.ChangeEvent, refetch chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.feedClosed(gen, refetch)
				return
			}
			select {
			case queue <- ev:
			default:
				s.log.WithField("event_id", ev.ID).Debug("change queue full, scheduling refetch")
				signal(refetch)
			}
		}
	}
}

// feedClosed reports a feed that ended while still wanted.  Without live
// events the copy goes stale, so one refetch is scheduled and the user is
// told to expect it.
func (s *Sync) feedClosed(gen uint64, refetch chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.log.WithField("hostel_id", s.hostel).Warn("change feed closed")
	signal(refetch)
	s.notify(Notice{
		Severity: SeverityWarning,
		Message:  "Live updates were interrupted. Room availability may be out of date.",
		Refetch:  true,
	})
}

func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Sync) apply(ctx context.Context, gen, hostelID uint64, queue chan realtime.ChangeEvent, refetch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			s.applyEvent(gen, ev)
		case <-refetch:
			// queued events predate the snapshot about to be loaded
			drain(queue)
			list, err := s.rooms.Rooms(context.WithoutCancel(ctx), hostelID)
			if err != nil {
				s.log.WithError(err).WithField("hostel_id", hostelID).Warn("room refetch failed")
				continue
			}
			s.replace(gen, list)
		}
	}
}

func drain(queue chan realtime.ChangeEvent) {
	for {
		select {
		case <-queue:
		default:
			return
		}
	}
}

func (s *Sync) replace(gen uint64, list []model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.state = make(map[uint64]model.Room, len(list))
	for _, r := range list {
		r.Normalize()
		s.state[r.ID] = r
	}
}

func (s *Sync) applyEvent(gen uint64, ev realtime.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || ev.HostelID != s.hostel {
		return
	}
	entry := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "table": ev.Table, "type": ev.Type})

	switch ev.Table {
	case realtime.TableRooms:
		if err := s.applyRoomLocked(ev); err != nil {
			entry.WithError(err).Warn("bad room event")
		}
	case realtime.TableBookings:
		// occupancy arrives through the room's own event
		if ev.Type != realtime.TypeInsert {
			return
		}
		var row realtime.BookingRow
		if err := json.Unmarshal(ev.Row, &row); err != nil {
			entry.WithError(err).Warn("bad booking event")
			return
		}
		if row.StudentID == s.self {
			return
		}
		s.notify(Notice{Severity: SeverityInfo, Message: "Another student just booked a room in this hostel."})
	}
}

func (s *Sync) applyRoomLocked(ev realtime.ChangeEvent) error {
	switch ev.Type {
	case realtime.TypeInsert:
		var r model.Room
		if err := json.Unmarshal(ev.Row, &r); err != nil {
			return err
		}
		r.Normalize()
		s.state[r.ID] = r
	case realtime.TypeUpdate:
		var key struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(ev.Row, &key); err != nil {
			return err
		}
		if key.ID == 0 {
			return errMissingRoomID
		}
		// decoding onto the current row keeps fields the event omits
		r := s.state[key.ID]
		if err := json.Unmarshal(ev.Row, &r); err != nil {
			return err
		}
		r.Normalize()
		s.state[r.ID] = r
	case realtime.TypeDelete:
		var key struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(ev.Row, &key); err != nil {
			return err
		}
		delete(s.state, key.ID)
	}
	return nil
}

func (s *Sync) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
	}
}
