package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

type bookingChange struct {
	typ     string
	booking model.Booking
}

// changeSet collects the rows a transaction touched so they can be
// broadcast once it has committed.
type changeSet struct {
	rooms    []uint64
	bookings []bookingChange
}

func (c *changeSet) room(id uint64) {
	for _, r := range c.rooms {
		if r == id {
			return
		}
	}
	c.rooms = append(c.rooms, id)
}

func (c *changeSet) booking(typ string, b model.Booking) {
	c.bookings = append(c.bookings, bookingChange{typ: typ, booking: b})
}

func (c *changeSet) empty() bool { return len(c.rooms) == 0 && len(c.bookings) == 0 }

// publishChanges broadcasts a committed changeSet.  Rooms are re-read so
// subscribers always receive the stored occupancy rather than a value
// computed inside the transaction.  Failures are logged; the mutation
// has already committed.
func publishChanges(ctx context.Context, pub realtime.Publisher, rooms *repository.RoomRepo, log *logrus.Entry, at time.Time, cs changeSet) {
	if pub == nil || cs.empty() {
		return
	}
	for _, id := range cs.rooms {
		room, err := rooms.GetByID(ctx, id)
		if err != nil {
			log.WithError(err).WithField("room_id", id).Warn("reload room for change event")
			continue
		}
		ev, err := realtime.RoomEvent(realtime.TypeUpdate, room, at)
		if err == nil {
			err = pub.Publish(ctx, ev)
		}
		if err != nil {
			log.WithError(err).WithField("room_id", id).Warn("publish room change")
		}
	}
	for _, bc := range cs.bookings {
		ev, err := realtime.BookingEvent(bc.typ, bc.booking, at)
		if err == nil {
			err = pub.Publish(ctx, ev)
		}
		if err != nil {
			log.WithError(err).WithField("booking_id", bc.booking.ID).Warn("publish booking change")
		}
	}
}
