package client

import (
	"context"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
)

// BookRequest is the input of the server's conflict-checked booking call.
// AmountCents zero means "the room's current price".
type BookRequest struct {
	HostelID    uint64
	RoomID      uint64
	AmountCents uint32
	Term        string
}

// CheckoutSession is a hosted payment page the student is sent to.
type CheckoutSession struct {
	ID  string
	URL string
}

// Backend is the server as seen by the controller.  Errors carry the
// model sentinels (ErrRoomUnavailable, ErrDuplicateBooking, ...) so
// callers can match them with errors.Is.
type Backend interface {
	Hold(ctx context.Context, token string, roomID uint64) (model.Booking, error)
	Book(ctx context.Context, token string, req BookRequest) (model.Booking, error)
	Room(ctx context.Context, roomID uint64) (model.Room, error)
	Rooms(ctx context.Context, hostelID uint64) ([]model.Room, error)
	Checkout(ctx context.Context, token string, bookingID uint64) (CheckoutSession, error)
	Verify(ctx context.Context, token, sessionID string, bookingID uint64) (bool, error)
}

// RoomLister is the part of Backend the sync loop needs.
type RoomLister interface {
	Rooms(ctx context.Context, hostelID uint64) ([]model.Room, error)
}

// Feed delivers a hostel's change events.  The returned channel is closed
// after unsubscribe is called or the underlying stream ends.
type Feed interface {
	Subscribe(ctx context.Context, hostelID uint64) (events <-chan realtime.ChangeEvent, unsubscribe func(), err error)
}
