package client

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// Payment states reported by VerifyPayment.
const (
	PaymentStatePaid   = "paid"
	PaymentStateUnpaid = "unpaid"
)

// BookResult is what BookRoom hands back.  On RoomUnavailable Room holds
// the refetched room so the caller can show the real remaining capacity.
type BookResult struct {
	Booking model.Booking
	Room    *model.Room
}

// Controller drives a student's hold, booking and payment calls.  It
// never changes occupancy locally: the server's answer is final and
// nothing is retried.
type Controller struct {
	backend Backend
	log     *logrus.Entry
}

func NewController(b Backend, log *logrus.Entry) *Controller {
	return &Controller{backend: b, log: log.WithField("component", "booking-controller")}
}

// HoldRoom places an advisory hold on roomID.  A hold does not reserve a
// bed; the race for the last bed is settled at booking or confirmation.
func (c *Controller) HoldRoom(ctx context.Context, s *Session, roomID uint64) (model.Booking, error) {
	if !s.Authenticated() {
		return model.Booking{}, model.ErrAuthenticationRequired
	}
	b, err := c.backend.Hold(ctx, s.token(), roomID)
	if err != nil {
		c.log.WithError(err).WithField("room_id", roomID).Debug("hold rejected")
		return model.Booking{}, err
	}
	return b, nil
}

// BookRoom calls the conflict-checked booking once.  When the room is
// gone it refetches the room; a failed refetch is logged and the
// original error is still returned.
func (c *Controller) BookRoom(ctx context.Context, s *Session, room model.Room, term string) (BookResult, error) {
	if !s.Authenticated() {
		return BookResult{}, model.ErrAuthenticationRequired
	}
	b, err := c.backend.Book(ctx, s.token(), BookRequest{
		HostelID:    room.HostelID,
		RoomID:      room.ID,
		AmountCents: room.PriceCents,
		Term:        term,
	})
	if err == nil {
		return BookResult{Booking: b}, nil
	}

	res := BookResult{}
	if errors.Is(err, model.ErrRoomUnavailable) {
		fresh, ferr := c.backend.Room(ctx, room.ID)
		if ferr != nil {
			c.log.WithError(ferr).WithField("room_id", room.ID).Warn("refetch after conflict failed")
		} else {
			res.Room = &fresh
		}
	}
	return res, err
}

// ProcessPayment starts a hosted checkout for bookingID and returns the
// page to send the student to.  The booking is unchanged until the
// payment is verified.
func (c *Controller) ProcessPayment(ctx context.Context, s *Session, bookingID uint64) (CheckoutSession, error) {
	if !s.Authenticated() {
		return CheckoutSession{}, model.ErrAuthenticationRequired
	}
	return c.backend.Checkout(ctx, s.token(), bookingID)
}

// VerifyPayment asks the server to check the checkout session.  A paid
// session confirms the booking server-side.
func (c *Controller) VerifyPayment(ctx context.Context, s *Session, sessionID string, bookingID uint64) (string, error) {
	if !s.Authenticated() {
		return "", model.ErrAuthenticationRequired
	}
	paid, err := c.backend.Verify(ctx, s.token(), sessionID, bookingID)
	if err != nil {
		return "", err
	}
	if paid {
		return PaymentStatePaid, nil
	}
	return PaymentStateUnpaid, nil
}
