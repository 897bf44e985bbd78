package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/config"
	"github.com/iliyamo/student-hostel-booking/internal/database"
	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/queue"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// EventPublisher sends broker events for confirmed bookings.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// BookRequest is the input of the conflict-checked booking call.
// AmountCents zero means "the room's current price".
type BookRequest struct {
	StudentID   uint64
	HostelID    uint64
	RoomID      uint64
	AmountCents uint32
	Term        string
}

// BookingService owns every booking state transition and every change
// to room occupancy.
//
// Locks are always taken in the order room, booking, student.  A room's
// occupied counter moves only through RoomRepo.ClaimBedTx, whose UPDATE
// refuses to pass capacity, and RoomRepo.ReleaseBedTx.  bookings.bed_claimed
// marks which bookings currently count toward it, so no booking is
// counted twice.
type BookingService struct {
	db       *sql.DB
	users    *repository.UserRepo
	hostels  *repository.HostelRepo
	rooms    *repository.RoomRepo
	bookings *repository.BookingRepo

	cfg     config.BookingConfig
	changes realtime.Publisher
	events  EventPublisher
	log     *logrus.Entry
	now     func() time.Time
}

// NewBookingService wires the service.  changes and events may be nil.
func NewBookingService(db *sql.DB, cfg config.BookingConfig, changes realtime.Publisher, events EventPublisher, log *logrus.Entry) *BookingService {
	return &BookingService{
		db:       db,
		users:    repository.NewUserRepo(db),
		hostels:  repository.NewHostelRepo(db),
		rooms:    repository.NewRoomRepo(db),
		bookings: repository.NewBookingRepo(db),
		cfg:      cfg,
		changes:  changes,
		events:   events,
		log:      log.WithField("component", "booking"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *BookingService) SetClock(now func() time.Time) { s.now = now }

// Hold places an advisory hold: an on_hold booking that expires after
// HoldTTL.  It does not claim a bed, so it cannot stop another student
// from booking the last one; only the conflict-checked Book does.
func (s *BookingService) Hold(ctx context.Context, studentID, roomID uint64) (model.Booking, error) {
	now := s.now()
	var (
		out model.Booking
		cs  changeSet
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, err := s.rooms.LockTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := s.expireRoomHoldsTx(ctx, tx, room.ID, now, &cs); err != nil {
			return err
		}
		if err := s.users.LockTx(ctx, tx, studentID); err != nil {
			return err
		}
		live, err := s.liveInHostelTx(ctx, tx, studentID, room.HostelID, now)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return model.ErrDuplicateBooking
		}
		exp := now.Add(s.cfg.HoldTTL)
		out = model.Booking{
			StudentID:     studentID,
			RoomID:        room.ID,
			HostelID:      room.HostelID,
			Status:        model.StatusOnHold,
			PaymentStatus: model.PaymentPending,
			AmountCents:   room.PriceCents,
			DepositCents:  room.DepositCents,
			HoldExpiresAt: &exp,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.bookings.InsertTx(ctx, tx, &out); err != nil {
			return err
		}
		cs.booking(realtime.TypeInsert, out)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": out.ID, "room_id": roomID, "student_id": studentID}).Info("hold placed")
	publishChanges(ctx, s.changes, s.rooms, s.log, now, cs)
	return out, nil
}

// Book is the atomic "create booking if the room has capacity" call.  On
// success exactly one bed has been claimed for the returned booking.  A
// full room yields model.ErrRoomUnavailable and leaves occupancy as it was.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (model.Booking, error) {
	now := s.now()
	var (
		out model.Booking
		cs  changeSet
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, err := s.rooms.LockTx(ctx, tx, req.RoomID)
		if err != nil {
			return err
		}
		if req.HostelID != 0 && req.HostelID != room.HostelID {
			return fmt.Errorf("%w: room %d is not in hostel %d", model.ErrInvalidRequest, room.ID, req.HostelID)
		}
		if req.AmountCents != 0 && req.AmountCents != room.PriceCents {
			return fmt.Errorf("%w: amount does not match room price", model.ErrInvalidRequest)
		}
		if err := s.expireRoomHoldsTx(ctx, tx, room.ID, now, &cs); err != nil {
			return err
		}
		if err := s.users.LockTx(ctx, tx, req.StudentID); err != nil {
			return err
		}
		live, err := s.liveInHostelTx(ctx, tx, req.StudentID, room.HostelID, now)
		if err != nil {
			return err
		}

		// The student's own hold on this room turns into the booking.
		var own *model.Booking
		for i := range live {
			if live[i].RoomID == room.ID && live[i].Status == model.StatusOnHold && !live[i].BedClaimed {
				own = &live[i]
			}
		}
		if own == nil && len(live) > 0 {
			return model.ErrDuplicateBooking
		}
		if own != nil && len(live) > 1 {
			return model.ErrDuplicateBooking
		}

		claimed, err := s.rooms.ClaimBedTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return model.ErrRoomUnavailable
		}
		cs.room(room.ID)

		if own != nil {
			if err := s.bookings.MarkBedClaimedTx(ctx, tx, own.ID); err != nil {
				return err
			}
			own.BedClaimed = true
			out = *own
			cs.booking(realtime.TypeUpdate, out)
			return nil
		}

		out = model.Booking{
			StudentID:     req.StudentID,
			RoomID:        room.ID,
			HostelID:      room.HostelID,
			Status:        model.StatusPending,
			PaymentStatus: model.PaymentPending,
			AmountCents:   room.PriceCents,
			DepositCents:  room.DepositCents,
			Term:          req.Term,
			BedClaimed:    true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.bookings.InsertTx(ctx, tx, &out); err != nil {
			return err
		}
		cs.booking(realtime.TypeInsert, out)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": out.ID, "room_id": req.RoomID, "student_id": req.StudentID}).Info("bed claimed")
	publishChanges(ctx, s.changes, s.rooms, s.log, now, cs)
	return out, nil
}

// ConfirmPaid is the payment verification step.  It flips the booking to
// confirmed and, if the booking had not yet claimed a bed, claims exactly
// one.  Confirming an already confirmed booking changes nothing.
func (s *BookingService) ConfirmPaid(ctx context.Context, bookingID uint64, paymentRef string) (model.Booking, error) {
	head, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	now := s.now()
	var (
		out      model.Booking
		cs       changeSet
		outcome  error
		newlyPay bool
	)
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.rooms.LockTx(ctx, tx, head.RoomID); err != nil {
			return err
		}
		b, err := s.bookings.LockTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		out = b
		switch {
		case b.Status == model.StatusConfirmed:
			return nil
		case !model.CanTransition(b.Status, model.StatusConfirmed):
			return fmt.Errorf("%w: %s booking cannot be confirmed", model.ErrInvalidTransition, b.Status)
		case b.HoldExpired(now):
			// commit the expiry, report it to the caller
			if err := s.cancelTx(ctx, tx, &out, &cs); err != nil {
				return err
			}
			outcome = model.ErrHoldExpired
			return nil
		}
		if !b.BedClaimed {
			claimed, err := s.rooms.ClaimBedTx(ctx, tx, b.RoomID)
			if err != nil {
				return err
			}
			if !claimed {
				if err := s.cancelTx(ctx, tx, &out, &cs); err != nil {
					return err
				}
				outcome = model.ErrRoomUnavailable
				return nil
			}
			cs.room(b.RoomID)
		}
		if err := s.bookings.ConfirmTx(ctx, tx, b.ID, paymentRef); err != nil {
			return err
		}
		out.Status = model.StatusConfirmed
		out.PaymentStatus = model.PaymentPaid
		out.HoldExpiresAt = nil
		out.BedClaimed = true
		if paymentRef != "" {
			ref := paymentRef
			out.PaymentRef = &ref
		}
		out.UpdatedAt = now
		newlyPay = true
		cs.booking(realtime.TypeUpdate, out)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	publishChanges(ctx, s.changes, s.rooms, s.log, now, cs)
	entry := s.log.WithFields(logrus.Fields{"booking_id": bookingID, "payment_ref": paymentRef})
	if outcome != nil {
		entry.WithError(outcome).Warn("paid booking could not be confirmed; refund required")
		return out, outcome
	}
	if newlyPay {
		entry.Info("booking confirmed")
		s.announceConfirmed(ctx, out, now)
	}
	return out, nil
}

// Cancel withdraws a pending or on_hold booking on behalf of its student.
func (s *BookingService) Cancel(ctx context.Context, studentID, bookingID uint64) (model.Booking, error) {
	head, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if head.StudentID != studentID {
		return model.Booking{}, model.ErrForbidden
	}
	return s.transition(ctx, head, model.StatusCancelled)
}

// Complete ends a confirmed stay.  Only the hostel's landlord may do it.
func (s *BookingService) Complete(ctx context.Context, landlordID, bookingID uint64) (model.Booking, error) {
	head, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	hostel, err := s.hostels.GetByID(ctx, head.HostelID)
	if err != nil {
		return model.Booking{}, err
	}
	if hostel.LandlordID != landlordID {
		return model.Booking{}, model.ErrForbidden
	}
	return s.transition(ctx, head, model.StatusCompleted)
}

func (s *BookingService) transition(ctx context.Context, head model.Booking, to model.BookingStatus) (model.Booking, error) {
	now := s.now()
	var (
		out model.Booking
		cs  changeSet
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.rooms.LockTx(ctx, tx, head.RoomID); err != nil {
			return err
		}
		b, err := s.bookings.LockTx(ctx, tx, head.ID)
		if err != nil {
			return err
		}
		if !model.CanTransition(b.Status, to) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, b.Status, to)
		}
		out = b
		if to == model.StatusCancelled {
			return s.cancelTx(ctx, tx, &out, &cs)
		}
		if err := s.bookings.CompleteTx(ctx, tx, b.ID); err != nil {
			return err
		}
		if b.BedClaimed {
			if err := s.rooms.ReleaseBedTx(ctx, tx, b.RoomID); err != nil {
				return err
			}
			cs.room(b.RoomID)
		}
		out.Status = model.StatusCompleted
		out.BedClaimed = false
		cs.booking(realtime.TypeUpdate, out)
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": out.ID, "status": out.Status}).Info("booking transitioned")
	publishChanges(ctx, s.changes, s.rooms, s.log, now, cs)
	return out, nil
}

// SweepExpired cancels holds past their deadline and pending bookings
// left unpaid for PendingTTL, returning their beds.  Each booking is
// expired in its own transaction; one failure does not stop the batch.
func (s *BookingService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.PendingTTL)
	stale, err := s.bookings.Stale(ctx, now, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range stale {
		ok, err := s.expireOne(ctx, b, now, cutoff)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Error("expire booking")
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.log.WithField("expired", expired).Info("sweep cancelled stale bookings")
	}
	return expired, nil
}

func (s *BookingService) expireOne(ctx context.Context, head model.Booking, now, cutoff time.Time) (bool, error) {
	var (
		cs   changeSet
		done bool
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.rooms.LockTx(ctx, tx, head.RoomID); err != nil {
			return err
		}
		b, err := s.bookings.LockTx(ctx, tx, head.ID)
		if err != nil {
			return err
		}
		if !isStale(b, now, cutoff) {
			return nil
		}
		done = true
		return s.cancelTx(ctx, tx, &b, &cs)
	})
	if err != nil {
		return false, err
	}
	publishChanges(ctx, s.changes, s.rooms, s.log, now, cs)
	return done, nil
}

func isStale(b model.Booking, now, cutoff time.Time) bool {
	if b.HoldExpired(now) {
		return true
	}
	unpaid := b.PaymentStatus == model.PaymentPending || b.PaymentStatus == model.PaymentFailed
	return b.Status == model.StatusPending && unpaid && !b.CreatedAt.After(cutoff)
}

// expireRoomHoldsTx cancels the expired holds on a locked room.  It runs
// before any decision about that room so an expired hold never blocks a
// booking.
func (s *BookingService) expireRoomHoldsTx(ctx context.Context, tx *sql.Tx, roomID uint64, now time.Time, cs *changeSet) error {
	expired, err := s.bookings.ExpiredHoldsForRoomTx(ctx, tx, roomID, now)
	if err != nil {
		return err
	}
	for i := range expired {
		if err := s.cancelTx(ctx, tx, &expired[i], cs); err != nil {
			return err
		}
	}
	return nil
}

// cancelTx cancels b and releases its bed.  The room must be locked.
func (s *BookingService) cancelTx(ctx context.Context, tx *sql.Tx, b *model.Booking, cs *changeSet) error {
	if err := s.bookings.CancelTx(ctx, tx, b.ID); err != nil {
		return err
	}
	if b.BedClaimed {
		if err := s.rooms.ReleaseBedTx(ctx, tx, b.RoomID); err != nil {
			return err
		}
		cs.room(b.RoomID)
	}
	b.Status = model.StatusCancelled
	b.HoldExpiresAt = nil
	b.BedClaimed = false
	cs.booking(realtime.TypeUpdate, *b)
	return nil
}

// liveInHostelTx returns the student's bookings in the hostel that still
// count as holding a room.  Holds past their deadline on other rooms are
// left for the sweeper and do not count.
func (s *BookingService) liveInHostelTx(ctx context.Context, tx *sql.Tx, studentID, hostelID uint64, now time.Time) ([]model.Booking, error) {
	all, err := s.bookings.ActiveInHostelTx(ctx, tx, studentID, hostelID)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, b := range all {
		if !b.HoldExpired(now) {
			live = append(live, b)
		}
	}
	return live, nil
}

func (s *BookingService) announceConfirmed(ctx context.Context, b model.Booking, now time.Time) {
	if s.events == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		EventID:     uuid.NewString(),
		BookingID:   b.ID,
		StudentID:   b.StudentID,
		HostelID:    b.HostelID,
		RoomID:      b.RoomID,
		Term:        b.Term,
		AmountCents: b.AmountCents,
		ConfirmedAt: now.Format(time.RFC3339),
	}
	if b.PaymentRef != nil {
		ev.PaymentRef = *b.PaymentRef
	}
	if h, err := s.hostels.GetByID(ctx, b.HostelID); err == nil {
		ev.HostelName = h.Name
		ev.LandlordID = h.LandlordID
	}
	if r, err := s.rooms.GetByID(ctx, b.RoomID); err == nil {
		ev.RoomName = r.Name
	}
	if err := s.events.PublishBookingConfirmed(ctx, ev); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("publish booking.confirmed")
	}
}
