package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/config"
	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/payment"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// PaymentService starts hosted checkouts and turns provider confirmation
// into BookingService.ConfirmPaid.  Starting a checkout never changes the
// booking's status.
type PaymentService struct {
	bookings *repository.BookingRepo
	rooms    *repository.RoomRepo
	booking  *BookingService
	provider payment.Provider
	cfg      config.PaymentConfig
	log      *logrus.Entry
}

func NewPaymentService(booking *BookingService, provider payment.Provider, cfg config.PaymentConfig, log *logrus.Entry) *PaymentService {
	return &PaymentService{
		bookings: booking.bookings,
		rooms:    booking.rooms,
		booking:  booking,
		provider: provider,
		cfg:      cfg,
		log:      log.WithField("component", "payment"),
	}
}

// Checkout creates a provider session for the student's own pending or
// on_hold booking and records its id as the booking's payment_ref.
func (s *PaymentService) Checkout(ctx context.Context, studentID, bookingID uint64) (payment.Session, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return payment.Session{}, err
	}
	if b.StudentID != studentID {
		return payment.Session{}, model.ErrForbidden
	}
	if b.Status != model.StatusPending && b.Status != model.StatusOnHold {
		return payment.Session{}, fmt.Errorf("%w: %s booking cannot be paid", model.ErrInvalidTransition, b.Status)
	}
	if b.HoldExpired(s.booking.now()) {
		return payment.Session{}, model.ErrHoldExpired
	}

	desc := fmt.Sprintf("Booking #%d", b.ID)
	if room, err := s.rooms.GetByID(ctx, b.RoomID); err == nil {
		desc = fmt.Sprintf("%s (booking #%d)", room.Name, b.ID)
	}
	sess, err := s.provider.CreateCheckoutSession(ctx, payment.Checkout{
		BookingID:      b.ID,
		StudentID:      studentID,
		AmountCents:    int64(b.AmountCents),
		Currency:       s.cfg.Currency,
		Description:    desc,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: checkoutKey(b),
	})
	if err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("create checkout session")
		return payment.Session{}, fmt.Errorf("%w: %v", model.ErrPaymentSession, err)
	}
	if err := s.bookings.SetPaymentRef(ctx, b.ID, sess.ID); err != nil {
		return payment.Session{}, err
	}
	return sess, nil
}

// Verify asks the provider whether sessionID was paid.  Paid sessions
// confirm the booking; unpaid ones change nothing.  A session counts as the
// booking's when the provider says it was created for it, so an earlier
// checkout paid after a newer one was started still confirms.  Sessions
// without booking metadata must match the stored payment_ref.
func (s *PaymentService) Verify(ctx context.Context, studentID uint64, sessionID string, bookingID uint64) (bool, model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, model.Booking{}, err
	}
	if b.StudentID != studentID {
		return false, model.Booking{}, model.ErrForbidden
	}
	v, err := s.provider.VerifySession(ctx, sessionID)
	if err != nil {
		return false, b, fmt.Errorf("%w: verify session: %v", model.ErrBackend, err)
	}
	if !sessionBelongs(b, sessionID, v) {
		return false, b, fmt.Errorf("%w: session does not belong to booking", model.ErrInvalidRequest)
	}
	if !v.Paid {
		return false, b, nil
	}
	confirmed, err := s.booking.ConfirmPaid(ctx, bookingID, sessionID)
	if err != nil {
		return true, confirmed, err
	}
	return true, confirmed, nil
}

func sessionBelongs(b model.Booking, sessionID string, v payment.Verification) bool {
	if v.BookingID != 0 {
		return v.BookingID == b.ID
	}
	return b.PaymentRef == nil || *b.PaymentRef == sessionID
}

// checkoutKey is stable until the booking row changes.  Recording the
// session's payment_ref bumps updated_at, so a retried request whose
// session was never stored reuses the provider's session and a later
// checkout gets a fresh one.
func checkoutKey(b model.Booking) string {
	return fmt.Sprintf("checkout-%d-%d", b.ID, b.UpdatedAt.Unix())
}

// HandleWebhook applies a provider callback.  Confirmation failures that
// the provider cannot fix by retrying are logged and acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	entry := s.log.WithFields(logrus.Fields{"type": ev.Type, "session_id": ev.SessionID, "booking_id": ev.BookingID})

	bookingID := ev.BookingID
	if bookingID == 0 && ev.SessionID != "" {
		if b, err := s.bookings.FindByPaymentRef(ctx, ev.SessionID); err == nil {
			bookingID = b.ID
		}
	}

	switch ev.Kind {
	case payment.WebhookCompleted:
		if !ev.Paid || bookingID == 0 {
			entry.Info("ignoring unpaid or unmatched checkout completion")
			return nil
		}
		_, err := s.booking.ConfirmPaid(ctx, bookingID, ev.SessionID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrHoldExpired), errors.Is(err, model.ErrRoomUnavailable),
			errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrNotFound):
			entry.WithError(err).Warn("webhook confirmation rejected")
			return nil
		default:
			return err
		}
	case payment.WebhookExpired:
		if bookingID == 0 {
			return nil
		}
		return s.bookings.SetPaymentStatus(ctx, bookingID, model.PaymentFailed)
	default:
		entry.Debug("ignoring webhook")
		return nil
	}
}
