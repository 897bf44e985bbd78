package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusOnHold    BookingStatus = "on_hold"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// PaymentStatus tracks money, independently of the booking status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusOnHold, StatusConfirmed, StatusCancelled},
	StatusOnHold:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted},
}

// CanTransition reports whether a booking may move from one status to
// another.  Expiry of a hold is a move to cancelled.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOnHold, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// NonTerminalStatuses lists the statuses that count as "already holds a
// room" for the one-booking-per-hostel rule.
func NonTerminalStatuses() []BookingStatus {
	return []BookingStatus{StatusPending, StatusOnHold, StatusConfirmed}
}

// Booking is one student's claim on one room.
//
// HoldExpiresAt is set only while Status is on_hold.  BedClaimed records
// whether this booking currently counts toward the room's Occupied
// counter; a hold placed with Hold does not, a booking created by the
// conflict-check does, and confirmation claims the bed if it was not
// claimed yet.  PaymentRef carries the provider checkout session id.
type Booking struct {
	ID            uint64        `json:"id"`
	StudentID     uint64        `json:"student_id"`
	RoomID        uint64        `json:"room_id"`
	HostelID      uint64        `json:"hostel_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AmountCents   uint32        `json:"amount_cents"`
	DepositCents  uint32        `json:"deposit_cents"`
	Term          string        `json:"term"`
	HoldExpiresAt *time.Time    `json:"hold_expires_at"`
	BedClaimed    bool          `json:"bed_claimed"`
	PaymentRef    *string       `json:"payment_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// HoldExpired reports whether an on_hold booking is past its deadline.
// Bookings in any other status never report expiry.
func (b Booking) HoldExpired(now time.Time) bool {
	if b.Status != StatusOnHold || b.HoldExpiresAt == nil {
		return false
	}
	return !b.HoldExpiresAt.After(now)
}

// EffectiveStatus is the status a reader should display.  An on_hold
// booking whose deadline passed is shown as cancelled even before the
// sweep gets to it, so it can never be mistaken for a live hold.
func (b Booking) EffectiveStatus(now time.Time) BookingStatus {
	if b.HoldExpired(now) {
		return StatusCancelled
	}
	return b.Status
}
