// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedQueue is the durable queue carrying BookingConfirmedEvent.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published when payment verification confirms a
// booking.  It carries enough for consumers to notify the student and the
// landlord without querying the primary database.  EventID is unique per
// confirmation and lets consumers drop redeliveries.
type BookingConfirmedEvent struct {
    EventID     string `json:"event_id"`
    BookingID   uint64 `json:"booking_id"`
    StudentID   uint64 `json:"student_id"`
    LandlordID  uint64 `json:"landlord_id"`
    HostelID    uint64 `json:"hostel_id"`
    HostelName  string `json:"hostel_name"`
    RoomID      uint64 `json:"room_id"`
    RoomName    string `json:"room_name"`
    Term        string `json:"term"`
    AmountCents uint32 `json:"amount_cents"`
    PaymentRef  string `json:"payment_ref"`
    ConfirmedAt string `json:"confirmed_at"`
}
