// Package realtime carries row-change notifications for a hostel's rooms
// and bookings from the services that mutate them to subscribed clients.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// Tables and change types carried by ChangeEvent.
const (
	TableRooms    = "rooms"
	TableBookings = "bookings"

	TypeInsert = "insert"
	TypeUpdate = "update"
	TypeDelete = "delete"
)

// ChangeEvent describes one committed row change.  Row holds the row as
// JSON; an update may carry only the columns that changed.
type ChangeEvent struct {
	ID       string          `json:"id"`
	Table    string          `json:"table"`
	Type     string          `json:"type"`
	HostelID uint64          `json:"hostel_id"`
	Row      json.RawMessage `json:"row"`
	At       time.Time       `json:"at"`
}

// BookingRow is the public projection of a booking.  Amounts, payment
// references and hold deadlines are not broadcast.
type BookingRow struct {
	ID        uint64              `json:"id"`
	RoomID    uint64              `json:"room_id"`
	HostelID  uint64              `json:"hostel_id"`
	StudentID uint64              `json:"student_id"`
	Status    model.BookingStatus `json:"status"`
}

// Channel is the pub/sub channel name for a hostel.
func Channel(hostelID uint64) string {
	return fmt.Sprintf("hostel:%d:changes", hostelID)
}

// RoomEvent builds a rooms event carrying the full room row.
func RoomEvent(typ string, room model.Room, at time.Time) (ChangeEvent, error) {
	room.Normalize()
	return newEvent(TableRooms, typ, room.HostelID, room, at)
}

// BookingEvent builds a bookings event carrying the sanitised row.
func BookingEvent(typ string, b model.Booking, at time.Time) (ChangeEvent, error) {
	row := BookingRow{ID: b.ID, RoomID: b.RoomID, HostelID: b.HostelID, StudentID: b.StudentID, Status: b.Status}
	return newEvent(TableBookings, typ, b.HostelID, row, at)
}

func newEvent(table, typ string, hostelID uint64, row any, at time.Time) (ChangeEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{
		ID:       uuid.NewString(),
		Table:    table,
		Type:     typ,
		HostelID: hostelID,
		Row:      raw,
		At:       at.UTC(),
	}, nil
}
