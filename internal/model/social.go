package model

import "time"

// Conversation links one student and one landlord about one hostel.
type Conversation struct {
	ID         uint64    `json:"id"`
	StudentID  uint64    `json:"student_id"`
	LandlordID uint64    `json:"landlord_id"`
	HostelID   uint64    `json:"hostel_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is appended to a conversation and never edited.
type Message struct {
	ID             uint64    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Review is one student's rating of a hostel.
type Review struct {
	ID        uint64    `json:"id"`
	HostelID  uint64    `json:"hostel_id"`
	StudentID uint64    `json:"student_id"`
	Rating    uint8     `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a stored in-app notice.  Delivery (push, email) is not
// handled here; clients poll the list.
type Notification struct {
	ID        uint64     `json:"id"`
	UserID    uint64     `json:"user_id"`
	Kind      string     `json:"kind"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
