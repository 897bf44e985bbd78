package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// ConversationRepo stores student/landlord conversations and their
// messages.  Messages are append-only.
type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

// Open returns the conversation for the (student, landlord, hostel)
// triple, creating it on first use.
func (r *ConversationRepo) Open(ctx context.Context, c *model.Conversation) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (student_id, landlord_id, hostel_id) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`,
		c.StudentID, c.LandlordID, c.HostelID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, id uint64) (model.Conversation, error) {
	var c model.Conversation
	err := r.db.QueryRowContext(ctx,
		"SELECT id, student_id, landlord_id, hostel_id, created_at FROM conversations WHERE id = ?", id).
		Scan(&c.ID, &c.StudentID, &c.LandlordID, &c.HostelID, &c.CreatedAt)
	return c, notFound(err)
}

// ListForUser returns conversations where userID is either party.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, landlord_id, hostel_id, created_at FROM conversations
		 WHERE student_id = ? OR landlord_id = ? ORDER BY id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.StudentID, &c.LandlordID, &c.HostelID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddMessage appends a message and fills in its ID.
func (r *ConversationRepo) AddMessage(ctx context.Context, m *model.Message) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, sender_id, body) VALUES (?, ?, ?)",
		m.ConversationID, m.SenderID, m.Body)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// Messages returns up to limit messages with id > afterID, oldest first.
func (r *ConversationRepo) Messages(ctx context.Context, conversationID, afterID uint64, limit int) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
		 WHERE conversation_id = ? AND id > ? ORDER BY id LIMIT ?`, conversationID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
