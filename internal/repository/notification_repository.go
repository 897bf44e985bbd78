package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// Notification kinds written by the server.
const (
	NotifyBookingConfirmed = "booking_confirmed"
	NotifyBookingReceived  = "booking_received"
	NotifyMessage          = "message"
)

// NotificationRepo stores in-app notifications.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

func (r *NotificationRepo) Create(ctx context.Context, userID uint64, kind, body string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO notifications (user_id, kind, body) VALUES (?, ?, ?)", userID, kind, body)
	return err
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := "SELECT id, user_id, kind, body, read_at, created_at FROM notifications WHERE user_id = ?"
	if unreadOnly {
		q += " AND read_at IS NULL"
	}
	q += " ORDER BY id DESC LIMIT ?"
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var (
			n      model.Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Body, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps read_at on the user's own notification.  Another user's
// id yields ErrNotFound.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?",
		at.UTC(), id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
