package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// BookingRepo provides access to the bookings table.  Methods with a Tx
// suffix run inside a caller-owned transaction; the caller commits or
// rolls back.  All timestamps are UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = "id, student_id, room_id, hostel_id, status, payment_status, amount_cents, deposit_cents, term, hold_expires_at, bed_claimed, payment_ref, created_at, updated_at"

// InsertTx writes a new booking and fills in its ID.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	var hold any
	if b.HoldExpiresAt != nil {
		hold = b.HoldExpiresAt.UTC()
	}
	// timestamps come from the caller's clock so the sweeper's UTC cutoff
	// compares against the same zone
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (student_id, room_id, hostel_id, status, payment_status, amount_cents, deposit_cents, term, hold_expires_at, bed_claimed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.StudentID, b.RoomID, b.HostelID, string(b.Status), string(b.PaymentStatus),
		b.AmountCents, b.DepositCents, b.Term, hold, b.BedClaimed, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByID returns one booking or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id))
	return b, notFound(err)
}

// LockTx reads a booking under a row lock.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ? FOR UPDATE", id))
	return b, notFound(err)
}

// FindByPaymentRef resolves a provider session id back to its booking.
func (r *BookingRepo) FindByPaymentRef(ctx context.Context, ref string) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE payment_ref = ? ORDER BY id DESC LIMIT 1", ref))
	return b, notFound(err)
}

// ActiveInHostelTx lists the student's non-terminal bookings in a hostel.
// Expired holds are included; callers decide what an expired hold means.
func (r *BookingRepo) ActiveInHostelTx(ctx context.Context, tx *sql.Tx, studentID, hostelID uint64) ([]model.Booking, error) {
	return r.queryTx(ctx, tx,
		"SELECT "+bookingColumns+` FROM bookings
		 WHERE student_id = ? AND hostel_id = ? AND status IN ('pending','on_hold','confirmed')
		 ORDER BY id`,
		studentID, hostelID)
}

// ExpiredHoldsForRoomTx locks and returns the on_hold bookings of a room
// whose deadline is at or before now.
func (r *BookingRepo) ExpiredHoldsForRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64, now time.Time) ([]model.Booking, error) {
	return r.queryTx(ctx, tx,
		"SELECT "+bookingColumns+` FROM bookings
		 WHERE room_id = ? AND status = 'on_hold' AND hold_expires_at <= ?
		 ORDER BY id FOR UPDATE`,
		roomID, now.UTC())
}

// Stale lists up to limit bookings the sweeper should cancel: holds past
// their deadline, and pending bookings still unpaid (or whose checkout
// failed) since pendingBefore.
// Rows are not locked; the sweeper re-checks each one under its locks.
func (r *BookingRepo) Stale(ctx context.Context, now, pendingBefore time.Time, limit int) ([]model.Booking, error) {
	return r.query(ctx,
		"SELECT "+bookingColumns+` FROM bookings
		 WHERE (status = 'on_hold' AND hold_expires_at <= ?)
		    OR (status = 'pending' AND payment_status IN ('pending','failed') AND created_at <= ?)
		 ORDER BY id LIMIT ?`,
		now.UTC(), pendingBefore.UTC(), limit)
}

// CancelTx moves a booking to cancelled and clears its hold and bed claim.
// Releasing the room's bed is the caller's job.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status = 'cancelled', hold_expires_at = NULL, bed_claimed = FALSE WHERE id = ?", id)
	return err
}

// MarkBedClaimedTx records that the booking now counts toward occupancy.
func (r *BookingRepo) MarkBedClaimedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, "UPDATE bookings SET bed_claimed = TRUE WHERE id = ?", id)
	return err
}

// ConfirmTx marks the booking confirmed and paid.  An empty ref keeps the
// stored payment_ref.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64, ref string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'confirmed', payment_status = 'paid', hold_expires_at = NULL,
		 bed_claimed = TRUE, payment_ref = COALESCE(NULLIF(?, ''), payment_ref) WHERE id = ?`,
		ref, id)
	return err
}

// CompleteTx ends a confirmed stay and drops its bed claim.
func (r *BookingRepo) CompleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status = 'completed', bed_claimed = FALSE WHERE id = ?", id)
	return err
}

// SetPaymentRef stores the provider checkout session id.
func (r *BookingRepo) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE bookings SET payment_ref = ? WHERE id = ?", ref, id)
	return err
}

// SetPaymentStatus updates payment_status on a non-terminal booking.
func (r *BookingRepo) SetPaymentStatus(ctx context.Context, id uint64, st model.PaymentStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE bookings SET payment_status = ? WHERE id = ? AND status IN ('pending','on_hold')", string(st), id)
	return err
}

// ListByStudent returns a student's bookings, newest first.
func (r *BookingRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.Booking, error) {
	return r.query(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE student_id = ? ORDER BY id DESC", studentID)
}

// ListByHostel returns a hostel's bookings, optionally filtered by status.
func (r *BookingRepo) ListByHostel(ctx context.Context, hostelID uint64, status string) ([]model.Booking, error) {
	q := "SELECT " + bookingColumns + " FROM bookings WHERE hostel_id = ?"
	args := []any{hostelID}
	if status = strings.TrimSpace(status); status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY id DESC"
	return r.query(ctx, q, args...)
}

// HasStayed reports whether the student has a confirmed or completed
// booking in the hostel.  Reviews require one.
func (r *BookingRepo) HasStayed(ctx context.Context, studentID, hostelID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE student_id = ? AND hostel_id = ? AND status IN ('confirmed','completed')`,
		studentID, hostelID).Scan(&n)
	return n > 0, err
}

func (r *BookingRepo) query(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *BookingRepo) queryTx(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]model.Booking, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(s scanner) (model.Booking, error) {
	var (
		b             model.Booking
		status, pay   string
		holdExpiresAt sql.NullTime
		paymentRef    sql.NullString
	)
	err := s.Scan(&b.ID, &b.StudentID, &b.RoomID, &b.HostelID, &status, &pay, &b.AmountCents, &b.DepositCents,
		&b.Term, &holdExpiresAt, &b.BedClaimed, &paymentRef, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(pay)
	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time.UTC()
		b.HoldExpiresAt = &t
	}
	if paymentRef.Valid {
		ref := paymentRef.String
		b.PaymentRef = &ref
	}
	return b, nil
}
