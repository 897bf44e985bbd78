package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// ErrReviewExists is returned when a student reviews the same hostel twice.
var ErrReviewExists = errors.New("review already exists")

type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (hostel_id, student_id, rating, body) VALUES (?, ?, ?, ?)",
		rv.HostelID, rv.StudentID, rv.Rating, rv.Body)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrReviewExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// ListByHostel returns a hostel's reviews newest first together with the
// average rating (zero when there are none).
func (r *ReviewRepo) ListByHostel(ctx context.Context, hostelID uint64) ([]model.Review, float64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, hostel_id, student_id, rating, body, created_at FROM reviews WHERE hostel_id = ? ORDER BY id DESC",
		hostelID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Review{}
	var sum int
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.HostelID, &rv.StudentID, &rv.Rating, &rv.Body, &rv.CreatedAt); err != nil {
			return nil, 0, err
		}
		sum += int(rv.Rating)
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return out, 0, nil
	}
	return out, float64(sum) / float64(len(out)), nil
}
