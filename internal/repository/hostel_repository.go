package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// HostelRepo encapsulates queries on the hostels table.
type HostelRepo struct {
	db *sql.DB
}

// NewHostelRepo constructs a HostelRepo with the provided DB handle.
func NewHostelRepo(db *sql.DB) *HostelRepo { return &HostelRepo{db: db} }

const hostelColumns = "id, landlord_id, name, city, address, description, created_at, updated_at"

// Create inserts a hostel and fills in its ID.
func (r *HostelRepo) Create(ctx context.Context, h *model.Hostel) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO hostels (landlord_id, name, city, address, description) VALUES (?, ?, ?, ?, ?)",
		h.LandlordID, strings.TrimSpace(h.Name), strings.TrimSpace(h.City), h.Address, h.Description)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// GetByID returns one hostel or ErrNotFound.
func (r *HostelRepo) GetByID(ctx context.Context, id uint64) (model.Hostel, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+hostelColumns+" FROM hostels WHERE id = ?", id)
	h, err := scanHostel(row)
	return h, notFound(err)
}

// List pages through hostels, optionally filtered by city (case
// insensitive prefix).  page is 1-based.
func (r *HostelRepo) List(ctx context.Context, city string, page, pageSize int) ([]model.Hostel, error) {
	if page < 1 {
		page = 1
	}
	q := "SELECT " + hostelColumns + " FROM hostels"
	args := []any{}
	if city = strings.TrimSpace(city); city != "" {
		q += " WHERE LOWER(city) LIKE ?"
		args = append(args, strings.ToLower(city)+"%")
	}
	q += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)
	return r.query(ctx, q, args...)
}

// ListByLandlord returns every hostel owned by landlordID.
func (r *HostelRepo) ListByLandlord(ctx context.Context, landlordID uint64) ([]model.Hostel, error) {
	return r.query(ctx, "SELECT "+hostelColumns+" FROM hostels WHERE landlord_id = ? ORDER BY id", landlordID)
}

func (r *HostelRepo) query(ctx context.Context, q string, args ...any) ([]model.Hostel, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Hostel{}
	for rows.Next() {
		h, err := scanHostel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHostel(s scanner) (model.Hostel, error) {
	var (
		h    model.Hostel
		desc sql.NullString
	)
	if err := s.Scan(&h.ID, &h.LandlordID, &h.Name, &h.City, &h.Address, &desc, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return h, err
	}
	if desc.Valid {
		d := desc.String
		h.Description = &d
	}
	return h, nil
}
