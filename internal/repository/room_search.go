package repository

import (
	"context"
	"strings"
)

// RoomSearchQuery defines filters & pagination for searching rooms.
type RoomSearchQuery struct {
	City          string
	MaxPriceCents uint32
	Amenity       string
	AvailableOnly bool
	Page          int
	PageSize      int
}

type PublicRoomRow struct {
	ID         uint64  `json:"id"`
	Name       string  `json:"name"`
	RoomType   string  `json:"room_type"`
	HostelID   uint64  `json:"hostel_id"`
	Hostel     string  `json:"hostel"`
	City       string  `json:"city"`
	Capacity   uint32  `json:"capacity"`
	Occupied   uint32  `json:"occupied"`
	Available  bool    `json:"available"`
	PriceCents uint32  `json:"price_cents"`
	Price      float64 `json:"price"`
}

func (r *RoomRepo) Search(ctx context.Context, q RoomSearchQuery) ([]PublicRoomRow, int64, error) {
	where := []string{}
	args := []any{}

	if q.City != "" {
		where = append(where, "LOWER(h.city) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.City)+"%")
	}
	if q.MaxPriceCents > 0 {
		where = append(where, "r.price_cents <= ?")
		args = append(args, q.MaxPriceCents)
	}
	if q.Amenity != "" {
		where = append(where, "JSON_CONTAINS(COALESCE(r.amenities, JSON_ARRAY()), JSON_QUOTE(?))")
		args = append(args, strings.ToLower(q.Amenity))
	}
	if q.AvailableOnly {
		where = append(where, "r.occupied < r.capacity")
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	countSQL := `SELECT COUNT(*)
		FROM rooms r
		JOIN hostels h ON h.id = r.hostel_id
		WHERE ` + cond
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize

	dataSQL := `SELECT
			r.id,
			r.name,
			r.room_type,
			h.id   AS hostel_id,
			h.name AS hostel_name,
			h.city,
			r.capacity,
			r.occupied,
			r.price_cents
		FROM rooms r
		JOIN hostels h ON h.id = r.hostel_id
		WHERE ` + cond + `
		ORDER BY r.price_cents ASC, r.id ASC
		LIMIT ? OFFSET ?`

	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]PublicRoomRow, 0, limit)
	for rows.Next() {
		var d PublicRoomRow
		if err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.RoomType,
			&d.HostelID,
			&d.Hostel,
			&d.City,
			&d.Capacity,
			&d.Occupied,
			&d.PriceCents,
		); err != nil {
			return nil, 0, err
		}
		d.Available = d.Occupied < d.Capacity
		d.Price = float64(d.PriceCents) / 100.0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
