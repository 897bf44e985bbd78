package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// RoomRepo owns the rooms table.  Occupancy only ever moves through
// ClaimBedTx and ReleaseBedTx; nothing else writes the occupied column.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = "id, hostel_id, name, room_type, capacity, occupied, price_cents, deposit_cents, amenities, created_at, updated_at"

// Create inserts a room with zero occupancy.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	amenities, err := encodeAmenities(room.Amenities)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (hostel_id, name, room_type, capacity, occupied, price_cents, deposit_cents, amenities)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		room.HostelID, room.Name, room.RoomType, room.Capacity, room.PriceCents, room.DepositCents, amenities)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = uint64(id)
	room.Occupied = 0
	room.Normalize()
	return nil
}

// GetByID returns one room or ErrNotFound.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (model.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	return room, notFound(err)
}

// GetTx reads a room inside tx without locking it.
func (r *RoomRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Room, error) {
	room, err := scanRoom(tx.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	return room, notFound(err)
}

// LockTx reads a room and holds its row lock until tx ends.  Every
// capacity decision is taken under this lock.
func (r *RoomRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Room, error) {
	room, err := scanRoom(tx.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ? FOR UPDATE", id))
	return room, notFound(err)
}

// ListByHostel returns the rooms of one hostel ordered by id.
func (r *RoomRepo) ListByHostel(ctx context.Context, hostelID uint64) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE hostel_id = ? ORDER BY id", hostelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// ClaimBedTx adds one occupant if a bed is free.  It returns false when
// the room is already full; the guard lives in the UPDATE itself so two
// claims can never both take the last bed.
func (r *RoomRepo) ClaimBedTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE rooms SET occupied = occupied + 1 WHERE id = ? AND occupied < capacity", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseBedTx removes one occupant.  It never drives occupied below zero.
func (r *RoomRepo) ReleaseBedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE rooms SET occupied = occupied - 1 WHERE id = ? AND occupied > 0", id)
	return err
}

// UpdateDetailsTx writes the landlord-editable fields.  The caller must
// hold the row lock and has already checked capacity against occupied.
func (r *RoomRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, room model.Room) error {
	amenities, err := encodeAmenities(room.Amenities)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE rooms SET name = ?, room_type = ?, capacity = ?, price_cents = ?, deposit_cents = ?, amenities = ?
		 WHERE id = ?`,
		room.Name, room.RoomType, room.Capacity, room.PriceCents, room.DepositCents, amenities, room.ID)
	return err
}

func encodeAmenities(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func scanRoom(s scanner) (model.Room, error) {
	var (
		room      model.Room
		amenities sql.NullString
	)
	err := s.Scan(&room.ID, &room.HostelID, &room.Name, &room.RoomType, &room.Capacity, &room.Occupied,
		&room.PriceCents, &room.DepositCents, &amenities, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return room, err
	}
	if amenities.Valid && amenities.String != "" {
		if err := json.Unmarshal([]byte(amenities.String), &room.Amenities); err != nil {
			return room, err
		}
	}
	room.Normalize()
	return room, nil
}
