package model

import "time"

// Room holds the authoritative capacity and occupancy of a bookable room.
// Occupied counts the bookings currently claiming a bed and never exceeds
// Capacity; the store enforces this with a CHECK constraint and every
// increment is a conditional update.
//
// Available is derived from Occupied and Capacity at read time.  It is
// never stored, so it cannot disagree with the counters.
type Room struct {
    ID           uint64    `json:"id"`
    HostelID     uint64    `json:"hostel_id"`
    Name         string    `json:"name"`
    RoomType     string    `json:"room_type"`
    Capacity     uint32    `json:"capacity"`
    Occupied     uint32    `json:"occupied"`
    Available    bool      `json:"available"`
    PriceCents   uint32    `json:"price_cents"`
    DepositCents uint32    `json:"deposit_cents"`
    Amenities    []string  `json:"amenities"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`
}

// Remaining returns the number of free beds.
func (r Room) Remaining() uint32 {
    if r.Occupied >= r.Capacity {
        return 0
    }
    return r.Capacity - r.Occupied
}

// Normalize recomputes the derived Available flag.  Call it after
// scanning a row or merging a partial update.
func (r *Room) Normalize() {
    r.Available = r.Occupied < r.Capacity
    if r.Amenities == nil {
        r.Amenities = []string{}
    }
}
