package model

import "time"

// Hostel is a listing owned by a landlord.  Rooms hang off a hostel and
// every booking records the hostel it was made in so that the
// one-active-booking-per-hostel rule can be checked without a join.
//
// Fields:
//  ID          – primary key identifier.
//  LandlordID  – user ID of the owning landlord.
//  Name        – display name.
//  City        – city used by search.
//  Address     – street address.
//  Description – optional free text.
type Hostel struct {
    ID          uint64    `json:"id"`
    LandlordID  uint64    `json:"landlord_id"`
    Name        string    `json:"name"`
    City        string    `json:"city"`
    Address     string    `json:"address"`
    Description *string   `json:"description,omitempty"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}
