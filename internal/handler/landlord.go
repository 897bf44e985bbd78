package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
	"github.com/iliyamo/student-hostel-booking/internal/service"
)

// LandlordHandler serves hostel and room management plus the landlord's
// view of bookings.
type LandlordHandler struct {
	Listings *service.ListingService
	Booking  *service.BookingService
	Hostels  *repository.HostelRepo
	Bookings *repository.BookingRepo
}

type hostelReq struct {
	Name        string  `json:"name" validate:"required,max=191"`
	City        string  `json:"city" validate:"required,max=120"`
	Address     string  `json:"address" validate:"max=255"`
	Description *string `json:"description"`
}

type roomReq struct {
	Name         string   `json:"name" validate:"required,max=120"`
	RoomType     string   `json:"room_type" validate:"omitempty,oneof=single double shared dorm"`
	Capacity     uint32   `json:"capacity" validate:"required,min=1,max=64"`
	PriceCents   uint32   `json:"price_cents" validate:"required"`
	DepositCents uint32   `json:"deposit_cents"`
	Amenities    []string `json:"amenities"`
}

type roomPatchReq struct {
	Name         *string  `json:"name" validate:"omitempty,min=1,max=120"`
	RoomType     *string  `json:"room_type" validate:"omitempty,oneof=single double shared dorm"`
	Capacity     *uint32  `json:"capacity" validate:"omitempty,min=1,max=64"`
	PriceCents   *uint32  `json:"price_cents"`
	DepositCents *uint32  `json:"deposit_cents"`
	Amenities    []string `json:"amenities"`
}

// CreateHostel registers a hostel owned by the caller.
func (h *LandlordHandler) CreateHostel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req hostelReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hs := model.Hostel{
		LandlordID:  uid,
		Name:        strings.TrimSpace(req.Name),
		City:        strings.TrimSpace(req.City),
		Address:     strings.TrimSpace(req.Address),
		Description: req.Description,
	}
	if err := h.Listings.CreateHostel(ctx, &hs); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, hs)
}

// MyHostels lists the caller's hostels.
func (h *LandlordHandler) MyHostels(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Hostels.ListByLandlord(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// CreateRoom adds a room to one of the caller's hostels.
func (h *LandlordHandler) CreateRoom(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	hostelID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req roomReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if req.RoomType == "" {
		req.RoomType = "shared"
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	room := model.Room{
		HostelID:     hostelID,
		Name:         strings.TrimSpace(req.Name),
		RoomType:     req.RoomType,
		Capacity:     req.Capacity,
		PriceCents:   req.PriceCents,
		DepositCents: req.DepositCents,
		Amenities:    req.Amenities,
	}
	if err := h.Listings.CreateRoom(ctx, uid, &room); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

// UpdateRoom patches a room.  Lowering capacity below the beds already
// claimed is rejected.
func (h *LandlordHandler) UpdateRoom(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req roomPatchReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	room, err := h.Listings.UpdateRoom(ctx, uid, roomID, service.RoomPatch{
		Name:         req.Name,
		RoomType:     req.RoomType,
		Capacity:     req.Capacity,
		PriceCents:   req.PriceCents,
		DepositCents: req.DepositCents,
		Amenities:    req.Amenities,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// HostelBookings lists bookings for one of the caller's hostels,
// optionally filtered by ?status=.
func (h *LandlordHandler) HostelBookings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	hostelID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	status := strings.ToLower(strings.TrimSpace(c.QueryParam("status")))
	if status != "" && !model.BookingStatus(status).Valid() {
		return writeError(c, invalid("unknown status %q", status))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hs, err := h.Hostels.GetByID(ctx, hostelID)
	if err != nil {
		return writeError(c, err)
	}
	if hs.LandlordID != uid {
		return writeError(c, model.ErrForbidden)
	}
	list, err := h.Bookings.ListByHostel(ctx, hostelID, status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// CompleteBooking ends a confirmed stay and frees its bed.
func (h *LandlordHandler) CompleteBooking(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Booking.Complete(ctx, uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
