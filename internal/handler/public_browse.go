// Package handler exposes the HTTP handlers.  This file holds the public
// browsing API: hostels, their rooms and reviews, and room search.  No
// authentication is required and landlord details are left out.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// PublicHandler aggregates repositories needed for unauthenticated browsing.
type PublicHandler struct {
	Hostels *repository.HostelRepo
	Rooms   *repository.RoomRepo
	Reviews *repository.ReviewRepo
}

// PublicHostel is a hostel as shown to anyone.
type PublicHostel struct {
	ID          uint64  `json:"id"`
	Name        string  `json:"name"`
	City        string  `json:"city"`
	Address     string  `json:"address"`
	Description *string `json:"description,omitempty"`
}

func publicHostel(h model.Hostel) PublicHostel {
	return PublicHostel{ID: h.ID, Name: h.Name, City: h.City, Address: h.Address, Description: h.Description}
}

// ListHostels returns one page of hostels, optionally filtered by city.
func (h *PublicHandler) ListHostels(c echo.Context) error {
	page := queryInt(c, "page", 1)
	size := queryInt(c, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	hostels, err := h.Hostels.List(ctx, strings.TrimSpace(c.QueryParam("city")), page, size)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]PublicHostel, 0, len(hostels))
	for _, hs := range hostels {
		out = append(out, publicHostel(hs))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "page": page})
}

// GetHostel returns one hostel.
func (h *PublicHandler) GetHostel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hs, err := h.Hostels.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, publicHostel(hs))
}

// ListRooms returns the rooms of a hostel with their current occupancy.
// This is the snapshot the client sync starts from.
func (h *PublicHandler) ListRooms(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Hostels.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	rooms, err := h.Rooms.ListByHostel(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	for i := range rooms {
		rooms[i].Normalize()
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

// GetRoom returns one room.
func (h *PublicHandler) GetRoom(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	room, err := h.Rooms.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	room.Normalize()
	return c.JSON(http.StatusOK, room)
}

// SearchRooms filters rooms across hostels.
// Query: city, max_price (cents), amenity, available_only, page, page_size.
func (h *PublicHandler) SearchRooms(c echo.Context) error {
	q := repository.RoomSearchQuery{
		City:     strings.TrimSpace(c.QueryParam("city")),
		Amenity:  strings.ToLower(strings.TrimSpace(c.QueryParam("amenity"))),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if v := c.QueryParam("max_price"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return writeError(c, invalid("max_price must be a non-negative integer"))
		}
		q.MaxPriceCents = uint32(n)
	}
	if v := c.QueryParam("available_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return writeError(c, invalid("available_only must be a boolean"))
		}
		q.AvailableOnly = b
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, total, err := h.Rooms.Search(ctx, q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":     rows,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// ListReviews returns a hostel's reviews and their average rating.
func (h *PublicHandler) ListReviews(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	reviews, avg, err := h.Reviews.ListByHostel(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reviews, "average": avg, "count": len(reviews)})
}
