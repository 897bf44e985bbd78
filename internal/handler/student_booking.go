package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
	"github.com/iliyamo/student-hostel-booking/internal/service"
)

// StudentHandler serves the student booking endpoints.
type StudentHandler struct {
	Service  *service.BookingService
	Bookings *repository.BookingRepo
	Reviews  *repository.ReviewRepo
}

type bookReq struct {
	HostelID    uint64 `json:"hostel_id" validate:"required"`
	RoomID      uint64 `json:"room_id" validate:"required"`
	AmountCents uint32 `json:"amount_cents"`
	Term        string `json:"term" validate:"max=32"`
}

// bookResp is the result of the conflict-checked booking call.  It is
// returned for failures too, so a client can always read success.
type bookResp struct {
	Success   bool           `json:"success"`
	BookingID uint64         `json:"booking_id"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Booking   *model.Booking `json:"booking,omitempty"`
}

type reviewReq struct {
	Rating uint8  `json:"rating" validate:"required,min=1,max=5"`
	Body   string `json:"body" validate:"max=2000"`
}

// HoldRoom places an advisory hold on a room for the caller.
func (h *StudentHandler) HoldRoom(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Service.Hold(ctx, uid, roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Book is the conflict-checked booking RPC.
func (h *StudentHandler) Book(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req bookReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Service.Book(ctx, service.BookRequest{
		StudentID:   uid,
		HostelID:    req.HostelID,
		RoomID:      req.RoomID,
		AmountCents: req.AmountCents,
		Term:        strings.TrimSpace(req.Term),
	})
	if err != nil {
		code := model.CodeOf(err)
		status := statusByCode[code]
		msg := err.Error()
		if code == model.CodeBackend {
			c.Set(CtxInternalError, err)
			msg = "internal error"
		}
		return c.JSON(status, bookResp{Success: false, Error: msg, Code: code})
	}
	return c.JSON(http.StatusCreated, bookResp{Success: true, BookingID: b.ID, Booking: &b})
}

// MyBookings lists the caller's bookings.  Holds past their deadline are
// reported as cancelled even before the sweeper has run.
func (h *StudentHandler) MyBookings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Bookings.ListByStudent(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	now := time.Now().UTC()
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// GetBooking returns one of the caller's bookings.
func (h *StudentHandler) GetBooking(c echo.Context) error {
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
	b, err := h.Bookings.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if b.StudentID != uid {
		// do not reveal other students' bookings
		return writeError(c, model.ErrNotFound)
	}
	b.Status = b.EffectiveStatus(time.Now().UTC())
	return c.JSON(http.StatusOK, b)
}

// CancelBooking withdraws a pending or on_hold booking.
func (h *StudentHandler) CancelBooking(c echo.Context) error {
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
	b, err := h.Service.Cancel(ctx, uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// CreateReview records the caller's review of a hostel they stayed at.
func (h *StudentHandler) CreateReview(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	hostelID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req reviewReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	stayed, err := h.Bookings.HasStayed(ctx, uid, hostelID)
	if err != nil {
		return writeError(c, err)
	}
	if !stayed {
		return writeError(c, model.ErrForbidden)
	}
	rv := model.Review{HostelID: hostelID, StudentID: uid, Rating: req.Rating, Body: strings.TrimSpace(req.Body)}
	if err := h.Reviews.Create(ctx, &rv); err != nil {
		if errors.Is(err, repository.ErrReviewExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "review already exists", "code": model.CodeInvalidRequest})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rv)
}
