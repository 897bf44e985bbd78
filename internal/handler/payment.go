package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/service"
)

// maxWebhookBody bounds provider callback payloads.
const maxWebhookBody = 64 << 10

// PaymentHandler serves checkout, verification and provider webhooks.
type PaymentHandler struct {
	Payments *service.PaymentService
}

type verifyReq struct {
	SessionID string `json:"session_id" validate:"required"`
	BookingID uint64 `json:"booking_id" validate:"required"`
}

// Checkout starts a hosted checkout for one of the caller's bookings and
// returns the redirect URL.  The booking's status is not changed.
func (h *PaymentHandler) Checkout(c echo.Context) error {
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
	sess, err := h.Payments.Checkout(ctx, uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sess.ID, "url": sess.URL})
}

// Verify reports whether a checkout was paid, confirming the booking if
// it was.
func (h *PaymentHandler) Verify(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	paid, b, err := h.Payments.Verify(ctx, uid, req.SessionID, req.BookingID)
	if err != nil {
		return writeError(c, err)
	}
	status := "unpaid"
	if paid {
		status = "paid"
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status, "booking": b})
}

// Webhook receives provider callbacks.  It is public; authenticity comes
// from the signature header.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return writeError(c, invalid("unreadable body"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Payments.HandleWebhook(ctx, payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
