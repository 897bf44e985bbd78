package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/handler"
	"github.com/iliyamo/student-hostel-booking/internal/middleware"
	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// RegisterStudent registers student-scoped endpoints under /v1.  All routes
// require a valid JWT and the STUDENT role.  bookingLimit guards the calls
// that contend for beds and start checkouts.
func RegisterStudent(e *echo.Echo, h *handler.StudentHandler, p *handler.PaymentHandler, jwtSecret string, bookingLimit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStudent),
	)
	g.POST("/rooms/:id/hold", h.HoldRoom, bookingLimit)
	g.POST("/bookings", h.Book, bookingLimit)
	g.GET("/my-bookings", h.MyBookings)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)

	g.POST("/bookings/:id/checkout", p.Checkout, bookingLimit)
	g.POST("/payments/verify", p.Verify)

	g.POST("/hostels/:id/reviews", h.CreateReview)
}
