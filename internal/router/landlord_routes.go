package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/handler"
	"github.com/iliyamo/student-hostel-booking/internal/middleware"
	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// RegisterLandlord registers hostel management endpoints.  All routes
// require a valid JWT and the LANDLORD role; ownership of the hostel is
// checked in the service.
func RegisterLandlord(e *echo.Echo, h *handler.LandlordHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleLandlord),
	)
	g.POST("/hostels", h.CreateHostel)
	g.GET("/landlord/hostels", h.MyHostels)
	g.POST("/hostels/:id/rooms", h.CreateRoom)
	g.PATCH("/rooms/:id", h.UpdateRoom)
	g.GET("/hostels/:id/bookings", h.HostelBookings)
	g.POST("/bookings/:id/complete", h.CompleteBooking)
}
