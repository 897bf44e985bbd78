package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/student-hostel-booking/internal/handler"
	"github.com/iliyamo/student-hostel-booking/internal/middleware"
	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the session endpoints.  Register, login, refresh
// and logout need no access token; /v1/me does.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStudent, model.RoleLandlord, model.RoleAdmin))
}

// RegisterPublic registers the unauthenticated browse endpoints, the
// change feed and the payment webhook.  cache fronts only the hostel and
// review listings; room data is served fresh.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, ch *handler.ChangesHandler, pay *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/hostels", p.ListHostels, cache)
	e.GET("/v1/hostels/:id", p.GetHostel, cache)
	e.GET("/v1/hostels/:id/reviews", p.ListReviews, cache)

	e.GET("/v1/hostels/:id/rooms", p.ListRooms)
	e.GET("/v1/rooms/:id", p.GetRoom)
	e.GET("/v1/search/rooms", p.SearchRooms)

	e.GET("/v1/hostels/:id/changes", ch.Subscribe)
	e.POST("/v1/payments/webhook", pay.Webhook)
}

// RegisterSocial registers messaging and notifications for any signed-in
// user.
func RegisterSocial(e *echo.Echo, s *handler.SocialHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStudent, model.RoleLandlord, model.RoleAdmin),
	)
	g.POST("/conversations", s.OpenConversation)
	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:id/messages", s.ListMessages)
	g.POST("/conversations/:id/messages", s.PostMessage)
	g.GET("/notifications", s.ListNotifications)
	g.POST("/notifications/:id/read", s.MarkNotificationRead)
}
