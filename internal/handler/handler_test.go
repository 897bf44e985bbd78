package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/student-hostel-booking/internal/config"
	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/payment"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
	"github.com/iliyamo/student-hostel-booking/internal/service"
	"github.com/iliyamo/student-hostel-booking/internal/utils"
)

var (
	t0          = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	roomCols    = []string{"id", "hostel_id", "name", "room_type", "capacity", "occupied", "price_cents", "deposit_cents", "amenities", "created_at", "updated_at"}
	hostelCols  = []string{"id", "landlord_id", "name", "city", "address", "description", "created_at", "updated_at"}
	bookingCols = []string{"id", "student_id", "room_id", "hostel_id", "status", "payment_status", "amount_cents", "deposit_cents", "term", "hold_expires_at", "bed_claimed", "payment_ref", "created_at", "updated_at"}
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// asUser stands in for JWTAuth in handler tests.
func asUser(id uint64, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", id)
			c.Set("role", role)
			return next(c)
		}
	}
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	return e
}

func newMock(t *testing.T) (sqlmock.Sqlmock, *repository.BookingRepo, func() *service.BookingService) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := config.BookingConfig{HoldTTL: 24 * time.Hour, PendingTTL: 24 * time.Hour, SweepBatch: 10}
	mk := func() *service.BookingService {
		s := service.NewBookingService(db, cfg, nil, nil, quietLog())
		s.SetClock(func() time.Time { return t0 })
		return s
	}
	return mock, repository.NewBookingRepo(db), mk
}

func roomRow(capacity, occupied int) *sqlmock.Rows {
	return sqlmock.NewRows(roomCols).AddRow(3, 2, "A1", "shared", capacity, occupied, 50000, 0, `["wifi"]`, t0, t0)
}

func bookingRows(id, student uint64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(id, student, 3, 2, status, "pending", 50000, 0, "", nil, true, nil, t0, t0)
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWriteErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrAuthenticationRequired, http.StatusUnauthorized, model.CodeAuthenticationRequired},
		{fmt.Errorf("wrap: %w", model.ErrDuplicateBooking), http.StatusConflict, model.CodeDuplicateBooking},
		{model.ErrRoomUnavailable, http.StatusConflict, model.CodeRoomUnavailable},
		{model.ErrPaymentSession, http.StatusBadGateway, model.CodePaymentSession},
		{repository.ErrConflict, http.StatusBadRequest, model.CodeInvalidRequest},
		{repository.ErrNotFound, http.StatusNotFound, model.CodeNotFound},
		{errors.New("dial tcp: refused"), http.StatusInternalServerError, model.CodeBackend},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeError(c, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body["code"])
		if tc.code == model.CodeBackend {
			assert.Equal(t, "internal error", body["error"])
			assert.NotNil(t, c.Get(CtxInternalError))
		}
	}
}

func TestBookRoomUnavailableBody(t *testing.T) {
	mock, repo, mk := newMock(t)
	h := &StudentHandler{Service: mk(), Bookings: repo}
	e := newEcho()
	e.POST("/v1/bookings", h.Book, asUser(1, model.RoleStudent))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WillReturnRows(roomRow(1, 1))
	mock.ExpectQuery(`room_id = \? AND status = 'on_hold'`).WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectQuery(`FROM users WHERE id=\? FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`student_id = \? AND hostel_id = \?`).WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectExec(`occupied = occupied \+ 1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	rec := do(e, http.MethodPost, "/v1/bookings", `{"hostel_id":2,"room_id":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"booking_id":0,"error":"room no longer available","code":"room_unavailable"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookSuccessBody(t *testing.T) {
	mock, repo, mk := newMock(t)
	h := &StudentHandler{Service: mk(), Bookings: repo}
	e := newEcho()
	e.POST("/v1/bookings", h.Book, asUser(1, model.RoleStudent))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WillReturnRows(roomRow(2, 0))
	mock.ExpectQuery(`room_id = \? AND status = 'on_hold'`).WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectQuery(`FROM users WHERE id=\? FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`student_id = \? AND hostel_id = \?`).WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectExec(`occupied = occupied \+ 1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectCommit()

	rec := do(e, http.MethodPost, "/v1/bookings", `{"hostel_id":2,"room_id":3,"term":"2026/27"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body bookResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, uint64(21), body.BookingID)
	require.NotNil(t, body.Booking)
	assert.Equal(t, model.StatusPending, body.Booking.Status)
}

func TestBookValidation(t *testing.T) {
	_, repo, mk := newMock(t)
	h := &StudentHandler{Service: mk(), Bookings: repo}
	e := newEcho()
	e.POST("/v1/bookings", h.Book, asUser(1, model.RoleStudent))

	rec := do(e, http.MethodPost, "/v1/bookings", `{"room_id":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), model.CodeInvalidRequest)

	rec = do(e, http.MethodPost, "/v1/bookings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookingHidesOtherStudents(t *testing.T) {
	mock, repo, mk := newMock(t)
	h := &StudentHandler{Service: mk(), Bookings: repo}
	e := newEcho()
	e.GET("/v1/bookings/:id", h.GetBooking, asUser(9, model.RoleStudent))

	mock.ExpectQuery(`FROM bookings WHERE id = \?`).WithArgs(uint64(21)).WillReturnRows(bookingRows(21, 1, "pending"))
	rec := do(e, http.MethodGet, "/v1/bookings/21", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/v1/bookings/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoomsReportsAvailability(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := &PublicHandler{Hostels: repository.NewHostelRepo(db), Rooms: repository.NewRoomRepo(db)}
	e := newEcho()
	e.GET("/v1/hostels/:id/rooms", h.ListRooms)

	mock.ExpectQuery(`FROM hostels WHERE id = \?`).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows(hostelCols).AddRow(2, 40, "Legon Annex", "Accra", "", nil, t0, t0))
	mock.ExpectQuery(`FROM rooms WHERE hostel_id = \?`).WithArgs(uint64(2)).WillReturnRows(roomRow(1, 1))

	rec := do(e, http.MethodGet, "/v1/hostels/2/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []model.Room `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.False(t, body.Items[0].Available)
	assert.Equal(t, []string{"wifi"}, body.Items[0].Amenities)
}

func TestSearchRoomsRejectsBadFilters(t *testing.T) {
	h := &PublicHandler{}
	e := newEcho()
	e.GET("/v1/search/rooms", h.SearchRooms)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/search/rooms?max_price=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/search/rooms?available_only=maybe", "").Code)
}

func TestLoginWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewAuthHandler(config.Config{JWTSecret: "s", AccessTTLMin: 15, RefreshTTLDays: 7}, repository.NewUserRepo(db), repository.NewTokenRepo(db))
	e := newEcho()
	e.POST("/v1/auth/login", h.Login)

	hash, err := utils.HashPassword("correct-horse", 4)
	require.NoError(t, err)
	mock.ExpectQuery(`FROM users WHERE email=\?`).WithArgs("ama@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "full_name", "is_active", "created_at", "updated_at"}).
			AddRow(1, "ama@example.com", hash, model.RoleStudent, "Ama", true, t0, t0))

	rec := do(e, http.MethodPost, "/v1/auth/login", `{"email":"Ama@Example.com","password":"battery-staple"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), model.CodeAuthenticationRequired)
}

func TestLoginIssuesTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewAuthHandler(config.Config{JWTSecret: "s", AccessTTLMin: 15, RefreshTTLDays: 7}, repository.NewUserRepo(db), repository.NewTokenRepo(db))
	e := newEcho()
	e.POST("/v1/auth/login", h.Login)

	hash, err := utils.HashPassword("correct-horse", 4)
	require.NoError(t, err)
	mock.ExpectQuery(`FROM users WHERE email=\?`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "full_name", "is_active", "created_at", "updated_at"}).
			AddRow(1, "ama@example.com", hash, model.RoleStudent, "Ama", true, t0, t0))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(e, http.MethodPost, "/v1/auth/login", `{"email":"ama@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	claims, err := utils.ParseAccessToken("s", body.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, claims.Role)
	assert.NotEmpty(t, body.Refresh.Token)
}

func TestHostelBookingsRequiresOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := &LandlordHandler{Hostels: repository.NewHostelRepo(db), Bookings: repository.NewBookingRepo(db)}
	e := newEcho()
	e.GET("/v1/hostels/:id/bookings", h.HostelBookings, asUser(41, model.RoleLandlord))

	mock.ExpectQuery(`FROM hostels WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(hostelCols).AddRow(2, 40, "Legon Annex", "Accra", "", nil, t0, t0))
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/hostels/2/bookings", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/hostels/2/bookings?status=lost", "").Code)
}

type stubProvider struct{ event payment.WebhookEvent }

func (stubProvider) CreateCheckoutSession(context.Context, payment.Checkout) (payment.Session, error) {
	return payment.Session{}, errors.New("unused")
}
func (stubProvider) VerifySession(context.Context, string) (payment.Verification, error) {
	return payment.Verification{}, nil
}
func (s stubProvider) ParseWebhook(_ []byte, sig string) (payment.WebhookEvent, error) {
	if sig != "good" {
		return payment.WebhookEvent{}, payment.ErrInvalidWebhook
	}
	return s.event, nil
}

func TestWebhookSignature(t *testing.T) {
	_, _, mk := newMock(t)
	ps := service.NewPaymentService(mk(), stubProvider{event: payment.WebhookEvent{Kind: payment.WebhookIgnored}}, config.PaymentConfig{}, quietLog())
	h := &PaymentHandler{Payments: ps}
	e := newEcho()
	e.POST("/v1/payments/webhook", h.Webhook)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "bad")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "good")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangesFeedRelaysHubEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`FROM hostels WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(hostelCols).AddRow(2, 40, "Legon Annex", "Accra", "", nil, t0, t0))

	hub := realtime.NewHub(8)
	h := NewChangesHandler(hub, repository.NewHostelRepo(db), quietLog())
	e := newEcho()
	e.GET("/v1/hostels/:id/changes", h.Subscribe)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/hostels/2/changes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(2) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev, err := realtime.RoomEvent(realtime.TypeUpdate, model.Room{ID: 3, HostelID: 2, Capacity: 2, Occupied: 1}, t0)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got realtime.ChangeEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, realtime.TableRooms, got.Table)
}
