package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPBackendBook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/bookings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["room_id"] == float64(2) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false, "error": "room no longer available", "code": model.CodeRoomUnavailable,
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true, "booking_id": 55,
			"booking": map[string]any{"id": 55, "room_id": 1, "status": "pending"},
		})
	}))
	defer srv.Close()
	be := NewHTTPBackend(srv.URL + "/")

	b, err := be.Book(context.Background(), "tok", BookRequest{HostelID: 4, RoomID: 1, AmountCents: 100, Term: "fall"})
	require.NoError(t, err)
	assert.Equal(t, uint64(55), b.ID)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, float64(4), got["hostel_id"])
	assert.Equal(t, "fall", got["term"])

	_, err = be.Book(context.Background(), "tok", BookRequest{HostelID: 4, RoomID: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRoomUnavailable)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "room no longer available", apiErr.Error())
}

func TestHTTPBackendErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/rooms/1/hold":
			writeJSON(w, http.StatusConflict, map[string]string{"error": "dup", "code": model.CodeDuplicateBooking})
		case "/v1/bookings/1/checkout":
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "stripe down", "code": model.CodePaymentSession})
		case "/v1/rooms/9":
			// no JSON body; status decides
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	be := NewHTTPBackend(srv.URL)
	ctx := context.Background()

	_, err := be.Hold(ctx, "tok", 1)
	assert.ErrorIs(t, err, model.ErrDuplicateBooking)
	_, err = be.Checkout(ctx, "tok", 1)
	assert.ErrorIs(t, err, model.ErrPaymentSession)
	_, err = be.Room(ctx, 9)
	assert.ErrorIs(t, err, model.ErrAuthenticationRequired)
	_, err = be.Rooms(ctx, 3)
	assert.ErrorIs(t, err, model.ErrBackend)
}

func TestHTTPBackendTransportFailureIsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPBackend(url).Room(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrBackend)
}

func TestHTTPBackendReadsAndVerifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/hostels/3/rooms":
			writeJSON(w, http.StatusOK, map[string]any{"items": []model.Room{
				{ID: 1, HostelID: 3, Capacity: 2, Occupied: 2},
			}})
		case "/v1/payments/verify":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			status := "unpaid"
			if req["session_id"] == "cs_paid" {
				status = "paid"
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": status})
		case "/v1/auth/login":
			writeJSON(w, http.StatusOK, map[string]any{
				"user":    map[string]any{"id": 8, "role": "STUDENT"},
				"access":  map[string]any{"token": "acc"},
				"refresh": map[string]any{"token": "ref"},
			})
		}
	}))
	defer srv.Close()
	be := NewHTTPBackend(srv.URL)
	ctx := context.Background()

	rooms, err := be.Rooms(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, uint32(2), rooms[0].Occupied)

	paid, err := be.Verify(ctx, "tok", "cs_paid", 1)
	require.NoError(t, err)
	assert.True(t, paid)
	paid, err = be.Verify(ctx, "tok", "cs_open", 1)
	require.NoError(t, err)
	assert.False(t, paid)

	s, err := be.Login(ctx, "a@b.c", "password1")
	require.NoError(t, err)
	assert.Equal(t, &Session{UserID: 8, Role: "STUDENT", AccessToken: "acc", RefreshToken: "ref"}, s)
	assert.True(t, s.Authenticated())
}

func TestWSFeedDeliversEvents(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/hostels/4/changes", r.URL.Path)
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ev, _ := realtime.RoomEvent(realtime.TypeUpdate, model.Room{ID: 1, HostelID: 4, Capacity: 2, Occupied: 1}, time.Now())
		b, _ := json.Marshal(ev)
		_ = conn.WriteMessage(websocket.TextMessage, b)
		// hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewWSFeed(srv.URL, quietLog())
	events, unsubscribe, err := feed.Subscribe(context.Background(), 4)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, realtime.TableRooms, ev.Table)
		assert.Equal(t, uint64(4), ev.HostelID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	unsubscribe()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events not closed after unsubscribe")
	}
}
