package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestBookingEventIsSanitised(t *testing.T) {
	ref := "cs_secret"
	exp := time.Now().Add(time.Hour)
	ev, err := BookingEvent(TypeInsert, model.Booking{
		ID: 9, RoomID: 3, HostelID: 2, StudentID: 5, Status: model.StatusOnHold,
		AmountCents: 50000, PaymentRef: &ref, HoldExpiresAt: &exp,
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TableBookings, ev.Table)
	assert.Equal(t, uint64(2), ev.HostelID)
	assert.NotEmpty(t, ev.ID)

	var row map[string]any
	require.NoError(t, json.Unmarshal(ev.Row, &row))
	assert.ElementsMatch(t, []string{"id", "room_id", "hostel_id", "student_id", "status"}, keys(row))
}

func TestRoomEventCarriesDerivedAvailability(t *testing.T) {
	ev, err := RoomEvent(TypeUpdate, model.Room{ID: 3, HostelID: 2, Capacity: 1, Occupied: 1, Available: true}, time.Now())
	require.NoError(t, err)
	var row model.Room
	require.NoError(t, json.Unmarshal(ev.Row, &row))
	assert.False(t, row.Available)
}

func TestHubFanOutAndSlowSubscriberDropped(t *testing.T) {
	hub := NewHub(1)
	fast := hub.Subscribe(2)
	slow := hub.Subscribe(2)
	other := hub.Subscribe(3)
	assert.Equal(t, 2, hub.Subscribers(2))

	hub.Broadcast(2, []byte("a"))
	assert.Equal(t, []byte("a"), <-fast.C)

	hub.Broadcast(2, []byte("b"))
	assert.Equal(t, []byte("b"), <-fast.C)

	// slow never read "a", so "b" overflowed its buffer
	assert.Equal(t, []byte("a"), <-slow.C)
	_, open := <-slow.C
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers(2))

	select {
	case <-other.C:
		t.Fatal("event leaked to another hostel")
	default:
	}

	hub.Unsubscribe(fast)
	hub.Unsubscribe(fast)
	assert.Equal(t, 0, hub.Subscribers(2))
}

func TestBrokerPublishUsesHostelChannel(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.CustomMatch(func(expected, actual []interface{}) error {
		if len(actual) != 3 || actual[0] != "publish" || actual[1] != "hostel:2:changes" {
			return fmt.Errorf("unexpected command %v", actual)
		}
		return nil
	}).ExpectPublish("hostel:2:changes", nil).SetVal(1)

	ev, err := RoomEvent(TypeUpdate, model.Room{ID: 3, HostelID: 2, Capacity: 2}, time.Now())
	require.NoError(t, err)
	require.NoError(t, NewBroker(rdb, testLog()).Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHostelFromChannel(t *testing.T) {
	id, ok := hostelFromChannel("hostel:42:changes")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)
	_, ok = hostelFromChannel("hostel:x:changes")
	assert.False(t, ok)
	_, ok = hostelFromChannel("rl:1")
	assert.False(t, ok)
}

func TestRelayWritesEventsToSocket(t *testing.T) {
	hub := NewHub(8)
	upgrader := websocket.Upgrader{}
	subscribed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := hub.Subscribe(2)
		close(subscribed)
		Relay(conn, hub, sub, testLog())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	<-subscribed

	ev, err := RoomEvent(TypeUpdate, model.Room{ID: 3, HostelID: 2, Capacity: 2, Occupied: 1}, time.Now())
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got ChangeEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, TableRooms, got.Table)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
