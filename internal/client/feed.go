package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/realtime"
)

// WSFeed reads a hostel's change events from the server's WebSocket
// endpoint.
type WSFeed struct {
	BaseURL string
	Dialer  *websocket.Dialer
	Log     *logrus.Entry
}

// NewWSFeed accepts an http(s) or ws(s) base URL.
func NewWSFeed(baseURL string, log *logrus.Entry) *WSFeed {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSFeed{BaseURL: u, Dialer: websocket.DefaultDialer, Log: log.WithField("component", "change-feed")}
}

// Subscribe dials the feed for hostelID.  The events channel is closed
// when unsubscribe is called or the server ends the stream.
func (f *WSFeed) Subscribe(ctx context.Context, hostelID uint64) (<-chan realtime.ChangeEvent, func(), error) {
	url := fmt.Sprintf("%s/v1/hostels/%d/changes", f.BaseURL, hostelID)
	conn, resp, err := f.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil, fmt.Errorf("hostel %d: %w", hostelID, apiError(resp.StatusCode, nil))
		}
		return nil, nil, fmt.Errorf("dial change feed: %w", err)
	}

	out := make(chan realtime.ChangeEvent)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = conn.Close()
		})
	}

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
				default:
					f.Log.WithError(err).WithField("hostel_id", hostelID).Info("change feed closed")
				}
				return
			}
			var ev realtime.ChangeEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				f.Log.WithError(err).Warn("undecodable change event")
				continue
			}
			select {
			case out <- ev:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, unsubscribe, nil
}
