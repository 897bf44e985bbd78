package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// ChangesHandler upgrades to a WebSocket carrying a hostel's change
// events.
type ChangesHandler struct {
	Hub     *realtime.Hub
	Hostels *repository.HostelRepo
	Log     *logrus.Entry

	Upgrader websocket.Upgrader
}

func NewChangesHandler(hub *realtime.Hub, hostels *repository.HostelRepo, log *logrus.Entry) *ChangesHandler {
	return &ChangesHandler{
		Hub:     hub,
		Hostels: hostels,
		Log:     log.WithField("component", "changes"),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the feed is public and read-only
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Subscribe validates the hostel, upgrades the connection and relays
// events until either side goes away.
func (h *ChangesHandler) Subscribe(c echo.Context) error {
	hostelID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	_, err = h.Hostels.GetByID(ctx, hostelID)
	cancel()
	if err != nil {
		return writeError(c, err)
	}

	conn, err := h.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		return nil
	}
	sub := h.Hub.Subscribe(hostelID)
	log := h.Log.WithField("hostel_id", hostelID)
	log.Debug("change subscriber connected")
	realtime.Relay(conn, h.Hub, sub, log)
	log.Debug("change subscriber gone")
	return nil
}
