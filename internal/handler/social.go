package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// SocialHandler serves student-landlord messaging and stored
// notifications.
type SocialHandler struct {
	Conversations *repository.ConversationRepo
	Hostels       *repository.HostelRepo
	Notifications *repository.NotificationRepo
	Log           *logrus.Entry
}

type openConversationReq struct {
	HostelID uint64 `json:"hostel_id" validate:"required"`
}

type messageReq struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// OpenConversation starts (or returns) the caller's conversation with a
// hostel's landlord.  Only students open conversations.
func (h *SocialHandler) OpenConversation(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	if role, _ := c.Get("role").(string); role != model.RoleStudent {
		return writeError(c, model.ErrForbidden)
	}
	var req openConversationReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hs, err := h.Hostels.GetByID(ctx, req.HostelID)
	if err != nil {
		return writeError(c, err)
	}
	conv := model.Conversation{StudentID: uid, LandlordID: hs.LandlordID, HostelID: hs.ID}
	if err := h.Conversations.Open(ctx, &conv); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ListConversations returns the conversations the caller takes part in.
func (h *SocialHandler) ListConversations(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Conversations.ListForUser(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// ListMessages pages forward through a conversation with ?after=<id>.
func (h *SocialHandler) ListMessages(c echo.Context) error {
	conv, _, err := h.participant(c)
	if err != nil {
		return writeError(c, err)
	}
	after := queryInt(c, "after", 0)
	if after < 0 {
		after = 0
	}
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msgs, err := h.Conversations.Messages(ctx, conv.ID, uint64(after), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": msgs})
}

// PostMessage appends a message and leaves a notification for the other
// party.
func (h *SocialHandler) PostMessage(c echo.Context) error {
	conv, uid, err := h.participant(c)
	if err != nil {
		return writeError(c, err)
	}
	var req messageReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return writeError(c, invalid("body is empty"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	msg := model.Message{ConversationID: conv.ID, SenderID: uid, Body: body, CreatedAt: time.Now().UTC()}
	if err := h.Conversations.AddMessage(ctx, &msg); err != nil {
		return writeError(c, err)
	}
	to := conv.LandlordID
	if uid == conv.LandlordID {
		to = conv.StudentID
	}
	note := fmt.Sprintf("New message in conversation #%d", conv.ID)
	if err := h.Notifications.Create(ctx, to, repository.NotifyMessage, note); err != nil {
		h.Log.WithError(err).WithField("conversation_id", conv.ID).Warn("store message notification")
	}
	return c.JSON(http.StatusCreated, msg)
}

// ListNotifications returns the caller's notifications; ?unread=true
// limits to unread ones.
func (h *SocialHandler) ListNotifications(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return writeError(c, err)
	}
	unread := c.QueryParam("unread") == "true" || c.QueryParam("unread") == "1"
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Notifications.ListByUser(ctx, uid, unread, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// MarkNotificationRead marks one of the caller's notifications read.
func (h *SocialHandler) MarkNotificationRead(c echo.Context) error {
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
	if err := h.Notifications.MarkRead(ctx, id, uid, time.Now().UTC()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// participant loads the :id conversation and checks the caller is in it.
func (h *SocialHandler) participant(c echo.Context) (model.Conversation, uint64, error) {
	uid, err := getUserID(c)
	if err != nil {
		return model.Conversation{}, 0, err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return model.Conversation{}, 0, err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.Conversations.Get(ctx, id)
	if err != nil {
		return model.Conversation{}, 0, err
	}
	if conv.StudentID != uid && conv.LandlordID != uid {
		return model.Conversation{}, 0, model.ErrForbidden
	}
	return conv, uid, nil
}
