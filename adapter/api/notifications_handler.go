package api

import (
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/tracklane/internal/app"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/queries"
	"github.com/google/uuid"
)

// NotificationsHandler serves the durable notification inbox.
type NotificationsHandler struct {
	create      *commands.CreateNotificationHandler
	markRead    *commands.MarkReadHandler
	markAllRead *commands.MarkAllReadHandler
	list        *queries.ListNotificationsHandler
	countUnread *queries.CountUnreadHandler
	logger      *slog.Logger
}

// NewNotificationsHandler creates a notifications handler from the container.
func NewNotificationsHandler(c *app.Container, logger *slog.Logger) *NotificationsHandler {
	return &NotificationsHandler{
		create:      c.CreateNotificationHandler,
		markRead:    c.MarkReadHandler,
		markAllRead: c.MarkAllReadHandler,
		list:        c.ListNotificationsHandler,
		countUnread: c.CountUnreadHandler,
		logger:      logger,
	}
}

type createNotificationRequest struct {
	RecipientID  uuid.UUID  `json:"recipient_id"`
	Type         string     `json:"type"`
	ResourceType string     `json:"resource_type"`
	ResourceID   *uuid.UUID `json:"resource_id,omitempty"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	Message      string     `json:"message"`
}

// Create handles POST /api/v1/notifications. The caller is the sender.
func (h *NotificationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sender := userIDFrom(r)
	result, err := h.create.Handle(r.Context(), commands.CreateNotificationCommand{
		RecipientID:  req.RecipientID,
		SenderID:     &sender,
		Type:         req.Type,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		ProjectID:    req.ProjectID,
		Message:      req.Message,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Payload)
}

// List handles GET /api/v1/notifications?unread=true&limit=20
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.list.Handle(r.Context(), queries.ListNotificationsQuery{
		UserID:     userIDFrom(r),
		UnreadOnly: parseBoolParam(r, "unread", false),
		Limit:      parseIntParam(r, "limit", 0),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.countUnread.Handle(r.Context(), queries.CountUnreadQuery{UserID: userIDFrom(r)})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /api/v1/notifications/{notificationID}/read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "notificationID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	err := h.markRead.Handle(r.Context(), commands.MarkReadCommand{NotificationID: id, UserID: userIDFrom(r)})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := h.markAllRead.Handle(r.Context(), commands.MarkAllReadCommand{UserID: userIDFrom(r)})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}
