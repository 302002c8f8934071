package handler

import (
	"net/http"
	"strconv"

	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
)

// NewListNotificationsHandler returns an http.HandlerFunc for GET /api/v1/notifications.
func NewListNotificationsHandler(svc Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		unreadOnly := false
		if v := r.URL.Query().Get("unread_only"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "unread_only must be a boolean", nil)
				return
			}
			unreadOnly = b
		}

		list, err := svc.List(r.Context(), user.ID, unreadOnly)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewUnreadCountHandler returns an http.HandlerFunc for GET /api/v1/notifications/unread-count.
func NewUnreadCountHandler(svc Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		count, err := svc.UnreadCount(r.Context(), user.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]int{"count": count})
	}
}

// NewMarkReadHandler returns an http.HandlerFunc for PATCH /api/v1/notifications/{id}/read.
func NewMarkReadHandler(svc Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := svc.MarkRead(r.Context(), id, user.ID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]string{"message": "Notification marked as read"})
	}
}

// NewMarkAllReadHandler returns an http.HandlerFunc for PATCH /api/v1/notifications/read-all.
func NewMarkAllReadHandler(svc Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		if err := svc.MarkAllRead(r.Context(), user.ID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]string{"message": "All notifications marked as read"})
	}
}
