package handler

import (
	"net/http"

	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
)

// NewListCommentsHandler returns an http.HandlerFunc for GET /api/v1/errors/{id}/comments.
func NewListCommentsHandler(groups Triager, svc Discussion) http.HandlerFunc {
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
		if _, err := groups.Visible(r.Context(), id, user); err != nil {
			writeServiceError(w, r, err)
			return
		}

		comments, err := svc.List(r.Context(), id, user.Role)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, comments)
	}
}

type commentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// NewAddCommentHandler returns an http.HandlerFunc for POST /api/v1/errors/{id}/comments.
// Only elevated users may write internal comments; for everyone else the
// flag is ignored.
func NewAddCommentHandler(groups Triager, svc Discussion) http.HandlerFunc {
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

		var req commentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := groups.Visible(r.Context(), id, user); err != nil {
			writeServiceError(w, r, err)
			return
		}

		internal := req.IsInternal && user.Role.IsElevated()
		comment, err := svc.Add(r.Context(), id, user.ID, req.Content, internal)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, comment)
	}
}
