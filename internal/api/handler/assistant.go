package handler

import (
	"net/http"

	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

type helpRequest struct {
	Message string             `json:"message"`
	Context models.HelpContext `json:"context"`
}

// NewHelpHandler returns an http.HandlerFunc for POST /api/v1/chat/help.
func NewHelpHandler(svc Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req helpRequest
		if !decodeBody(w, r, &req) {
			return
		}

		reply, err := svc.Help(r.Context(), user, req.Message, req.Context)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, reply)
	}
}
