package handler

import (
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/internal/ingest"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

type reportRequest struct {
	ErrorType    string          `json:"error_type"`
	Message      string          `json:"message"`
	StackTrace   string          `json:"stack_trace"`
	Severity     string          `json:"severity"`
	File         string          `json:"file"`
	Line         int             `json:"line"`
	FunctionName string          `json:"function_name"`
	Metadata     models.Metadata `json:"metadata"`

	// camelCase spellings sent by the JavaScript, React and mobile SDKs.
	ErrorTypeCamel    string `json:"errorType"`
	StackTraceCamel   string `json:"stackTrace"`
	FunctionNameCamel string `json:"functionName"`
}

// input resolves both spellings; the snake_case field wins when both are set.
func (req reportRequest) input() ingest.ReportInput {
	return ingest.ReportInput{
		ErrorType:    firstNonEmpty(req.ErrorType, req.ErrorTypeCamel),
		Message:      req.Message,
		StackTrace:   firstNonEmpty(req.StackTrace, req.StackTraceCamel),
		Severity:     req.Severity,
		File:         req.File,
		Line:         req.Line,
		FunctionName: firstNonEmpty(req.FunctionName, req.FunctionNameCamel),
		Metadata:     req.Metadata,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewReportHandler returns an http.HandlerFunc for POST /api/v1/errors/report.
// The project comes from the API key, never from the body.
func NewReportHandler(svc Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := mw.GetProject(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_API_KEY", "Missing project", nil)
			return
		}

		var req reportRequest
		if !decodeBody(w, r, &req) {
			return
		}

		group, err := svc.Report(r.Context(), project.ID, req.input())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, group)
	}
}

type incidentRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	StackTrace  string `json:"stack_trace"`
	Severity    string `json:"severity"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	URL         string `json:"url"`
	UserAgent   string `json:"user_agent"`
	Environment string `json:"environment"`
}

// NewIncidentHandler returns an http.HandlerFunc for POST /api/v1/errors.
// The caller must be able to see the target project and becomes the reporter.
func NewIncidentHandler(svc Reporter, projects Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req incidentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		projectID, err := uuid.Parse(req.ProjectID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a valid UUID", nil)
			return
		}
		if err := projects.CheckProject(r.Context(), projectID, user); err != nil {
			writeServiceError(w, r, err)
			return
		}

		group, err := svc.ReportIncident(r.Context(), ingest.IncidentInput{
			ProjectID:    projectID,
			Title:        req.Title,
			StackTrace:   req.StackTrace,
			Severity:     req.Severity,
			File:         req.File,
			Line:         req.Line,
			URL:          req.URL,
			UserAgent:    req.UserAgent,
			Environment:  req.Environment,
			ReportedByID: user.ID,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, group)
	}
}
