// Package ingest turns raw error reports into grouped, counted occurrences.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/grouping"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// DefaultErrorType is used when a report does not name its error type.
const DefaultErrorType = "Error"

const (
	variantSDK      = "sdk"
	variantIncident = "incident"

	maxConflictRetries = 3
)

// Recorder persists one report into its error group.
type Recorder interface {
	RecordOccurrence(ctx context.Context, up store.GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error)
}

// ReportInput is an SDK-style report.
type ReportInput struct {
	ErrorType    string
	Message      string
	StackTrace   string
	Severity     string
	File         string
	Line         int
	FunctionName string
	Metadata     models.Metadata
}

// IncidentInput is an error filed by hand from the dashboard.
type IncidentInput struct {
	ProjectID    uuid.UUID
	Title        string
	StackTrace   string
	Severity     string
	File         string
	Line         int
	URL          string
	UserAgent    string
	Environment  string
	ReportedByID uuid.UUID
}

// Service is the error group aggregator.
type Service struct {
	store        Recorder
	storeTimeout time.Duration
	now          func() time.Time
}

type Option func(*Service)

// WithStoreTimeout bounds each persistence call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(r Recorder, opts ...Option) *Service {
	s := &Service{
		store:        r,
		storeTimeout: 5 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report records an SDK report against projectID and returns the group's
// state after the report was applied.
func (s *Service) Report(ctx context.Context, projectID uuid.UUID, in ReportInput) (*models.ErrorGroup, error) {
	if projectID == uuid.Nil {
		return nil, s.reject(variantSDK, fmt.Errorf("%w: project id is required", models.ErrInvalidInput))
	}
	severity, err := validate(in.Message, in.StackTrace, in.Severity, in.Line)
	if err != nil {
		return nil, s.reject(variantSDK, err)
	}

	errorType := strings.TrimSpace(in.ErrorType)
	if errorType == "" {
		errorType = DefaultErrorType
	}
	sc := grouping.ExtractContext(in.StackTrace).Override(in.File, in.Line, in.FunctionName)

	return s.record(ctx, variantSDK, report{
		projectID:  projectID,
		errorType:  errorType,
		message:    in.Message,
		stackTrace: in.StackTrace,
		severity:   severity,
		context:    sc,
		metadata:   in.Metadata,
	})
}

// ReportIncident records a manually filed incident. It groups exactly like
// an SDK report with error type "Error" and no function name.
func (s *Service) ReportIncident(ctx context.Context, in IncidentInput) (*models.ErrorGroup, error) {
	if in.ProjectID == uuid.Nil {
		return nil, s.reject(variantIncident, fmt.Errorf("%w: project id is required", models.ErrInvalidInput))
	}
	severity, err := validate(in.Title, in.StackTrace, in.Severity, in.Line)
	if err != nil {
		return nil, s.reject(variantIncident, err)
	}

	sc := grouping.ExtractContext(in.StackTrace).Override(in.File, in.Line, "")
	sc.FunctionName = ""

	metadata := models.Metadata{}
	for key, v := range map[string]string{
		models.MetaURL:         in.URL,
		models.MetaUserAgent:   in.UserAgent,
		models.MetaEnvironment: in.Environment,
	} {
		if v != "" {
			metadata[key] = v
		}
	}

	r := report{
		projectID:  in.ProjectID,
		errorType:  DefaultErrorType,
		message:    in.Title,
		stackTrace: in.StackTrace,
		severity:   severity,
		context:    sc,
		metadata:   metadata,
	}
	if in.ReportedByID != uuid.Nil {
		id := in.ReportedByID
		r.reportedBy = &id
	}
	return s.record(ctx, variantIncident, r)
}

type report struct {
	projectID  uuid.UUID
	errorType  string
	message    string
	stackTrace string
	severity   models.Severity
	context    grouping.StackContext
	metadata   models.Metadata
	reportedBy *uuid.UUID
}

func (s *Service) record(ctx context.Context, variant string, r report) (*models.ErrorGroup, error) {
	start := time.Now()
	defer func() {
		metrics.ReportDuration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
	}()

	normalized := grouping.NormalizeMessage(r.message)
	fingerprint := grouping.Fingerprint(r.errorType, normalized, r.context.File, r.context.FunctionName)
	now := s.now()

	up := store.GroupUpsert{
		ProjectID:         r.projectID,
		Fingerprint:       fingerprint,
		NormalizedMessage: normalized,
		ErrorType:         r.errorType,
		Severity:          r.severity,
		File:              r.context.File,
		Line:              r.context.Line,
		FunctionName:      r.context.FunctionName,
		ReportedByID:      r.reportedBy,
		SeenAt:            now,
	}
	occ := &models.ErrorOccurrence{
		ID:          uuid.New(),
		FullMessage: r.message,
		StackTrace:  r.stackTrace,
		Metadata:    r.metadata,
		CreatedAt:   now,
	}

	group, err := s.recordWithRetry(ctx, up, occ)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues(variant, metrics.OutcomeFailed).Inc()
		slog.Error("failed to record error report",
			"variant", variant,
			"project_id", r.projectID,
			"fingerprint", fingerprint,
			"error", err,
		)
		return nil, fmt.Errorf("record occurrence: %w", err)
	}

	outcome := metrics.OutcomeGrouped
	if group.OccurrenceCount == 1 {
		outcome = metrics.OutcomeCreated
		metrics.GroupsCreatedTotal.Inc()
	}
	metrics.ReportsTotal.WithLabelValues(variant, outcome).Inc()
	slog.Debug("error report recorded",
		"variant", variant,
		"project_id", r.projectID,
		"group_id", group.ID,
		"occurrences", group.OccurrenceCount,
		"outcome", outcome,
	)
	return group, nil
}

// recordWithRetry retries storage write conflicts; the store resolves
// fingerprint races itself, so a conflict here is a transient collision.
func (s *Service) recordWithRetry(ctx context.Context, up store.GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		group, err := s.recordOnce(ctx, up, occ)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		metrics.WriteConflictsTotal.Inc()
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) recordOnce(ctx context.Context, up store.GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.RecordOccurrence(ctx, up, occ)
}

func (s *Service) reject(variant string, err error) error {
	metrics.ReportsTotal.WithLabelValues(variant, metrics.OutcomeRejected).Inc()
	return err
}

// validate checks required fields and returns the parsed severity, empty
// when none was given.
func validate(message, stackTrace, severity string, line int) (models.Severity, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(stackTrace) == "" {
		return "", fmt.Errorf("%w: stack trace is required", models.ErrInvalidInput)
	}
	if line < 0 {
		return "", fmt.Errorf("%w: line must not be negative", models.ErrInvalidInput)
	}
	if strings.TrimSpace(severity) == "" {
		return "", nil
	}
	sev, err := models.ParseSeverity(severity)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return sev, nil
}
