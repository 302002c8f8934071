package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/ingest"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*store.MemoryStore, *models.Project, *models.User) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	owner := &models.User{ID: uuid.New(), Email: "owner@example.com", Name: "Owner", Role: models.RoleUser}
	require.NoError(t, s.CreateUser(ctx, owner))
	project := &models.Project{ID: uuid.New(), Name: "web", OwnerID: owner.ID, APIKeyPrefix: "err_00000000"}
	require.NoError(t, s.CreateProject(ctx, project))
	return s, project, owner
}

func typeError(msg string) ingest.ReportInput {
	return ingest.ReportInput{
		ErrorType:  "TypeError",
		Message:    msg,
		StackTrace: "at x (app.js:45:3)",
	}
}

func TestReport_ScenarioA_SameErrorTwice(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	first, err := svc.Report(ctx, project.ID, typeError("Cannot read property 'map' of undefined"))
	require.NoError(t, err)
	second, err := svc.Report(ctx, project.ID, typeError("Cannot read property 'map' of undefined"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, "app.js", second.File)
	assert.Equal(t, 45, second.Line)
	assert.Equal(t, "x", second.FunctionName)
	assert.Equal(t, "Cannot read property 'X' of undefined", second.NormalizedMessage)
	assert.Equal(t, models.SeverityError, second.Severity)
	assert.Equal(t, models.StatusUnresolved, second.Status)
}

func TestReport_ScenarioB_SeverityEscalates(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	in := typeError("boom")
	in.Severity = "warning"
	g, err := svc.Report(ctx, project.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, g.Severity)

	in.Severity = "critical"
	g, err = svc.Report(ctx, project.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, g.Severity)
}

func TestReport_NoDowngrade(t *testing.T) {
	s, project, _ := setup(t)
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := t0
	svc := ingest.NewService(s, ingest.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	in := typeError("boom")
	in.Severity = "critical"
	_, err := svc.Report(ctx, project.ID, in)
	require.NoError(t, err)

	for _, sev := range []string{"info", "warning", "", "error"} {
		clock = clock.Add(time.Minute)
		in.Severity = sev
		g, err := svc.Report(ctx, project.ID, in)
		require.NoError(t, err)
		assert.Equal(t, models.SeverityCritical, g.Severity, "after %q", sev)
		assert.Equal(t, t0, g.FirstSeenAt)
		assert.Equal(t, clock, g.LastSeenAt)
	}
}

func TestReport_GroupsVaryingLiterals(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	const n = 12
	var groupID uuid.UUID
	for i := 0; i < n; i++ {
		msg := fmt.Sprintf(`User %d not found in "tenant-%d" after %dms`, i, i*7, i*100)
		g, err := svc.Report(ctx, project.ID, typeError(msg))
		require.NoError(t, err)
		if i == 0 {
			groupID = g.ID
		}
		assert.Equal(t, groupID, g.ID)
	}

	groups, total, err := s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: project.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, n, groups[0].OccurrenceCount)

	occs, err := s.ListOccurrences(ctx, groupID, 100)
	require.NoError(t, err)
	assert.Len(t, occs, n)
}

func TestReport_DistinctContextMeansDistinctGroups(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	a, err := svc.Report(ctx, project.ID, typeError("boom"))
	require.NoError(t, err)

	other := typeError("boom")
	other.FunctionName = "render"
	b, err := svc.Report(ctx, project.ID, other)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	otherType := typeError("boom")
	otherType.ErrorType = "RangeError"
	c, err := svc.Report(ctx, project.ID, otherType)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestReport_ExplicitFieldsOverrideStack(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)

	in := typeError("boom")
	in.File = "checkout.tsx"
	in.Line = 12
	g, err := svc.Report(context.Background(), project.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "checkout.tsx", g.File)
	assert.Equal(t, 12, g.Line)
	assert.Equal(t, "x", g.FunctionName)
}

func TestReport_DefaultsErrorType(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)

	in := typeError("boom")
	in.ErrorType = "  "
	g, err := svc.Report(context.Background(), project.ID, in)
	require.NoError(t, err)
	assert.Equal(t, ingest.DefaultErrorType, g.ErrorType)
}

func TestReport_ConcurrentIdenticalReports(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	const k = 64
	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Report(ctx, project.ID, typeError(fmt.Sprintf("timeout after %d ms", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	groups, total, err := s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: project.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, k, groups[0].OccurrenceCount)
}

func TestReport_Validation(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)

	tests := []struct {
		name string
		in   ingest.ReportInput
		want string
	}{
		{"missing message", ingest.ReportInput{StackTrace: "at x (a.js:1:1)"}, "message is required"},
		{"blank message", ingest.ReportInput{Message: "  ", StackTrace: "at x (a.js:1:1)"}, "message is required"},
		{"missing stack", ingest.ReportInput{Message: "boom"}, "stack trace is required"},
		{"bad severity", ingest.ReportInput{Message: "boom", StackTrace: "s", Severity: "fatal"}, "unknown severity"},
		{"negative line", ingest.ReportInput{Message: "boom", StackTrace: "s", Line: -1}, "line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Report(context.Background(), project.ID, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, total, err := s.ListErrorGroups(context.Background(), store.GroupFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReport_UnknownProject(t *testing.T) {
	s, _, _ := setup(t)
	svc := ingest.NewService(s)

	_, err := svc.Report(context.Background(), uuid.New(), typeError("boom"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Report(context.Background(), uuid.Nil, typeError("boom"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestReportIncident(t *testing.T) {
	s, project, owner := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	in := ingest.IncidentInput{
		ProjectID:    project.ID,
		Title:        "Checkout button does nothing for order 1234",
		StackTrace:   "at submitOrder (https://shop.example.com/static/checkout.js:88:14)",
		Severity:     "critical",
		URL:          "https://shop.example.com/checkout",
		Environment:  "production",
		ReportedByID: owner.ID,
	}
	g, err := svc.ReportIncident(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ingest.DefaultErrorType, g.ErrorType)
	assert.Equal(t, "checkout.js", g.File)
	assert.Equal(t, 88, g.Line)
	assert.Empty(t, g.FunctionName)
	assert.Equal(t, models.SeverityCritical, g.Severity)
	require.NotNil(t, g.ReportedByID)
	assert.Equal(t, owner.ID, *g.ReportedByID)

	occs, err := s.ListOccurrences(ctx, g.ID, 1)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "https://shop.example.com/checkout", occs[0].Metadata.String(models.MetaURL))
	assert.Equal(t, "production", occs[0].Metadata.String(models.MetaEnvironment))
	_, hasUA := occs[0].Metadata[models.MetaUserAgent]
	assert.False(t, hasUA)

	// A second filing with another number folds into the same group.
	in.Title = "Checkout button does nothing for order 99"
	again, err := svc.ReportIncident(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, g.ID, again.ID)
	assert.Equal(t, 2, again.OccurrenceCount)
}

func TestReportIncident_GroupsWithMatchingSDKReport(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)
	ctx := context.Background()

	sdk, err := svc.Report(ctx, project.ID, ingest.ReportInput{
		Message:    "Payment failed",
		StackTrace: "/srv/app/billing.go:42",
	})
	require.NoError(t, err)

	incident, err := svc.ReportIncident(ctx, ingest.IncidentInput{
		ProjectID:  project.ID,
		Title:      "Payment failed",
		StackTrace: "/srv/app/billing.go:42",
	})
	require.NoError(t, err)
	assert.Equal(t, sdk.ID, incident.ID)
}

func TestReportIncident_Validation(t *testing.T) {
	s, project, _ := setup(t)
	svc := ingest.NewService(s)

	_, err := svc.ReportIncident(context.Background(), ingest.IncidentInput{StackTrace: "s", Title: "t"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.ReportIncident(context.Background(), ingest.IncidentInput{ProjectID: project.ID, StackTrace: "s"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

// --- failure paths ---

type stubRecorder struct {
	mu    sync.Mutex
	calls int
	errs  []error
	seen  []context.Context
}

func (r *stubRecorder) RecordOccurrence(ctx context.Context, up store.GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ctx)
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	return &models.ErrorGroup{ID: uuid.New(), ProjectID: up.ProjectID, OccurrenceCount: 1}, nil
}

func TestReport_RetriesConflicts(t *testing.T) {
	rec := &stubRecorder{errs: []error{
		fmt.Errorf("upsert: %w", store.ErrConflict),
		fmt.Errorf("upsert: %w", store.ErrConflict),
	}}
	svc := ingest.NewService(rec)

	g, err := svc.Report(context.Background(), uuid.New(), typeError("boom"))
	require.NoError(t, err)
	assert.NotNil(t, g)
	assert.Equal(t, 3, rec.calls)
}

func TestReport_GivesUpAfterRepeatedConflicts(t *testing.T) {
	conflict := fmt.Errorf("upsert: %w", store.ErrConflict)
	rec := &stubRecorder{errs: []error{conflict, conflict, conflict, conflict}}
	svc := ingest.NewService(rec)

	_, err := svc.Report(context.Background(), uuid.New(), typeError("boom"))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 3, rec.calls)
}

func TestReport_PropagatesStorageFailure(t *testing.T) {
	rec := &stubRecorder{errs: []error{errors.New("connection reset")}}
	svc := ingest.NewService(rec)

	_, err := svc.Report(context.Background(), uuid.New(), typeError("boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, rec.calls)
}

func TestReport_AppliesStoreTimeout(t *testing.T) {
	rec := &stubRecorder{}
	svc := ingest.NewService(rec, ingest.WithStoreTimeout(250*time.Millisecond))

	_, err := svc.Report(context.Background(), uuid.New(), typeError("boom"))
	require.NoError(t, err)
	require.Len(t, rec.seen, 1)
	deadline, ok := rec.seen[0].Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 250*time.Millisecond)
}
