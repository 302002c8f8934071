package store_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeCases is the behaviour every Store implementation must share.
var storeCases = []struct {
	name string
	run  func(t *testing.T, s store.Store)
}{
	{"RecordOccurrence_CreatesThenFolds", testRecordCreatesThenFolds},
	{"RecordOccurrence_SeverityOnlyEscalates", testSeverityOnlyEscalates},
	{"RecordOccurrence_ScopedPerProject", testGroupsScopedPerProject},
	{"RecordOccurrence_UnknownProject", testRecordUnknownProject},
	{"RecordOccurrence_ConcurrentSameFingerprint", testConcurrentSameFingerprint},
	{"ListErrorGroups_Filters", testListFilters},
	{"ListErrorGroups_PaginationIsConsistent", testListPagination},
	{"UpdateErrorGroup", testUpdateErrorGroup},
	{"DeleteErrorGroup_Cascades", testDeleteCascades},
	{"Comments", testComments},
	{"Notifications", testNotifications},
	{"DashboardStats", testDashboardStats},
	{"Projects", testProjects},
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	for _, tc := range storeCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, newStore(t))
		})
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func seedUser(t *testing.T, s store.Store, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.New(),
		Email:     uuid.NewString()[:8] + "@example.com",
		Name:      "user-" + uuid.NewString()[:4],
		Role:      role,
		CreatedAt: now(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedProject(t *testing.T, s store.Store, owner *models.User) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:           uuid.New(),
		Name:         "project-" + uuid.NewString()[:4],
		OwnerID:      owner.ID,
		APIKeyPrefix: "err_" + uuid.NewString()[:8],
		APIKeyHash:   "hash",
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func upsert(projectID uuid.UUID, fingerprint string, sev models.Severity, at time.Time) store.GroupUpsert {
	return store.GroupUpsert{
		ProjectID:         projectID,
		Fingerprint:       fingerprint,
		NormalizedMessage: "Cannot read property 'X' of undefined",
		ErrorType:         "TypeError",
		Severity:          sev,
		File:              "app.js",
		Line:              45,
		FunctionName:      "handleClick",
		SeenAt:            at,
	}
}

func occurrence(at time.Time) *models.ErrorOccurrence {
	return &models.ErrorOccurrence{
		ID:          uuid.New(),
		FullMessage: "Cannot read property 'foo' of undefined",
		StackTrace:  "at handleClick (app.js:45:3)",
		Metadata:    models.Metadata{models.MetaURL: "https://example.com/checkout"},
		CreatedAt:   at,
	}
}

func record(t *testing.T, s store.Store, up store.GroupUpsert) *models.ErrorGroup {
	t.Helper()
	g, err := s.RecordOccurrence(context.Background(), up, occurrence(up.SeenAt))
	require.NoError(t, err)
	return g
}

func testRecordCreatesThenFolds(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)

	t0 := now()
	first := record(t, s, upsert(project.ID, "fp-1", "", t0))
	assert.Equal(t, 1, first.OccurrenceCount)
	assert.Equal(t, models.StatusUnresolved, first.Status)
	assert.Equal(t, models.SeverityError, first.Severity)

	second := record(t, s, upsert(project.ID, "fp-1", "", t0.Add(5*time.Second)))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.WithinDuration(t, t0, second.FirstSeenAt, time.Millisecond)
	assert.WithinDuration(t, t0.Add(5*time.Second), second.LastSeenAt, time.Millisecond)

	// An out-of-order report never moves lastSeenAt backwards.
	third := record(t, s, upsert(project.ID, "fp-1", "", t0.Add(time.Second)))
	assert.Equal(t, 3, third.OccurrenceCount)
	assert.WithinDuration(t, t0.Add(5*time.Second), third.LastSeenAt, time.Millisecond)

	occs, err := s.ListOccurrences(ctx, first.ID, 10)
	require.NoError(t, err)
	assert.Len(t, occs, 3)
	assert.Equal(t, "https://example.com/checkout", occs[0].Metadata.String(models.MetaURL))

	got, err := s.GetErrorGroup(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Project)
	assert.Equal(t, project.Name, got.Project.Name)
}

func testSeverityOnlyEscalates(t *testing.T, s store.Store) {
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)
	t0 := now()

	g := record(t, s, upsert(project.ID, "fp-sev", models.SeverityWarning, t0))
	assert.Equal(t, models.SeverityWarning, g.Severity)

	g = record(t, s, upsert(project.ID, "fp-sev", models.SeverityCritical, t0))
	assert.Equal(t, models.SeverityCritical, g.Severity)

	g = record(t, s, upsert(project.ID, "fp-sev", models.SeverityInfo, t0))
	assert.Equal(t, models.SeverityCritical, g.Severity)

	g = record(t, s, upsert(project.ID, "fp-sev", "", t0))
	assert.Equal(t, models.SeverityCritical, g.Severity)
	assert.Equal(t, 4, g.OccurrenceCount)
}

func testGroupsScopedPerProject(t *testing.T, s store.Store) {
	owner := seedUser(t, s, models.RoleUser)
	a := seedProject(t, s, owner)
	b := seedProject(t, s, owner)

	ga := record(t, s, upsert(a.ID, "shared", "", now()))
	gb := record(t, s, upsert(b.ID, "shared", "", now()))
	assert.NotEqual(t, ga.ID, gb.ID)
	assert.Equal(t, 1, gb.OccurrenceCount)
}

func testRecordUnknownProject(t *testing.T, s store.Store) {
	_, err := s.RecordOccurrence(context.Background(), upsert(uuid.New(), "fp", "", now()), occurrence(now()))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentSameFingerprint(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)

	const reports = 40
	t0 := now()
	var wg sync.WaitGroup
	errs := make(chan error, reports)
	for i := 0; i < reports; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := t0.Add(time.Duration(i) * time.Millisecond)
			_, err := s.RecordOccurrence(ctx, upsert(project.ID, "race", "", at), occurrence(at))
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
	assert.Equal(t, reports, groups[0].OccurrenceCount)
	// Whichever report takes the key first creates the group.
	last := t0.Add((reports - 1) * time.Millisecond)
	assert.False(t, groups[0].FirstSeenAt.Before(t0))
	assert.False(t, groups[0].FirstSeenAt.After(last))
	assert.False(t, groups[0].FirstSeenAt.After(groups[0].LastSeenAt))
	assert.WithinDuration(t, last, groups[0].LastSeenAt, time.Millisecond)

	occs, err := s.ListOccurrences(ctx, groups[0].ID, 100)
	require.NoError(t, err)
	assert.Len(t, occs, reports)
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, models.RoleUser)
	bob := seedUser(t, s, models.RoleUser)
	pa := seedProject(t, s, alice)
	pb := seedProject(t, s, bob)
	t0 := now()

	crit := upsert(pa.ID, "crit", models.SeverityCritical, t0)
	crit.NormalizedMessage = "Database Timeout after X ms"
	record(t, s, crit)
	old := upsert(pa.ID, "old", "", t0.Add(-48*time.Hour))
	old.File = "worker.py"
	record(t, s, old)
	record(t, s, upsert(pb.ID, "bob", "", t0))

	_, total, err := s.ListErrorGroups(ctx, store.GroupFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	groups, total, err := s.ListErrorGroups(ctx, store.GroupFilter{OwnerID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, g := range groups {
		assert.Equal(t, pa.ID, g.ProjectID)
	}

	_, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Severity: models.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	groups, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Search: "database timeout"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "crit", groups[0].Fingerprint)

	groups, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Search: "WORKER"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "old", groups[0].Fingerprint)

	_, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	_, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Since: t0.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = s.ListErrorGroups(ctx, store.GroupFilter{Status: models.StatusResolved})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func testListPagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)
	t0 := now()

	// Several groups share a lastSeenAt so ordering relies on the tie-breaker.
	for i := 0; i < 7; i++ {
		record(t, s, upsert(project.ID, fmt.Sprintf("fp-%d", i), "", t0.Add(time.Duration(i/3)*time.Second)))
	}

	seen := map[uuid.UUID]bool{}
	var ordered []*models.ErrorGroup
	for page := 1; page <= 3; page++ {
		groups, total, err := s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: project.ID, Page: page, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
		for _, g := range groups {
			assert.False(t, seen[g.ID], "group %s returned twice", g.ID)
			seen[g.ID] = true
			ordered = append(ordered, g)
		}
	}
	assert.Len(t, seen, 7)
	for i := 1; i < len(ordered); i++ {
		assert.False(t, ordered[i].LastSeenAt.After(ordered[i-1].LastSeenAt))
	}

	groups, total, err := s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: project.ID, Page: 9, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Empty(t, groups)

	groups, total, err = s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: project.ID, Page: math.MaxInt, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Empty(t, groups)
}

func testUpdateErrorGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	assignee := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)
	g := record(t, s, upsert(project.ID, "upd", "", now()))

	resolved := models.StatusResolved
	updated, prev, err := s.UpdateErrorGroup(ctx, g.ID, store.GroupPatch{Status: &resolved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnresolved, prev)
	assert.Equal(t, models.StatusResolved, updated.Status)
	assert.Nil(t, updated.AssignedToID)

	updated, prev, err = s.UpdateErrorGroup(ctx, g.ID, store.GroupPatch{SetAssignee: true, AssignedToID: &assignee.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, prev)
	assert.Equal(t, models.StatusResolved, updated.Status)
	require.NotNil(t, updated.AssignedToID)
	assert.Equal(t, assignee.ID, *updated.AssignedToID)

	updated, _, err = s.UpdateErrorGroup(ctx, g.ID, store.GroupPatch{SetAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedToID)

	// Recording into a resolved group keeps its status.
	again := record(t, s, upsert(project.ID, "upd", "", now()))
	assert.Equal(t, models.StatusResolved, again.Status)

	_, _, err = s.UpdateErrorGroup(ctx, uuid.New(), store.GroupPatch{Status: &resolved})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)
	g := record(t, s, upsert(project.ID, "del", "", now()))
	require.NoError(t, s.CreateComment(ctx, &models.ErrorComment{
		ID: uuid.New(), ErrorGroupID: g.ID, AuthorID: owner.ID, Content: "looking", CreatedAt: now(),
	}))

	require.NoError(t, s.DeleteErrorGroup(ctx, g.ID))

	_, err := s.GetErrorGroup(ctx, g.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	occs, err := s.ListOccurrences(ctx, g.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, occs)
	comments, err := s.ListComments(ctx, g.ID, true)
	require.NoError(t, err)
	assert.Empty(t, comments)

	assert.ErrorIs(t, s.DeleteErrorGroup(ctx, g.ID), store.ErrNotFound)

	// The fingerprint starts a fresh group afterwards.
	fresh := record(t, s, upsert(project.ID, "del", "", now()))
	assert.NotEqual(t, g.ID, fresh.ID)
	assert.Equal(t, 1, fresh.OccurrenceCount)
}

func testComments(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := seedUser(t, s, models.RoleUser)
	project := seedProject(t, s, owner)
	g := record(t, s, upsert(project.ID, "cmt", "", now()))
	t0 := now()

	for i, internal := range []bool{false, true, false} {
		require.NoError(t, s.CreateComment(ctx, &models.ErrorComment{
			ID:           uuid.New(),
			ErrorGroupID: g.ID,
			AuthorID:     owner.ID,
			Content:      fmt.Sprintf("comment %d", i),
			IsInternal:   internal,
			CreatedAt:    t0.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.ListComments(ctx, g.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "comment 0", all[0].Content)
	assert.Equal(t, "comment 2", all[2].Content)

	public, err := s.ListComments(ctx, g.ID, false)
	require.NoError(t, err)
	require.Len(t, public, 2)
	for _, c := range public {
		assert.False(t, c.IsInternal)
	}

	err = s.CreateComment(ctx, &models.ErrorComment{
		ID: uuid.New(), ErrorGroupID: uuid.New(), AuthorID: owner.ID, Content: "orphan", CreatedAt: t0,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, models.RoleUser)
	bob := seedUser(t, s, models.RoleUser)
	t0 := now()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n := &models.Notification{
			ID:        uuid.New(),
			UserID:    alice.ID,
			Type:      models.NotificationStatusChanged,
			Message:   fmt.Sprintf("message %d", i),
			ActorID:   &bob.ID,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.CreateNotification(ctx, n))
		ids = append(ids, n.ID)
	}

	list, err := s.ListNotifications(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "message 2", list[0].Message)

	unread, err := s.CountUnreadNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, ids[0], bob.ID), store.ErrNotFound)
	require.NoError(t, s.MarkNotificationRead(ctx, ids[0], alice.ID))

	list, err = s.ListNotifications(ctx, alice.ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.MarkAllNotificationsRead(ctx, alice.ID))
	unread, err = s.CountUnreadNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	list, err = s.ListNotifications(ctx, bob.ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testDashboardStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, models.RoleUser)
	bob := seedUser(t, s, models.RoleUser)
	pa := seedProject(t, s, alice)
	pb := seedProject(t, s, bob)
	t0 := now()

	for i := 0; i < 6; i++ {
		record(t, s, upsert(pa.ID, fmt.Sprintf("a-%d", i), "", t0.Add(time.Duration(i)*time.Second)))
	}
	record(t, s, upsert(pb.ID, "b-0", "", t0.Add(time.Hour)))

	groups, _, err := s.ListErrorGroups(ctx, store.GroupFilter{ProjectID: pa.ID})
	require.NoError(t, err)
	resolved := models.StatusResolved
	ignored := models.StatusIgnored
	_, _, err = s.UpdateErrorGroup(ctx, groups[0].ID, store.GroupPatch{Status: &resolved})
	require.NoError(t, err)
	_, _, err = s.UpdateErrorGroup(ctx, groups[1].ID, store.GroupPatch{Status: &ignored})
	require.NoError(t, err)

	stats, err := s.DashboardStats(ctx, alice.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 4, stats.Unresolved)
	assert.Equal(t, 1, stats.Resolved)
	require.Len(t, stats.Recent, 5)
	assert.Equal(t, "a-5", stats.Recent[0].Fingerprint)
	require.NotNil(t, stats.Recent[0].Project)
	assert.Equal(t, pa.Name, stats.Recent[0].Project.Name)

	all, err := s.DashboardStats(ctx, uuid.Nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 7, all.Total)
	assert.Equal(t, "b-0", all.Recent[0].Fingerprint)
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, models.RoleAdmin)
	p := seedProject(t, s, alice)
	seedProject(t, s, alice)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, "hash", got.APIKeyHash)

	byPrefix, err := s.GetProjectsByKeyPrefix(ctx, p.APIKeyPrefix)
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)
	assert.Equal(t, p.ID, byPrefix[0].ID)

	n, err := s.CountProjects(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	owned, err := s.ListProjects(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	for _, op := range owned {
		assert.Equal(t, alice.ID, op.OwnerID)
	}
	none, err := s.ListProjects(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = s.GetProject(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	u, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	dup := *alice
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateUser(ctx, &dup), store.ErrDuplicateKey)
}
