package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// MemoryStore is an in-process Store used for local development and tests.
//
// Writes touching one error group are serialized by a lock keyed on
// (project, fingerprint); writes to different groups only contend on the
// brief map mutation. Group records are replaced, never mutated, so readers
// holding a pointer never observe a half-applied update.
type MemoryStore struct {
	locks *keyLocks

	mu            sync.RWMutex
	users         map[uuid.UUID]*models.User
	projects      map[uuid.UUID]*models.Project
	groups        map[uuid.UUID]*models.ErrorGroup
	groupIndex    map[string]uuid.UUID
	groupSeq      map[uuid.UUID]int64
	nextSeq       int64
	occurrences   map[uuid.UUID][]*models.ErrorOccurrence
	comments      map[uuid.UUID][]*models.ErrorComment
	notifications []*models.Notification
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:       newKeyLocks(),
		users:       make(map[uuid.UUID]*models.User),
		projects:    make(map[uuid.UUID]*models.Project),
		groups:      make(map[uuid.UUID]*models.ErrorGroup),
		groupIndex:  make(map[string]uuid.UUID),
		groupSeq:    make(map[uuid.UUID]int64),
		occurrences: make(map[uuid.UUID][]*models.ErrorOccurrence),
		comments:    make(map[uuid.UUID][]*models.ErrorComment),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func groupKey(projectID uuid.UUID, fingerprint string) string {
	return projectID.String() + ":" + fingerprint
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateKey
		}
	}
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// --- Projects ---

func (s *MemoryStore) CreateProject(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := s.users[project.OwnerID]; !ok {
		return ErrNotFound
	}
	p := *project
	s.projects[p.ID] = &p
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetProjectsByKeyPrefix(_ context.Context, prefix string) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Project
	for _, p := range s.projects {
		if p.APIKeyPrefix == prefix {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountProjects(_ context.Context, ownerID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.projects {
		if ownerID == uuid.Nil || p.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// ListProjects returns projects owned by ownerID (all when uuid.Nil), by name.
func (s *MemoryStore) ListProjects(_ context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Project{}
	for _, p := range s.projects {
		if ownerID == uuid.Nil || p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// --- Error groups ---

func (s *MemoryStore) RecordOccurrence(ctx context.Context, up GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error) {
	key := groupKey(up.ProjectID, up.Fingerprint)
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, projectExists := s.projects[up.ProjectID]
	var current *models.ErrorGroup
	if id, ok := s.groupIndex[key]; ok {
		current = s.groups[id]
	}
	s.mu.RUnlock()

	if !projectExists {
		return nil, ErrNotFound
	}

	var next models.ErrorGroup
	if current == nil {
		next = models.ErrorGroup{
			ID:                uuid.New(),
			ProjectID:         up.ProjectID,
			Fingerprint:       up.Fingerprint,
			NormalizedMessage: up.NormalizedMessage,
			ErrorType:         up.ErrorType,
			Severity:          up.InitialSeverity(),
			Status:            models.StatusUnresolved,
			OccurrenceCount:   1,
			FirstSeenAt:       up.SeenAt,
			LastSeenAt:        up.SeenAt,
			File:              up.File,
			Line:              up.Line,
			FunctionName:      up.FunctionName,
			ReportedByID:      up.ReportedByID,
			CreatedAt:         up.SeenAt,
			UpdatedAt:         up.SeenAt,
		}
	} else {
		next = *current
		next.Project = nil
		next.OccurrenceCount++
		if up.SeenAt.After(next.LastSeenAt) {
			next.LastSeenAt = up.SeenAt
		}
		next.Severity = models.MaxSeverity(next.Severity, up.Severity)
		next.UpdatedAt = time.Now().UTC()
	}

	o := *occ
	o.ErrorGroupID = next.ID
	if o.Metadata == nil {
		o.Metadata = models.Metadata{}
	}
	occ.ErrorGroupID = next.ID

	s.mu.Lock()
	if current == nil {
		s.nextSeq++
		s.groupSeq[next.ID] = s.nextSeq
		s.groupIndex[key] = next.ID
	}
	s.groups[next.ID] = &next
	s.occurrences[next.ID] = append(s.occurrences[next.ID], &o)
	s.mu.Unlock()

	cp := next
	return &cp, nil
}

func (s *MemoryStore) GetErrorGroup(_ context.Context, id uuid.UUID) (*models.ErrorGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.withProjectLocked(g), nil
}

// withProjectLocked returns a copy of g with its project attached. Caller holds s.mu.
func (s *MemoryStore) withProjectLocked(g *models.ErrorGroup) *models.ErrorGroup {
	cp := *g
	if p, ok := s.projects[g.ProjectID]; ok {
		pc := *p
		cp.Project = &pc
	}
	return &cp
}

func (s *MemoryStore) ListErrorGroups(_ context.Context, filter GroupFilter) ([]*models.ErrorGroup, int, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.ErrorGroup
	for _, g := range s.groups {
		if filter.ProjectID != uuid.Nil && g.ProjectID != filter.ProjectID {
			continue
		}
		if filter.OwnerID != uuid.Nil {
			p, ok := s.projects[g.ProjectID]
			if !ok || p.OwnerID != filter.OwnerID {
				continue
			}
		}
		if filter.Severity != "" && g.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(g.NormalizedMessage), search) &&
			!strings.Contains(strings.ToLower(g.File), search) {
			continue
		}
		if !filter.Since.IsZero() && g.LastSeenAt.Before(filter.Since) {
			continue
		}
		matches = append(matches, g)
	}
	s.sortRecentLocked(matches)

	total := len(matches)
	_, limit, offset := filter.Pagination()
	if offset >= total {
		return []*models.ErrorGroup{}, total, nil
	}
	end := min(offset+limit, total)

	page := make([]*models.ErrorGroup, 0, end-offset)
	for _, g := range matches[offset:end] {
		page = append(page, s.withProjectLocked(g))
	}
	return page, total, nil
}

// sortRecentLocked orders groups most recently seen first, insertion order breaking ties.
func (s *MemoryStore) sortRecentLocked(groups []*models.ErrorGroup) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.After(b.LastSeenAt)
		}
		return s.groupSeq[a.ID] < s.groupSeq[b.ID]
	})
}

func (s *MemoryStore) UpdateErrorGroup(_ context.Context, id uuid.UUID, patch GroupPatch) (*models.ErrorGroup, models.Status, error) {
	s.mu.RLock()
	g, ok := s.groups[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}

	unlock := s.locks.Lock(groupKey(g.ProjectID, g.Fingerprint))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.groups[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	if patch.SetAssignee && patch.AssignedToID != nil {
		if _, ok := s.users[*patch.AssignedToID]; !ok {
			return nil, "", ErrNotFound
		}
	}

	next := *current
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.SetAssignee {
		next.AssignedToID = patch.AssignedToID
	}
	next.UpdatedAt = time.Now().UTC()
	s.groups[id] = &next

	return s.withProjectLocked(&next), current.Status, nil
}

func (s *MemoryStore) DeleteErrorGroup(_ context.Context, id uuid.UUID) error {
	s.mu.RLock()
	g, ok := s.groups[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	key := groupKey(g.ProjectID, g.Fingerprint)
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)
	delete(s.groupIndex, key)
	delete(s.groupSeq, id)
	delete(s.occurrences, id)
	delete(s.comments, id)

	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.ErrorGroupID == nil || *n.ErrorGroupID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

func (s *MemoryStore) ListOccurrences(_ context.Context, groupID uuid.UUID, limit int) ([]*models.ErrorOccurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.occurrences[groupID]
	out := make([]*models.ErrorOccurrence, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DashboardStats(_ context.Context, ownerID uuid.UUID, recent int) (*DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DashboardStats{}
	var owned []*models.ErrorGroup
	for _, g := range s.groups {
		if ownerID != uuid.Nil {
			p, ok := s.projects[g.ProjectID]
			if !ok || p.OwnerID != ownerID {
				continue
			}
		}
		stats.Total++
		switch g.Status {
		case models.StatusUnresolved:
			stats.Unresolved++
		case models.StatusResolved:
			stats.Resolved++
		}
		owned = append(owned, g)
	}
	s.sortRecentLocked(owned)
	for _, g := range owned[:min(recent, len(owned))] {
		stats.Recent = append(stats.Recent, s.withProjectLocked(g))
	}
	return stats, nil
}

// --- Comments ---

func (s *MemoryStore) CreateComment(_ context.Context, c *models.ErrorComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[c.ErrorGroupID]; !ok {
		return ErrNotFound
	}
	cp := *c
	s.comments[c.ErrorGroupID] = append(s.comments[c.ErrorGroupID], &cp)
	return nil
}

func (s *MemoryStore) ListComments(_ context.Context, groupID uuid.UUID, includeInternal bool) ([]*models.ErrorComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.ErrorComment{}
	for _, c := range s.comments[groupID] {
		if c.IsInternal && !includeInternal {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Notifications ---

func (s *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Notification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			cp := *n
			cp.Read = true
			s.notifications[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			cp := *n
			cp.Read = true
			s.notifications[i] = &cp
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)

// keyLocks hands out one mutex per key, dropping it once nobody holds or waits on it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *keyLocks) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
