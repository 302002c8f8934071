package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.Role, user.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- Projects ---

const projectColumns = `id, name, description, owner_id, api_key_prefix, api_key_hash, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.APIKeyPrefix, &p.APIKeyHash,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, project *models.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID, project.Name, project.Description, project.OwnerID, project.APIKeyPrefix,
		project.APIKeyHash, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProjectsByKeyPrefix(ctx context.Context, prefix string) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE api_key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get projects by key prefix: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CountProjects counts projects owned by ownerID, or all projects when ownerID is uuid.Nil.
func (s *PostgresStore) CountProjects(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE $1::uuid IS NULL OR owner_id = $1`, nullableID(ownerID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// ListProjects returns projects owned by ownerID, or all projects when ownerID is uuid.Nil.
func (s *PostgresStore) ListProjects(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE $1::uuid IS NULL OR owner_id = $1 ORDER BY name, id`,
		nullableID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Error groups ---

const groupColumns = `g.id, g.project_id, g.fingerprint, g.normalized_message, g.error_type, g.severity,
	g.status, g.occurrence_count, g.first_seen_at, g.last_seen_at, g.file, g.line, g.function_name,
	g.assigned_to_id, g.reported_by_id, g.created_at, g.updated_at`

const groupWithProjectSelect = `SELECT ` + groupColumns + `,
	p.id, p.name, p.description, p.owner_id, p.api_key_prefix, p.created_at, p.updated_at
	FROM error_groups g JOIN projects p ON p.id = g.project_id`

func groupScanTargets(g *models.ErrorGroup) []any {
	return []any{&g.ID, &g.ProjectID, &g.Fingerprint, &g.NormalizedMessage, &g.ErrorType, &g.Severity,
		&g.Status, &g.OccurrenceCount, &g.FirstSeenAt, &g.LastSeenAt, &g.File, &g.Line, &g.FunctionName,
		&g.AssignedToID, &g.ReportedByID, &g.CreatedAt, &g.UpdatedAt}
}

func scanGroupWithProject(row pgx.Row) (*models.ErrorGroup, error) {
	var g models.ErrorGroup
	var p models.Project
	targets := append(groupScanTargets(&g),
		&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.APIKeyPrefix, &p.CreatedAt, &p.UpdatedAt)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	g.Project = &p
	return &g, nil
}

// RecordOccurrence creates the group for (project, fingerprint) or folds the
// report into the existing one, and appends the occurrence. Both writes commit
// together or not at all.
func (s *PostgresStore) RecordOccurrence(ctx context.Context, up GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record occurrence: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var g models.ErrorGroup
	err = tx.QueryRow(ctx,
		`INSERT INTO error_groups AS g (id, project_id, fingerprint, normalized_message, error_type, severity,
			status, occurrence_count, first_seen_at, last_seen_at, file, line, function_name, reported_by_id,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'unresolved', 1, $7, $7, $8, $9, $10, $11, $7, $7)
		 ON CONFLICT (project_id, fingerprint) DO UPDATE SET
			occurrence_count = g.occurrence_count + 1,
			last_seen_at = GREATEST(g.last_seen_at, EXCLUDED.last_seen_at),
			severity = CASE
				WHEN $12::boolean AND severity_rank(EXCLUDED.severity) > severity_rank(g.severity)
				THEN EXCLUDED.severity ELSE g.severity END,
			updated_at = NOW()
		 RETURNING `+groupColumns,
		uuid.New(), up.ProjectID, up.Fingerprint, up.NormalizedMessage, up.ErrorType, up.InitialSeverity(),
		up.SeenAt, up.File, up.Line, up.FunctionName, up.ReportedByID, up.Severity.Valid(),
	).Scan(groupScanTargets(&g)...)
	if err != nil {
		return nil, mapWriteError("upsert error group", err)
	}

	occ.ErrorGroupID = g.ID
	if occ.Metadata == nil {
		occ.Metadata = models.Metadata{}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO error_occurrences (id, error_group_id, full_message, stack_trace, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		occ.ID, occ.ErrorGroupID, occ.FullMessage, occ.StackTrace, occ.Metadata, occ.CreatedAt)
	if err != nil {
		return nil, mapWriteError("insert occurrence", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError("commit record occurrence", err)
	}
	return &g, nil
}

func (s *PostgresStore) GetErrorGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error) {
	g, err := scanGroupWithProject(s.pool.QueryRow(ctx, groupWithProjectSelect+` WHERE g.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error group: %w", err)
	}
	return g, nil
}

// ListErrorGroups returns one page of matching groups and the total match count,
// both read from the same snapshot.
func (s *PostgresStore) ListErrorGroups(ctx context.Context, filter GroupFilter) ([]*models.ErrorGroup, int, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.ProjectID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("g.project_id = $%d", argIdx))
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.OwnerID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("p.owner_id = $%d", argIdx))
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("g.severity = $%d", argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("g.status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions,
			fmt.Sprintf("(g.normalized_message ILIKE $%d OR g.file ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(search)+"%")
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("g.last_seen_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	_, limit, offset := filter.Pagination()

	var total int
	var groups []*models.ErrorGroup
	err := pgx.BeginTxFunc(ctx, s.pool, readSnapshot, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM error_groups g JOIN projects p ON p.id = g.project_id`+where, args...,
		).Scan(&total); err != nil {
			return fmt.Errorf("count error groups: %w", err)
		}

		query := fmt.Sprintf(`%s%s ORDER BY g.last_seen_at DESC, g.seq ASC LIMIT $%d OFFSET $%d`,
			groupWithProjectSelect, where, argIdx, argIdx+1)
		rows, err := tx.Query(ctx, query, append(args, limit, offset)...)
		if err != nil {
			return fmt.Errorf("list error groups: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			g, err := scanGroupWithProject(rows)
			if err != nil {
				return fmt.Errorf("scan error group: %w", err)
			}
			groups = append(groups, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// UpdateErrorGroup applies patch and returns the updated group together with
// the status it had immediately before the update.
func (s *PostgresStore) UpdateErrorGroup(ctx context.Context, id uuid.UUID, patch GroupPatch) (*models.ErrorGroup, models.Status, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin update error group: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var previous models.Status
	err = tx.QueryRow(ctx, `SELECT status FROM error_groups WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("lock error group: %w", err)
	}

	query := `UPDATE error_groups SET updated_at = NOW()`
	args := []any{id}
	argIdx := 2
	if patch.Status != nil {
		query += fmt.Sprintf(", status = $%d", argIdx)
		args = append(args, *patch.Status)
		argIdx++
	}
	if patch.SetAssignee {
		query += fmt.Sprintf(", assigned_to_id = $%d", argIdx)
		args = append(args, patch.AssignedToID)
	}
	query += " WHERE id = $1"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, "", mapWriteError("update error group", err)
	}

	g, err := scanGroupWithProject(tx.QueryRow(ctx, groupWithProjectSelect+` WHERE g.id = $1`, id))
	if err != nil {
		return nil, "", fmt.Errorf("reload error group: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", mapWriteError("commit update error group", err)
	}
	return g, previous, nil
}

// DeleteErrorGroup removes the group; occurrences, comments and
// notifications go with it.
func (s *PostgresStore) DeleteErrorGroup(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM error_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete error group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOccurrences(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.ErrorOccurrence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, error_group_id, full_message, stack_trace, metadata, created_at
		 FROM error_occurrences WHERE error_group_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var occurrences []*models.ErrorOccurrence
	for rows.Next() {
		var o models.ErrorOccurrence
		if err := rows.Scan(&o.ID, &o.ErrorGroupID, &o.FullMessage, &o.StackTrace, &o.Metadata, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		occurrences = append(occurrences, &o)
	}
	return occurrences, rows.Err()
}

// DashboardStats aggregates over projects owned by ownerID (all projects when
// ownerID is uuid.Nil). Counts and the recent list come from one snapshot.
func (s *PostgresStore) DashboardStats(ctx context.Context, ownerID uuid.UUID, recent int) (*DashboardStats, error) {
	owner := nullableID(ownerID)
	stats := &DashboardStats{}
	err := pgx.BeginTxFunc(ctx, s.pool, readSnapshot, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*),
				COUNT(*) FILTER (WHERE g.status = 'unresolved'),
				COUNT(*) FILTER (WHERE g.status = 'resolved')
			 FROM error_groups g JOIN projects p ON p.id = g.project_id
			 WHERE $1::uuid IS NULL OR p.owner_id = $1`, owner,
		).Scan(&stats.Total, &stats.Unresolved, &stats.Resolved)
		if err != nil {
			return fmt.Errorf("count dashboard groups: %w", err)
		}

		rows, err := tx.Query(ctx, groupWithProjectSelect+`
			WHERE $1::uuid IS NULL OR p.owner_id = $1
			ORDER BY g.last_seen_at DESC, g.seq ASC LIMIT $2`, owner, recent)
		if err != nil {
			return fmt.Errorf("list recent groups: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			g, err := scanGroupWithProject(rows)
			if err != nil {
				return fmt.Errorf("scan recent group: %w", err)
			}
			stats.Recent = append(stats.Recent, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// --- Comments ---

func (s *PostgresStore) CreateComment(ctx context.Context, c *models.ErrorComment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO error_comments (id, error_group_id, author_id, content, is_internal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ErrorGroupID, c.AuthorID, c.Content, c.IsInternal, c.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, groupID uuid.UUID, includeInternal bool) ([]*models.ErrorComment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, error_group_id, author_id, content, is_internal, created_at
		 FROM error_comments WHERE error_group_id = $1 AND ($2 OR NOT is_internal)
		 ORDER BY created_at ASC, id`, groupID, includeInternal)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []*models.ErrorComment{}
	for rows.Next() {
		var c models.ErrorComment
		if err := rows.Scan(&c.ID, &c.ErrorGroupID, &c.AuthorID, &c.Content, &c.IsInternal, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// --- Notifications ---

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, message, read, error_group_id, actor_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Type, n.Message, n.Read, n.ErrorGroupID, n.ActorID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, message, read, error_group_id, actor_id, created_at
		 FROM notifications WHERE user_id = $1 AND (NOT $2 OR NOT read)
		 ORDER BY created_at DESC, id`, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.Read, &n.ErrorGroupID,
			&n.ActorID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// nullableID maps uuid.Nil to SQL NULL.
func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return ErrNotFound
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
