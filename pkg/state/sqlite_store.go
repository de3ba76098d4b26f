package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/policywarden/warden/pkg/resource"
	"github.com/policywarden/warden/pkg/rule"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. The store is not
// opened until Init is called.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// New opens a store at the given path and runs migrations.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewMemory opens an in-memory store and runs migrations. Used by tests
// and the admission evaluator in stateless invocations.
func NewMemory(ctx context.Context) (*SQLiteStore, error) {
	return New(ctx, ":memory:")
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool. An in-memory database lives and dies
	// with its connection, so it must be pinned to exactly one.
	if s.path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded migration files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// AcquireLock takes the state lock for a scope. It fails fast with
// ErrLockHeld when a live lock exists; there is no queueing.
func (s *SQLiteStore) AcquireLock(ctx context.Context, scope, holder string) (*Lock, error) {
	lock := &Lock{
		ID:        uuid.New().String(),
		Scope:     scope,
		Holder:    holder,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO locks (id, scope, holder, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, lock.ID, lock.Scope, lock.Holder, lock.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		existing, getErr := s.GetLock(ctx, scope)
		if getErr != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, ErrLockHeld)
		}
		return nil, fmt.Errorf("scope %s held by %s (lock %s) since %s: %w",
			scope, existing.Holder, existing.ID, existing.CreatedAt.Format(time.RFC3339), ErrLockHeld)
	}

	return lock, nil
}

// ReleaseLock releases a lock by id.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, lockID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE id = ?`, lockID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lock %s: %w", lockID, ErrLockNotFound)
	}

	return nil
}

// BreakLock force-removes a lock regardless of holder. Manual recovery
// only; breaking a lock under a live apply risks a stale-serial write.
func (s *SQLiteStore) BreakLock(ctx context.Context, lockID string) error {
	return s.ReleaseLock(ctx, lockID)
}

// GetLock returns the live lock for a scope, or ErrLockNotFound.
func (s *SQLiteStore) GetLock(ctx context.Context, scope string) (*Lock, error) {
	query := `SELECT id, scope, holder, created_at FROM locks WHERE scope = ?`

	lock := &Lock{}
	err := s.db.QueryRowContext(ctx, query, scope).Scan(
		&lock.ID,
		&lock.Scope,
		&lock.Holder,
		&lock.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scope %s: %w", scope, ErrLockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	return lock, nil
}

// ReadSnapshot returns the current serial and managed resources for a
// scope. A scope that has never been written reads as serial zero with
// empty resource lists.
func (s *SQLiteStore) ReadSnapshot(ctx context.Context, scope string) (*Snapshot, error) {
	snap := &Snapshot{Scope: scope}

	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT serial, updated_at FROM serials WHERE scope = ?`, scope,
	).Scan(&snap.Serial, &updatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read serial: %w", err)
	}
	if err == nil {
		snap.TakenAt = updatedAt
	}

	defs, err := s.listDefinitions(ctx, scope)
	if err != nil {
		return nil, err
	}
	snap.Definitions = defs

	assigns, err := s.listAssignmentRows(ctx, &scope)
	if err != nil {
		return nil, err
	}
	snap.Assignments = assigns

	return snap, nil
}

// WriteSnapshot replaces the managed resources for the snapshot's scope
// in one transaction. The stored serial must equal expectSerial or the
// write fails with ErrStaleSerial and nothing changes. On success the
// snapshot's serial is the stored serial plus one.
func (s *SQLiteStore) WriteSnapshot(ctx context.Context, snap *Snapshot, expectSerial uint64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO serials (scope, serial, updated_at) VALUES (?, 0, ?) ON CONFLICT(scope) DO NOTHING`,
		snap.Scope, now,
	); err != nil {
		return fmt.Errorf("failed to seed serial row: %w", err)
	}

	var current uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT serial FROM serials WHERE scope = ?`, snap.Scope,
	).Scan(&current); err != nil {
		return fmt.Errorf("failed to read serial: %w", err)
	}
	if current != expectSerial {
		return fmt.Errorf("scope %s at serial %d, expected %d: %w",
			snap.Scope, current, expectSerial, ErrStaleSerial)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE managed_scope = ?`, snap.Scope); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM definitions WHERE managed_scope = ?`, snap.Scope); err != nil {
		return fmt.Errorf("failed to clear definitions: %w", err)
	}

	for i := range snap.Definitions {
		def := &snap.Definitions[i]
		ruleJSON, err := json.Marshal(def.Rule)
		if err != nil {
			return fmt.Errorf("failed to encode rule for definition %s: %w", def.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO definitions (
				id, managed_scope, scope, name, policy_type, mode,
				display_name, description, rule, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, snap.Scope, def.Scope.String(), def.Name,
			string(def.PolicyType), string(def.Mode),
			def.DisplayName, def.Description, string(ruleJSON), now, now,
		); err != nil {
			return fmt.Errorf("failed to write definition %s: %w", def.Name, err)
		}
	}

	for i := range snap.Assignments {
		a := &snap.Assignments[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (
				id, managed_scope, scope, name, display_name,
				definition_ref, definition_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, snap.Scope, a.Scope.String(), a.Name, a.DisplayName,
			a.DefinitionRef, a.DefinitionID, now, now,
		); err != nil {
			return fmt.Errorf("failed to write assignment %s: %w", a.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE serials SET serial = ?, updated_at = ? WHERE scope = ?`,
		expectSerial+1, now, snap.Scope,
	); err != nil {
		return fmt.Errorf("failed to bump serial: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	snap.Serial = expectSerial + 1
	snap.TakenAt = now
	return nil
}

// listDefinitions returns the definitions managed at a scope.
func (s *SQLiteStore) listDefinitions(ctx context.Context, managedScope string) ([]resource.PolicyDefinition, error) {
	query := `
		SELECT id, scope, name, policy_type, mode, display_name, description, rule
		FROM definitions
		WHERE managed_scope = ?
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, managedScope)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	defs := []resource.PolicyDefinition{}
	for rows.Next() {
		var (
			def       resource.PolicyDefinition
			scopeText string
			ruleText  string
		)
		if err := rows.Scan(
			&def.ID, &scopeText, &def.Name,
			(*string)(&def.PolicyType), (*string)(&def.Mode),
			&def.DisplayName, &def.Description, &ruleText,
		); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		scope, err := resource.ParseScope(scopeText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored scope: %w", err)
		}
		def.Scope = scope
		var r rule.Rule
		if err := json.Unmarshal([]byte(ruleText), &r); err != nil {
			return nil, fmt.Errorf("failed to decode stored rule for %s: %w", def.Name, err)
		}
		def.Rule = &r
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

// listAssignmentRows returns assignments, filtered by managed scope when
// one is given.
func (s *SQLiteStore) listAssignmentRows(ctx context.Context, managedScope *string) ([]resource.PolicyAssignment, error) {
	query := `
		SELECT id, scope, name, display_name, definition_ref, definition_id
		FROM assignments
	`
	args := []any{}
	if managedScope != nil {
		query += ` WHERE managed_scope = ?`
		args = append(args, *managedScope)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assigns := []resource.PolicyAssignment{}
	for rows.Next() {
		var (
			a         resource.PolicyAssignment
			scopeText string
		)
		if err := rows.Scan(
			&a.ID, &scopeText, &a.Name, &a.DisplayName,
			&a.DefinitionRef, &a.DefinitionID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		scope, err := resource.ParseScope(scopeText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored scope: %w", err)
		}
		a.Scope = scope
		assigns = append(assigns, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assigns, nil
}

// ListAssignments returns every stored assignment across all managed
// scopes. The admission plane evaluates these against incoming resource
// requests.
func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]resource.PolicyAssignment, error) {
	return s.listAssignmentRows(ctx, nil)
}

// GetDefinition returns a definition by id, regardless of managing scope.
func (s *SQLiteStore) GetDefinition(ctx context.Context, id string) (*resource.PolicyDefinition, error) {
	query := `
		SELECT id, scope, name, policy_type, mode, display_name, description, rule
		FROM definitions
		WHERE id = ?
	`

	var (
		def       resource.PolicyDefinition
		scopeText string
		ruleText  string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&def.ID, &scopeText, &def.Name,
		(*string)(&def.PolicyType), (*string)(&def.Mode),
		&def.DisplayName, &def.Description, &ruleText,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	scope, err := resource.ParseScope(scopeText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored scope: %w", err)
	}
	def.Scope = scope

	var r rule.Rule
	if err := json.Unmarshal([]byte(ruleText), &r); err != nil {
		return nil, fmt.Errorf("failed to decode stored rule for %s: %w", def.Name, err)
	}
	def.Rule = &r

	return &def, nil
}

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, scope, phase, status, started_at, finished_at, error, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Scope,
		run.Phase,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		run.Error,
		run.Changes,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun records a run's terminal status.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string, changes int) error {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?, finished_at = ?, changes = ?
		WHERE id = ?`,
		status, errMsg, now, changes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, scope, phase, status, started_at, finished_at, error, changes
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Scope,
		&run.Phase,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Error,
		&run.Changes,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs newest first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, scope, phase, status, started_at, finished_at, error, changes
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID,
			&run.Scope,
			&run.Phase,
			&run.Status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Error,
			&run.Changes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// AppendEvent appends an event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	query := `
		INSERT INTO events (run_id, level, type, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Level,
		event.Type,
		event.Message,
		event.Details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}

// ListEvents lists events oldest first, optionally filtered by run.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID *string, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, level, type, message, details, timestamp
		FROM events
	`
	args := []any{}
	if runID != nil {
		query += ` WHERE run_id = ?`
		args = append(args, *runID)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(
			&ev.ID,
			&ev.RunID,
			&ev.Level,
			&ev.Type,
			&ev.Message,
			&ev.Details,
			&ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// AppendAudit appends an audit trail entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit (scope, actor, action, resource, outcome, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.Scope,
		entry.Actor,
		entry.Action,
		entry.Resource,
		entry.Outcome,
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}

	return nil
}

// ListAudit lists audit entries newest first, optionally filtered by
// scope.
func (s *SQLiteStore) ListAudit(ctx context.Context, scope *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, scope, actor, action, resource, outcome, details, timestamp
		FROM audit
	`
	args := []any{}
	if scope != nil {
		query += ` WHERE scope = ?`
		args = append(args, *scope)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.Scope,
			&entry.Actor,
			&entry.Action,
			&entry.Resource,
			&entry.Outcome,
			&entry.Details,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// RecordResource upserts an admitted resource into the inventory.
func (s *SQLiteStore) RecordResource(ctx context.Context, rec *ResourceRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO resources (id, scope, type, name, location, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, type, name) DO UPDATE SET
			location = excluded.location,
			properties = excluded.properties
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Scope,
		rec.Type,
		rec.Name,
		rec.Location,
		rec.Properties,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record resource: %w", err)
	}

	return nil
}

// ListResources lists the inventory for a scope.
func (s *SQLiteStore) ListResources(ctx context.Context, scope string) ([]*ResourceRecord, error) {
	query := `
		SELECT id, scope, type, name, location, properties, created_at
		FROM resources
		WHERE scope = ?
		ORDER BY type, name
	`

	rows, err := s.db.QueryContext(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	recs := []*ResourceRecord{}
	for rows.Next() {
		rec := &ResourceRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.Scope,
			&rec.Type,
			&rec.Name,
			&rec.Location,
			&rec.Properties,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	return recs, nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}

	return nil
}
