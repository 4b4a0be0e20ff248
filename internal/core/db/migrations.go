package db

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/solatis/weaver/migrations"
)

// ErrPendingMigrations indicates a journal that "weaver migrate" has not
// brought up to date.
var ErrPendingMigrations = errors.New("journal migrations pending")

// MigrationStatus is one embedded migration and whether it was applied.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// dialect covers what differs between the two drivers: where the
// migration files live, the bookkeeping table and how applied_at is stored.
type dialect struct {
	dir         string
	files       fs.FS
	createTable string
	appliedAt   func(time.Time) interface{}
}

var dialects = map[string]dialect{
	"sqlite3": {
		dir:   "sqlite",
		files: embeddedmigrations.SqliteMigrations,
		createTable: `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL,
			CHECK (applied_at LIKE '____-__-__T__:__:__Z')
		)`,
		appliedAt: func(t time.Time) interface{} { return t.Format(time.RFC3339) },
	},
	"postgres": {
		dir:   "postgres",
		files: embeddedmigrations.PostgresMigrations,
		createTable: `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
			execution_ms INTEGER NOT NULL
		)`,
		appliedAt: func(t time.Time) interface{} { return t },
	},
}

// MigrateUp applies every pending migration, each in its own transaction
// together with its bookkeeping row. Applied migrations whose embedded file
// changed abort the run.
func MigrateUp(db *sqlx.DB) error {
	d, migrations, err := load(db)
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}
	if err := verifyChecksums(migrations, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := apply(db, d, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
	}
	return nil
}

// MigrateStatus lists the embedded migrations in order with their state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	_, migrations, err := load(db)
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return statuses, nil
}

// RequireCurrent fails with ErrPendingMigrations unless every embedded
// migration was applied.
func RequireCurrent(db *sqlx.DB) error {
	statuses, err := MigrateStatus(db)
	if err != nil {
		return err
	}
	var pending []string
	for _, s := range statuses {
		if !s.Applied {
			pending = append(pending, s.ID)
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: %s (run 'weaver migrate' first)", ErrPendingMigrations, strings.Join(pending, ", "))
	}
	return nil
}

// load picks the driver's dialect, creates the bookkeeping table and reads
// the embedded files sorted by name.
func load(db *sqlx.DB) (dialect, []migration, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return dialect{}, nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	if _, err := db.Exec(d.createTable); err != nil {
		return dialect{}, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var migrations []migration
	err := fs.WalkDir(d.files, d.dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() || path.Ext(p) != ".sql" {
			return err
		}
		content, err := fs.ReadFile(d.files, p)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{ID: path.Base(p), Checksum: hex.EncodeToString(sum[:]), SQL: string(content)})
		return nil
	})
	if err != nil {
		return dialect{}, nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return d, migrations, nil
}

func appliedMigrations(db *sqlx.DB) (map[string]MigrationStatus, error) {
	rows, err := db.Queryx("SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		s := MigrationStatus{Applied: true}
		var at interface{}
		if err := rows.Scan(&s.ID, &s.Checksum, &at, &s.ExecutionMs); err != nil {
			return nil, err
		}
		s.AppliedAt = parseAppliedAt(at)
		applied[s.ID] = s
	}
	return applied, rows.Err()
}

func verifyChecksums(migrations []migration, applied map[string]MigrationStatus) error {
	embedded := make(map[string]string, len(migrations))
	for _, m := range migrations {
		embedded[m.ID] = m.Checksum
	}
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got := applied[id].Checksum; got != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, got)
		}
	}
	return nil
}

func apply(db *sqlx.DB, d dialect, m migration) error {
	start := time.Now()
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	record := tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)")
	if _, err := tx.Exec(record, m.ID, m.Checksum, d.appliedAt(time.Now().UTC()), time.Since(start).Milliseconds()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// parseAppliedAt reads applied_at as stored by either driver: a timestamp
// on PostgreSQL, RFC 3339 text on SQLite.
func parseAppliedAt(v interface{}) *time.Time {
	var text string
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return nil
	}
	return &parsed
}

// splitStatements drops comment lines and splits on semicolons; lib/pq runs
// one statement per Exec.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
