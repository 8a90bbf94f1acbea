// Package history keeps an SQLite index of completed tracking sessions so
// past sessions can be listed without scanning the summary files.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grovetools/tracker/internal/tracker"
)

// Entry is one indexed session.
type Entry struct {
	SessionID       string        `json:"sessionId"`
	TaskID          string        `json:"taskId"`
	TaskName        string        `json:"taskName,omitempty"`
	TenantID        string        `json:"tenantId,omitempty"`
	ProjectID       string        `json:"projectId,omitempty"`
	GitRepoPath     string        `json:"gitRepoPath,omitempty"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         time.Time     `json:"endTime"`
	Duration        time.Duration `json:"duration"`
	Screenshots     int           `json:"screenshots"`
	KeyboardEvents  int           `json:"keyboardEvents"`
	MouseEvents     int           `json:"mouseEvents"`
	SummaryPath     string        `json:"summaryPath,omitempty"`
	KeyboardWarning string        `json:"keyboardWarning,omitempty"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	TaskID string
	Since  time.Time
	Limit  int
}

// Store is the session history database.
type Store struct {
	db *sql.DB
}

var _ tracker.SummarySink = (*Store)(nil)

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// sessionsTable keys a run by session, task and start time. A session id is a
// caller-supplied correlation id and may be shared by several tasks.
const sessionsTable = `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		task_name TEXT,
		tenant_id TEXT,
		project_id TEXT,
		git_repo_path TEXT,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		screenshots INTEGER NOT NULL,
		keyboard_events INTEGER NOT NULL,
		mouse_events INTEGER NOT NULL,
		summary_path TEXT,
		keyboard_warning TEXT,
		UNIQUE (session_id, task_id, start_time)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time);
	`

const sessionColumns = `session_id, task_id, task_name, tenant_id, project_id, git_repo_path,
		start_time, end_time, duration_ms, screenshots, keyboard_events,
		mouse_events, summary_path, keyboard_warning`

func (s *Store) migrate() error {
	legacy, err := s.hasLegacyTable()
	if err != nil {
		return err
	}
	if !legacy {
		_, err := s.db.Exec(sessionsTable)
		return err
	}

	// Databases written before runs were keyed by task and start time used
	// session_id as the primary key. Rebuild them in place.
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_sessions_task_id`,
		`DROP INDEX IF EXISTS idx_sessions_end_time`,
		`ALTER TABLE sessions RENAME TO sessions_legacy`,
		sessionsTable,
		`INSERT INTO sessions (` + sessionColumns + `) SELECT ` + sessionColumns + ` FROM sessions_legacy`,
		`DROP TABLE sessions_legacy`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sessions table: %w", err)
		}
	}
	return tx.Commit()
}

// hasLegacyTable reports whether a sessions table exists without the id column.
func (s *Store) hasLegacyTable() (bool, error) {
	rows, err := s.db.Query(`PRAGMA table_info(sessions)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var found, hasID bool
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		found = true
		if name == "id" {
			hasID = true
		}
	}
	return found && !hasID, rows.Err()
}

// Record indexes a stopped session. Recording the same run (session id, task
// and start time) twice replaces the earlier row; other tasks sharing the
// session id keep their own rows.
func (s *Store) Record(ctx context.Context, sum *tracker.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.TaskID, sum.TaskName, sum.TenantID, sum.ProjectID, sum.GitRepoPath,
		sum.StartTime.UnixMilli(), sum.EndTime.UnixMilli(), sum.DurationMs,
		sum.ScreenshotCount, sum.KeyboardEventCount, sum.MouseEventCount,
		sum.SummaryPath, sum.KeyboardWarning,
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sum.SessionID, err)
	}
	return nil
}

// List returns indexed sessions, most recently ended first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT session_id, task_id, task_name, tenant_id, project_id, git_repo_path,
		start_time, end_time, duration_ms, screenshots, keyboard_events, mouse_events,
		summary_path, keyboard_warning
		FROM sessions WHERE 1=1`
	var args []interface{}
	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if !f.Since.IsZero() {
		query += " AND end_time >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	query += " ORDER BY end_time DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                     Entry
			name, tenant, project, repo, path, kw sql.NullString
			start, end, durMs                     int64
		)
		if err := rows.Scan(&e.SessionID, &e.TaskID, &name, &tenant, &project, &repo,
			&start, &end, &durMs, &e.Screenshots, &e.KeyboardEvents, &e.MouseEvents,
			&path, &kw); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.TaskName, e.TenantID, e.ProjectID = name.String, tenant.String, project.String
		e.GitRepoPath, e.SummaryPath, e.KeyboardWarning = repo.String, path.String, kw.String
		e.StartTime = time.UnixMilli(start).UTC()
		e.EndTime = time.UnixMilli(end).UTC()
		e.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// TaskTotal is the accumulated tracked time of one task.
type TaskTotal struct {
	TaskID   string        `json:"taskId"`
	Sessions int           `json:"sessions"`
	Duration time.Duration `json:"duration"`
}

// Totals sums tracked time per task, longest first.
func (s *Store) Totals(ctx context.Context) ([]TaskTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, COUNT(*), SUM(duration_ms)
		FROM sessions GROUP BY task_id ORDER BY SUM(duration_ms) DESC, task_id`)
	if err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}
	defer rows.Close()

	var out []TaskTotal
	for rows.Next() {
		var (
			t  TaskTotal
			ms int64
		)
		if err := rows.Scan(&t.TaskID, &t.Sessions, &ms); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		t.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}
