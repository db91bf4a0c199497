// Package store persists project records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when a project id has no record
var ErrNotFound = errors.New("project not found")

// Status is the persisted project status
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusStopped, StatusError:
		return true
	}
	return false
}

// Project is a user project and the preview fields the supervisor writes back.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RepoPath    string    `json:"repoPath,omitempty"`
	Status      Status    `json:"status"`
	PreviewURL  *string   `json:"previewUrl"`
	PreviewPort *int      `json:"previewPort"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateParams holds input for a new project
type CreateParams struct {
	// ID is optional; a UUID is generated when empty
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	RepoPath string `json:"repoPath,omitempty"`
}

// PreviewUpdate writes the preview fields. A nil URL or Port is stored as
// NULL. An empty Status leaves the status unchanged.
type PreviewUpdate struct {
	URL    *string
	Port   *int
	Status Status
}

// Store is the SQLite-backed project store
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL mode and runs
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			repo_path    TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'idle',
			preview_url  TEXT,
			preview_port INTEGER,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);
	`)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateProject inserts a project with status idle
func (s *Store) CreateProject(ctx context.Context, p CreateParams) (*Project, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	name := p.Name
	if name == "" {
		name = id
	}

	ts := now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, repo_path, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, p.RepoPath, StatusIdle, ts, ts,
	); err != nil {
		return nil, fmt.Errorf("create project %s: %w", id, err)
	}
	return s.GetProject(ctx, id)
}

const projectColumns = `id, name, repo_path, status, preview_url, preview_port, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var (
		p                    Project
		url                  sql.NullString
		port                 sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &p.Status, &url, &port, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if url.Valid {
		p.PreviewURL = &url.String
	}
	if port.Valid {
		v := int(port.Int64)
		p.PreviewPort = &v
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

// GetProject retrieves a project by id
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns every project, oldest first
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project record. Files on disk are left alone.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return expectRow(res, id)
}

// UpdatePreview writes the preview URL and port, and the status if set
func (s *Store) UpdatePreview(ctx context.Context, id string, u PreviewUpdate) error {
	var url, port any
	if u.URL != nil {
		url = *u.URL
	}
	if u.Port != nil {
		port = *u.Port
	}

	var (
		res sql.Result
		err error
	)
	if u.Status != "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE projects SET preview_url = ?, preview_port = ?, status = ?, updated_at = ? WHERE id = ?`,
			url, port, u.Status, now(), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE projects SET preview_url = ?, preview_port = ?, updated_at = ? WHERE id = ?`,
			url, port, now(), id)
	}
	if err != nil {
		return fmt.Errorf("update preview for %s: %w", id, err)
	}
	return expectRow(res, id)
}

// UpdateStatus sets the project status
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("update status for %s: invalid status %q", id, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", id, err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
