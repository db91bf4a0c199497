package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "octo.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenEnablesWAL(t *testing.T) {
	s := newTestStore(t)
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL mode, got %q", mode)
	}
}

func TestOpenPropagatesDriverError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(driver, dsn string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}

	if _, err := Open(filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected error from injected opener")
	}
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.CreateProject(ctx, CreateParams{Name: "shop", RepoPath: "/srv/shop"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" || p.Status != StatusIdle || p.PreviewURL != nil || p.PreviewPort != nil {
		t.Fatalf("unexpected new project %+v", p)
	}

	url, port := "http://localhost:3100", 3100
	if err := s.UpdatePreview(ctx, p.ID, PreviewUpdate{URL: &url, Port: &port, Status: StatusRunning}); err != nil {
		t.Fatalf("UpdatePreview: %v", err)
	}
	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != StatusRunning || got.PreviewURL == nil || *got.PreviewURL != url || got.PreviewPort == nil || *got.PreviewPort != port {
		t.Errorf("preview not persisted: %+v", got)
	}

	// Clearing keeps the status when none is given
	if err := s.UpdatePreview(ctx, p.ID, PreviewUpdate{}); err != nil {
		t.Fatalf("UpdatePreview clear: %v", err)
	}
	got, _ = s.GetProject(ctx, p.ID)
	if got.PreviewURL != nil || got.PreviewPort != nil || got.Status != StatusRunning {
		t.Errorf("expected cleared preview with running status, got %+v", got)
	}

	if err := s.UpdateStatus(ctx, p.ID, StatusIdle); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = s.GetProject(ctx, p.ID)
	if got.Status != StatusIdle {
		t.Errorf("expected idle, got %s", got.Status)
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMissingProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"get", func() error { _, err := s.GetProject(ctx, "nope"); return err }},
		{"update preview", func() error { return s.UpdatePreview(ctx, "nope", PreviewUpdate{}) }},
		{"update status", func() error { return s.UpdateStatus(ctx, "nope", StatusIdle) }},
		{"delete", func() error { return s.DeleteProject(ctx, "nope") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCreateWithExplicitIDAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateProject(ctx, CreateParams{ID: "alpha"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateProject(ctx, CreateParams{ID: "beta", Name: "Beta"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateProject(ctx, CreateParams{ID: "alpha"}); err == nil {
		t.Errorf("duplicate id should fail")
	}

	list, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(list) != 2 || list[0].ID != "alpha" || list[0].Name != "alpha" || list[1].Name != "Beta" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p, _ := s.CreateProject(ctx, CreateParams{Name: "x"})

	if err := s.UpdateStatus(ctx, p.ID, Status("exploding")); err == nil {
		t.Error("expected invalid status to be rejected")
	}
}
