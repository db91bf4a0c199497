package scaffold

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScaffoldWritesStarterApp(t *testing.T) {
	root := filepath.Join(t.TempDir(), "p1")
	if err := New(nil).Scaffold(context.Background(), root, "p1"); err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}

	for _, rel := range []string{"package.json", "next.config.js", ".gitignore", "app/layout.tsx", "app/page.tsx"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		t.Fatalf("package.json is not valid JSON: %v", err)
	}
	if pkg.Scripts["dev"] != "next dev" {
		t.Errorf("dev script = %q", pkg.Scripts["dev"])
	}
	for _, dep := range []string{"next", "react", "react-dom"} {
		if pkg.Dependencies[dep] == "" {
			t.Errorf("missing dependency %s", dep)
		}
	}

	page, _ := os.ReadFile(filepath.Join(root, "app", "page.tsx"))
	if !strings.Contains(string(page), "Project p1") {
		t.Errorf("page does not mention the project id:\n%s", page)
	}
}

func TestScaffoldKeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	custom := "export default function Home() { return null }\n"
	if err := os.MkdirAll(filepath.Join(root, "app"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app", "page.tsx"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	if err := New(nil).Scaffold(context.Background(), root, "p2"); err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(root, "app", "page.tsx"))
	if string(got) != custom {
		t.Errorf("existing page was overwritten: %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "package.json")); err != nil {
		t.Errorf("package.json should still be created: %v", err)
	}
}

func TestScaffoldHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(nil).Scaffold(ctx, t.TempDir(), "p3"); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"abc", "project-abc"},
		{"My Project", "project-my-project"},
		{"6f1c2b7e-aaaa", "project-6f1c2b7e-aaaa"},
		{"///", "octo-preview-app"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := packageName(tt.id); got != tt.want {
				t.Errorf("packageName(%q) = %q; want %q", tt.id, got, tt.want)
			}
		})
	}
}
