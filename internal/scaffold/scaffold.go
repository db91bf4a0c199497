// Package scaffold writes a minimal Next.js app into an empty project
// directory so the dev server has something to serve.
package scaffold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Versions pinned into the generated package.json
const (
	NextVersion  = "14.2.5"
	ReactVersion = "18.3.1"
)

// Scaffolder creates starter files. Existing files are never overwritten.
type Scaffolder struct {
	logger *zap.Logger
}

// New returns a Scaffolder. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Scaffolder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scaffolder{logger: logger}
}

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Files returns the relative paths and contents Scaffold writes for projectID.
func Files(projectID string) (map[string]string, error) {
	pkg := packageJSON{
		Name:    packageName(projectID),
		Version: "0.1.0",
		Private: true,
		Scripts: map[string]string{
			"dev":   "next dev",
			"build": "next build",
			"start": "next start",
		},
		Dependencies: map[string]string{
			"next":      NextVersion,
			"react":     ReactVersion,
			"react-dom": ReactVersion,
		},
	}
	manifest, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"package.json":   string(manifest) + "\n",
		"next.config.js": nextConfig,
		".gitignore":     gitignore,
		"app/layout.tsx": layoutTSX,
		"app/page.tsx":   fmt.Sprintf(pageTSX, projectID),
	}, nil
}

// Scaffold writes the starter app into root, creating it if needed. Files
// that already exist are left as they are.
func (s *Scaffolder) Scaffold(ctx context.Context, root, projectID string) error {
	files, err := Files(projectID)
	if err != nil {
		return fmt.Errorf("scaffold %s: %w", projectID, err)
	}

	var written int
	for rel, content := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("scaffold %s: stat %s: %w", projectID, rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("scaffold %s: %w", projectID, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("scaffold %s: write %s: %w", projectID, rel, err)
		}
		written++
	}

	s.logger.Info("scaffolded next.js app",
		zap.String("project_id", projectID),
		zap.String("path", root),
		zap.Int("files", written))
	return nil
}

// packageName turns an id into a valid npm package name
func packageName(projectID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(projectID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-._")
	if name == "" {
		return "octo-preview-app"
	}
	return "project-" + name
}

const nextConfig = `/** @type {import('next').NextConfig} */
const nextConfig = {
  reactStrictMode: true,
};

module.exports = nextConfig;
`

const gitignore = `node_modules
.next
out
.env*.local
`

const layoutTSX = `export const metadata = {
  title: 'Preview',
  description: 'Generated project preview',
};

export default function RootLayout({ children }: { children: React.ReactNode }) {
  return (
    <html lang="en">
      <body>{children}</body>
    </html>
  );
}
`

const pageTSX = `export default function Home() {
  return (
    <main style={{ fontFamily: 'sans-serif', padding: '4rem', textAlign: 'center' }}>
      <h1>Project %s</h1>
      <p>This app was bootstrapped automatically. Start editing app/page.tsx.</p>
    </main>
  );
}
`
