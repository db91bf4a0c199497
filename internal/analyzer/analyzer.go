package analyzer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// PackageJSON holds the fields of a project manifest octo cares about.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	PackageManager  string            `json:"packageManager"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Engines         struct {
		Node string `json:"node"`
	} `json:"engines"`
}

// HasScript reports whether the manifest declares a non-empty script
func (p *PackageJSON) HasScript(name string) bool {
	return p != nil && strings.TrimSpace(p.Scripts[name]) != ""
}

// DependsOn reports whether pkg appears in dependencies or devDependencies
func (p *PackageJSON) DependsOn(pkg string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.Dependencies[pkg]; ok {
		return true
	}
	_, ok := p.DevDependencies[pkg]
	return ok
}

// ReadPackageJSON parses dir/package.json
func ReadPackageJSON(dir string) (*PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// HasManifest reports whether dir contains a package.json file
func HasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "package.json"))
	return err == nil && !info.IsDir()
}

var nextConfigFiles = []string{
	"next.config.js",
	"next.config.cjs",
	"next.config.mjs",
	"next.config.ts",
}

var nextSourceDirs = []string{
	"app",
	filepath.Join("src", "app"),
	"pages",
	filepath.Join("src", "pages"),
}

// IsLikelyNextProject fingerprints dir as a Next.js app. Any one of these is
// enough: a next dependency, a script running next dev or next start, a
// next.config file, or an app/pages source directory.
func IsLikelyNextProject(dir string) bool {
	if pkg, err := ReadPackageJSON(dir); err == nil {
		if pkg.DependsOn("next") {
			return true
		}
		for _, script := range pkg.Scripts {
			if strings.Contains(script, "next dev") || strings.Contains(script, "next start") {
				return true
			}
		}
	}

	for _, name := range nextConfigFiles {
		if fileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	for _, name := range nextSourceDirs {
		if dirExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

// ProjectInfo summarises a project root for diagnostics.
type ProjectInfo struct {
	// Root is the absolute project directory
	Root string
	// Name comes from the manifest, or the directory name
	Name string
	// NodeVersion is the engines.node constraint, if declared
	NodeVersion string
	// HasManifest is false for roots that will be scaffolded on start
	HasManifest bool
	// IsNext is true when the root looks like a Next.js app
	IsNext bool
	// DevScript is the raw "dev" script
	DevScript string
	// HasPredev is true when a predev hook runs before the dev server
	HasPredev bool
	// ScriptPort is a port hard-coded into the dev script, or 0
	ScriptPort int
	// HasDependencies is true when node_modules exists
	HasDependencies bool
}

// Analyze inspects a project root without modifying it.
func Analyze(dir string) (ProjectInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ProjectInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ProjectInfo{}, err
	}
	if !info.IsDir() {
		return ProjectInfo{}, os.ErrInvalid
	}

	out := ProjectInfo{
		Root:            abs,
		Name:            filepath.Base(abs),
		HasManifest:     HasManifest(abs),
		IsNext:          IsLikelyNextProject(abs),
		HasDependencies: dirExists(filepath.Join(abs, "node_modules")),
	}

	if pkg, err := ReadPackageJSON(abs); err == nil {
		if pkg.Name != "" {
			out.Name = pkg.Name
		}
		out.NodeVersion = pkg.Engines.Node
		out.DevScript = pkg.Scripts["dev"]
		out.HasPredev = pkg.HasScript("predev")
		out.ScriptPort = DetectScriptPort(out.DevScript)
	}
	return out, nil
}

// Port flags a dev script may hard-code
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--port[=\s]+(\d+)`),
	regexp.MustCompile(`(?:^|\s)-p[=\s]+(\d+)`),
	regexp.MustCompile(`\bPORT=(\d+)`),
}

// DetectScriptPort extracts a port pinned inside a script command, or 0.
// Such a pin fights the port octo passes on the command line.
func DetectScriptPort(script string) int {
	for _, pattern := range portPatterns {
		matches := pattern.FindStringSubmatch(script)
		if len(matches) < 2 {
			continue
		}
		if port, err := strconv.Atoi(matches[1]); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	return 0
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
