// Package secrets finds environment variables a Next.js project reads from
// process.env but never defines in its env files.
package secrets

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/harshul/octo-preview/internal/envfiles"
)

// EnvVar represents a detected environment variable
type EnvVar struct {
	Name string
	File string // relative to the project root
	Line int
	// Required is set for names that look like credentials
	Required bool
	// Public variables are inlined into the client bundle by Next.js
	Public bool
}

// EnvStatus represents the status of environment variables
type EnvStatus struct {
	Referenced []EnvVar
	Defined    map[string]bool
	Missing    []EnvVar
}

// RequiredMissing returns the missing variables that look like credentials
func (s EnvStatus) RequiredMissing() []EnvVar {
	var out []EnvVar
	for _, v := range s.Missing {
		if v.Required {
			out = append(out, v)
		}
	}
	return out
}

// process.env.NAME or process.env['NAME']
var envPattern = regexp.MustCompile(`process\.env\.([A-Z][A-Z0-9_]*)|process\.env\[['"]([A-Z][A-Z0-9_]*)['"]\]`)

var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
}

var skippedDirs = map[string]bool{
	"node_modules": true, ".git": true, ".next": true, "dist": true, "build": true, "out": true,
}

// Variables the runtime or the preview itself provides
var ignoredEnvVars = map[string]bool{
	"NODE_ENV":            true,
	"PORT":                true,
	"HOST":                true,
	"HOSTNAME":            true,
	"CI":                  true,
	"VERCEL":              true,
	"VERCEL_URL":          true,
	"NEXT_RUNTIME":        true,
	"NEXT_PHASE":          true,
	"NEXT_PUBLIC_APP_URL": true,
}

// DefinitionFiles are read for defined variables. Next.js loads these in
// development.
var DefinitionFiles = []string{
	".env",
	".env.local",
	".env.development",
	".env.development.local",
}

// exampleFiles document variables; a non-empty value counts as a default
var exampleFiles = []string{".env.example", ".env.sample", ".env.template"}

// ScanForEnvVars lists the variables referenced from source files under
// root, one entry per name, sorted by name.
func ScanForEnvVars(root string) ([]EnvVar, error) {
	var envVars []EnvVar
	seen := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}

		fileVars, err := scanFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		for _, v := range fileVars {
			if seen[v.Name] || ignoredEnvVars[v.Name] {
				continue
			}
			seen[v.Name] = true
			v.File = rel
			envVars = append(envVars, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(envVars, func(i, j int) bool {
		return envVars[i].Name < envVars[j].Name
	})
	return envVars, nil
}

func scanFile(path string) ([]EnvVar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var vars []EnvVar
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		for _, match := range envPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			name := match[1]
			if name == "" {
				name = match[2]
			}
			vars = append(vars, EnvVar{
				Name:     name,
				Line:     lineNum,
				Required: isCriticalEnvVar(name),
				Public:   strings.HasPrefix(name, "NEXT_PUBLIC_"),
			})
		}
	}
	return vars, scanner.Err()
}

// isCriticalEnvVar checks if the variable name suggests it's a secret
func isCriticalEnvVar(name string) bool {
	criticalPatterns := []string{
		"API_KEY", "APIKEY", "SECRET", "TOKEN", "PASSWORD", "PASSWD",
		"PRIVATE_KEY", "CREDENTIAL", "ACCESS_KEY", "DATABASE_URL",
	}
	upper := strings.ToUpper(name)
	for _, pattern := range criticalPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// definedVars collects names from the env files plus documented defaults.
// lookup reports variables present in the process environment.
func definedVars(root string, lookup func(string) (string, bool)) func(string) bool {
	defined := make(map[string]bool)
	for _, name := range DefinitionFiles {
		vars, err := envfiles.ReadEnvFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		for k := range vars {
			defined[k] = true
		}
	}
	for _, name := range exampleFiles {
		vars, err := envfiles.ReadEnvFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		for k, v := range vars {
			if v != "" {
				defined[k] = true
			}
		}
	}
	return func(name string) bool {
		if defined[name] {
			return true
		}
		_, ok := lookup(name)
		return ok
	}
}

// CheckEnvStatus reports which referenced variables are defined in the
// project's env files, its example files or the current environment.
func CheckEnvStatus(root string) (EnvStatus, error) {
	return checkEnvStatus(root, os.LookupEnv)
}

func checkEnvStatus(root string, lookup func(string) (string, bool)) (EnvStatus, error) {
	status := EnvStatus{Defined: make(map[string]bool)}

	referenced, err := ScanForEnvVars(root)
	if err != nil {
		return status, err
	}
	status.Referenced = referenced

	isDefined := definedVars(root, lookup)
	for _, v := range referenced {
		if isDefined(v.Name) {
			status.Defined[v.Name] = true
			continue
		}
		status.Missing = append(status.Missing, v)
	}
	return status, nil
}
