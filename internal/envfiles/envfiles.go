package envfiles

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/harshul/octo-preview/internal/ports"
)

// OverrideFiles are scanned for port and URL hints, most specific first.
var OverrideFiles = []string{".env.local", ".env"}

// SanitizedFiles may not pin NODE_ENV; the dev server always runs in
// development mode.
var SanitizedFiles = []string{
	".env",
	".env.local",
	".env.development",
	".env.development.local",
	".env.test",
	".env.production",
}

// Keys the override scan looks at
const (
	KeyPort    = "PORT"
	KeyWebPort = "WEB_PORT"
	KeyAppURL  = "NEXT_PUBLIC_APP_URL"
)

// Overrides are the port and URL a project asks for in its env files.
// They are advisory: the caller still validates them against its range.
type Overrides struct {
	Port int
	URL  string
}

// CollectOverrides scans the project's env files for PORT, WEB_PORT and
// NEXT_PUBLIC_APP_URL. The first valid port wins; within a file the last
// URL wins. A URL without a port entry still yields its :port. Missing or
// unreadable files are skipped.
func CollectOverrides(root string) Overrides {
	var out Overrides

	for _, name := range OverrideFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}

		var candidateURL string
		for _, raw := range strings.Split(string(data), "\n") {
			key, value, ok := parseLine(raw)
			if !ok {
				continue
			}
			if out.Port == 0 && (key == KeyPort || key == KeyWebPort) {
				out.Port = ports.ParsePort(value)
			}
			if out.URL == "" && key == KeyAppURL && value != "" {
				candidateURL = value
			}
		}

		if out.URL == "" && candidateURL != "" {
			out.URL = candidateURL
		}
		if out.Port == 0 && out.URL != "" {
			out.Port = URLPort(out.URL)
		}
		if out.Port != 0 && out.URL != "" {
			break
		}
	}

	return out
}

// parseLine parses a single KEY=VALUE line. Blank lines, comments and lines
// godotenv rejects are reported as !ok.
func parseLine(raw string) (key, value string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
		return "", "", false
	}
	parsed, err := godotenv.Unmarshal(line)
	if err != nil || len(parsed) != 1 {
		return "", "", false
	}
	for k, v := range parsed {
		key, value = k, strings.TrimSpace(v)
	}
	return key, value, true
}

// URLPort returns the explicit port of an absolute URL, or 0.
func URLPort(raw string) int {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return 0
	}
	return ports.ParsePort(u.Port())
}

// ValidURL reports whether raw parses as an absolute URL with a host
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

var (
	nodeEnvLine = regexp.MustCompile(`(?m)^[ \t]*NODE_ENV[ \t]*=.*$`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// StripNodeEnv removes NODE_ENV assignments and collapses the blank runs
// left behind.
func StripNodeEnv(content string) string {
	return blankRuns.ReplaceAllString(nodeEnvLine.ReplaceAllString(content, ""), "\n\n")
}

// Sanitize rewrites the project's env files without NODE_ENV. Only files
// whose content changes are written. It returns the names of the rewritten
// files and stops at the first write error.
func Sanitize(root string, logf func(string)) ([]string, error) {
	if logf == nil {
		logf = func(string) {}
	}

	var changed []string
	for _, name := range SanitizedFiles {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		next := StripNodeEnv(string(data))
		if next == string(data) {
			continue
		}

		mode := os.FileMode(0644)
		if info, err := os.Stat(path); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(path, []byte(next), mode); err != nil {
			return changed, err
		}
		changed = append(changed, name)
		logf("Sanitized " + name + ": removed NODE_ENV")
	}
	return changed, nil
}

// ReadEnvFile reads an env file into a map
func ReadEnvFile(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

// Merge returns base with every key in overrides set, replacing existing
// entries in place and appending the rest in sorted order.
func Merge(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			if !seen[key] {
				out = append(out, key+"="+v)
				seen[key] = true
			}
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// Lookup returns the value of key in an environment slice
func Lookup(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
