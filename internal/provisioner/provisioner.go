package provisioner

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// Managers lists every supported manager in detection order
var Managers = []PackageManager{PNPM, Yarn, Bun, NPM}

// Where a detection came from
const (
	SourceField    = "packageManager"
	SourceLockfile = "lockfile"
	SourceDefault  = "default"
)

// lockfiles are checked in this order; the first one present wins.
var lockfiles = []struct {
	name    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PNPM},
	{"yarn.lock", Yarn},
	{"bun.lockb", Bun},
	{"package-lock.json", NPM},
}

// Detection is the outcome of DetectPackageManager
type Detection struct {
	Manager  PackageManager
	Source   string
	LockFile string
}

// DetectPackageManager chooses the manager for a project. An explicit
// packageManager field in package.json wins over lockfile evidence, and npm is
// the default when neither is present.
func DetectPackageManager(projectPath string) Detection {
	if manifest, err := readManifest(projectPath); err == nil {
		if m, ok := ParsePackageManagerField(manifest.PackageManager); ok {
			return Detection{Manager: m, Source: SourceField}
		}
	}

	for _, lf := range lockfiles {
		info, err := os.Stat(filepath.Join(projectPath, lf.name))
		if err == nil && !info.IsDir() {
			return Detection{Manager: lf.manager, Source: SourceLockfile, LockFile: lf.name}
		}
	}

	return Detection{Manager: NPM, Source: SourceDefault}
}

// ParsePackageManagerField extracts the manager name from a value such as
// "pnpm@8.0.0". Unknown names are rejected.
func ParsePackageManagerField(value string) (PackageManager, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	name, _, _ := strings.Cut(value, "@")
	switch m := PackageManager(strings.ToLower(strings.TrimSpace(name))); m {
	case NPM, PNPM, Yarn, Bun:
		return m, true
	}
	return "", false
}

type manifest struct {
	PackageManager string `json:"packageManager"`
}

func readManifest(projectPath string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(projectPath, "package.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// CommandName returns the executable to invoke for a manager on this OS
func CommandName(m PackageManager) string {
	return commandNameFor(runtime.GOOS, m)
}

func commandNameFor(goos string, m PackageManager) string {
	if goos != "windows" {
		return string(m)
	}
	if m == Bun {
		return "bun.exe"
	}
	return string(m) + ".cmd"
}

// InstallCommand returns the install command line for a manager
func InstallCommand(m PackageManager) []string {
	return []string{CommandName(m), "install"}
}

// HasDependencies reports whether node_modules already exists
func HasDependencies(projectPath string) bool {
	info, err := os.Stat(filepath.Join(projectPath, "node_modules"))
	return err == nil && info.IsDir()
}

// CheckResult represents the result of checking package manager availability
type CheckResult struct {
	Manager     PackageManager
	IsAvailable bool
	Version     string
	InstallHint string
}

// CheckManager verifies if a package manager is installed
func CheckManager(m PackageManager) CheckResult {
	result := CheckResult{Manager: m}
	result.IsAvailable, result.Version = checkManagerInstalled(CommandName(m))
	if !result.IsAvailable {
		result.InstallHint = getInstallHint(m)
	}
	return result
}

// checkManagerInstalled checks if a package manager is installed and returns its version
func checkManagerInstalled(command string) (bool, string) {
	cmd := exec.Command(command, "--version")
	output, err := cmd.Output()
	if err != nil {
		return false, ""
	}
	return true, strings.TrimSpace(string(output))
}

// getInstallHint returns the installation hint for a package manager
func getInstallHint(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "Please run 'corepack enable pnpm' to continue."
	case Yarn:
		return "Please run 'corepack enable yarn' to continue."
	case Bun:
		return "Please install bun from https://bun.sh or run 'curl -fsSL https://bun.sh/install | bash'"
	case NPM:
		return "Please install Node.js from https://nodejs.org"
	default:
		return ""
	}
}

// GetManagerName returns a user-friendly name for the package manager
func GetManagerName(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "pnpm"
	case Yarn:
		return "Yarn"
	case Bun:
		return "Bun"
	case NPM:
		return "npm"
	default:
		return string(manager)
	}
}
