package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root entries that may sit next to a nested project without blocking the
// move up.
var allowedRootFiles = map[string]bool{
	".DS_Store":         true,
	".editorconfig":     true,
	".env":              true,
	".env.development":  true,
	".env.local":        true,
	".env.production":   true,
	".eslintignore":     true,
	".eslintrc":         true,
	".eslintrc.cjs":     true,
	".eslintrc.js":      true,
	".eslintrc.json":    true,
	".gitignore":        true,
	".npmrc":            true,
	".nvmrc":            true,
	".prettierignore":   true,
	".prettierrc":       true,
	".prettierrc.cjs":   true,
	".prettierrc.js":    true,
	".prettierrc.json":  true,
	".prettierrc.yaml":  true,
	".prettierrc.yml":   true,
	"LICENSE":           true,
	"README":            true,
	"README.md":         true,
	"package-lock.json": true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"requirements.txt":  true,
	"yarn.lock":         true,
}

var allowedRootDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	".vscode":      true,
	".github":      true,
	".husky":       true,
	".pnpm-store":  true,
	".turbo":       true,
	".next":        true,
	"node_modules": true,
}

// Root files the nested copy is allowed to replace.
var overwritableRootFiles = map[string]bool{
	".gitignore":       true,
	".eslintignore":    true,
	".env":             true,
	".env.development": true,
	".env.local":       true,
	".env.production":  true,
	".npmrc":           true,
	".nvmrc":           true,
	".prettierignore":  true,
	"README":           true,
	"README.md":        true,
	"README.txt":       true,
}

func isAllowedRootFile(name string) bool {
	return allowedRootFiles[name] || strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".env.")
}

func isAllowedRootDir(name string) bool {
	return allowedRootDirs[name] || strings.HasPrefix(name, ".")
}

func isOverwritableRootFile(name string) bool {
	return overwritableRootFiles[name] || strings.HasPrefix(name, ".env.") || strings.HasSuffix(name, ".md")
}

// MultipleCandidatesError means more than one subdirectory looks like the
// project, so nothing was moved.
type MultipleCandidatesError struct {
	Root       string
	Candidates []string
}

func (e *MultipleCandidatesError) Error() string {
	return fmt.Sprintf("multiple potential Next.js projects detected in %s (%s); move the desired project files to the project root",
		e.Root, strings.Join(e.Candidates, ", "))
}

// AmbiguousStructureError means an unrecognised entry sits next to the
// nested project, so merging the two could lose data.
type AmbiguousStructureError struct {
	Root   string
	Entry  string
	Nested string
	IsDir  bool
}

func (e *AmbiguousStructureError) Error() string {
	kind := "file"
	if e.IsDir {
		kind = "directory"
	}
	return fmt.Sprintf("cannot normalize project structure in %s: %s %q exists alongside %q; move project files to the root manually",
		e.Root, kind, e.Entry, e.Nested)
}

// MoveConflictError means a nested entry would overwrite a root entry that is
// not safe to replace.
type MoveConflictError struct {
	Root   string
	Entry  string
	Nested string
}

func (e *MoveConflictError) Error() string {
	return fmt.Sprintf("cannot move %q from %q: %q already exists in %s", e.Entry, e.Nested, e.Entry, e.Root)
}

// NormalizeStructure flattens a project that was generated one directory too
// deep. It does nothing when root already has a package.json or when no
// subdirectory looks like a Next.js app. logf receives one line per change.
func NormalizeStructure(root string, logf func(string)) error {
	if logf == nil {
		logf = func(string) {}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read project root %s: %w", root, err)
	}
	for _, e := range entries {
		if e.Name() == "package.json" && e.Type().IsRegular() {
			return nil
		}
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "node_modules" {
			continue
		}
		if IsLikelyNextProject(filepath.Join(root, e.Name())) {
			candidates = append(candidates, e.Name())
		}
	}

	switch len(candidates) {
	case 0:
		return nil
	case 1:
	default:
		return &MultipleCandidatesError{Root: root, Candidates: candidates}
	}

	nested := candidates[0]
	for _, e := range entries {
		name := e.Name()
		if name == nested {
			continue
		}
		if e.IsDir() {
			if !isAllowedRootDir(name) {
				return &AmbiguousStructureError{Root: root, Entry: name, Nested: nested, IsDir: true}
			}
			continue
		}
		if !isAllowedRootFile(name) {
			return &AmbiguousStructureError{Root: root, Entry: name, Nested: nested}
		}
	}

	nestedPath := filepath.Join(root, nested)
	nestedEntries, err := os.ReadDir(nestedPath)
	if err != nil {
		return fmt.Errorf("read nested project %s: %w", nestedPath, err)
	}

	// Every destination is checked before anything moves, so a conflict
	// leaves the tree untouched.
	var moves []os.DirEntry
	for _, e := range nestedEntries {
		name := e.Name()
		if name == "node_modules" {
			continue
		}
		if _, err := os.Lstat(filepath.Join(root, name)); err == nil {
			if e.IsDir() || !isOverwritableRootFile(name) {
				return &MoveConflictError{Root: root, Entry: name, Nested: nested}
			}
		}
		moves = append(moves, e)
	}

	// Stale install state on either side would be merged into a broken tree
	if err := os.RemoveAll(filepath.Join(nestedPath, "node_modules")); err != nil {
		return fmt.Errorf("remove %s/node_modules: %w", nested, err)
	}
	if err := os.RemoveAll(filepath.Join(root, "node_modules")); err != nil {
		return fmt.Errorf("remove node_modules in %s: %w", root, err)
	}

	for _, e := range moves {
		name := e.Name()
		src := filepath.Join(nestedPath, name)
		dst := filepath.Join(root, name)

		if _, err := os.Lstat(dst); err == nil {
			if err := os.Remove(dst); err != nil {
				return fmt.Errorf("replace %s: %w", dst, err)
			}
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("move %s: %w", src, err)
			}
			logf(fmt.Sprintf("Replaced existing root file %q with the version from %q.", name, nested))
			continue
		}

		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("move %s: %w", src, err)
		}
	}

	if err := os.RemoveAll(nestedPath); err != nil {
		return fmt.Errorf("remove nested directory %s: %w", nestedPath, err)
	}
	logf(fmt.Sprintf("Detected Next.js project inside subdirectory %q. Contents moved to the project root.", nested))
	return nil
}
