// Package security keeps files derived from recording identifiers inside
// the directories they were meant for.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxFilenameLen bounds names produced by SanitizeFilename.
const maxFilenameLen = 128

// ValidatePathWithinDirectory returns an error if filePath resolves outside
// dir. Symlinks are resolved on the longest existing prefix of filePath, so
// a not-yet-created file under a symlinked parent is still caught.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	realPath := resolveExisting(absPath)
	rel, err := filepath.Rel(realDir, realPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// p and re-appends the rest.
func resolveExisting(p string) string {
	for cur := p; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			rest, _ := filepath.Rel(cur, p)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		cur = parent
	}
}

// SanitizeFilename maps s to a name made of ASCII letters, digits, '.', '_'
// and '-'. Runs of other characters become a single underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// OutputPath returns dir/<sanitized stem><suffix>, checked to stay in dir.
func OutputPath(dir, stem, suffix string) (string, error) {
	p := filepath.Join(dir, SanitizeFilename(stem)+suffix)
	if err := ValidatePathWithinDirectory(p, dir); err != nil {
		return "", err
	}
	return p, nil
}
