// Package pathsafe normalizes untrusted repository-relative paths.
//
// Every client-supplied path crosses this package before it touches the
// catalog or the filesystem. The canonical form uses forward slashes, has no
// "." or ".." segments, no leading root, no null bytes and is non-empty.
package pathsafe

import (
	"path/filepath"
	"strings"

	"github.com/stashfs/stashfs/internal/apperr"
)

// Clean validates and normalizes a client-supplied relative path into its
// canonical form. Traversal segments are rejected outright rather than
// resolved; leading roots and drive prefixes are stripped.
func Clean(raw string) (string, error) {
	if raw == "" {
		return "", apperr.BadRequestf("Empty path")
	}

	// Treat both separators as separators regardless of host OS so that a
	// path like `a\..\b` cannot smuggle a traversal past the check.
	normalized := strings.ReplaceAll(raw, "\\", "/")

	var parts []string
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
			// Leading root, duplicate separators and self references drop out.
		case "..":
			return "", apperr.Forbiddenf("Path traversal not allowed")
		default:
			if strings.ContainsRune(seg, '\x00') {
				return "", apperr.BadRequestf("Null bytes not allowed in path")
			}
			if isDrivePrefix(seg) && len(parts) == 0 {
				// Windows volume prefix at the front of the path.
				continue
			}
			parts = append(parts, seg)
		}
	}

	if len(parts) == 0 {
		return "", apperr.BadRequestf("Path resolves to empty")
	}
	return strings.Join(parts, "/"), nil
}

// isDrivePrefix reports whether seg looks like a Windows drive specifier
// such as "C:".
func isDrivePrefix(seg string) bool {
	if len(seg) != 2 || seg[1] != ':' {
		return false
	}
	c := seg[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// EnsureWithinRoot verifies that resolved does not escape root. It compares
// canonical forms where the paths exist and falls back to a lexical prefix
// check otherwise. Defense in depth behind Clean, not a substitute for it.
func EnsureWithinRoot(root, resolved string) error {
	canonRoot := canonicalize(root)
	canonResolved := canonicalize(resolved)

	rel, err := filepath.Rel(canonRoot, canonResolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return apperr.Forbiddenf("Path escapes repository root")
	}
	return nil
}

func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
