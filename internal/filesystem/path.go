package filesystem

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// Path validation errors.
var (
	ErrPathEscape   = errors.New("path escapes project root")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrInvalidPath  = errors.New("invalid path")
)

// CleanPath validates a root-relative path and returns its cleaned, slash-separated form. It rejects absolute paths,
// paths that climb out of the root, paths containing NUL, and paths that name the root itself.
func CleanPath(p string) (string, error) {
	c, err := cleanDir(p)
	if err != nil {
		return "", err
	}
	if c == "." {
		return "", ErrInvalidPath
	}
	return c, nil
}

// cleanDir is CleanPath that also accepts the root ("" or ".")
func cleanDir(p string) (string, error) {
	if strings.ContainsRune(p, '\x00') {
		return "", ErrInvalidPath
	}
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return ".", nil
	}
	if path.IsAbs(p) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", ErrAbsolutePath
	}
	c := path.Clean(p)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrPathEscape
	}
	return c, nil
}

// SafeJoin joins a base directory with a relative path, ensuring the result stays within the base directory.
// Returns the absolute path if valid, or ErrPathEscape if the path escapes.
func SafeJoin(baseDir, relativePath string) (string, error) {
	joined := filepath.Join(baseDir, filepath.FromSlash(relativePath))

	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absBase, absJoined)
	if err != nil {
		return "", err
	}
	// "..." or "..foo" are valid file names, not traversals
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}

	return absJoined, nil
}

// resolvePathForContainment resolves symlinks for containment checks. For non-existent paths, it resolves the nearest
// existing ancestor and re-attaches the missing suffix.
func resolvePathForContainment(p string) (string, error) {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	current := absPath
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}

		if !notExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}

		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// IsWithinDirReal checks whether targetPath resolves inside baseDir after following symlinks
func IsWithinDirReal(baseDir, targetPath string) (bool, error) {
	baseResolved, err := resolvePathForContainment(baseDir)
	if err != nil {
		return false, err
	}
	targetResolved, err := resolvePathForContainment(targetPath)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(baseResolved, targetResolved)
	if err != nil {
		return false, err
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return true, nil
}
