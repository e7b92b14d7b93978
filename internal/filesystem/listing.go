package filesystem

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
)

// DefaultListLimit caps the number of paths returned by ListFiles
const DefaultListLimit = 1000

// excludedDirs are never descended into when listing a project
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// ListFiles walks the file system from the root and returns up to limit file paths, sorted. Directories named in
// excludedDirs are skipped at any depth. A non-positive limit means DefaultListLimit.
func ListFiles(ctx context.Context, fs ReadOnlyFileSystem, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var files []string
	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := fs.ListDir(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		slices.Sort(entries)

		for _, entry := range entries {
			if len(files) >= limit {
				return nil
			}
			name, isDir := strings.CutSuffix(entry, "/")
			p := name
			if dir != "." {
				p = path.Join(dir, name)
			}
			if isDir {
				if excludedDirs[name] {
					continue
				}
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			files = append(files, p)
		}
		return nil
	}

	if err := walk("."); err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}
