package filesystem

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
)

// MemDiffFileSystem sits on top of a ReadOnlyFileSystem and tracks writes and created directories in-memory. The base
// is never modified, which makes it suitable for dry runs.
type MemDiffFileSystem struct {
	baseFileSystem ReadOnlyFileSystem

	workingTree map[string]string   // path -> content (files we've written)
	createdDirs map[string]struct{} // dirs we've created
}

// NewMemDiffFileSystem creates a new in-memory diff file system. A nil base behaves like an empty directory.
func NewMemDiffFileSystem(baseFileSystem ReadOnlyFileSystem) *MemDiffFileSystem {
	if baseFileSystem == nil {
		baseFileSystem = emptyFileSystem{}
	}
	return &MemDiffFileSystem{
		baseFileSystem: baseFileSystem,
		workingTree:    make(map[string]string),
		createdDirs:    make(map[string]struct{}),
	}
}

func (mdfs *MemDiffFileSystem) Read(ctx context.Context, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	if content, exists := mdfs.workingTree[p]; exists {
		return content, nil
	}
	if _, exists := mdfs.createdDirs[p]; exists {
		return "", fmt.Errorf("%s: %w", p, ErrIsDir)
	}

	return mdfs.baseFileSystem.Read(ctx, p)
}

func (mdfs *MemDiffFileSystem) Write(ctx context.Context, p string, content string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	isDir, err := mdfs.IsDir(ctx, p)
	if err != nil {
		return err
	}
	if isDir {
		return fmt.Errorf("%s: %w", p, ErrIsDir)
	}
	if err := mdfs.requireParent(ctx, p); err != nil {
		return err
	}

	mdfs.workingTree[p] = content
	return nil
}

func (mdfs *MemDiffFileSystem) CreateDir(ctx context.Context, dir string) error {
	dir, err := CleanPath(dir)
	if err != nil {
		return err
	}

	isDir, err := mdfs.IsDir(ctx, dir)
	if err != nil {
		return err
	}
	if isDir {
		return fmt.Errorf("%s: %w", dir, ErrDirExists)
	}
	isFile, err := mdfs.FileExists(ctx, dir)
	if err != nil {
		return err
	}
	if isFile {
		return fmt.Errorf("%s: %w", dir, ErrNotDir)
	}
	if err := mdfs.requireParent(ctx, dir); err != nil {
		return err
	}

	mdfs.createdDirs[dir] = struct{}{}
	return nil
}

// requireParent mirrors a real file system, where neither files nor directories can be created under a missing parent
func (mdfs *MemDiffFileSystem) requireParent(ctx context.Context, p string) error {
	parent := path.Dir(p)
	if parent == "." {
		return nil
	}
	ok, err := mdfs.IsDir(ctx, parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", parent, ErrParentNotFound)
	}
	return nil
}

func (mdfs *MemDiffFileSystem) FileExists(ctx context.Context, p string) (bool, error) {
	p, err := CleanPath(p)
	if err != nil {
		return false, err
	}

	if _, exists := mdfs.workingTree[p]; exists {
		return true, nil
	}
	if _, exists := mdfs.createdDirs[p]; exists {
		return false, nil
	}

	return mdfs.baseFileSystem.FileExists(ctx, p)
}

func (mdfs *MemDiffFileSystem) IsDir(ctx context.Context, dir string) (bool, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return false, err
	}
	if dir == "." {
		return true, nil
	}

	if _, exists := mdfs.createdDirs[dir]; exists {
		return true, nil
	}
	if _, exists := mdfs.workingTree[dir]; exists {
		return false, nil
	}

	return mdfs.baseFileSystem.IsDir(ctx, dir)
}

func (mdfs *MemDiffFileSystem) ListDir(ctx context.Context, dir string) ([]string, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]struct{})

	if _, created := mdfs.createdDirs[dir]; !created {
		baseEntries, err := mdfs.baseFileSystem.ListDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range baseEntries {
			entries[e] = struct{}{}
		}
	}

	for p := range mdfs.workingTree {
		if path.Dir(p) == dir {
			entries[path.Base(p)] = struct{}{}
		}
	}
	for p := range mdfs.createdDirs {
		if path.Dir(p) == dir {
			entries[path.Base(p)+"/"] = struct{}{}
		}
	}

	result := make([]string, 0, len(entries))
	for e := range entries {
		result = append(result, e)
	}
	slices.Sort(result)
	return result, nil
}

// GetChangelist returns the changes tracked in this filesystem
func (mdfs *MemDiffFileSystem) GetChangelist() *MemChangelist {
	return &MemChangelist{
		workingTree: mdfs.workingTree,
		createdDirs: mdfs.createdDirs,
	}
}

// MemChangelist is a read-only view of the writes and directory creations made through a MemDiffFileSystem
type MemChangelist struct {
	workingTree map[string]string
	createdDirs map[string]struct{}
}

// ForEachModified calls fn for every written file, in path order
func (cl *MemChangelist) ForEachModified(fn func(path string, content string) error) error {
	paths := make([]string, 0, len(cl.workingTree))
	for p := range cl.workingTree {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		if err := fn(p, cl.workingTree[p]); err != nil {
			return err
		}
	}
	return nil
}

// CreatedDirs returns the created directories, parents before children
func (cl *MemChangelist) CreatedDirs() []string {
	dirs := make([]string, 0, len(cl.createdDirs))
	for d := range cl.createdDirs {
		dirs = append(dirs, d)
	}
	slices.SortFunc(dirs, func(a, b string) int {
		if da, db := strings.Count(a, "/"), strings.Count(b, "/"); da != db {
			return da - db
		}
		return strings.Compare(a, b)
	})
	return dirs
}

func (cl *MemChangelist) IsModified(p string) bool {
	_, exists := cl.workingTree[p]
	return exists
}

func (cl *MemChangelist) IsEmpty() bool {
	return len(cl.workingTree) == 0 && len(cl.createdDirs) == 0
}

// emptyFileSystem is a root directory with nothing in it
type emptyFileSystem struct{}

func (emptyFileSystem) Read(_ context.Context, p string) (string, error) {
	return "", fmt.Errorf("%s: %w", p, ErrFileNotFound)
}

func (emptyFileSystem) FileExists(context.Context, string) (bool, error) { return false, nil }

func (emptyFileSystem) IsDir(_ context.Context, dir string) (bool, error) {
	return dir == "." || dir == "", nil
}

func (emptyFileSystem) ListDir(_ context.Context, dir string) ([]string, error) {
	if dir == "." || dir == "" {
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", dir, ErrFileNotFound)
}
