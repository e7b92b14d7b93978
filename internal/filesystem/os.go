package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"syscall"
)

// OSFileSystem implements FileSystem on a directory of the local disk. Every path is resolved against the root and
// rejected if it, or any symlink along it, leads outside the root.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem returns a file system rooted at the given directory, which must exist
func NewOSFileSystem(root string) (*OSFileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s: %w", abs, ErrNotDir)
	}
	return &OSFileSystem{root: abs}, nil
}

// Root returns the absolute path of the root directory
func (ofs *OSFileSystem) Root() string {
	return ofs.root
}

func (ofs *OSFileSystem) resolve(p string, allowRoot bool) (string, error) {
	var (
		clean string
		err   error
	)
	if allowRoot {
		clean, err = cleanDir(p)
	} else {
		clean, err = CleanPath(p)
	}
	if err != nil {
		return "", err
	}

	full, err := SafeJoin(ofs.root, clean)
	if err != nil {
		return "", err
	}
	within, err := IsWithinDirReal(ofs.root, full)
	if err != nil {
		return "", err
	}
	if !within {
		return "", ErrPathEscape
	}
	return full, nil
}

func (ofs *OSFileSystem) Read(_ context.Context, p string) (string, error) {
	full, err := ofs.resolve(p, false)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(full)
	if notExist(err) {
		return "", fmt.Errorf("%s: %w", p, ErrFileNotFound)
	} else if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: %w", p, ErrIsDir)
	}

	b, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (ofs *OSFileSystem) FileExists(_ context.Context, p string) (bool, error) {
	full, err := ofs.resolve(p, false)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if notExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (ofs *OSFileSystem) IsDir(_ context.Context, dir string) (bool, error) {
	full, err := ofs.resolve(dir, true)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if notExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (ofs *OSFileSystem) ListDir(_ context.Context, dir string) ([]string, error) {
	full, err := ofs.resolve(dir, true)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", dir, ErrFileNotFound)
	} else if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (ofs *OSFileSystem) Write(_ context.Context, p string, content string) error {
	full, err := ofs.resolve(p, false)
	if err != nil {
		return err
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, ErrParentNotFound)
		}
		return err
	}
	return nil
}

func (ofs *OSFileSystem) CreateDir(_ context.Context, dir string) error {
	full, err := ofs.resolve(dir, false)
	if err != nil {
		return err
	}

	err = os.Mkdir(full, 0755)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrExist):
		if info, statErr := os.Stat(full); statErr == nil && info.IsDir() {
			return fmt.Errorf("%s: %w", dir, ErrDirExists)
		}
		return fmt.Errorf("%s: %w", dir, ErrNotDir)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s: %w", dir, ErrParentNotFound)
	default:
		return err
	}
}

// notExist also covers lookups through a file ancestor, which fail with ENOTDIR
func notExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
