// Package filesystem provides file system abstractions and implementations. All paths are slash-separated and relative
// to the file system's root; "" and "." name the root itself.
package filesystem

import (
	"context"
	"errors"
)

var (
	ErrFileNotFound   = errors.New("file not found")
	ErrIsDir          = errors.New("path is a directory")
	ErrNotDir         = errors.New("path is not a directory")
	ErrDirExists      = errors.New("directory already exists")
	ErrParentNotFound = errors.New("parent directory does not exist")
)

// ReadOnlyFileSystem is a basic interface for reading files
type ReadOnlyFileSystem interface {
	// Read reads the content of a file at the given path
	Read(ctx context.Context, path string) (string, error)

	// FileExists returns true if a regular file exists at the given path, false otherwise
	FileExists(ctx context.Context, path string) (bool, error)

	// IsDir returns true if the given path is a directory, false otherwise
	IsDir(ctx context.Context, dir string) (bool, error)

	// ListDir lists the entry names in the given directory. Directory names carry a trailing slash.
	ListDir(ctx context.Context, dir string) ([]string, error)
}

// FileSystem is a basic interface for reading and writing files
type FileSystem interface {
	ReadOnlyFileSystem

	// Write writes the content to a file at the given path, creating or truncating it. The parent directory must
	// already exist.
	Write(ctx context.Context, path string, content string) error

	// CreateDir creates a single directory. It fails with ErrParentNotFound if the parent is missing and with
	// ErrDirExists if the directory is already there.
	CreateDir(ctx context.Context, dir string) error
}
