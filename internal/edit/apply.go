package edit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/cchalm/chatedit/internal/filesystem"
)

// ErrorKind says why an edit was not applied
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindPathEscape means the path was absolute, climbed out of the project root, or was otherwise unusable. Nothing
	// was written.
	KindPathEscape
	// KindWriteFailure means creating a directory or writing the file failed
	KindWriteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPathEscape:
		return "path_escape"
	case KindWriteFailure:
		return "write_failure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ApplyResult reports the outcome of one edit
type ApplyResult struct {
	Path        string    `json:"path"`
	OK          bool      `json:"ok"`
	Kind        ErrorKind `json:"kind"`
	Err         error     `json:"-"`
	Created     bool      `json:"created"`
	CreatedDirs []string  `json:"createdDirs,omitempty"`
}

// Reporter receives human-readable progress lines
type Reporter interface {
	Status(message string)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(message string)

func (f ReporterFunc) Status(message string) { f(message) }

type discardReporter struct{}

func (discardReporter) Status(string) {}

// Applicator writes edits into a file system one at a time, in order
type Applicator struct {
	fs       filesystem.FileSystem
	reporter Reporter
}

func NewApplicator(fs filesystem.FileSystem, reporter Reporter) *Applicator {
	if reporter == nil {
		reporter = discardReporter{}
	}
	return &Applicator{fs: fs, reporter: reporter}
}

// Apply attempts every edit and returns one result per edit, in edit order. A failed edit never stops the ones after
// it. Once started, the batch runs to completion even if ctx is canceled.
func (a *Applicator) Apply(ctx context.Context, edits []FileEdit) []ApplyResult {
	ctx = context.WithoutCancel(ctx)

	results := make([]ApplyResult, 0, len(edits))
	for _, e := range edits {
		results = append(results, a.applyOne(ctx, e))
	}
	return results
}

func (a *Applicator) applyOne(ctx context.Context, e FileEdit) ApplyResult {
	result := ApplyResult{Path: e.Path}

	p, err := filesystem.CleanPath(e.Path)
	if err != nil {
		return a.fail(result, err)
	}

	existed, err := a.fs.FileExists(ctx, p)
	if err != nil {
		return a.fail(result, err)
	}

	result.CreatedDirs, err = a.ensureParents(ctx, p)
	if err != nil {
		return a.fail(result, err)
	}

	if err := a.fs.Write(ctx, p, e.Content); err != nil {
		return a.fail(result, fmt.Errorf("failed to write file: %w", err))
	}

	result.OK = true
	result.Created = !existed
	a.reporter.Status(fmt.Sprintf("Applied change: %s", e.Path))
	return result
}

// ensureParents creates every missing ancestor of p, from the root down, and returns the directories it created
func (a *Applicator) ensureParents(ctx context.Context, p string) ([]string, error) {
	parent := path.Dir(p)
	if parent == "." {
		return nil, nil
	}

	var created []string
	segments := strings.Split(parent, "/")
	for i := range segments {
		dir := strings.Join(segments[:i+1], "/")

		isDir, err := a.fs.IsDir(ctx, dir)
		if err != nil {
			return created, err
		}
		if isDir {
			continue
		}

		if err := a.fs.CreateDir(ctx, dir); err != nil {
			// Someone else may have created it in the meantime
			if isDir, statErr := a.fs.IsDir(ctx, dir); statErr == nil && isDir {
				continue
			}
			return created, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		created = append(created, dir)
		a.reporter.Status(fmt.Sprintf("Created directory: %s", dir))
	}
	return created, nil
}

func (a *Applicator) fail(result ApplyResult, err error) ApplyResult {
	result.OK = false
	result.Err = err
	result.Kind = classify(err)

	msg := fmt.Sprintf("Error writing file %s: %v", result.Path, err)
	log.Print(msg)
	a.reporter.Status(msg)
	return result
}

func classify(err error) ErrorKind {
	if errors.Is(err, filesystem.ErrPathEscape) ||
		errors.Is(err, filesystem.ErrAbsolutePath) ||
		errors.Is(err, filesystem.ErrInvalidPath) {
		return KindPathEscape
	}
	return KindWriteFailure
}

// Summary counts the successful and failed results
func Summary(results []ApplyResult) (applied, failed int) {
	for _, r := range results {
		if r.OK {
			applied++
		} else {
			failed++
		}
	}
	return applied, failed
}
