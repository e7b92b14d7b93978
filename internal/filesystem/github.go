package filesystem

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/go-github/v72/github"
	"golang.org/x/oauth2"
)

// GithubFileSystem implements ReadOnlyFileSystem for a GitHub repository at a fixed ref. Wrap it in a
// MemDiffFileSystem to preview edits against a remote project.
type GithubFileSystem struct {
	client *github.Client
	owner  string
	repo   string
	ref    string
}

// NewGithubFileSystem creates a new GitHub-backed read-only file system. An empty token gives unauthenticated access.
func NewGithubFileSystem(ctx context.Context, token, owner, repo, ref string) *GithubFileSystem {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewGithubFileSystemWithClient(github.NewClient(httpClient), owner, repo, ref)
}

func NewGithubFileSystemWithClient(client *github.Client, owner, repo, ref string) *GithubFileSystem {
	return &GithubFileSystem{
		client: client,
		owner:  owner,
		repo:   repo,
		ref:    ref,
	}
}

// ParseGithubProject splits "owner/repo[@ref]" into its parts
func ParseGithubProject(s string) (owner, repo, ref string, err error) {
	s, ref, _ = strings.Cut(s, "@")
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", "", fmt.Errorf("expected owner/repo[@ref], got %q", s)
	}
	return owner, repo, ref, nil
}

func (gfs *GithubFileSystem) getContents(ctx context.Context, p string) (*github.RepositoryContent, []*github.RepositoryContent, bool, error) {
	opts := &github.RepositoryContentGetOptions{Ref: gfs.ref}
	if p == "." {
		p = ""
	}
	fileContent, directoryContent, resp, err := gfs.client.Repositories.GetContents(ctx, gfs.owner, gfs.repo, p, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	return fileContent, directoryContent, true, nil
}

func (gfs *GithubFileSystem) Read(ctx context.Context, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	fileContent, directoryContent, found, err := gfs.getContents(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to get file content: %w", err)
	}
	if !found {
		return "", fmt.Errorf("%s: %w", p, ErrFileNotFound)
	}
	if fileContent == nil {
		if directoryContent != nil {
			return "", fmt.Errorf("%s: %w", p, ErrIsDir)
		}
		return "", fmt.Errorf("file content is nil")
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return content, nil
}

func (gfs *GithubFileSystem) FileExists(ctx context.Context, p string) (bool, error) {
	p, err := CleanPath(p)
	if err != nil {
		return false, err
	}

	fileContent, _, found, err := gfs.getContents(ctx, p)
	if err != nil {
		return false, fmt.Errorf("failed to check if file exists: %w", err)
	}
	return found && fileContent != nil, nil
}

func (gfs *GithubFileSystem) IsDir(ctx context.Context, dir string) (bool, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return false, err
	}

	fileContent, _, found, err := gfs.getContents(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("failed to check if path is directory: %w", err)
	}
	return found && fileContent == nil, nil
}

func (gfs *GithubFileSystem) ListDir(ctx context.Context, dir string) ([]string, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	fileContent, directoryContent, found, err := gfs.getContents(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", dir, ErrFileNotFound)
	}
	if fileContent != nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDir)
	}

	names := make([]string, 0, len(directoryContent))
	for _, content := range directoryContent {
		name := content.GetName()
		if name == "" {
			continue
		}
		if content.GetType() == "dir" {
			name += "/"
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
