package session

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cchalm/chatedit/internal/ai"
	"github.com/cchalm/chatedit/internal/filesystem"
)

// ParseTargetFiles splits a comma-separated path list, trimming entries and dropping empty ones
func ParseTargetFiles(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// ReadContextFiles reads each path for inclusion in the prompt. A file that cannot be read is still included, with a
// placeholder line in place of its content, so the model knows it was asked about.
func ReadContextFiles(ctx context.Context, fs filesystem.ReadOnlyFileSystem, paths []string) []ai.ContextFile {
	files := make([]ai.ContextFile, 0, len(paths))
	for _, p := range paths {
		content, err := fs.Read(ctx, p)
		if err != nil {
			log.Printf("Warning: could not read file %s: %v", p, err)
			content = fmt.Sprintf("// File not found or could not be read: %v", err)
		}
		files = append(files, ai.ContextFile{Path: p, Content: content})
	}
	return files
}

func contextTokens(files []ai.ContextFile) int {
	total := 0
	for _, f := range files {
		n, err := ai.EstimateTokens(f.Content)
		if err != nil {
			log.Printf("Warning: could not estimate tokens for %s: %v", f.Path, err)
			return 0
		}
		total += n
	}
	return total
}
