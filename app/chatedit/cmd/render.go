package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cchalm/chatedit/internal/edit"
	"github.com/cchalm/chatedit/internal/filesystem"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// statusPrinter writes status lines to the terminal as they arrive
type statusPrinter struct {
	w io.Writer
}

func (sp statusPrinter) Status(message string) {
	fmt.Fprintln(sp.w, statusStyle.Render("• "+message))
}

func renderResults(w io.Writer, results []edit.ApplyResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, r := range results {
		if r.OK {
			verb := "updated"
			if r.Created {
				verb = "created"
			}
			fmt.Fprintf(w, "%s %s %s\n", okStyle.Render("✓"), pathStyle.Render(r.Path), dirStyle.Render(verb))
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", failStyle.Render("✗"), pathStyle.Render(r.Path), failStyle.Render(r.Kind.String()+": "+r.Err.Error()))
	}

	applied, failed := edit.Summary(results)
	summary := fmt.Sprintf("%d applied, %d failed", applied, failed)
	if failed > 0 {
		fmt.Fprintln(w, failStyle.Render(summary))
	} else {
		fmt.Fprintln(w, okStyle.Render(summary))
	}
}

// renderDryRun prints what a dry run would have written
func renderDryRun(w io.Writer, overlay *filesystem.MemDiffFileSystem) error {
	changes := overlay.GetChangelist()
	if changes.IsEmpty() {
		fmt.Fprintln(w, dirStyle.Render("Dry run: no changes"))
		return nil
	}

	fmt.Fprintln(w, modelStyle.Render("Dry run, nothing was written"))
	for _, dir := range changes.CreatedDirs() {
		fmt.Fprintf(w, "%s %s\n", dirStyle.Render("mkdir"), pathStyle.Render(dir+"/"))
	}
	return changes.ForEachModified(func(p string, content string) error {
		lines := strings.Count(content, "\n")
		if content != "" && !strings.HasSuffix(content, "\n") {
			lines++
		}
		_, err := fmt.Fprintf(w, "%s %s %s\n", dirStyle.Render("write"), pathStyle.Render(p), dirStyle.Render(fmt.Sprintf("(%d lines)", lines)))
		return err
	})
}
