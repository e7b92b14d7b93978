package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatedit/internal/edit"
	"github.com/cchalm/chatedit/internal/filesystem"
)

var applyFlags = struct {
	Response string
	DryRun   bool
}{}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the file blocks in a saved model response",
	Long: `Reads a model response from a file, or from stdin when no file is given, and writes every file block it
contains into the project. No model is contacted.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFlags.Response, "response", "r", "", "File containing the model response (default: stdin)")
	applyCmd.Flags().BoolVar(&applyFlags.DryRun, "dry-run", false, "Show the edits without writing them")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := setupContext()

	var response []byte
	var err error
	if applyFlags.Response != "" {
		response, err = os.ReadFile(applyFlags.Response)
	} else {
		response, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	osfs, err := filesystem.NewOSFileSystem(flags.Project)
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	var fs filesystem.FileSystem = osfs
	var overlay *filesystem.MemDiffFileSystem
	if applyFlags.DryRun {
		overlay = filesystem.NewMemDiffFileSystem(osfs)
		fs = overlay
	}

	out := cmd.OutOrStdout()
	extraction := edit.NewExtractor().Extract(string(response))
	switch extraction.Outcome() {
	case edit.OutcomeNoEdits:
		fmt.Fprintln(out, statusStyle.Render("No file blocks found."))
		return nil
	case edit.OutcomeUnparsed:
		return fmt.Errorf("the response contained %d file block(s) that could not be parsed", extraction.Unmatched)
	}
	if extraction.Unmatched > 0 {
		fmt.Fprintln(out, failStyle.Render(fmt.Sprintf("Warning: skipped %d malformed file block(s)", extraction.Unmatched)))
	}

	results := edit.NewApplicator(fs, statusPrinter{w: out}).Apply(ctx, extraction.Edits)
	renderResults(out, results)
	if overlay != nil {
		if err := renderDryRun(out, overlay); err != nil {
			return err
		}
	}

	if _, failed := edit.Summary(results); failed > 0 {
		return fmt.Errorf("%d of %d edits failed", failed, len(results))
	}
	return nil
}
