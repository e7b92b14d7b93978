package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatedit/internal/filesystem"
)

var filesLimit int

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the project files a chat can target",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := setupContext()

		osfs, err := filesystem.NewOSFileSystem(flags.Project)
		if err != nil {
			return fmt.Errorf("failed to open project: %w", err)
		}
		files, err := filesystem.ListFiles(ctx, osfs, filesLimit)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	filesCmd.Flags().IntVar(&filesLimit, "limit", filesystem.DefaultListLimit, "Maximum number of files to list")

	rootCmd.AddCommand(filesCmd)
}
