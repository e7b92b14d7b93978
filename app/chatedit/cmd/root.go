package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatedit",
	Short: "Chat with a language model that edits your project",
	Long: `chatedit sends a chat transcript, together with the contents of selected project files, to a
language model. File blocks in the model's reply are written back into the project.`,
	PersistentPreRunE: loadRootConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.Project, "project", "p", "", "Project root directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flags.Provider, "provider", "", "Model provider: gemini or anthropic (default: $CHATEDIT_PROVIDER or gemini)")
	rootCmd.PersistentFlags().StringVar(&flags.Model, "model", "", "Model name (default: $CHATEDIT_MODEL)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Log diagnostic output to stderr")
}
