package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatedit/internal/config"
)

// cfg is the loaded configuration. Flags set on the command line override the environment.
var cfg = config.Default()

var flags = struct {
	Project  string
	Provider string
	Model    string
	Verbose  bool
}{}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	if !flags.Verbose {
		log.SetOutput(io.Discard)
	}

	config.LoadDotEnv()

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	if cmd.Flags().Changed("provider") {
		provider, err := config.ParseProvider(flags.Provider)
		if err != nil {
			return err
		}
		cfg.Provider = provider
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = flags.Model
	}

	if flags.Project == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		flags.Project = wd
	}
	return nil
}
