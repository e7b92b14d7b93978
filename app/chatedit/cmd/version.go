package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionInfo = struct {
	Version   string
	GitCommit string
	BuildTime string
}{"dev", "unknown", "unknown"}

// SetVersionInfo records the build metadata injected into main by ldflags
func SetVersionInfo(version, gitCommit, buildTime string) {
	versionInfo.Version = version
	versionInfo.GitCommit = gitCommit
	versionInfo.BuildTime = buildTime
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chatedit %s (commit %s, built %s)\n", versionInfo.Version, versionInfo.GitCommit, versionInfo.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
