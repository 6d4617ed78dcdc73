package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/kozaktomas/photo-archive/cmd.Version=...".
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		commit, built := buildVCS()
		fmt.Printf("photo-archive %s (%s)\n", Version, runtime.Version())
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", built)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// buildVCS falls back to the VCS stamp embedded by the go tool when the
// ldflags were not set.
func buildVCS() (commit, built string) {
	commit, built = CommitSHA, BuildDate
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, built
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" {
				commit = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		}
	}
	return commit, built
}
