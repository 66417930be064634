package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "none"
)

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(v, bt, c string) {
	version, buildTime, commit = v, bt, c
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cursorclip %s (commit %s, built %s)\n", version, commit, buildTime)
		},
	}
}
