package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cursorclip/cursorclip/internal/daemon"
	"github.com/cursorclip/cursorclip/internal/wayland"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the clipboard daemon in the foreground",
		Long: `Run the clipboard daemon. It connects to the Wayland compositor, records
every clipboard change into the history, and serves the control socket used
by the other commands. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := daemon.New(cfg, logger).Run(context.Background())
			switch {
			case errors.Is(err, wayland.ErrCompositorUnavailable):
				return fmt.Errorf("no Wayland compositor found; is this a Wayland session? (%v)", err)
			case errors.Is(err, wayland.ErrUnsupportedCompositor):
				return fmt.Errorf("compositor lacks a required protocol: %v", err)
			default:
				return err
			}
		},
	}
}
