package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cursorclip/cursorclip/internal/ipc"
	"github.com/cursorclip/cursorclip/internal/tracker"
	"github.com/cursorclip/cursorclip/internal/types"
	"github.com/cursorclip/cursorclip/internal/wayland"
)

// overlayOutput is what an overlay renderer needs: where the pointer is and
// what to show there.
type overlayOutput struct {
	X       float64              `json:"x"`
	Y       float64              `json:"y"`
	Output  uint32               `json:"output"`
	Entries []types.EntryPreview `json:"entries"`
}

func newOverlayCmd() *cobra.Command {
	var skipPointer bool

	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Capture the pointer position and print the history as JSON",
		Long: `Capture the current pointer position with a transparent one-shot overlay
surface, fetch the clipboard history from the daemon, and print both as JSON
for a menu renderer to consume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out overlayOutput

			if !skipPointer {
				sess, err := wayland.Connect(logger)
				if err != nil {
					return err
				}
				defer sess.Close()

				sample, err := tracker.New(sess, logger).Capture(cfg.CaptureTimeout())
				switch {
				case errors.Is(err, tracker.ErrNoPointerDevice):
					return fmt.Errorf("no pointer device on this seat: %v", err)
				case errors.Is(err, tracker.ErrCaptureTimeout):
					return fmt.Errorf("pointer capture timed out after %v", cfg.CaptureTimeout())
				case err != nil:
					return err
				}
				out.X, out.Y, out.Output = sample.X, sample.Y, sample.Output
			}

			client, err := ipc.Dial(cfg.SocketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			out.Entries, err = client.List()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&skipPointer, "no-pointer", false, "skip pointer capture, print history only")
	return cmd
}
