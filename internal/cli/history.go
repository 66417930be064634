package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cursorclip/cursorclip/internal/ipc"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List clipboard history",
		Long: `List the clipboard history, pinned entries first, most recent first
within each group.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(cfg.SocketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := client.List()
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if useJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			for _, e := range entries {
				pin := " "
				if e.Pinned {
					pin = "*"
				}
				fmt.Printf("%s %4d  %-8s  %s  %s\n",
					pin, e.ID, e.Kind,
					time.Unix(e.Created, 0).Format("15:04:05"),
					e.Preview)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many entries (0 = all)")
	return cmd
}
