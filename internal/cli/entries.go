package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cursorclip/cursorclip/internal/ipc"
)

func parseEntryID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

// withClient runs fn against a fresh daemon connection.
func withClient(fn func(*ipc.Client) error) error {
	client, err := ipc.Dial(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Make a history entry the active clipboard selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *ipc.Client) error {
				content, mime, err := c.Select(id)
				if err != nil {
					return err
				}
				fmt.Printf("restored entry %d (%s, %d bytes)\n", id, mime, len(content))
				return nil
			})
		},
	}
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin an entry so it survives eviction and clear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *ipc.Client) error {
				return c.SetPinned(id, true)
			})
		},
	}
}

func newUnpinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <id>",
		Short: "Unpin an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *ipc.Client) error {
				return c.SetPinned(id, false)
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry, pinned or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntryID(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *ipc.Client) error {
				return c.Delete(id)
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the history, keeping pinned entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipc.Client) error {
				return c.Clear()
			})
		},
	}
}
