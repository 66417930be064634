package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/config"
)

var (
	// Global flags
	configFile string
	socketPath string
	verbose    bool
	quiet      bool
	useJSON    bool

	// Shared resources
	logger   *zap.Logger
	logLevel zap.AtomicLevel
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cursorclip",
	Short: "A Wayland clipboard manager with cursor-anchored history",
	Long: `Cursorclip records everything copied under Wayland and serves it back:
  • Clipboard history with content type detection
  • Pinned entries that survive restarts
  • Pointer position capture for overlay placement
  • Restore, pin, delete and clear over a control socket`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogger(); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// Flags win over the configured values.
		if !verbose && !quiet && cfg.LogLevel != "" {
			if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
				logLevel.SetLevel(lvl.Level())
			}
		}
		if socketPath != "" {
			cfg.SocketPath = socketPath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/.config/cursorclip/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon control socket (default is $XDG_RUNTIME_DIR/cursorclip.sock)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "minimize output")
	rootCmd.PersistentFlags().BoolVar(&useJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(
		newDaemonCmd(),
		newOverlayCmd(),
		newHistoryCmd(),
		newRestoreCmd(),
		newPinCmd(),
		newUnpinCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newVersionCmd(),
	)
}

func setupLogger() error {
	var zcfg zap.Config
	switch {
	case verbose:
		zcfg = zap.NewDevelopmentConfig()
	case quiet:
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logLevel = zcfg.Level

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	return nil
}
