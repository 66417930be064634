package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cursorclip/cursorclip/internal/clipboard"
	"github.com/cursorclip/cursorclip/internal/config"
	"github.com/cursorclip/cursorclip/internal/ipc"
	"github.com/cursorclip/cursorclip/internal/storage"
	"github.com/cursorclip/cursorclip/internal/types"
	"github.com/cursorclip/cursorclip/internal/wayland"
)

// Daemon owns the long-running side of the program: the compositor session,
// the clipboard watcher, the history store and the control socket.
type Daemon struct {
	cfg *config.Config
	log *zap.Logger

	sess    *wayland.Session
	store   *clipboard.History
	watcher *clipboard.Watcher
	server  *ipc.Server
	db      *storage.BoltStorage
}

func New(cfg *config.Config, log *zap.Logger) *Daemon {
	return &Daemon{cfg: cfg, log: log}
}

// Run brings every component up and serves until the context is cancelled or
// a component fails. Startup failures are returned before anything serves, so
// the caller can distinguish a broken environment from a runtime fault.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := wayland.Connect(d.log)
	if err != nil {
		return err
	}
	d.sess = sess
	defer sess.Close()

	d.store = clipboard.NewHistory(d.cfg.MaxEntries, d.cfg.PreviewLength, d.log)

	if d.cfg.PersistPinned {
		if err := d.openStorage(); err != nil {
			// Degrade to memory-only rather than refuse to start.
			d.log.Warn("pinned persistence disabled", zap.Error(err))
		}
	}

	d.watcher = clipboard.NewWatcher(sess, d.store, d.log, d.cfg.MonitorOnly)
	if err := d.watcher.Setup(); err != nil {
		return err
	}
	d.store.SetAsserter(d.watcher.Assert)

	d.server = ipc.NewServer(d.store, d.cfg.SocketPath, d.log)
	if err := d.server.Listen(); err != nil {
		return err
	}

	d.log.Info("daemon started",
		zap.String("instance", d.cfg.InstanceID),
		zap.Int("max_entries", d.cfg.MaxEntries),
		zap.Bool("monitor_only", d.cfg.MonitorOnly))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sess.Run(ctx); err != nil {
			return fmt.Errorf("wayland session: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return d.server.Serve(ctx)
	})

	err = g.Wait()
	if d.db != nil {
		d.db.Close()
	}
	d.log.Info("daemon stopped")
	return err
}

// openStorage loads persisted pinned entries and installs the sink that keeps
// them current.
func (d *Daemon) openStorage() error {
	if err := os.MkdirAll(d.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewBoltStorage(storage.StorageConfig{
		DBPath: d.cfg.DBPath(),
		Logger: d.log,
	})
	if err != nil {
		return err
	}
	d.db = db

	pinned, err := db.LoadPinned()
	if err != nil {
		d.log.Warn("could not load pinned entries", zap.Error(err))
	} else if len(pinned) > 0 {
		d.store.RestorePinned(pinned)
		d.log.Info("restored pinned entries", zap.Int("count", len(pinned)))
	}

	d.store.SetPinnedSink(func(entries []*types.ClipboardEntry) {
		if err := db.SavePinned(entries); err != nil {
			d.log.Warn("failed to persist pinned entries", zap.Error(err))
		}
	})
	return nil
}
