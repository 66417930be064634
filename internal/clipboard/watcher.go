package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/cursorclip/cursorclip/internal/types"
	"github.com/cursorclip/cursorclip/internal/wayland"
)

// Data-control manager interfaces, in preference order. ext_data_control_v1
// is the standardized successor of zwlr_data_control_unstable_v1; the two
// share request and event shapes, so one state machine serves both.
const (
	extManagerIface  = "ext_data_control_manager_v1"
	zwlrManagerIface = "zwlr_data_control_manager_v1"
)

// Opcodes, identical across both data-control protocols.
const (
	managerCreateDataSource uint16 = 0
	managerGetDataDevice    uint16 = 1

	deviceSetSelection        uint16 = 0
	deviceDestroy             uint16 = 1
	deviceSetPrimarySelection uint16 = 2

	deviceEvtDataOffer        uint16 = 0
	deviceEvtSelection        uint16 = 1
	deviceEvtFinished         uint16 = 2
	deviceEvtPrimarySelection uint16 = 3

	sourceOffer   uint16 = 0
	sourceDestroy uint16 = 1

	sourceEvtSend      uint16 = 0
	sourceEvtCancelled uint16 = 1

	offerReceive uint16 = 0
	offerDestroy uint16 = 1
)

// session is the slice of wayland.Session the watcher needs; narrowed so the
// state machine can be driven by a fake transport in tests.
type session interface {
	Bind(iface string, version uint32) (uint32, error)
	NewID() uint32
	Request(objectID uint32, opcode uint16, args ...[]byte) error
	RequestFD(objectID uint32, opcode uint16, fd int, args ...[]byte) error
	SetHandler(id uint32, h wayland.Handler)
	RemoveHandler(id uint32)
}

// Watcher turns data-control selection events into history entries and
// asserts chosen entries back onto the compositor clipboard. It observes both
// the regular clipboard and the primary selection.
type Watcher struct {
	sess  session
	store *History
	log   *zap.Logger

	// monitorOnly disables taking ownership of externally-set selections.
	monitorOnly bool

	mu      sync.Mutex
	seat    uint32
	manager uint32
	device  uint32
	offers  map[uint32][]string // live offer object -> announced mime types

	currentOffer uint32

	// Self-marker: the id of the data-control source we own, plus the
	// suppress flag that keeps the echo of our own set_selection from being
	// re-captured. Identity-based, so a genuine re-copy of identical text is
	// still recorded.
	ownedSource      uint32
	ownedEntry       uint64
	suppressNextRead bool
}

func NewWatcher(sess session, store *History, log *zap.Logger, monitorOnly bool) *Watcher {
	return &Watcher{
		sess:        sess,
		store:       store,
		log:         log,
		monitorOnly: monitorOnly,
		offers:      make(map[uint32][]string),
	}
}

// Setup binds the seat and a data-control manager and creates the data
// device. A compositor offering neither data-control interface is
// ErrUnsupportedCompositor, fatal for the daemon.
func (w *Watcher) Setup() error {
	seat, err := w.sess.Bind("wl_seat", 1)
	if err != nil {
		return err
	}
	w.sess.SetHandler(seat, func(_ uint16, _ *wayland.Args, fd int) {
		if fd >= 0 {
			unix.Close(fd)
		}
	})

	manager, iface, err := w.bindManager()
	if err != nil {
		return err
	}

	device := w.sess.NewID()
	if err := w.sess.Request(manager, managerGetDataDevice, wayland.Uint32(device), wayland.Uint32(seat)); err != nil {
		return fmt.Errorf("clipboard: get_data_device: %w", err)
	}
	w.sess.SetHandler(device, w.onDeviceEvent)

	w.mu.Lock()
	w.seat = seat
	w.manager = manager
	w.device = device
	w.mu.Unlock()

	w.log.Info("clipboard watcher bound",
		zap.String("protocol", iface),
		zap.Uint32("seat", seat),
		zap.Uint32("device", device))
	return nil
}

// bindManager binds ext_data_control when the compositor offers it and falls
// back to zwlr_data_control otherwise.
func (w *Watcher) bindManager() (uint32, string, error) {
	id, err := w.sess.Bind(extManagerIface, 1)
	if err == nil {
		return id, extManagerIface, nil
	}
	if !errors.Is(err, wayland.ErrUnsupportedCompositor) {
		return 0, "", err
	}
	id, err = w.sess.Bind(zwlrManagerIface, 2)
	if err != nil {
		return 0, "", err
	}
	return id, zwlrManagerIface, nil
}

func (w *Watcher) onDeviceEvent(opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	switch opcode {
	case deviceEvtDataOffer:
		id := args.Uint32()
		if args.Err() != nil {
			return
		}
		w.mu.Lock()
		w.offers[id] = nil
		w.mu.Unlock()
		w.sess.SetHandler(id, func(op uint16, a *wayland.Args, fd int) {
			w.onOfferEvent(id, op, a, fd)
		})
	case deviceEvtSelection:
		w.onSelection(args.Uint32(), "clipboard")
	case deviceEvtPrimarySelection:
		w.onSelection(args.Uint32(), "primary")
	case deviceEvtFinished:
		w.log.Warn("data control device finished; clipboard monitoring stopped")
	}
}

func (w *Watcher) onOfferEvent(offerID uint32, opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	if opcode != 0 { // zwlr_data_control_offer_v1 has only the offer event
		return
	}
	mime := args.String()
	if args.Err() != nil {
		return
	}
	w.mu.Lock()
	if list, ok := w.offers[offerID]; ok {
		w.offers[offerID] = append(list, mime)
	}
	w.mu.Unlock()
}

// onSelection handles a selection change on either device role. offerID 0
// means the selection was cleared.
func (w *Watcher) onSelection(offerID uint32, device string) {
	if offerID == 0 {
		w.mu.Lock()
		w.currentOffer = 0
		w.mu.Unlock()
		w.log.Debug("selection cleared", zap.String("device", device))
		return
	}

	w.mu.Lock()
	mimes := w.offers[offerID]
	suppress := w.suppressNextRead
	// The flag covers exactly one echoed selection event.
	w.suppressNextRead = false
	already := offerID == w.currentOffer
	w.currentOffer = offerID
	// Older offers are superseded; forget them so the map stays bounded.
	for id := range w.offers {
		if id != offerID {
			delete(w.offers, id)
			w.sess.RemoveHandler(id)
		}
	}
	w.mu.Unlock()

	if suppress {
		w.log.Debug("ignoring self-asserted selection", zap.String("device", device))
		w.destroyOffer(offerID)
		return
	}
	if already {
		// Same offer announced for clipboard and primary; read it once.
		return
	}

	mime := SelectMime(mimes)
	if mime == "" {
		w.log.Debug("offer carried no readable mime type", zap.Strings("offered", mimes))
		w.destroyOffer(offerID)
		return
	}

	content, err := w.readOffer(offerID, mime)
	w.destroyOffer(offerID)
	if err != nil {
		w.log.Warn("failed to read selection payload",
			zap.String("mime", mime), zap.Error(err))
		return
	}
	if len(content) == 0 {
		w.log.Debug("dropping zero-length selection payload", zap.String("mime", mime))
		return
	}

	entry := &types.ClipboardEntry{
		Mime:        mime,
		Content:     content,
		Kind:        Classify(content, mime),
		Created:     time.Now(),
		Fingerprint: types.ComputeFingerprint(mime, content),
	}
	stored := w.store.InsertOrPromote(entry)
	w.log.Info("captured clipboard entry",
		zap.Uint64("id", stored.ID),
		zap.String("device", device),
		zap.String("mime", mime),
		zap.String("kind", string(stored.Kind)),
		zap.Int("bytes", len(content)))

	// Take ownership so the selection survives the source client exiting.
	if !w.monitorOnly {
		w.Assert(stored)
	}
}

// readOffer requests one mime type through a pipe and reads it to EOF.
func (w *Watcher) readOffer(offerID uint32, mime string) ([]byte, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	r := os.NewFile(uintptr(fds[0]), "clipboard-offer")
	defer r.Close()

	err := w.sess.RequestFD(offerID, offerReceive, fds[1], wayland.String(mime))
	// The compositor holds its own copy of the write end now (or the request
	// failed); closing ours lets the read hit EOF when the source finishes.
	unix.Close(fds[1])
	if err != nil {
		return nil, fmt.Errorf("receive request: %w", err)
	}
	return io.ReadAll(r)
}

func (w *Watcher) destroyOffer(offerID uint32) {
	w.sess.Request(offerID, offerDestroy)
	w.sess.RemoveHandler(offerID)
	w.mu.Lock()
	delete(w.offers, offerID)
	w.mu.Unlock()
}

// Assert makes entry the live clipboard selection via a self-marked data
// source. The suppress flag is installed before set_selection is written so
// the echoed selection event can never be misread as an external change.
func (w *Watcher) Assert(entry *types.ClipboardEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ownedSource != 0 {
		w.sess.Request(w.ownedSource, sourceDestroy)
		w.sess.RemoveHandler(w.ownedSource)
		w.ownedSource = 0
	}

	src := w.sess.NewID()
	if err := w.sess.Request(w.manager, managerCreateDataSource, wayland.Uint32(src)); err != nil {
		w.log.Error("failed to create data source", zap.Error(err))
		return
	}
	w.sess.SetHandler(src, func(op uint16, a *wayland.Args, fd int) {
		w.onSourceEvent(src, op, a, fd)
	})
	for _, m := range offerMimes(entry.Mime) {
		w.sess.Request(src, sourceOffer, wayland.String(m))
	}

	w.ownedSource = src
	w.ownedEntry = entry.ID
	w.suppressNextRead = true

	if err := w.sess.Request(w.device, deviceSetSelection, wayland.Uint32(src)); err != nil {
		w.log.Error("failed to set selection", zap.Error(err))
		w.suppressNextRead = false
		w.ownedSource = 0
		return
	}
	w.log.Debug("asserted clipboard selection", zap.Uint64("id", entry.ID))
}

func (w *Watcher) onSourceEvent(src uint32, opcode uint16, args *wayland.Args, fd int) {
	switch opcode {
	case sourceEvtSend:
		mime := args.String()
		if fd < 0 {
			return
		}
		w.mu.Lock()
		id := w.ownedEntry
		w.mu.Unlock()

		entry, err := w.store.Get(id)
		if err != nil {
			w.log.Warn("send request for entry no longer in history",
				zap.Uint64("id", id), zap.String("mime", mime))
			unix.Close(fd)
			return
		}
		// Write off the dispatch goroutine: a slow paste target must not
		// stall event handling.
		go func(content []byte) {
			f := os.NewFile(uintptr(fd), "clipboard-send")
			defer f.Close()
			if _, err := f.Write(content); err != nil {
				w.log.Warn("failed writing selection data",
					zap.Uint64("id", id), zap.String("mime", mime), zap.Error(err))
			}
		}(entry.Content)

	case sourceEvtCancelled:
		if fd >= 0 {
			unix.Close(fd)
		}
		w.mu.Lock()
		if src == w.ownedSource {
			// An external client took the selection; resume reading.
			w.suppressNextRead = false
			w.ownedSource = 0
			w.ownedEntry = 0
		}
		w.mu.Unlock()
		w.sess.Request(src, sourceDestroy)
		w.sess.RemoveHandler(src)

	default:
		if fd >= 0 {
			unix.Close(fd)
		}
	}
}
