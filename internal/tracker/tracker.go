package tracker

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/cursorclip/cursorclip/internal/wayland"
)

var (
	// ErrNoPointerDevice means the seat advertises no pointer capability.
	ErrNoPointerDevice = errors.New("tracker: seat has no pointer device")
	// ErrCaptureTimeout means the pointer never entered the capture surface
	// within the deadline.
	ErrCaptureTimeout = errors.New("tracker: pointer capture timed out")
)

// Protocol opcodes used by the capture surface.
const (
	compositorCreateSurface uint16 = 0

	surfaceDestroy uint16 = 0
	surfaceAttach  uint16 = 1
	surfaceDamage  uint16 = 2
	surfaceCommit  uint16 = 6

	surfaceEvtEnter uint16 = 0

	seatGetPointer uint16 = 0

	seatEvtCapabilities uint16 = 0

	seatCapPointer uint32 = 1

	pointerEvtEnter  uint16 = 0
	pointerEvtMotion uint16 = 2

	shmCreatePool uint16 = 0
	shmFormatARGB uint32 = 0

	poolCreateBuffer uint16 = 0
	poolDestroy      uint16 = 1

	bufferDestroy uint16 = 0

	layerShellGetLayerSurface uint16 = 0
	layerOverlay              uint32 = 3

	layerSurfaceSetSize          uint16 = 0
	layerSurfaceSetAnchor        uint16 = 1
	layerSurfaceSetExclusiveZone uint16 = 2
	layerSurfaceSetKeyboardInter uint16 = 4
	layerSurfaceAckConfigure     uint16 = 6
	layerSurfaceDestroy          uint16 = 7

	layerSurfaceEvtConfigure uint16 = 0
	layerSurfaceEvtClosed    uint16 = 1

	anchorAll uint32 = 15 // top | bottom | left | right
)

// Sample is one observed pointer position in surface-local coordinates.
// Output is the wl_output object the surface entered, 0 when the compositor
// never said.
type Sample struct {
	X      float64
	Y      float64
	Output uint32
}

// Tracker captures the pointer position by mapping a transparent fullscreen
// overlay surface and waiting for the pointer to enter it. The surface is
// torn down as soon as one sample is taken.
type Tracker struct {
	sess *wayland.Session
	log  *zap.Logger

	mu         sync.Mutex
	sample     Sample
	haveSample bool
	closed     bool
	seatCaps   uint32
	haveCaps   bool
	configure  *configureEvent

	surface uint32
	shmFD   int
	shmData []byte
}

type configureEvent struct {
	serial uint32
	width  uint32
	height uint32
}

func New(sess *wayland.Session, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{sess: sess, log: log, shmFD: -1}
}

// Capture maps the overlay, waits for one pointer sample, and tears the
// overlay down. The timeout bounds the whole exchange.
func (t *Tracker) Capture(timeout time.Duration) (Sample, error) {
	deadline := time.Now().Add(timeout)
	defer t.cleanup()

	seat, err := t.sess.Bind("wl_seat", 5)
	if err != nil {
		return Sample{}, err
	}
	t.sess.SetHandler(seat, t.onSeatEvent)

	compositor, err := t.sess.Bind("wl_compositor", 4)
	if err != nil {
		return Sample{}, err
	}
	shm, err := t.sess.Bind("wl_shm", 1)
	if err != nil {
		return Sample{}, err
	}
	t.sess.SetHandler(shm, func(_ uint16, _ *wayland.Args, fd int) {
		if fd >= 0 {
			unix.Close(fd)
		}
	})
	layerShell, err := t.sess.Bind("zwlr_layer_shell_v1", 1)
	if err != nil {
		return Sample{}, err
	}

	// Seat capabilities arrive on the roundtrip. No pointer bit is fatal.
	if err := t.sess.Roundtrip(); err != nil {
		return Sample{}, err
	}
	t.mu.Lock()
	caps, have := t.seatCaps, t.haveCaps
	t.mu.Unlock()
	if !have || caps&seatCapPointer == 0 {
		return Sample{}, ErrNoPointerDevice
	}

	pointer := t.sess.NewID()
	if err := t.sess.Request(seat, seatGetPointer, wayland.Uint32(pointer)); err != nil {
		return Sample{}, err
	}
	t.sess.SetHandler(pointer, t.onPointerEvent)

	surface := t.sess.NewID()
	if err := t.sess.Request(compositor, compositorCreateSurface, wayland.Uint32(surface)); err != nil {
		return Sample{}, err
	}
	t.surface = surface
	t.sess.SetHandler(surface, t.onSurfaceEvent)

	layerSurface := t.sess.NewID()
	if err := t.sess.Request(layerShell, layerShellGetLayerSurface,
		wayland.Uint32(layerSurface),
		wayland.Uint32(surface),
		wayland.Uint32(0), // output: compositor picks
		wayland.Uint32(layerOverlay),
		wayland.String("cursorclip-capture"),
	); err != nil {
		return Sample{}, err
	}
	t.sess.SetHandler(layerSurface, t.onLayerSurfaceEvent)

	// Fullscreen, invisible, no keyboard focus, no exclusive zone.
	t.sess.Request(layerSurface, layerSurfaceSetSize, wayland.Uint32(0), wayland.Uint32(0))
	t.sess.Request(layerSurface, layerSurfaceSetAnchor, wayland.Uint32(anchorAll))
	t.sess.Request(layerSurface, layerSurfaceSetExclusiveZone, wayland.Int32(-1))
	t.sess.Request(layerSurface, layerSurfaceSetKeyboardInter, wayland.Uint32(0))
	if err := t.sess.Request(surface, surfaceCommit); err != nil {
		return Sample{}, err
	}

	// First configure carries the size to render at.
	cfg, err := t.waitConfigure(deadline)
	if err != nil {
		return Sample{}, err
	}
	if err := t.sess.Request(layerSurface, layerSurfaceAckConfigure, wayland.Uint32(cfg.serial)); err != nil {
		return Sample{}, err
	}
	if err := t.attachBuffer(shm, surface, cfg.width, cfg.height); err != nil {
		return Sample{}, err
	}

	sample, err := t.waitSample(deadline)
	if err != nil {
		return Sample{}, err
	}

	// Unmap before returning so the overlay never lingers over the desktop.
	t.sess.Request(layerSurface, layerSurfaceDestroy)
	t.sess.Request(surface, surfaceDestroy)
	t.sess.RemoveHandler(layerSurface)
	t.sess.RemoveHandler(surface)
	t.sess.RemoveHandler(pointer)

	t.log.Debug("pointer sample captured",
		zap.Float64("x", sample.X),
		zap.Float64("y", sample.Y))
	return sample, nil
}

// attachBuffer backs the surface with a zeroed (fully transparent) ARGB
// buffer of the configured size.
func (t *Tracker) attachBuffer(shm, surface uint32, width, height uint32) error {
	if width == 0 || height == 0 {
		width, height = 1, 1
	}
	stride := width * 4
	size := int(stride * height)

	fd, err := unix.MemfdCreate("cursorclip-shm", unix.MFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("tracker: memfd: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return fmt.Errorf("tracker: ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("tracker: mmap: %w", err)
	}
	t.shmFD = fd
	t.shmData = data

	pool := t.sess.NewID()
	if err := t.sess.RequestFD(shm, shmCreatePool, fd,
		wayland.Uint32(pool), wayland.Int32(int32(size))); err != nil {
		return err
	}
	buffer := t.sess.NewID()
	if err := t.sess.Request(pool, poolCreateBuffer,
		wayland.Uint32(buffer),
		wayland.Int32(0),
		wayland.Int32(int32(width)),
		wayland.Int32(int32(height)),
		wayland.Int32(int32(stride)),
		wayland.Uint32(shmFormatARGB),
	); err != nil {
		return err
	}
	t.sess.Request(pool, poolDestroy)
	t.sess.SetHandler(buffer, func(op uint16, _ *wayland.Args, fd int) {
		if fd >= 0 {
			unix.Close(fd)
		}
		// release event; nothing to recycle, Capture is one-shot
	})

	if err := t.sess.Request(surface, surfaceAttach,
		wayland.Uint32(buffer), wayland.Int32(0), wayland.Int32(0)); err != nil {
		return err
	}
	t.sess.Request(surface, surfaceDamage,
		wayland.Int32(0), wayland.Int32(0),
		wayland.Int32(int32(width)), wayland.Int32(int32(height)))
	return t.sess.Request(surface, surfaceCommit)
}

func (t *Tracker) waitConfigure(deadline time.Time) (configureEvent, error) {
	for {
		t.mu.Lock()
		cfg := t.configure
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return configureEvent{}, errors.New("tracker: capture surface closed by compositor")
		}
		if cfg != nil {
			return *cfg, nil
		}
		if err := t.dispatchOne(deadline); err != nil {
			return configureEvent{}, err
		}
	}
}

func (t *Tracker) waitSample(deadline time.Time) (Sample, error) {
	for {
		t.mu.Lock()
		s, have := t.sample, t.haveSample
		closed := t.closed
		t.mu.Unlock()
		if have {
			return s, nil
		}
		if closed {
			return Sample{}, errors.New("tracker: capture surface closed by compositor")
		}
		if err := t.dispatchOne(deadline); err != nil {
			return Sample{}, err
		}
	}
}

func (t *Tracker) dispatchOne(deadline time.Time) error {
	if !time.Now().Before(deadline) {
		return ErrCaptureTimeout
	}
	if err := t.sess.SetReadDeadline(deadline); err != nil {
		return err
	}
	if err := t.sess.Dispatch(); err != nil {
		if os.IsTimeout(err) {
			return ErrCaptureTimeout
		}
		return err
	}
	return nil
}

func (t *Tracker) onSeatEvent(opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	if opcode != seatEvtCapabilities {
		return
	}
	caps := args.Uint32()
	if args.Err() != nil {
		return
	}
	t.mu.Lock()
	t.seatCaps = caps
	t.haveCaps = true
	t.mu.Unlock()
}

func (t *Tracker) onSurfaceEvent(opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	if opcode != surfaceEvtEnter {
		return
	}
	output := args.Uint32()
	t.mu.Lock()
	t.sample.Output = output
	t.mu.Unlock()
}

func (t *Tracker) onPointerEvent(opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	switch opcode {
	case pointerEvtEnter:
		args.Uint32() // serial
		args.Uint32() // surface
		x := args.Fixed()
		y := args.Fixed()
		if args.Err() != nil {
			return
		}
		t.setSample(x, y)
	case pointerEvtMotion:
		args.Uint32() // time
		x := args.Fixed()
		y := args.Fixed()
		if args.Err() != nil {
			return
		}
		t.setSample(x, y)
	}
}

func (t *Tracker) setSample(x, y float64) {
	t.mu.Lock()
	if !t.haveSample {
		t.sample.X = x
		t.sample.Y = y
		t.haveSample = true
	}
	t.mu.Unlock()
}

func (t *Tracker) onLayerSurfaceEvent(opcode uint16, args *wayland.Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	switch opcode {
	case layerSurfaceEvtConfigure:
		serial := args.Uint32()
		width := args.Uint32()
		height := args.Uint32()
		if args.Err() != nil {
			return
		}
		t.mu.Lock()
		t.configure = &configureEvent{serial: serial, width: width, height: height}
		t.mu.Unlock()
	case layerSurfaceEvtClosed:
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	}
}

func (t *Tracker) cleanup() {
	if t.shmData != nil {
		unix.Munmap(t.shmData)
		t.shmData = nil
	}
	if t.shmFD >= 0 {
		unix.Close(t.shmFD)
		t.shmFD = -1
	}
}
