package wayland

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Core protocol object ids and opcodes. The display is always object 1; we
// place the registry at 2 and allocate everything else dynamically.
const (
	idDisplay  uint32 = 1
	idRegistry uint32 = 2

	displaySync        uint16 = 0
	displayGetRegistry uint16 = 1

	displayEvtError    uint16 = 0
	displayEvtDeleteID uint16 = 1

	registryBind      uint16 = 0
	registryEvtGlobal uint16 = 0
	registryEvtRemove uint16 = 1

	callbackEvtDone uint16 = 0
)

// Handler receives every event dispatched to one bound object. fd is -1
// unless the event delivered a file descriptor; the handler owns it.
type Handler func(opcode uint16, args *Args, fd int)

// Global is one interface advertised by the compositor registry.
type Global struct {
	Name    uint32
	Version uint32
}

// Session owns the connection to the compositor: global discovery, object id
// allocation, request serialization and event dispatch. Dispatch/Run must be
// driven from a single goroutine; requests and handler registration may come
// from any goroutine.
type Session struct {
	c   *conn
	log *zap.Logger

	wmu    sync.Mutex // serializes socket writes
	nextID atomic.Uint32

	hmu      sync.Mutex
	handlers map[uint32]Handler

	gmu     sync.Mutex
	globals map[string]Global

	closed atomic.Bool
}

// Connect establishes the compositor connection and performs the initial
// registry roundtrip. Fails with ErrCompositorUnavailable when no session
// endpoint is reachable.
func Connect(log *zap.Logger) (*Session, error) {
	path, err := socketPath()
	if err != nil {
		return nil, err
	}
	c, err := dial(path)
	if err != nil {
		return nil, err
	}

	s := &Session{
		c:        c,
		log:      log,
		handlers: make(map[uint32]Handler),
		globals:  make(map[string]Global),
	}
	s.nextID.Store(idRegistry) // next allocation returns idRegistry+1

	s.SetHandler(idRegistry, s.onRegistryEvent)
	if err := s.Request(idDisplay, displayGetRegistry, Uint32(idRegistry)); err != nil {
		c.close()
		return nil, fmt.Errorf("wayland: get_registry: %w", err)
	}
	if err := s.Roundtrip(); err != nil {
		c.close()
		return nil, fmt.Errorf("wayland: initial roundtrip: %w", err)
	}
	log.Debug("wayland session established",
		zap.String("socket", path),
		zap.Int("globals", len(s.globals)))
	return s, nil
}

func (s *Session) Close() error {
	s.closed.Store(true)
	return s.c.close()
}

// NewID allocates a fresh client-range object id.
func (s *Session) NewID() uint32 {
	return s.nextID.Add(1)
}

// SetReadDeadline bounds the next Dispatch calls; used by one-shot consumers
// that must not wait on the compositor forever.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.c.setReadDeadline(t)
}

// Request sends one request with no file descriptor attached.
func (s *Session) Request(objectID uint32, opcode uint16, args ...[]byte) error {
	return s.requestFD(objectID, opcode, -1, args)
}

// RequestFD sends one request carrying fd as SCM_RIGHTS ancillary data.
func (s *Session) RequestFD(objectID uint32, opcode uint16, fd int, args ...[]byte) error {
	return s.requestFD(objectID, opcode, fd, args)
}

func (s *Session) requestFD(objectID uint32, opcode uint16, fd int, args [][]byte) error {
	var body []byte
	for _, a := range args {
		body = append(body, a...)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.c.writeMsg(objectID, opcode, fd, body)
}

// Bind binds the named global at up to the requested version and returns the
// new object id. Missing globals are ErrUnsupportedCompositor.
func (s *Session) Bind(iface string, version uint32) (uint32, error) {
	s.gmu.Lock()
	g, ok := s.globals[iface]
	s.gmu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%s: %w", iface, ErrUnsupportedCompositor)
	}
	if g.Version < version {
		version = g.Version
	}
	id := s.NewID()
	err := s.Request(idRegistry, registryBind,
		Uint32(g.Name), String(iface), Uint32(version), Uint32(id))
	if err != nil {
		return 0, fmt.Errorf("wayland: bind %s: %w", iface, err)
	}
	return id, nil
}

// HasGlobal reports whether the compositor advertised the interface.
func (s *Session) HasGlobal(iface string) bool {
	s.gmu.Lock()
	defer s.gmu.Unlock()
	_, ok := s.globals[iface]
	return ok
}

func (s *Session) SetHandler(id uint32, h Handler) {
	s.hmu.Lock()
	s.handlers[id] = h
	s.hmu.Unlock()
}

func (s *Session) RemoveHandler(id uint32) {
	s.hmu.Lock()
	delete(s.handlers, id)
	s.hmu.Unlock()
}

func (s *Session) onRegistryEvent(opcode uint16, args *Args, fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
	switch opcode {
	case registryEvtGlobal:
		name := args.Uint32()
		iface := args.String()
		version := args.Uint32()
		if args.Err() != nil {
			return
		}
		s.gmu.Lock()
		s.globals[iface] = Global{Name: name, Version: version}
		s.gmu.Unlock()
	case registryEvtRemove:
		name := args.Uint32()
		s.gmu.Lock()
		for iface, g := range s.globals {
			if g.Name == name {
				delete(s.globals, iface)
			}
		}
		s.gmu.Unlock()
	}
}

// Dispatch reads and routes one event. Protocol errors reported by the
// display are returned as errors and are terminal for the session.
func (s *Session) Dispatch() error {
	objectID, opcode, payload, fd, err := s.c.readMsg()
	if err != nil {
		return err
	}

	if objectID == idDisplay {
		if fd >= 0 {
			unix.Close(fd)
		}
		switch opcode {
		case displayEvtError:
			args := NewArgs(payload)
			objID := args.Uint32()
			code := args.Uint32()
			msg := args.String()
			return fmt.Errorf("wayland: protocol error on object %d (code %d): %s", objID, code, msg)
		case displayEvtDeleteID:
			args := NewArgs(payload)
			s.RemoveHandler(args.Uint32())
		}
		return nil
	}

	s.hmu.Lock()
	h, ok := s.handlers[objectID]
	s.hmu.Unlock()
	if !ok {
		if fd >= 0 {
			unix.Close(fd)
		}
		s.log.Debug("event for unbound object dropped",
			zap.Uint32("object", objectID),
			zap.Uint16("opcode", opcode))
		return nil
	}
	h(opcode, NewArgs(payload), fd)
	return nil
}

// Roundtrip issues wl_display.sync and dispatches events until the callback
// fires, guaranteeing all prior requests were processed by the compositor.
func (s *Session) Roundtrip() error {
	cb := s.NewID()
	done := false
	s.SetHandler(cb, func(opcode uint16, _ *Args, fd int) {
		if fd >= 0 {
			unix.Close(fd)
		}
		if opcode == callbackEvtDone {
			done = true
		}
	})
	defer s.RemoveHandler(cb)

	if err := s.Request(idDisplay, displaySync, Uint32(cb)); err != nil {
		return err
	}
	for !done {
		if err := s.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches events until the context is cancelled or the connection
// fails. Connection loss is terminal: callers must exit rather than serve
// stale clipboard state from a dead session.
func (s *Session) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	for {
		if err := s.Dispatch(); err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return nil
			}
			return err
		}
	}
}
