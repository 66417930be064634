package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/clipboard"
)

// Server exposes the clipboard history over a unix control socket. Each
// connection is served on its own goroutine; every mutation goes through the
// store, which linearizes them.
type Server struct {
	store *clipboard.History
	log   *zap.Logger
	path  string

	mu sync.Mutex
	ln net.Listener
}

func NewServer(store *clipboard.History, path string, log *zap.Logger) *Server {
	if path == "" {
		path = SocketPath()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, log: log, path: path}
}

// Listen claims the socket, removing a stale one left by a previous run.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ipc: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("ipc server listening", zap.String("socket", s.path))
	return nil
}

// Serve accepts connections until the context is cancelled or the listener
// fails. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Serve before Listen")
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close stops the listener and removes the socket file.
func (s *Server) Close() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
		os.Remove(s.path)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			// EOF is a normal disconnect. Anything else is a malformed
			// message; report it and drop the connection since the stream
			// can no longer be framed.
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				s.log.Debug("malformed ipc request", zap.Error(err))
				enc.Encode(&Response{
					Status:  "error",
					Code:    CodeProtocolError,
					Message: "malformed request: " + err.Error(),
				})
			}
			return
		}
		if err := enc.Encode(s.handle(&req)); err != nil {
			s.log.Debug("ipc write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handle(req *Request) *Response {
	switch req.Op {
	case OpList:
		return &Response{Status: "ok", Items: s.store.List()}

	case OpSelect:
		entry, err := s.store.Select(req.ID)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return &Response{Status: "ok", Content: entry.Content, Mime: entry.Mime}

	case OpDelete:
		if err := s.store.Delete(req.ID); err != nil {
			return errResponse(req.ID, err)
		}
		return &Response{Status: "ok"}

	case OpPin:
		if err := s.store.SetPinned(req.ID, req.Pinned); err != nil {
			return errResponse(req.ID, err)
		}
		return &Response{Status: "ok"}

	case OpClear:
		s.store.Clear()
		return &Response{Status: "ok"}

	default:
		return &Response{
			Status:  "error",
			Code:    CodeProtocolError,
			Message: fmt.Sprintf("unknown operation %q", req.Op),
		}
	}
}

func errResponse(id uint64, err error) *Response {
	if errors.Is(err, clipboard.ErrNotFound) {
		return &Response{
			Status:  "error",
			Code:    CodeNotFound,
			Message: fmt.Sprintf("no entry with id %d", id),
		}
	}
	return &Response{Status: "error", Message: err.Error()}
}
