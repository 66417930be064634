package ipc

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/cursorclip/cursorclip/internal/types"
)

// Operations the daemon accepts over the control socket.
const (
	OpList   = "list"
	OpSelect = "select"
	OpDelete = "delete"
	OpPin    = "pin"
	OpClear  = "clear"
)

// Error codes carried in error responses.
const (
	CodeNotFound      = "not_found"
	CodeProtocolError = "protocol_error"
)

// ErrProtocol is returned by the client when the daemon rejects a request as
// malformed, or when a reply cannot be decoded.
var ErrProtocol = errors.New("ipc: protocol error")

// Request is one command sent from a client to the daemon. Messages are
// newline-delimited JSON; a connection may carry any number of requests.
type Request struct {
	Op     string `json:"op"`
	ID     uint64 `json:"id,omitempty"`     // select, delete, pin
	Pinned bool   `json:"pinned,omitempty"` // pin
}

// Response is the daemon's reply to a single request.
type Response struct {
	Status  string               `json:"status"` // "ok" or "error"
	Code    string               `json:"code,omitempty"`
	Message string               `json:"message,omitempty"`
	Items   []types.EntryPreview `json:"items,omitempty"`   // list
	Content []byte               `json:"content,omitempty"` // select
	Mime    string               `json:"mime,omitempty"`    // select
}

// SocketPath resolves the control socket location: $XDG_RUNTIME_DIR when set,
// /tmp otherwise.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cursorclip.sock")
	}
	return "/tmp/cursorclip.sock"
}
