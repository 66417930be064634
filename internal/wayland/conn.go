package wayland

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

var le = binary.LittleEndian

// ErrCompositorUnavailable indicates that no Wayland session endpoint could be
// reached. Fatal at startup.
var ErrCompositorUnavailable = errors.New("wayland: compositor unavailable")

// ErrUnsupportedCompositor indicates that the compositor does not expose a
// global interface this program requires. Fatal at startup, never retried.
var ErrUnsupportedCompositor = errors.New("wayland: required interface not supported by compositor")

// conn is a buffered Wayland wire connection. Messages are 8-byte headers
// (object id, then opcode in the low 16 bits and size in the high 16) followed
// by the argument payload. File descriptors ride alongside as SCM_RIGHTS
// ancillary data and are queued until a message consumes one.
type conn struct {
	uc         *net.UnixConn
	inBuf      []byte
	pendingFds []int
}

// socketPath resolves the compositor endpoint from the session environment.
func socketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR not set", ErrCompositorUnavailable)
	}
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	return filepath.Join(runtimeDir, display), nil
}

func dial(path string) (*conn, error) {
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrCompositorUnavailable, path, err)
	}
	return &conn{uc: uc}, nil
}

func (c *conn) close() error {
	for _, fd := range c.pendingFds {
		unix.Close(fd)
	}
	c.pendingFds = nil
	return c.uc.Close()
}

func (c *conn) setReadDeadline(t time.Time) error {
	return c.uc.SetReadDeadline(t)
}

// writeMsg sends one request. fd < 0 means no file descriptor is attached.
func (c *conn) writeMsg(objectID uint32, opcode uint16, fd int, args []byte) error {
	size := 8 + len(args)
	if size > 0xffff {
		return fmt.Errorf("wayland: request too large (%d bytes)", size)
	}
	buf := make([]byte, size)
	le.PutUint32(buf[0:], objectID)
	le.PutUint32(buf[4:], uint32(opcode)|uint32(size)<<16)
	copy(buf[8:], args)

	if fd < 0 {
		_, err := c.uc.Write(buf)
		return err
	}
	oob := unix.UnixRights(fd)
	_, _, err := c.uc.WriteMsgUnix(buf, oob, nil)
	return err
}

// readMsg returns the next complete event. fd is -1 unless an SCM_RIGHTS
// descriptor was queued for this message.
func (c *conn) readMsg() (objectID uint32, opcode uint16, payload []byte, fd int, err error) {
	fd = -1
	for {
		if len(c.inBuf) >= 8 {
			sizeOpcode := le.Uint32(c.inBuf[4:8])
			size := int(sizeOpcode >> 16)
			if size < 8 {
				err = fmt.Errorf("wayland: malformed message header (size %d)", size)
				return
			}
			if len(c.inBuf) >= size {
				objectID = le.Uint32(c.inBuf[0:4])
				opcode = uint16(sizeOpcode & 0xffff)
				payload = append([]byte(nil), c.inBuf[8:size]...)
				c.inBuf = c.inBuf[size:]
				if len(c.pendingFds) > 0 {
					fd = c.pendingFds[0]
					c.pendingFds = c.pendingFds[1:]
				}
				return
			}
		}

		buf := make([]byte, 4096)
		oob := make([]byte, unix.CmsgSpace(8*4)) // up to 8 descriptors per read
		n, oobn, _, _, recvErr := c.uc.ReadMsgUnix(buf, oob)
		if recvErr != nil {
			err = recvErr
			return
		}
		if n == 0 {
			err = errors.New("wayland: connection closed by compositor")
			return
		}
		c.inBuf = append(c.inBuf, buf[:n]...)

		if oobn > 0 {
			scms, parseErr := unix.ParseSocketControlMessage(oob[:oobn])
			if parseErr != nil {
				continue
			}
			for _, scm := range scms {
				rights, parseErr := unix.ParseUnixRights(&scm)
				if parseErr != nil {
					continue
				}
				c.pendingFds = append(c.pendingFds, rights...)
			}
		}
	}
}
