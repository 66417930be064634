package ipc

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/cursorclip/cursorclip/internal/clipboard"
	"github.com/cursorclip/cursorclip/internal/types"
)

// Client is a connection to the daemon's control socket. It is not safe for
// concurrent use; open one per goroutine.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to the daemon. An empty path uses the default socket
// location.
func Dial(path string) (*Client, error) {
	if path == "" {
		path = SocketPath()
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: connect to daemon at %s: %w", path, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundtrip(req *Request) (*Response, error) {
	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("ipc: send request: %w", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}
	if resp.Status != "ok" {
		switch resp.Code {
		case CodeNotFound:
			return nil, fmt.Errorf("%w: %s", clipboard.ErrNotFound, resp.Message)
		case CodeProtocolError:
			return nil, fmt.Errorf("%w: %s", ErrProtocol, resp.Message)
		default:
			return nil, fmt.Errorf("ipc: daemon error: %s", resp.Message)
		}
	}
	return &resp, nil
}

// List returns the history previews in display order.
func (c *Client) List() ([]types.EntryPreview, error) {
	resp, err := c.roundtrip(&Request{Op: OpList})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Select makes the entry the live clipboard selection and returns its
// content.
func (c *Client) Select(id uint64) (content []byte, mime string, err error) {
	resp, err := c.roundtrip(&Request{Op: OpSelect, ID: id})
	if err != nil {
		return nil, "", err
	}
	return resp.Content, resp.Mime, nil
}

// Delete removes the entry, pinned or not.
func (c *Client) Delete(id uint64) error {
	_, err := c.roundtrip(&Request{Op: OpDelete, ID: id})
	return err
}

// SetPinned pins or unpins the entry.
func (c *Client) SetPinned(id uint64, pinned bool) error {
	_, err := c.roundtrip(&Request{Op: OpPin, ID: id, Pinned: pinned})
	return err
}

// Clear drops every unpinned entry.
func (c *Client) Clear() error {
	_, err := c.roundtrip(&Request{Op: OpClear})
	return err
}
