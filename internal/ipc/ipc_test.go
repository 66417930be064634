package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/clipboard"
	"github.com/cursorclip/cursorclip/internal/types"
)

func startServer(t *testing.T, store *clipboard.History) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipc-test.sock")
	srv := NewServer(store, path, zap.NewNop())
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return path
}

func seed(t *testing.T, store *clipboard.History, texts ...string) []uint64 {
	t.Helper()
	ids := make([]uint64, len(texts))
	for i, s := range texts {
		content := []byte(s)
		e := store.InsertOrPromote(&types.ClipboardEntry{
			Mime:        "text/plain",
			Content:     content,
			Kind:        types.KindText,
			Created:     time.Now(),
			Fingerprint: types.ComputeFingerprint("text/plain", content),
		})
		ids[i] = e.ID
	}
	return ids
}

func TestClientServerOperations(t *testing.T) {
	store := clipboard.NewHistory(10, 80, zap.NewNop())
	ids := seed(t, store, "first", "second", "third")
	path := startServer(t, store)

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	list, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Preview != "third" {
		t.Fatalf("List = %+v", list)
	}

	content, mime, err := c.Select(ids[0])
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if string(content) != "first" || mime != "text/plain" {
		t.Errorf("Select returned %q (%s)", content, mime)
	}
	list, _ = c.List()
	if list[0].ID != ids[0] {
		t.Errorf("selected entry not promoted: front = %d", list[0].ID)
	}

	if err := c.SetPinned(ids[1], true); err != nil {
		t.Fatalf("SetPinned: %v", err)
	}
	if err := c.Delete(ids[2]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	list, _ = c.List()
	if len(list) != 1 || list[0].ID != ids[1] || !list[0].Pinned {
		t.Errorf("after Clear: %+v, want only pinned entry", list)
	}
}

func TestNotFoundErrors(t *testing.T) {
	store := clipboard.NewHistory(10, 80, zap.NewNop())
	path := startServer(t, store)

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, _, err := c.Select(42); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("Select missing id: err = %v, want ErrNotFound", err)
	}
	if err := c.Delete(42); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("Delete missing id: err = %v, want ErrNotFound", err)
	}
	if err := c.SetPinned(42, true); !errors.Is(err, clipboard.ErrNotFound) {
		t.Errorf("SetPinned missing id: err = %v, want ErrNotFound", err)
	}

	// The connection survives a not-found error.
	if _, err := c.List(); err != nil {
		t.Errorf("List after errors: %v", err)
	}
}

func TestUnknownOperation(t *testing.T) {
	store := clipboard.NewHistory(10, 80, zap.NewNop())
	path := startServer(t, store)

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.roundtrip(&Request{Op: "explode"}); !errors.Is(err, ErrProtocol) {
		t.Errorf("unknown op: err = %v, want ErrProtocol", err)
	}
}

func TestMalformedRequest(t *testing.T) {
	store := clipboard.NewHistory(10, 80, zap.NewNop())
	path := startServer(t, store)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" || resp.Code != CodeProtocolError {
		t.Errorf("malformed request response = %+v", resp)
	}
}

func TestConcurrentListDuringDelete(t *testing.T) {
	store := clipboard.NewHistory(200, 80, zap.NewNop())
	var texts []string
	for i := 0; i < 100; i++ {
		texts = append(texts, fmt.Sprintf("entry-%d", i))
	}
	ids := seed(t, store, texts...)
	path := startServer(t, store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c, err := Dial(path)
		if err != nil {
			t.Errorf("Dial: %v", err)
			return
		}
		defer c.Close()
		for _, id := range ids {
			if err := c.Delete(id); err != nil {
				t.Errorf("Delete(%d): %v", id, err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		c, err := Dial(path)
		if err != nil {
			t.Errorf("Dial: %v", err)
			return
		}
		defer c.Close()
		for i := 0; i < 50; i++ {
			list, err := c.List()
			if err != nil {
				t.Errorf("List: %v", err)
				return
			}
			// Each reply is a consistent snapshot: ids are unique and the
			// pinned partition leads.
			seen := make(map[uint64]bool, len(list))
			for _, p := range list {
				if seen[p.ID] {
					t.Errorf("duplicate id %d in snapshot", p.ID)
				}
				seen[p.ID] = true
			}
		}
	}()
	wg.Wait()

	if store.Len() != 0 {
		t.Errorf("entries remaining after deletes: %d", store.Len())
	}
}
