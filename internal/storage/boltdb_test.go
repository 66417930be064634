package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/types"
)

func testEntry(id uint64, text string) *types.ClipboardEntry {
	content := []byte(text)
	return &types.ClipboardEntry{
		ID:          id,
		Mime:        "text/plain",
		Content:     content,
		Kind:        types.KindText,
		Created:     time.Unix(1700000000+int64(id), 0).UTC(),
		Pinned:      true,
		Fingerprint: types.ComputeFingerprint("text/plain", content),
	}
}

func TestSaveAndLoadPinned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinned.db")
	s, err := NewBoltStorage(StorageConfig{DBPath: path, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewBoltStorage: %v", err)
	}

	want := []*types.ClipboardEntry{
		testEntry(3, "keep me"),
		testEntry(1, "me too"),
	}
	if err := s.SavePinned(want); err != nil {
		t.Fatalf("SavePinned: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: entries come back in the order they were saved.
	s, err = NewBoltStorage(StorageConfig{DBPath: path, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.LoadPinned()
	if err != nil {
		t.Fatalf("LoadPinned: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pinned entries (-want +got):\n%s", diff)
	}
}

func TestSavePinnedRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinned.db")
	s, err := NewBoltStorage(StorageConfig{DBPath: path, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewBoltStorage: %v", err)
	}
	defer s.Close()

	if err := s.SavePinned([]*types.ClipboardEntry{testEntry(1, "a"), testEntry(2, "b")}); err != nil {
		t.Fatalf("SavePinned: %v", err)
	}
	// A shrunk set fully replaces the stored one.
	if err := s.SavePinned([]*types.ClipboardEntry{testEntry(2, "b")}); err != nil {
		t.Fatalf("SavePinned: %v", err)
	}

	got, err := s.LoadPinned()
	if err != nil {
		t.Fatalf("LoadPinned: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("after rewrite: %+v, want only id 2", got)
	}

	// Empty set clears the bucket.
	if err := s.SavePinned(nil); err != nil {
		t.Fatalf("SavePinned(nil): %v", err)
	}
	got, err = s.LoadPinned()
	if err != nil {
		t.Fatalf("LoadPinned: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("after clearing: %+v", got)
	}
}

func TestLoadPinnedEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinned.db")
	s, err := NewBoltStorage(StorageConfig{DBPath: path, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewBoltStorage: %v", err)
	}
	defer s.Close()

	got, err := s.LoadPinned()
	if err != nil {
		t.Fatalf("LoadPinned: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh database returned %d entries", len(got))
	}
}
