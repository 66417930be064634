package clipboard

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cursorclip/cursorclip/internal/types"
)

// ErrNotFound is returned when an operation names an id that is not (or no
// longer) in the history.
var ErrNotFound = errors.New("clipboard: no entry with that id")

const (
	// DefaultCapacity bounds the history when no capacity is configured.
	DefaultCapacity = 100
	// DefaultPreviewLength bounds listing previews, in runes.
	DefaultPreviewLength = 200
)

// Asserter pushes an entry back onto the live clipboard. Wired to
// Watcher.Assert by the daemon; nil in clients and tests that don't care.
type Asserter func(entry *types.ClipboardEntry)

// PinnedSink observes the pinned set after each mutation, for persistence.
type PinnedSink func(pinned []*types.ClipboardEntry)

// History is the authoritative clipboard history: bounded, deduplicated by
// fingerprint, pinned entries partitioned ahead of unpinned ones, and
// most-recently-used first within each partition. All operations are
// linearized by one mutex.
type History struct {
	mu         sync.Mutex
	entries    []*types.ClipboardEntry // pinned partition first
	capacity   int
	previewLen int
	nextID     uint64

	assert     Asserter
	pinnedSink PinnedSink
	log        *zap.Logger
}

func NewHistory(capacity, previewLen int, log *zap.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &History{
		capacity:   capacity,
		previewLen: previewLen,
		nextID:     1,
		log:        log,
	}
}

// SetAsserter installs the callback Select uses to re-assert the chosen
// entry on the live clipboard.
func (h *History) SetAsserter(a Asserter) {
	h.mu.Lock()
	h.assert = a
	h.mu.Unlock()
}

// SetPinnedSink installs the persistence hook.
func (h *History) SetPinnedSink(s PinnedSink) {
	h.mu.Lock()
	h.pinnedSink = s
	h.mu.Unlock()
}

// InsertOrPromote adds a captured entry, or, when its fingerprint is already
// present, promotes the existing entry to the most-recent position of its
// partition keeping its id. The returned entry is a copy carrying the
// assigned id.
func (h *History) InsertOrPromote(e *types.ClipboardEntry) *types.ClipboardEntry {
	h.mu.Lock()

	if i := h.indexByFingerprint(e.Fingerprint); i >= 0 {
		cur := h.entries[i]
		cur.Created = e.Created
		h.removeAt(i)
		h.insertFront(cur)
		out := cur.Clone()
		h.mu.Unlock()
		h.notifyPinned()
		return out
	}

	stored := e.Clone()
	stored.ID = h.nextID
	h.nextID++
	stored.Pinned = false
	if stored.Created.IsZero() {
		stored.Created = time.Now()
	}
	h.insertFront(stored)

	if len(h.entries) > h.capacity {
		// Entries are ordered pinned-first and MRU within each partition, so
		// the oldest unpinned entry sits at the tail. When the tail is the
		// entry just inserted, everything else is pinned; the oldest pinned
		// entry goes instead so the new capture is never dropped.
		i := len(h.entries) - 1
		if h.entries[i] == stored {
			i = h.firstUnpinned() - 1
		}
		evicted := h.entries[i]
		h.removeAt(i)
		h.log.Debug("evicted history entry",
			zap.Uint64("id", evicted.ID),
			zap.Bool("pinned", evicted.Pinned))
	}

	out := stored.Clone()
	h.mu.Unlock()
	h.notifyPinned()
	return out
}

// List snapshots the history in display order as previews.
func (h *History) List() []types.EntryPreview {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.EntryPreview, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Preview(h.previewLen)
	}
	return out
}

// Get returns a copy of the entry with the given id.
func (h *History) Get(id uint64) (*types.ClipboardEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.indexByID(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return h.entries[i].Clone(), nil
}

// Select promotes the entry to most-recent within its partition and hands it
// to the asserter so it becomes the live clipboard selection. The store
// mutation completes before the asserter runs.
func (h *History) Select(id uint64) (*types.ClipboardEntry, error) {
	h.mu.Lock()
	i := h.indexByID(id)
	if i < 0 {
		h.mu.Unlock()
		return nil, ErrNotFound
	}
	e := h.entries[i]
	h.removeAt(i)
	h.insertFront(e)
	out := e.Clone()
	assert := h.assert
	h.mu.Unlock()

	if assert != nil {
		assert(out)
	}
	h.notifyPinned()
	return out, nil
}

// Delete removes the entry regardless of pinned state.
func (h *History) Delete(id uint64) error {
	h.mu.Lock()
	i := h.indexByID(id)
	if i < 0 {
		h.mu.Unlock()
		return ErrNotFound
	}
	h.removeAt(i)
	h.mu.Unlock()
	h.notifyPinned()
	return nil
}

// SetPinned pins or unpins an entry; a no-op when already in that state.
// Pinning moves the entry to the front of the pinned partition, unpinning to
// the front of the unpinned one.
func (h *History) SetPinned(id uint64, pinned bool) error {
	h.mu.Lock()
	i := h.indexByID(id)
	if i < 0 {
		h.mu.Unlock()
		return ErrNotFound
	}
	e := h.entries[i]
	if e.Pinned == pinned {
		h.mu.Unlock()
		return nil
	}
	h.removeAt(i)
	e.Pinned = pinned
	h.insertFront(e)
	h.mu.Unlock()
	h.notifyPinned()
	return nil
}

// Clear removes every unpinned entry; pinned entries survive. The survivors
// move to a fresh slice so the dropped payloads are collectable right away.
func (h *History) Clear() {
	h.mu.Lock()
	var kept []*types.ClipboardEntry
	for _, e := range h.entries {
		if e.Pinned {
			kept = append(kept, e)
		}
	}
	h.entries = kept
	h.mu.Unlock()
	h.notifyPinned()
}

// Len reports the current entry count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// RestorePinned seeds persisted pinned entries at startup, preserving their
// stored order at the tail of the pinned partition. Ids are reassigned so the
// monotonic id guarantee holds within this process.
func (h *History) RestorePinned(entries []*types.ClipboardEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range entries {
		if len(h.entries) >= h.capacity {
			break
		}
		r := e.Clone()
		r.ID = h.nextID
		h.nextID++
		r.Pinned = true
		if r.Fingerprint == 0 {
			r.Fingerprint = types.ComputeFingerprint(r.Mime, r.Content)
		}
		if h.indexByFingerprint(r.Fingerprint) >= 0 {
			continue
		}
		// Append behind the existing pinned partition.
		i := h.firstUnpinned()
		h.entries = append(h.entries, nil)
		copy(h.entries[i+1:], h.entries[i:])
		h.entries[i] = r
	}
}

// callers must not hold h.mu
func (h *History) notifyPinned() {
	h.mu.Lock()
	sink := h.pinnedSink
	var pinned []*types.ClipboardEntry
	if sink != nil {
		for _, e := range h.entries {
			if e.Pinned {
				pinned = append(pinned, e.Clone())
			}
		}
	}
	h.mu.Unlock()
	if sink != nil {
		sink(pinned)
	}
}

func (h *History) indexByID(id uint64) int {
	for i, e := range h.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (h *History) indexByFingerprint(fp uint64) int {
	for i, e := range h.entries {
		if e.Fingerprint == fp {
			return i
		}
	}
	return -1
}

func (h *History) firstUnpinned() int {
	for i, e := range h.entries {
		if !e.Pinned {
			return i
		}
	}
	return len(h.entries)
}

// insertFront places the entry at the most-recent position of its partition:
// index 0 for pinned entries, the first unpinned slot otherwise.
func (h *History) insertFront(e *types.ClipboardEntry) {
	i := 0
	if !e.Pinned {
		i = h.firstUnpinned()
	}
	h.entries = append(h.entries, nil)
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = e
}

func (h *History) removeAt(i int) {
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
}
