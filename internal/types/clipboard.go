package types

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Kind classifies a clipboard entry's content.
type Kind string

const (
	KindText     Kind = "text"
	KindURL      Kind = "url"
	KindCode     Kind = "code"
	KindPassword Kind = "password"
	KindFilePath Kind = "filepath"
	KindImage    Kind = "image"
)

// ClipboardEntry is a captured clipboard item held by the history store.
type ClipboardEntry struct {
	ID          uint64    `json:"id"`
	Mime        string    `json:"mime"`
	Content     []byte    `json:"content"`
	Kind        Kind      `json:"kind"`
	Created     time.Time `json:"created"`
	Pinned      bool      `json:"pinned"`
	Fingerprint uint64    `json:"fingerprint"`
}

// EntryPreview is the listing form of an entry: metadata plus a truncated
// preview string, never the full payload.
type EntryPreview struct {
	ID      uint64 `json:"id"`
	Kind    Kind   `json:"kind"`
	Preview string `json:"preview"`
	Created int64  `json:"created"`
	Pinned  bool   `json:"pinned"`
}

// Clone returns a copy whose Content does not alias the receiver's.
func (e *ClipboardEntry) Clone() *ClipboardEntry {
	c := *e
	c.Content = append([]byte(nil), e.Content...)
	return &c
}

// Preview renders the entry for a history listing, truncating text content to
// maxRunes. Binary content is summarized as "<mime n bytes>".
func (e *ClipboardEntry) Preview(maxRunes int) EntryPreview {
	p := EntryPreview{
		ID:      e.ID,
		Kind:    e.Kind,
		Created: e.Created.Unix(),
		Pinned:  e.Pinned,
	}
	if IsTextMime(e.Mime) && utf8.Valid(e.Content) {
		p.Preview = truncateRunes(string(e.Content), maxRunes)
	} else {
		p.Preview = fmt.Sprintf("<%s %d bytes>", e.Mime, len(e.Content))
	}
	return p
}

func truncateRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// IsTextMime reports whether a MIME type carries UTF-8 text.
func IsTextMime(mime string) bool {
	return strings.HasPrefix(mime, "text/") ||
		mime == "UTF8_STRING" ||
		mime == "STRING" ||
		mime == "TEXT"
}

// ComputeFingerprint derives the deduplication key for a payload. Text content
// is trimmed of surrounding whitespace first so a re-copy with a trailing
// newline still collapses onto the existing entry.
func ComputeFingerprint(mime string, content []byte) uint64 {
	if IsTextMime(mime) {
		content = bytes.TrimSpace(content)
	}
	d := xxhash.New()
	d.WriteString(mime)
	d.Write([]byte{0})
	d.Write(content)
	return d.Sum64()
}
