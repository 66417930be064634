package clipboard

import "strings"

// Preferred MIME types in negotiation order: plain text first, then URL
// lists, then image formats, then anything generic.
var mimePreference = []string{
	"text/plain;charset=utf-8",
	"text/plain",
	"UTF8_STRING",
	"STRING",
	"text/uri-list",
	"image/png",
	"image/jpeg",
	"image/bmp",
	"application/octet-stream",
}

// SelectMime picks the best offered MIME type to read. Video streams are
// never read; an empty result means the offer has nothing usable.
func SelectMime(offered []string) string {
	for _, want := range mimePreference {
		for _, m := range offered {
			if m == want {
				return m
			}
		}
	}
	// Fall back to any text type, then any non-video type.
	for _, m := range offered {
		if strings.HasPrefix(m, "text/") {
			return m
		}
	}
	for _, m := range offered {
		if !strings.HasPrefix(m, "video/") {
			return m
		}
	}
	return ""
}

// offerMimes lists the MIME types to advertise when re-asserting an entry.
// Text payloads are offered under the common text aliases so any paste target
// can negotiate; other payloads are offered as stored.
func offerMimes(mime string) []string {
	if !strings.HasPrefix(mime, "text/plain") && mime != "UTF8_STRING" && mime != "STRING" {
		return []string{mime}
	}
	aliases := []string{"text/plain;charset=utf-8", "text/plain", "UTF8_STRING", "STRING"}
	out := []string{mime}
	for _, a := range aliases {
		if a != mime {
			out = append(out, a)
		}
	}
	return out
}
