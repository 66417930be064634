package clipboard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSelectMime(t *testing.T) {
	tests := []struct {
		name    string
		offered []string
		want    string
	}{
		{"prefers utf8 text", []string{"text/html", "text/plain;charset=utf-8", "image/png"}, "text/plain;charset=utf-8"},
		{"plain over legacy", []string{"STRING", "text/plain"}, "text/plain"},
		{"legacy only", []string{"COMPOUND_TEXT", "UTF8_STRING"}, "UTF8_STRING"},
		{"image when no text", []string{"image/jpeg", "image/png"}, "image/png"},
		{"unknown text fallback", []string{"text/x-moz-url"}, "text/x-moz-url"},
		{"non-video fallback", []string{"application/x-qt-image"}, "application/x-qt-image"},
		{"video skipped", []string{"video/mp4", "video/webm"}, ""},
		{"empty offer", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectMime(tt.offered); got != tt.want {
				t.Errorf("SelectMime(%v) = %q, want %q", tt.offered, got, tt.want)
			}
		})
	}
}

func TestOfferMimes(t *testing.T) {
	got := offerMimes("text/plain;charset=utf-8")
	want := []string{"text/plain;charset=utf-8", "text/plain", "UTF8_STRING", "STRING"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("text aliases (-want +got):\n%s", diff)
	}

	got = offerMimes("image/png")
	if diff := cmp.Diff([]string{"image/png"}, got); diff != "" {
		t.Errorf("image mime (-want +got):\n%s", diff)
	}
}
