package cli

import (
	"encoding/json"
	"testing"

	"github.com/cursorclip/cursorclip/internal/tracker"
)

func TestOverlayOutputCarriesSample(t *testing.T) {
	sample := tracker.Sample{X: 412.5, Y: 96, Output: 3}

	var out overlayOutput
	out.X, out.Y, out.Output = sample.X, sample.Y, sample.Output

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// A renderer picks its monitor by output id; the field must survive to
	// the wire document alongside the coordinates.
	if got["x"] != 412.5 || got["y"] != 96.0 || got["output"] != 3.0 {
		t.Errorf("overlay document = %s", raw)
	}
}
