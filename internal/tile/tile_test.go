package tile

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/starford/tessera/internal/apperr"
)

func ptr(v float64) *float64 { return &v }

func TestParseKind(t *testing.T) {
	for _, s := range []string{"note", "journal", "quick-note", " note "} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
	}
	_, err := ParseKind("folder")
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("ParseKind(folder) err = %v, want ErrInvalidKind", err)
	}
}

func TestPartialApply_OnlySuppliedFields(t *testing.T) {
	g := Geometry{X: 1, Y: 2, Width: 300, Height: 400}
	got := Partial{X: ptr(50), Height: ptr(250)}.Apply(g)
	want := Geometry{X: 50, Y: 2, Width: 300, Height: 250}
	if got != want {
		t.Errorf("Apply = %+v, want %+v", got, want)
	}
	if (Partial{}).Apply(g) != g {
		t.Error("empty partial changed geometry")
	}
}

func TestPartialFinite(t *testing.T) {
	if !(Partial{X: ptr(1)}).Finite() {
		t.Error("finite partial reported non-finite")
	}
	if (Partial{Width: ptr(math.Inf(1))}).Finite() {
		t.Error("infinite width reported finite")
	}
	if (Geometry{X: math.NaN()}).Finite() {
		t.Error("NaN geometry reported finite")
	}
}

func TestGeometryClamp(t *testing.T) {
	g := Geometry{Width: 100, Height: 500}.Clamp(250, 200)
	if g.Width != 250 || g.Height != 500 {
		t.Errorf("Clamp = %+v", g)
	}
}

func TestDescriptorValidate(t *testing.T) {
	ok := Descriptor{Kind: KindJournal, ID: "2025-01-15", Payload: JournalPayload{Date: "2025-01-15"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid descriptor: %v", err)
	}
	mismatch := Descriptor{Kind: KindNote, ID: "n1", Payload: QuickNotePayload{Content: "x"}}
	if err := mismatch.Validate(); !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("mismatched payload err = %v", err)
	}
	if err := (Descriptor{Kind: KindNote}).Validate(); err == nil {
		t.Error("missing id should fail")
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(KindNote, json.RawMessage(`{"title":"Plan","project_id":"p1"}`))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	np, ok := p.(NotePayload)
	if !ok || np.ProjectID != "p1" || np.Title != "Plan" {
		t.Errorf("payload = %#v", p)
	}
	if p, err := DecodePayload(KindQuickNote, nil); err != nil || p != nil {
		t.Errorf("empty payload = %v, %v", p, err)
	}
}

func TestTileJSONFlattensGeometry(t *testing.T) {
	tl := Tile{Kind: KindNote, ID: "a", Geometry: Geometry{X: 12, Y: 12, Width: 976, Height: 776}, ZIndex: 3}
	data, err := json.Marshal(tl)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["width"] != 976.0 || m["z_index"] != 3.0 || m["kind"] != "note" {
		t.Errorf("json = %s", data)
	}
}
