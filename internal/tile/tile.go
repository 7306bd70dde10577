// Package tile defines the tile identity, geometry and payload types shared
// by the workspace store, the controller and the persistence gateway.
package tile

import (
	"fmt"
	"math"
	"strings"

	"github.com/starford/tessera/internal/apperr"
)

// Kind is the kind of record a tile wraps.
type Kind string

const (
	KindNote      Kind = "note"
	KindJournal   Kind = "journal"
	KindQuickNote Kind = "quick-note"
)

// ParseKind validates s and returns it as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindJournal, KindQuickNote:
		return true
	}
	return false
}

// ID identifies a tile within a workspace and a record in the geometry store.
type ID struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// String returns "<kind>/<id>".
func (i ID) String() string {
	return string(i.Kind) + "/" + i.ID
}

// Geometry is a tile rectangle in canvas pixels.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Finite reports whether every component is a finite number.
func (g Geometry) Finite() bool {
	for _, v := range [...]float64{g.X, g.Y, g.Width, g.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp raises width and height to the given minimums.
func (g Geometry) Clamp(minWidth, minHeight float64) Geometry {
	g.Width = math.Max(g.Width, minWidth)
	g.Height = math.Max(g.Height, minHeight)
	return g
}

// Placement is the full record written to the geometry store.
type Placement struct {
	Geometry
	ZIndex int `json:"z_index"`
}

// Partial is a geometry update where nil fields are left untouched.
type Partial struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Empty reports whether no field is set.
func (p Partial) Empty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil
}

// Finite reports whether every supplied field is a finite number.
func (p Partial) Finite() bool {
	for _, v := range [...]*float64{p.X, p.Y, p.Width, p.Height} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return false
		}
	}
	return true
}

// Apply merges the supplied fields into g.
func (p Partial) Apply(g Geometry) Geometry {
	if p.X != nil {
		g.X = *p.X
	}
	if p.Y != nil {
		g.Y = *p.Y
	}
	if p.Width != nil {
		g.Width = *p.Width
	}
	if p.Height != nil {
		g.Height = *p.Height
	}
	return g
}

// Descriptor is what a caller supplies to open a tile. The record behind it
// is owned by an external store; only identity and display data travel here.
type Descriptor struct {
	Kind    Kind    `json:"kind"`
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Payload Payload `json:"payload,omitempty"`
}

// Identity returns the descriptor's (kind, id).
func (d Descriptor) Identity() ID {
	return ID{Kind: d.Kind, ID: d.ID}
}

// Validate checks the kind, id and payload variant.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidKind, d.Kind)
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("tile: id is required")
	}
	if d.Payload != nil && d.Payload.Kind() != d.Kind {
		return fmt.Errorf("%w: payload is %q, tile is %q", apperr.ErrInvalidKind, d.Payload.Kind(), d.Kind)
	}
	return nil
}

// Tile is a positioned window wrapping one record.
type Tile struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Geometry
	ZIndex  int     `json:"z_index"`
	Payload Payload `json:"payload,omitempty"`
}

// New builds an unplaced tile from a descriptor.
func New(d Descriptor) Tile {
	return Tile{Kind: d.Kind, ID: d.ID, Title: d.Title, Payload: d.Payload}
}

// Identity returns the tile's (kind, id).
func (t Tile) Identity() ID {
	return ID{Kind: t.Kind, ID: t.ID}
}

// Placement returns the geometry and stacking order to persist.
func (t Tile) Placement() Placement {
	return Placement{Geometry: t.Geometry, ZIndex: t.ZIndex}
}
