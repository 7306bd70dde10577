package api

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/tileservice"
	"github.com/starford/tessera/internal/workspace"
)

var tileKinds = []any{string(tile.KindNote), string(tile.KindJournal), string(tile.KindQuickNote)}

// OpenTileRequest is the request body for opening a tile in a workspace.
type OpenTileRequest struct {
	Kind    string          `json:"kind" example:"note" validate:"required"`
	ID      string          `json:"id" example:"b6f1c1e2" validate:"required"`
	Title   string          `json:"title,omitempty" example:"Meeting notes"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the required fields.
func (r *OpenTileRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Kind, validation.Required, validation.In(tileKinds...)),
		validation.Field(&r.ID, validation.Required),
	)
}

// Descriptor converts the request into a validated tile descriptor.
func (r *OpenTileRequest) Descriptor() (tile.Descriptor, error) {
	return tileservice.BuildDescriptor(r.Kind, r.ID, r.Title, r.Payload)
}

// CanvasRequest is the request body for setting a workspace canvas.
type CanvasRequest struct {
	Width  float64 `json:"width" example:"1440" validate:"required"`
	Height float64 `json:"height" example:"900" validate:"required"`
}

// Validate checks that both dimensions are positive.
func (r *CanvasRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Width, validation.Required, validation.Min(1.0)),
		validation.Field(&r.Height, validation.Required, validation.Min(1.0)),
	)
}

// PlacementRequest is the request body for overwriting remembered geometry.
type PlacementRequest struct {
	X      float64 `json:"x" example:"40"`
	Y      float64 `json:"y" example:"60"`
	Width  float64 `json:"width" example:"480" validate:"required"`
	Height float64 `json:"height" example:"360" validate:"required"`
	ZIndex int     `json:"z_index" example:"1"`
}

// Validate checks the size and stacking order.
func (r *PlacementRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Width, validation.Required, validation.Min(1.0)),
		validation.Field(&r.Height, validation.Required, validation.Min(1.0)),
		validation.Field(&r.ZIndex, validation.Min(0)),
	)
}

// Placement converts the request into a tile placement.
func (r *PlacementRequest) Placement() tile.Placement {
	return tile.Placement{
		Geometry: tile.Geometry{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height},
		ZIndex:   r.ZIndex,
	}
}

// FullscreenResponse reports the fullscreen state after a toggle.
type FullscreenResponse struct {
	Fullscreen bool `json:"fullscreen" example:"true"`
}

// WorkspaceListResponse wraps the workspace ids of this session.
type WorkspaceListResponse struct {
	Workspaces []string `json:"workspaces" validate:"required"`
}

// RecordListResponse wraps remembered placements.
type RecordListResponse struct {
	Tiles []geometry.Record `json:"tiles" validate:"required"`
}

// LayoutPreviewResponse is the auto-tile result for a tile count.
type LayoutPreviewResponse struct {
	Scheme string          `json:"scheme" example:"grid"`
	Rects  []tile.Geometry `json:"rects" validate:"required"`
}

// Snapshot is the workspace state (aliased from the service layer).
type Snapshot = tileservice.Snapshot

// Settings are the effective layout parameters (aliased from the domain layer).
type Settings = workspace.Settings
