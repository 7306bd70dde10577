// Package tileservice is the application layer shared by the HTTP API and
// the MCP server. It turns request-shaped input into controller calls and
// maps no-op outcomes to apperr sentinels.
package tileservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/layout"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/tilectl"
	"github.com/starford/tessera/internal/workspace"
)

// ErrInvalidWorkspace is returned for an empty workspace id.
var ErrInvalidWorkspace = errors.New("workspace id is required")

// Snapshot is the full observable state of one workspace. Tiles are in
// insertion order; PaintOrder lists the same tiles bottom to top.
type Snapshot struct {
	Workspace  string           `json:"workspace"`
	Project    string           `json:"project,omitempty"`
	Canvas     workspace.Canvas `json:"canvas"`
	Fullscreen *tile.ID         `json:"fullscreen,omitempty"`
	Tiles      []tile.Tile      `json:"tiles"`
	PaintOrder []tile.ID        `json:"paint_order"`
}

// Service coordinates the tile controller and the geometry store.
type Service struct {
	ctl *tilectl.Controller
	geo geometry.Store
}

// NewService creates a new tile service. geo may be nil, in which case the
// remembered-geometry operations report apperr.ErrNotFound.
func NewService(ctl *tilectl.Controller, geo geometry.Store) *Service {
	return &Service{ctl: ctl, geo: geo}
}

// ParseID validates a (kind, id) pair from a request.
func ParseID(kind, id string) (tile.ID, error) {
	k, err := tile.ParseKind(kind)
	if err != nil {
		return tile.ID{}, err
	}
	if id == "" {
		return tile.ID{}, fmt.Errorf("tile: id is required")
	}
	return tile.ID{Kind: k, ID: id}, nil
}

// BuildDescriptor assembles and validates a descriptor whose payload is
// still raw JSON.
func BuildDescriptor(kind, id, title string, payload json.RawMessage) (tile.Descriptor, error) {
	k, err := tile.ParseKind(kind)
	if err != nil {
		return tile.Descriptor{}, err
	}
	p, err := tile.DecodePayload(k, payload)
	if err != nil {
		return tile.Descriptor{}, err
	}
	d := tile.Descriptor{Kind: k, ID: id, Title: title, Payload: p}
	if err := d.Validate(); err != nil {
		return tile.Descriptor{}, err
	}
	return d, nil
}

// Snapshot returns the workspace's tiles, canvas and fullscreen tile.
func (s *Service) Snapshot(workspaceID string) (*Snapshot, error) {
	if workspaceID == "" {
		return nil, ErrInvalidWorkspace
	}
	store := s.ctl.Store()
	snap := &Snapshot{
		Workspace: workspaceID,
		Canvas:    store.Canvas(workspaceID),
		Tiles:     store.Tiles(workspaceID),
	}
	snap.Project, _ = workspace.ProjectID(workspaceID)
	if id, ok := store.Fullscreen(workspaceID); ok {
		snap.Fullscreen = &id
	}
	painted := workspace.PaintOrder(snap.Tiles)
	snap.PaintOrder = make([]tile.ID, len(painted))
	for i, t := range painted {
		snap.PaintOrder[i] = t.Identity()
	}
	return snap, nil
}

// Workspaces lists the workspaces that have been touched this session.
func (s *Service) Workspaces() []string {
	return s.ctl.Store().Workspaces()
}

// OpenTile opens d in the workspace and waits until it is placed. The
// lookup keeps running if ctx ends first; the tile still appears.
func (s *Service) OpenTile(ctx context.Context, workspaceID string, d tile.Descriptor) (tile.Tile, error) {
	if workspaceID == "" {
		return tile.Tile{}, ErrInvalidWorkspace
	}
	if err := d.Validate(); err != nil {
		return tile.Tile{}, err
	}
	select {
	case <-s.ctl.OpenTile(ctx, d, workspaceID):
	case <-ctx.Done():
		return tile.Tile{}, ctx.Err()
	}
	t, ok := s.ctl.Store().Tile(workspaceID, d.Identity())
	if !ok {
		// Closed again before we could read it back.
		return tile.Tile{}, apperr.ErrNotFound
	}
	return t, nil
}

// CloseTile closes an open tile, or cancels an open still waiting on its
// lookup. Closing a tile that is neither reports apperr.ErrNotFound and
// leaves the workspace untouched.
func (s *Service) CloseTile(workspaceID string, id tile.ID) error {
	if !s.ctl.Store().Has(workspaceID, id) && !s.ctl.Pending(workspaceID, id) {
		return apperr.ErrNotFound
	}
	s.ctl.CloseTile(workspaceID, id)
	return nil
}

// UpdateGeometry applies a partial geometry change.
func (s *Service) UpdateGeometry(workspaceID string, id tile.ID, p tile.Partial) (tile.Tile, error) {
	if !p.Finite() {
		return tile.Tile{}, fmt.Errorf("%w: coordinates must be finite", apperr.ErrInvalidGeometry)
	}
	t, ok := s.ctl.UpdateGeometry(workspaceID, id, p)
	if !ok {
		return tile.Tile{}, apperr.ErrNotFound
	}
	return t, nil
}

// BringToFront raises a tile above the others.
func (s *Service) BringToFront(workspaceID string, id tile.ID) (tile.Tile, error) {
	t, ok := s.ctl.BringToFront(workspaceID, id)
	if !ok {
		return tile.Tile{}, apperr.ErrNotFound
	}
	return t, nil
}

// ToggleFullscreen flips fullscreen for a tile and reports the new state.
func (s *Service) ToggleFullscreen(workspaceID string, id tile.ID) (bool, error) {
	on, ok := s.ctl.ToggleFullscreen(workspaceID, id)
	if !ok {
		return false, apperr.ErrNotFound
	}
	return on, nil
}

// SetCanvas records the drawable size of a workspace. The canvas must be
// wider and taller than two gaps.
func (s *Service) SetCanvas(workspaceID string, c workspace.Canvas) error {
	if workspaceID == "" {
		return ErrInvalidWorkspace
	}
	if err := CheckCanvas(1, c.Width, c.Height, s.Settings().Gap); err != nil {
		return err
	}
	s.ctl.SetCanvas(workspaceID, c)
	return nil
}

// CheckCanvas wraps layout.Check so that callers can map a rejected canvas
// like any other invalid geometry.
func CheckCanvas(n int, width, height, gap float64) error {
	if err := layout.Check(n, width, height, gap); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidGeometry, err)
	}
	return nil
}

// PreviewLayout computes the auto-tile rectangles for n tiles without
// touching any workspace.
func (s *Service) PreviewLayout(n int, width, height, gap float64) (layout.Scheme, []tile.Geometry, error) {
	if err := CheckCanvas(n, width, height, gap); err != nil {
		return "", nil, err
	}
	return layout.SchemeFor(n), layout.Compute(n, width, height, gap), nil
}

// Settings returns the layout parameters in effect.
func (s *Service) Settings() workspace.Settings {
	return s.ctl.Store().Settings()
}

// ListRemembered returns every remembered placement.
func (s *Service) ListRemembered(ctx context.Context) ([]geometry.Record, error) {
	if s.geo == nil {
		return []geometry.Record{}, nil
	}
	recs, err := s.geo.List(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []geometry.Record{}
	}
	return recs, nil
}

// GetRemembered returns the remembered placement of one tile.
func (s *Service) GetRemembered(ctx context.Context, id tile.ID) (*geometry.Record, error) {
	if s.geo == nil {
		return nil, apperr.ErrNotFound
	}
	return s.geo.Get(ctx, id)
}

// PutRemembered overwrites the remembered placement of a tile. It does not
// move the tile in any open workspace.
func (s *Service) PutRemembered(ctx context.Context, id tile.ID, p tile.Placement) (*geometry.Record, error) {
	if s.geo == nil {
		return nil, apperr.ErrNotFound
	}
	if !p.Finite() || !positive(p.Width) || !positive(p.Height) {
		return nil, fmt.Errorf("%w: width and height must be positive", apperr.ErrInvalidGeometry)
	}
	if err := s.geo.Save(ctx, id, p); err != nil {
		return nil, err
	}
	return s.geo.Get(ctx, id)
}

// DeleteRemembered forgets a tile's placement. The next open auto-tiles.
// A write of the tile's geometry that is still waiting out the save
// debounce is dropped too.
func (s *Service) DeleteRemembered(ctx context.Context, id tile.ID) error {
	if s.geo == nil {
		return apperr.ErrNotFound
	}
	s.ctl.Forget(id)
	if _, err := s.geo.Get(ctx, id); err != nil {
		return err
	}
	return s.geo.Delete(ctx, id)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
