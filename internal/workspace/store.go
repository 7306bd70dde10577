// Package workspace holds the in-memory tile lists of every named workspace.
//
// Store is the authoritative state for a running session. Each workspace has
// its own lock, so mutations on one workspace are serialized while different
// workspaces proceed independently. Every operation is total: a missing
// workspace behaves like an empty one and a missing tile turns the call into
// a no-op.
package workspace

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/starford/tessera/internal/layout"
	"github.com/starford/tessera/internal/tile"
)

// Well-known workspace ids.
const (
	QuickNotes    = "quick-notes"
	Journal       = "journal"
	projectPrefix = "project-"
)

// ForProject returns the workspace id of a project.
func ForProject(projectID string) string {
	return projectPrefix + projectID
}

// ProjectID returns the project id encoded in a workspace id.
func ProjectID(workspaceID string) (string, bool) {
	if !strings.HasPrefix(workspaceID, projectPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(workspaceID, projectPrefix)
	return id, id != ""
}

// Settings are the layout parameters shared by all workspaces.
type Settings struct {
	Gap          float64 `json:"tile_gap"`
	MinWidth     float64 `json:"min_tile_width"`
	MinHeight    float64 `json:"min_tile_height"`
	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
}

// DefaultSettings returns the stock layout parameters.
func DefaultSettings() Settings {
	return Settings{
		Gap:          12,
		MinWidth:     250,
		MinHeight:    200,
		CanvasWidth:  1280,
		CanvasHeight: 800,
	}
}

// Canvas is the drawable area of one workspace.
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type space struct {
	mu         sync.Mutex
	tiles      []tile.Tile
	canvas     Canvas
	fullscreen *tile.ID
}

// Store maps workspace ids to ordered tile lists.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	spaces   map[string]*space
}

// NewStore creates an empty store.
func NewStore(settings Settings) *Store {
	return &Store{
		settings: settings,
		spaces:   make(map[string]*space),
	}
}

// Settings returns the current layout parameters.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the layout parameters. Existing geometry is kept; the
// new values apply from the next auto-tile pass.
func (s *Store) SetSettings(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// space returns the workspace, creating it on first reference.
func (s *Store) space(id string) *space {
	s.mu.RLock()
	sp, ok := s.spaces[id]
	s.mu.RUnlock()
	if ok {
		return sp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.spaces[id]; ok {
		return sp
	}
	sp = &space{}
	s.spaces[id] = sp
	return sp
}

// peek returns the workspace or nil without creating it.
func (s *Store) peek(id string) *space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaces[id]
}

// Workspaces returns the ids of every workspace referenced so far, sorted.
func (s *Store) Workspaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.spaces))
	for id := range s.spaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetCanvas records the drawable size of a workspace. Zero or negative values
// fall back to the configured default canvas. Tiles are not moved.
func (s *Store) SetCanvas(workspaceID string, c Canvas) {
	sp := s.space(workspaceID)
	sp.mu.Lock()
	sp.canvas = c
	sp.mu.Unlock()
}

// Canvas returns the effective drawable size of a workspace.
func (s *Store) Canvas(workspaceID string) Canvas {
	settings := s.Settings()
	var c Canvas
	if sp := s.peek(workspaceID); sp != nil {
		sp.mu.Lock()
		c = sp.canvas
		sp.mu.Unlock()
	}
	return effectiveCanvas(c, settings)
}

func effectiveCanvas(c Canvas, settings Settings) Canvas {
	if c.Width <= 0 {
		c.Width = settings.CanvasWidth
	}
	if c.Height <= 0 {
		c.Height = settings.CanvasHeight
	}
	return c
}

// Open adds t to the workspace. It returns false when a tile with the same
// identity is already present, in which case nothing changes.
//
// With remembered geometry the tile is appended on top of the stack and the
// other tiles are left alone. Without it, the whole list is re-tiled.
func (s *Store) Open(workspaceID string, t tile.Tile, remembered *tile.Geometry) bool {
	settings := s.Settings()
	sp := s.space(workspaceID)

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.index(t.Identity()) >= 0 {
		return false
	}

	if remembered != nil && remembered.Finite() {
		t.Geometry = remembered.Clamp(settings.MinWidth, settings.MinHeight)
		t.ZIndex = maxZ(sp.tiles) + 1
		sp.tiles = append(sp.tiles, t)
		return true
	}

	sp.tiles = append(sp.tiles, t)
	retile(sp.tiles, effectiveCanvas(sp.canvas, settings), settings.Gap)
	return true
}

// Close removes the tile and re-tiles whatever remains, discarding any
// manual or remembered placement of the remaining tiles. It returns whether a
// tile was removed.
func (s *Store) Close(workspaceID string, id tile.ID) bool {
	settings := s.Settings()
	sp := s.space(workspaceID)

	sp.mu.Lock()
	defer sp.mu.Unlock()

	removed := false
	if i := sp.index(id); i >= 0 {
		sp.tiles = slices.Delete(sp.tiles, i, i+1)
		removed = true
	}
	if sp.fullscreen != nil && *sp.fullscreen == id {
		sp.fullscreen = nil
	}
	retile(sp.tiles, effectiveCanvas(sp.canvas, settings), settings.Gap)
	return removed
}

// UpdateGeometry merges the supplied fields into the tile. Width and height
// are raised to the configured minimums. A partial holding a non-finite value
// is rejected as a whole. The returned bool reports whether the tile exists
// and the update was applied.
func (s *Store) UpdateGeometry(workspaceID string, id tile.ID, p tile.Partial) (tile.Tile, bool) {
	settings := s.Settings()
	sp := s.peek(workspaceID)
	if sp == nil {
		return tile.Tile{}, false
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	i := sp.index(id)
	if i < 0 {
		return tile.Tile{}, false
	}
	if !p.Finite() {
		return sp.tiles[i], false
	}

	g := p.Apply(sp.tiles[i].Geometry)
	if p.Width != nil && g.Width < settings.MinWidth {
		g.Width = settings.MinWidth
	}
	if p.Height != nil && g.Height < settings.MinHeight {
		g.Height = settings.MinHeight
	}
	sp.tiles[i].Geometry = g
	return sp.tiles[i], true
}

// BringToFront raises the tile above every other tile in the workspace.
func (s *Store) BringToFront(workspaceID string, id tile.ID) (tile.Tile, bool) {
	sp := s.peek(workspaceID)
	if sp == nil {
		return tile.Tile{}, false
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	i := sp.index(id)
	if i < 0 {
		return tile.Tile{}, false
	}
	sp.tiles[i].ZIndex = maxZ(sp.tiles) + 1
	return sp.tiles[i], true
}

// ToggleFullscreen makes the tile the fullscreen tile of its workspace, or
// leaves fullscreen if it already is. Geometry and stacking are untouched.
// It returns the new fullscreen state and whether the tile exists.
func (s *Store) ToggleFullscreen(workspaceID string, id tile.ID) (fullscreen, ok bool) {
	sp := s.peek(workspaceID)
	if sp == nil {
		return false, false
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.index(id) < 0 {
		return false, false
	}
	if sp.fullscreen != nil && *sp.fullscreen == id {
		sp.fullscreen = nil
		return false, true
	}
	sp.fullscreen = &id
	return true, true
}

// Fullscreen returns the fullscreen tile of a workspace, if any.
func (s *Store) Fullscreen(workspaceID string) (tile.ID, bool) {
	sp := s.peek(workspaceID)
	if sp == nil {
		return tile.ID{}, false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.fullscreen == nil {
		return tile.ID{}, false
	}
	return *sp.fullscreen, true
}

// Tiles returns a copy of the workspace's tiles in insertion order.
func (s *Store) Tiles(workspaceID string) []tile.Tile {
	sp := s.peek(workspaceID)
	if sp == nil {
		return []tile.Tile{}
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return slices.Clone(sp.tiles)
}

// Tile returns one tile of a workspace.
func (s *Store) Tile(workspaceID string, id tile.ID) (tile.Tile, bool) {
	sp := s.peek(workspaceID)
	if sp == nil {
		return tile.Tile{}, false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if i := sp.index(id); i >= 0 {
		return sp.tiles[i], true
	}
	return tile.Tile{}, false
}

// Has reports whether the workspace contains the tile.
func (s *Store) Has(workspaceID string, id tile.ID) bool {
	_, ok := s.Tile(workspaceID, id)
	return ok
}

// PaintOrder returns tiles sorted bottom to top by zIndex. Ties keep
// insertion order.
func PaintOrder(tiles []tile.Tile) []tile.Tile {
	out := slices.Clone(tiles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex < out[j].ZIndex })
	return out
}

func (sp *space) index(id tile.ID) int {
	return slices.IndexFunc(sp.tiles, func(t tile.Tile) bool { return t.Identity() == id })
}

func maxZ(tiles []tile.Tile) int {
	m := 0
	for _, t := range tiles {
		if t.ZIndex > m {
			m = t.ZIndex
		}
	}
	return m
}

// retile overwrites every tile's geometry with the auto layout and resets
// stacking to list order.
func retile(tiles []tile.Tile, c Canvas, gap float64) {
	rects := layout.Compute(len(tiles), c.Width, c.Height, gap)
	for i := range tiles {
		tiles[i].Geometry = rects[i]
		tiles[i].ZIndex = i + 1
	}
}
