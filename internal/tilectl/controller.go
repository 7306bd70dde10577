// Package tilectl orchestrates the tile lifecycle on top of the workspace
// store and the geometry gateway.
//
// Reads and writes against the gateway never block the caller and never
// fail a tile operation: a lookup that finds nothing or cannot reach the
// store falls back to auto-tiling, and a write that fails is logged and
// dropped. The in-memory store stays authoritative for the session.
package tilectl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/debounce"
	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/workspace"
)

// ChangeFunc is called after an operation changed a workspace.
type ChangeFunc func(workspaceID string)

// Options tune the controller's background work.
type Options struct {
	// LookupTimeout bounds a remembered-geometry read. Zero means no limit.
	LookupTimeout time.Duration
	// SaveTimeout bounds a geometry write. Zero means no limit.
	SaveTimeout time.Duration
	// SaveDebounce, when positive, coalesces writes per tile and only
	// persists the last geometry of a burst.
	SaveDebounce time.Duration
	// OnChange, if set, is notified after every applied mutation.
	OnChange ChangeFunc
}

// Controller is the entry point the interaction surface talks to.
type Controller struct {
	store  *workspace.Store
	gw     geometry.Gateway
	logger *slog.Logger
	opts   Options

	debouncer *debounce.Debouncer
	inflight  sync.WaitGroup

	// mu orders pending opens against closes of the same tile.
	mu      sync.Mutex
	pending map[pendingKey]*pendingOpen
}

type pendingKey struct {
	workspace string
	id        tile.ID
}

// pendingOpen tracks lookups in flight for one tile. A close bumps epoch so
// that lookups started before it are discarded.
type pendingOpen struct {
	count int
	epoch uint64
}

// New creates a Controller.
func New(store *workspace.Store, gw geometry.Gateway, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:   store,
		gw:      gw,
		logger:  logger,
		opts:    opts,
		pending: make(map[pendingKey]*pendingOpen),
	}
	if opts.SaveDebounce > 0 {
		c.debouncer = debounce.New(opts.SaveDebounce)
	}
	return c
}

// Store returns the workspace store backing the controller.
func (c *Controller) Store() *workspace.Store {
	return c.store
}

// OpenTile opens the described tile in a workspace. It returns at once; the
// returned channel is closed when the open has been applied or discarded.
//
// Remembered geometry is looked up first. If the same tile shows up in the
// workspace, or is closed, while the lookup is pending, the lookup result is
// discarded.
func (c *Controller) OpenTile(ctx context.Context, d tile.Descriptor, workspaceID string) <-chan struct{} {
	done := make(chan struct{})
	id := d.Identity()
	log := c.logger.With(slog.String("workspace", workspaceID), slog.String("tile", id.String()))

	if err := d.Validate(); err != nil {
		log.Warn("open tile rejected", slog.String("error", err.Error()))
		close(done)
		return done
	}
	if c.store.Has(workspaceID, id) {
		log.Debug("open tile: already open")
		close(done)
		return done
	}

	key := pendingKey{workspace: workspaceID, id: id}
	epoch := c.beginOpen(key)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer close(done)

		remembered := c.lookup(context.WithoutCancel(ctx), id, log)
		opened, superseded := c.finishOpen(key, epoch, func() bool {
			return c.store.Open(workspaceID, tile.New(d), remembered)
		})
		switch {
		case superseded:
			log.Debug("open tile: closed while lookup was pending, result discarded")
			return
		case !opened:
			log.Debug("open tile: opened while lookup was pending, result discarded")
			return
		}
		log.Info("tile opened", slog.Bool("auto_tiled", remembered == nil))
		c.changed(workspaceID)
	}()
	return done
}

func (c *Controller) beginOpen(key pendingKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if !ok {
		p = &pendingOpen{}
		c.pending[key] = p
	}
	p.count++
	return p.epoch
}

// finishOpen runs apply unless a close arrived after the open began. apply
// runs under mu, so a concurrent close lands either before it or after it.
func (c *Controller) finishOpen(key pendingKey, epoch uint64, apply func() bool) (opened, superseded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending[key]
	p.count--
	if p.count == 0 {
		delete(c.pending, key)
	}
	if p.epoch != epoch {
		return false, true
	}
	return apply(), false
}

// supersede discards every lookup pending for key and reports whether
// there was one.
func (c *Controller) supersede(key pendingKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if ok {
		p.epoch++
	}
	return ok
}

// lookup returns the remembered geometry for id, or nil when there is none
// or the store could not be read.
func (c *Controller) lookup(ctx context.Context, id tile.ID, log *slog.Logger) (g *tile.Geometry) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("geometry lookup panicked", slog.String("error", fmt.Sprint(r)))
			g = nil
		}
	}()

	ctx, cancel := withTimeout(ctx, c.opts.LookupTimeout)
	defer cancel()

	found, err := c.gw.Fetch(ctx, id)
	switch {
	case err == nil:
		return &found
	case errors.Is(err, apperr.ErrNotFound):
		log.Debug("no remembered geometry")
	default:
		log.Warn("geometry lookup failed, auto-tiling", slog.String("error", err.Error()))
	}
	return nil
}

// CloseTile removes a tile and re-tiles the rest of the workspace. An open
// of the same tile still waiting on its lookup is cancelled.
func (c *Controller) CloseTile(workspaceID string, id tile.ID) {
	if c.supersede(pendingKey{workspace: workspaceID, id: id}) {
		c.logger.Debug("close tile: pending open cancelled",
			slog.String("workspace", workspaceID), slog.String("tile", id.String()))
	}
	if !c.store.Close(workspaceID, id) {
		c.logger.Debug("close tile: not open",
			slog.String("workspace", workspaceID), slog.String("tile", id.String()))
	}
	c.changed(workspaceID)
}

// Pending reports whether an open of the tile is still waiting on its
// lookup.
func (c *Controller) Pending(workspaceID string, id tile.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{workspace: workspaceID, id: id}]
	return ok
}

// BringToFront raises a tile above the others in its workspace.
func (c *Controller) BringToFront(workspaceID string, id tile.ID) (tile.Tile, bool) {
	t, ok := c.store.BringToFront(workspaceID, id)
	if !ok {
		c.logger.Debug("bring to front: not open",
			slog.String("workspace", workspaceID), slog.String("tile", id.String()))
		return t, false
	}
	c.changed(workspaceID)
	return t, true
}

// UpdateGeometry applies a partial geometry change and schedules a
// best-effort write of the tile's full placement.
func (c *Controller) UpdateGeometry(workspaceID string, id tile.ID, p tile.Partial) (tile.Tile, bool) {
	t, ok := c.store.UpdateGeometry(workspaceID, id, p)
	if !ok {
		c.logger.Debug("update geometry: not applied",
			slog.String("workspace", workspaceID), slog.String("tile", id.String()))
		return t, false
	}
	if p.Empty() {
		return t, true
	}
	c.persist(id, t.Placement())
	c.changed(workspaceID)
	return t, true
}

// ToggleFullscreen enters or leaves fullscreen for a tile.
func (c *Controller) ToggleFullscreen(workspaceID string, id tile.ID) (fullscreen, ok bool) {
	fullscreen, ok = c.store.ToggleFullscreen(workspaceID, id)
	if ok {
		c.changed(workspaceID)
	}
	return fullscreen, ok
}

// SetCanvas records the drawable size used by later auto-tile passes.
func (c *Controller) SetCanvas(workspaceID string, canvas workspace.Canvas) {
	c.store.SetCanvas(workspaceID, canvas)
}

// Forget drops a debounced write for id that has not run yet, so that a
// deleted record is not written back.
func (c *Controller) Forget(id tile.ID) {
	if c.debouncer == nil {
		return
	}
	if c.debouncer.Cancel(id.String()) {
		// The dropped write will never run.
		c.inflight.Done()
		c.logger.Debug("pending geometry save dropped", slog.String("tile", id.String()))
	}
}

// Tiles returns the workspace's tiles in insertion order.
func (c *Controller) Tiles(workspaceID string) []tile.Tile {
	return c.store.Tiles(workspaceID)
}

// Wait runs pending debounced writes and blocks until every background
// lookup and write has finished.
func (c *Controller) Wait() {
	if c.debouncer != nil {
		c.debouncer.Flush()
	}
	c.inflight.Wait()
}

func (c *Controller) persist(id tile.ID, p tile.Placement) {
	c.inflight.Add(1)
	write := func() {
		defer c.inflight.Done()
		c.save(id, p)
	}

	if c.debouncer == nil {
		go write()
		return
	}
	if c.debouncer.Do(id.String(), write) {
		// The replaced write will never run.
		c.inflight.Done()
	}
}

func (c *Controller) save(id tile.ID, p tile.Placement) {
	log := c.logger.With(slog.String("tile", id.String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("geometry save panicked", slog.String("error", fmt.Sprint(r)))
		}
	}()

	ctx, cancel := withTimeout(context.Background(), c.opts.SaveTimeout)
	defer cancel()

	if err := c.gw.Save(ctx, id, p); err != nil {
		log.Warn("geometry save failed, keeping session-only state", slog.String("error", err.Error()))
		return
	}
	log.Debug("geometry saved",
		slog.Float64("x", p.X), slog.Float64("y", p.Y),
		slog.Float64("width", p.Width), slog.Float64("height", p.Height),
		slog.Int("z_index", p.ZIndex))
}

func (c *Controller) changed(workspaceID string) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(workspaceID)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
