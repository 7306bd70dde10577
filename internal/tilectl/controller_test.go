package tilectl

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/layout"
	"github.com/starford/tessera/internal/tile"
	"github.com/starford/tessera/internal/workspace"
)

type saveCall struct {
	id tile.ID
	p  tile.Placement
}

// fakeGateway is an in-memory geometry.Gateway with failure injection.
type fakeGateway struct {
	mu       sync.Mutex
	records  map[tile.ID]tile.Geometry
	saves    []saveCall
	fetches  int
	fetchErr error
	saveErr  error
	panicky  bool
	gate     chan struct{} // when non-nil, Fetch waits for it to close
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{records: make(map[tile.ID]tile.Geometry)}
}

func (f *fakeGateway) Fetch(ctx context.Context, id tile.ID) (tile.Geometry, error) {
	f.mu.Lock()
	f.fetches++
	gate, err, panicky := f.gate, f.fetchErr, f.panicky
	g, ok := f.records[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tile.Geometry{}, ctx.Err()
		}
	}
	if panicky {
		panic("gateway exploded")
	}
	if err != nil {
		return tile.Geometry{}, err
	}
	if !ok {
		return tile.Geometry{}, apperr.ErrNotFound
	}
	return g, nil
}

func (f *fakeGateway) Save(_ context.Context, id tile.ID, p tile.Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, saveCall{id: id, p: p})
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[id] = p.Geometry
	return nil
}

func (f *fakeGateway) savedCalls() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.saves...)
}

func (f *fakeGateway) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testController(t *testing.T, gw *fakeGateway, opts Options) *Controller {
	t.Helper()
	store := workspace.NewStore(workspace.Settings{Gap: 12, MinWidth: 250, MinHeight: 200, CanvasWidth: 1000, CanvasHeight: 800})
	c := New(store, gw, testLogger(), opts)
	t.Cleanup(c.Wait)
	return c
}

func noteDesc(id string) tile.Descriptor {
	return tile.Descriptor{Kind: tile.KindNote, ID: id, Title: "Note " + id, Payload: tile.NotePayload{Title: "Note " + id, ProjectID: "p1"}}
}

func noteID(id string) tile.ID { return tile.ID{Kind: tile.KindNote, ID: id} }

func ptr(v float64) *float64 { return &v }

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open to finish")
	}
}

func TestOpenTile_NoMemoryAutoTiles(t *testing.T) {
	c := testController(t, newFakeGateway(), Options{})
	ws := workspace.ForProject("p1")

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), ws))
	waitDone(t, c.OpenTile(context.Background(), noteDesc("b"), ws))

	tiles := c.Tiles(ws)
	want := layout.Compute(2, 1000, 800, 12)
	for i, tl := range tiles {
		if tl.Geometry != want[i] || tl.ZIndex != i+1 {
			t.Errorf("tile %d = %+v, want %+v z=%d", i, tl, want[i], i+1)
		}
	}
	if p, ok := tiles[0].Payload.(tile.NotePayload); !ok || p.ProjectID != "p1" {
		t.Errorf("payload = %#v", tiles[0].Payload)
	}
}

func TestOpenTile_RememberedGeometry(t *testing.T) {
	gw := newFakeGateway()
	remembered := tile.Geometry{X: 30, Y: 40, Width: 320, Height: 280}
	gw.records[noteID("b")] = remembered
	c := testController(t, gw, Options{})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	first := c.Tiles(workspace.QuickNotes)[0]
	waitDone(t, c.OpenTile(context.Background(), noteDesc("b"), workspace.QuickNotes))

	tiles := c.Tiles(workspace.QuickNotes)
	if !reflect.DeepEqual(tiles[0], first) {
		t.Errorf("first tile changed: %+v -> %+v", first, tiles[0])
	}
	if tiles[1].Geometry != remembered || tiles[1].ZIndex != 2 {
		t.Errorf("remembered tile = %+v", tiles[1])
	}
}

func TestOpenTile_TransportFailureFallsBackToAutoTile(t *testing.T) {
	gw := newFakeGateway()
	gw.records[noteID("a")] = tile.Geometry{X: 1, Y: 1, Width: 300, Height: 300}
	gw.fetchErr = errors.New("connection refused")
	c := testController(t, gw, Options{})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.Journal))

	tiles := c.Tiles(workspace.Journal)
	if len(tiles) != 1 || tiles[0].Geometry != layout.Compute(1, 1000, 800, 12)[0] {
		t.Errorf("tiles = %+v", tiles)
	}
}

func TestOpenTile_LookupTimeoutFallsBackToAutoTile(t *testing.T) {
	gw := newFakeGateway()
	gw.gate = make(chan struct{})
	defer close(gw.gate)
	c := testController(t, gw, Options{LookupTimeout: 20 * time.Millisecond})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.Journal))
	if n := len(c.Tiles(workspace.Journal)); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestOpenTile_PanickingGatewayDoesNotCrash(t *testing.T) {
	gw := newFakeGateway()
	gw.panicky = true
	c := testController(t, gw, Options{})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	if n := len(c.Tiles(workspace.QuickNotes)); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestOpenTile_AlreadyOpenSkipsLookup(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))

	if n := gw.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if n := len(c.Tiles(workspace.QuickNotes)); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestOpenTile_PendingLookupDiscardedWhenOpenedMeanwhile(t *testing.T) {
	gw := newFakeGateway()
	gw.records[noteID("a")] = tile.Geometry{X: 500, Y: 500, Width: 400, Height: 400}
	gw.gate = make(chan struct{})
	c := testController(t, gw, Options{})

	pending := c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes)

	// Another open of the same tile completes first.
	first := tile.Geometry{X: 10, Y: 10, Width: 300, Height: 300}
	c.Store().Open(workspace.QuickNotes, tile.New(noteDesc("a")), &first)

	close(gw.gate)
	waitDone(t, pending)

	tiles := c.Tiles(workspace.QuickNotes)
	if len(tiles) != 1 {
		t.Fatalf("len = %d, want 1", len(tiles))
	}
	if tiles[0].Geometry != first {
		t.Errorf("geometry = %+v, want first open's %+v", tiles[0].Geometry, first)
	}
}

func TestOpenTile_ConcurrentDuplicatesYieldOneTile(t *testing.T) {
	gw := newFakeGateway()
	gw.gate = make(chan struct{})
	c := testController(t, gw, Options{})

	var dones []<-chan struct{}
	for i := 0; i < 5; i++ {
		dones = append(dones, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	}
	close(gw.gate)
	for _, d := range dones {
		waitDone(t, d)
	}
	if n := len(c.Tiles(workspace.QuickNotes)); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestCloseTile_CancelsPendingOpen(t *testing.T) {
	gw := newFakeGateway()
	gw.gate = make(chan struct{})
	c := testController(t, gw, Options{})

	done := c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes)
	if !c.Pending(workspace.QuickNotes, noteID("a")) {
		t.Fatal("open not reported as pending")
	}
	c.CloseTile(workspace.QuickNotes, noteID("a"))
	close(gw.gate)
	waitDone(t, done)

	if n := len(c.Tiles(workspace.QuickNotes)); n != 0 {
		t.Errorf("tiles after open then close = %d, want 0", n)
	}
	if c.Pending(workspace.QuickNotes, noteID("a")) {
		t.Error("pending entry left behind")
	}
}

func TestCloseTile_OnlyCancelsOpensStartedBefore(t *testing.T) {
	gw := newFakeGateway()
	gw.gate = make(chan struct{})
	c := testController(t, gw, Options{})

	first := c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes)
	c.CloseTile(workspace.QuickNotes, noteID("a"))
	second := c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes)
	other := c.OpenTile(context.Background(), noteDesc("b"), workspace.QuickNotes)
	close(gw.gate)
	waitDone(t, first)
	waitDone(t, second)
	waitDone(t, other)

	tiles := c.Tiles(workspace.QuickNotes)
	if len(tiles) != 2 {
		t.Fatalf("len = %d, want 2", len(tiles))
	}
	if !c.Store().Has(workspace.QuickNotes, noteID("a")) || !c.Store().Has(workspace.QuickNotes, noteID("b")) {
		t.Errorf("tiles = %+v", tiles)
	}
}

func TestCloseTile_PendingOpenInOtherWorkspaceUnaffected(t *testing.T) {
	gw := newFakeGateway()
	gw.gate = make(chan struct{})
	c := testController(t, gw, Options{})

	done := c.OpenTile(context.Background(), noteDesc("a"), workspace.Journal)
	c.CloseTile(workspace.QuickNotes, noteID("a"))
	close(gw.gate)
	waitDone(t, done)

	if !c.Store().Has(workspace.Journal, noteID("a")) {
		t.Error("close in one workspace cancelled an open in another")
	}
}

func TestOpenTile_CallerCancellationDoesNotAbortLookup(t *testing.T) {
	gw := newFakeGateway()
	remembered := tile.Geometry{X: 5, Y: 6, Width: 300, Height: 300}
	gw.records[noteID("a")] = remembered
	c := testController(t, gw, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := c.OpenTile(ctx, noteDesc("a"), workspace.QuickNotes)
	cancel()
	waitDone(t, done)

	if tl, ok := c.Store().Tile(workspace.QuickNotes, noteID("a")); !ok || tl.Geometry != remembered {
		t.Errorf("tile = %+v, %v", tl, ok)
	}
}

func TestOpenTile_InvalidDescriptorIgnored(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})
	waitDone(t, c.OpenTile(context.Background(), tile.Descriptor{Kind: "folder", ID: "x"}, workspace.QuickNotes))
	if n := len(c.Tiles(workspace.QuickNotes)); n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
	if gw.fetchCount() != 0 {
		t.Error("invalid descriptor reached the gateway")
	}
}

func TestUpdateGeometry_PersistsFullPlacement(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	waitDone(t, c.OpenTile(context.Background(), noteDesc("b"), workspace.QuickNotes))
	c.BringToFront(workspace.QuickNotes, noteID("a"))

	got, ok := c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{X: ptr(100), Y: ptr(120)})
	if !ok {
		t.Fatal("UpdateGeometry returned false")
	}
	c.Wait()

	saves := gw.savedCalls()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(saves))
	}
	if saves[0].id != noteID("a") || saves[0].p != got.Placement() {
		t.Errorf("save = %+v, want %+v", saves[0], got.Placement())
	}
	if saves[0].p.ZIndex != 3 || saves[0].p.Width != got.Width {
		t.Errorf("saved placement = %+v", saves[0].p)
	}
}

func TestUpdateGeometry_SaveFailureIsSwallowed(t *testing.T) {
	gw := newFakeGateway()
	gw.saveErr = errors.New("disk full")
	c := testController(t, gw, Options{})
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))

	got, ok := c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{Width: ptr(640)})
	c.Wait()
	if !ok || got.Width != 640 {
		t.Fatalf("update = %+v, %v", got, ok)
	}
	if tl, _ := c.Store().Tile(workspace.QuickNotes, noteID("a")); tl.Width != 640 {
		t.Errorf("session state lost after failed save: %+v", tl)
	}
	if n := len(gw.savedCalls()); n != 1 {
		t.Errorf("save attempts = %d, want exactly 1 (no retry)", n)
	}
}

func TestUpdateGeometry_MissingOrEmptyDoesNotPersist(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})
	if _, ok := c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{X: ptr(1)}); ok {
		t.Error("update on missing tile reported ok")
	}
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{})
	c.Wait()
	if n := len(gw.savedCalls()); n != 0 {
		t.Errorf("saves = %d, want 0", n)
	}
}

func TestUpdateGeometry_DebouncedWritesCoalesce(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{SaveDebounce: time.Hour})
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))

	for _, x := range []float64{10, 20, 30} {
		c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{X: ptr(x)})
	}
	c.Wait()

	saves := gw.savedCalls()
	if len(saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(saves))
	}
	if saves[0].p.X != 30 {
		t.Errorf("saved x = %v, want last value 30", saves[0].p.X)
	}
}

func TestForget_DropsPendingDebouncedWrite(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{SaveDebounce: time.Hour})
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	waitDone(t, c.OpenTile(context.Background(), noteDesc("b"), workspace.QuickNotes))

	c.UpdateGeometry(workspace.QuickNotes, noteID("a"), tile.Partial{X: ptr(10)})
	c.UpdateGeometry(workspace.QuickNotes, noteID("b"), tile.Partial{X: ptr(20)})
	c.Forget(noteID("a"))
	c.Forget(noteID("a"))
	c.Wait()

	saves := gw.savedCalls()
	if len(saves) != 1 || saves[0].id != noteID("b") {
		t.Errorf("saves = %+v, want only b", saves)
	}
}

func TestForget_WithoutDebounceIsNoop(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})
	c.Forget(noteID("a"))
	c.Wait()
	if n := len(gw.savedCalls()); n != 0 {
		t.Errorf("saves = %d", n)
	}
}

func TestBringToFrontAndCloseDoNotPersist(t *testing.T) {
	gw := newFakeGateway()
	c := testController(t, gw, Options{})
	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.QuickNotes))
	waitDone(t, c.OpenTile(context.Background(), noteDesc("b"), workspace.QuickNotes))

	if _, ok := c.BringToFront(workspace.QuickNotes, noteID("a")); !ok {
		t.Error("BringToFront returned false")
	}
	c.CloseTile(workspace.QuickNotes, noteID("b"))
	c.Wait()

	if n := len(gw.savedCalls()); n != 0 {
		t.Errorf("saves = %d, want 0", n)
	}
	tiles := c.Tiles(workspace.QuickNotes)
	if len(tiles) != 1 || tiles[0].Geometry != layout.Compute(1, 1000, 800, 12)[0] {
		t.Errorf("tiles after close = %+v", tiles)
	}
}

func TestOnChangeNotified(t *testing.T) {
	var mu sync.Mutex
	var events []string
	c := testController(t, newFakeGateway(), Options{OnChange: func(ws string) {
		mu.Lock()
		events = append(events, ws)
		mu.Unlock()
	}})

	waitDone(t, c.OpenTile(context.Background(), noteDesc("a"), workspace.Journal))
	c.BringToFront(workspace.Journal, noteID("a"))
	c.BringToFront(workspace.Journal, noteID("missing"))
	c.ToggleFullscreen(workspace.Journal, noteID("a"))
	c.CloseTile(workspace.Journal, noteID("a"))

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 {
		t.Errorf("events = %v, want 4 notifications", events)
	}
	for _, ws := range events {
		if ws != workspace.Journal {
			t.Errorf("event for %q", ws)
		}
	}
}
