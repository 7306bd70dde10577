package geometry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/tile"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "tessera-geometry-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testKV(t *testing.T) *KV {
	t.Helper()
	kv, err := OpenKV(filepath.Join(t.TempDir(), "tiles"))
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	return kv
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, testDB(t)) })
	t.Run("diskv", func(t *testing.T) { fn(t, testKV(t)) })
}

func placement(x, y, w, h float64, z int) tile.Placement {
	return tile.Placement{Geometry: tile.Geometry{X: x, Y: y, Width: w, Height: h}, ZIndex: z}
}

func TestFetch_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.Fetch(context.Background(), tile.ID{Kind: tile.KindNote, ID: "missing"})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSaveAndFetch(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id := tile.ID{Kind: tile.KindJournal, ID: "2025-01-15"}
		if err := s.Save(ctx, id, placement(10, 20, 300, 250, 4)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		g, err := s.Fetch(ctx, id)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if want := (tile.Geometry{X: 10, Y: 20, Width: 300, Height: 250}); g != want {
			t.Errorf("geometry = %+v, want %+v", g, want)
		}
		rec, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.ZIndex != 4 || rec.ID != id {
			t.Errorf("record = %+v", rec)
		}
	})
}

func TestSave_LastWriteWins(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id := tile.ID{Kind: tile.KindNote, ID: "n1"}
		_ = s.Save(ctx, id, placement(1, 1, 300, 300, 1))
		_ = s.Save(ctx, id, placement(2, 2, 400, 400, 0))

		rec, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.X != 2 || rec.Width != 400 {
			t.Errorf("record = %+v, want second write", rec)
		}
		if rec.ZIndex != 1 {
			t.Errorf("zIndex = %d, want default 1", rec.ZIndex)
		}
		all, _ := s.List(ctx)
		if len(all) != 1 {
			t.Errorf("list len = %d, want 1", len(all))
		}
	})
}

func TestListAndDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ids := []tile.ID{
			{Kind: tile.KindQuickNote, ID: "q1"},
			{Kind: tile.KindNote, ID: "b"},
			{Kind: tile.KindNote, ID: "a/with slash"},
		}
		for _, id := range ids {
			if err := s.Save(ctx, id, placement(0, 0, 300, 300, 1)); err != nil {
				t.Fatalf("Save %s: %v", id, err)
			}
		}
		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("list len = %d, want 3", len(all))
		}
		if all[0].ID.ID != "a/with slash" || all[2].Kind != tile.KindQuickNote {
			t.Errorf("order = %v, %v, %v", all[0].ID, all[1].ID, all[2].ID)
		}

		if err := s.Delete(ctx, ids[0]); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, ids[0]); err != nil {
			t.Errorf("second Delete: %v", err)
		}
		if _, err := s.Fetch(ctx, ids[0]); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Fetch after delete err = %v", err)
		}
	})
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := OpenStore("postgres", "x"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	for _, raw := range []string{"dir/name with %", ".", "..", "...", "a.json"} {
		id := tile.ID{Kind: tile.KindNote, ID: raw}
		got, err := fromKey(toKey(id))
		if err != nil || got != id {
			t.Errorf("fromKey(toKey(%q)) = %v, %v", raw, got, err)
		}
		if pathToKey(keyToPath(toKey(id))) != toKey(id) {
			t.Errorf("path transform does not invert for %q", raw)
		}
	}
}

func TestSaveAndFetch_DotIDs(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, raw := range []string{".", ".."} {
			id := tile.ID{Kind: tile.KindNote, ID: raw}
			p := placement(float64(i), 2, 300, 200, 1)
			if err := s.Save(ctx, id, p); err != nil {
				t.Fatalf("Save(%q): %v", raw, err)
			}
			got, err := s.Fetch(ctx, id)
			if err != nil || got != p.Geometry {
				t.Errorf("Fetch(%q) = %+v, %v", raw, got, err)
			}
		}
		all, err := s.List(ctx)
		if err != nil || len(all) != 2 {
			t.Fatalf("List = %v, %v", all, err)
		}
		if all[0].ID.ID != "." || all[1].ID.ID != ".." {
			t.Errorf("list = %v, %v", all[0].ID, all[1].ID)
		}
	})
}
