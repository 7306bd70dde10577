// Package testutil provides shared test helpers for geometry stores and
// tile controllers.
package testutil

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/tessera/internal/geometry"
	"github.com/starford/tessera/internal/tilectl"
	"github.com/starford/tessera/internal/workspace"
)

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestGeometryDB creates a temporary SQLite geometry store that is
// automatically cleaned up.
func TestGeometryDB(t *testing.T) *geometry.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tessera-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := geometry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSettings are small, round layout parameters for predictable geometry.
func TestSettings() workspace.Settings {
	return workspace.Settings{Gap: 12, MinWidth: 250, MinHeight: 200, CanvasWidth: 1000, CanvasHeight: 800}
}

// TestController wires a controller over gw with TestSettings. Background
// work is drained on cleanup.
func TestController(t *testing.T, gw geometry.Gateway, opts tilectl.Options) *tilectl.Controller {
	t.Helper()
	c := tilectl.New(workspace.NewStore(TestSettings()), gw, Logger(), opts)
	t.Cleanup(c.Wait)
	return c
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
