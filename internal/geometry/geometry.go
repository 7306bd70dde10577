// Package geometry persists remembered tile geometry keyed by (kind, id).
//
// The workspace core only needs Gateway. Store adds the listing and removal
// operations used by the HTTP surface. Two backends are provided: a SQLite
// table (DB) and a directory of JSON files (KV).
package geometry

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/tessera/internal/tile"
)

// Gateway is the read/write contract the tile controller depends on.
// Fetch returns apperr.ErrNotFound when nothing is remembered for id; any
// other error means the store could not be reached.
type Gateway interface {
	Fetch(ctx context.Context, id tile.ID) (tile.Geometry, error)
	Save(ctx context.Context, id tile.ID, p tile.Placement) error
}

// Store is a Gateway with listing and removal.
type Store interface {
	Gateway
	Get(ctx context.Context, id tile.ID) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id tile.ID) error
	Close() error
}

// Record is one remembered placement.
type Record struct {
	tile.ID
	tile.Placement
	UpdatedAt time.Time `json:"updated_at"`
}

// normalize applies the store defaults to a placement before writing.
func normalize(p tile.Placement) tile.Placement {
	if p.ZIndex < 1 {
		p.ZIndex = 1
	}
	return p
}

// Backend drivers accepted by OpenStore.
const (
	DriverSQLite = "sqlite"
	DriverDiskv  = "diskv"
)

// OpenStore opens the backend named by driver at path.
func OpenStore(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return Open(path)
	case DriverDiskv:
		return OpenKV(path)
	}
	return nil, fmt.Errorf("geometry: unknown driver %q", driver)
}
