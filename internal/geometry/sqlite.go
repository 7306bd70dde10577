package geometry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/tile"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tile_positions (
	id         TEXT PRIMARY KEY,
	note_type  TEXT NOT NULL,
	note_id    TEXT NOT NULL,
	x          REAL NOT NULL DEFAULT 0,
	y          REAL NOT NULL DEFAULT 0,
	width      REAL NOT NULL DEFAULT 400,
	height     REAL NOT NULL DEFAULT 300,
	z_index    INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(note_type, note_id)
);
`

// DB is a SQLite-backed Store.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("geometry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("geometry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("geometry: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Fetch returns the remembered geometry for id.
func (db *DB) Fetch(ctx context.Context, id tile.ID) (tile.Geometry, error) {
	rec, err := db.Get(ctx, id)
	if err != nil {
		return tile.Geometry{}, err
	}
	return rec.Geometry, nil
}

// Get returns the full record for id.
func (db *DB) Get(ctx context.Context, id tile.ID) (*Record, error) {
	rec := Record{ID: id}
	err := db.conn.QueryRowContext(ctx, `
		SELECT x, y, width, height, z_index, updated_at
		FROM tile_positions
		WHERE note_type = ? AND note_id = ?
	`, string(id.Kind), id.ID).Scan(&rec.X, &rec.Y, &rec.Width, &rec.Height, &rec.ZIndex, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("geometry: get %s: %w", id, err)
	}
	return &rec, nil
}

// Save upserts the placement for id. The row id is assigned on first insert
// and kept on later writes.
func (db *DB) Save(ctx context.Context, id tile.ID, p tile.Placement) error {
	p = normalize(p)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tile_positions (id, note_type, note_id, x, y, width, height, z_index, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_type, note_id) DO UPDATE SET
			x          = excluded.x,
			y          = excluded.y,
			width      = excluded.width,
			height     = excluded.height,
			z_index    = excluded.z_index,
			updated_at = excluded.updated_at
	`, uuid.NewString(), string(id.Kind), id.ID, p.X, p.Y, p.Width, p.Height, p.ZIndex, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("geometry: save %s: %w", id, err)
	}
	return nil
}

// List returns every remembered placement ordered by kind and id.
func (db *DB) List(ctx context.Context) ([]Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_type, note_id, x, y, width, height, z_index, updated_at
		FROM tile_positions
		ORDER BY note_type, note_id
	`)
	if err != nil {
		return nil, fmt.Errorf("geometry: list: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec  Record
			kind string
		)
		if err := rows.Scan(&kind, &rec.ID.ID, &rec.X, &rec.Y, &rec.Width, &rec.Height, &rec.ZIndex, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Kind = tile.Kind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete forgets the placement for id. Deleting a missing record is not an error.
func (db *DB) Delete(ctx context.Context, id tile.ID) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tile_positions WHERE note_type = ? AND note_id = ?`,
		string(id.Kind), id.ID); err != nil {
		return fmt.Errorf("geometry: delete %s: %w", id, err)
	}
	return nil
}
