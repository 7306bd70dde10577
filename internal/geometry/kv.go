package geometry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/starford/tessera/internal/apperr"
	"github.com/starford/tessera/internal/tile"
)

// KV is a Store that keeps one JSON file per tile under <dir>/<kind>/<id>.json.
type KV struct {
	d *diskv.Diskv
}

var _ Store = (*KV)(nil)

type kvValue struct {
	tile.Placement
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenKV opens a KV store rooted at dir, creating it if needed.
func OpenKV(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("geometry: create kv dir: %w", err)
	}
	return &KV{d: diskv.New(diskv.Options{
		BasePath:          dir,
		AdvancedTransform: keyToPath,
		InverseTransform:  pathToKey,
		CacheSizeMax:      1024 * 1024,
	})}, nil
}

// Close is a no-op; diskv holds no open handles.
func (kv *KV) Close() error { return nil }

// Fetch returns the remembered geometry for id.
func (kv *KV) Fetch(ctx context.Context, id tile.ID) (tile.Geometry, error) {
	rec, err := kv.Get(ctx, id)
	if err != nil {
		return tile.Geometry{}, err
	}
	return rec.Geometry, nil
}

// Get returns the full record for id.
func (kv *KV) Get(_ context.Context, id tile.ID) (*Record, error) {
	return kv.read(toKey(id))
}

// Save overwrites the placement for id.
func (kv *KV) Save(ctx context.Context, id tile.ID, p tile.Placement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(kvValue{Placement: normalize(p), UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("geometry: encode %s: %w", id, err)
	}
	if err := kv.d.Write(toKey(id), data); err != nil {
		return fmt.Errorf("geometry: save %s: %w", id, err)
	}
	return nil
}

// List returns every remembered placement ordered by kind and id.
func (kv *KV) List(ctx context.Context) ([]Record, error) {
	out := []Record{}
	for key := range kv.d.Keys(ctx.Done()) {
		rec, err := kv.read(key)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID.ID < out[j].ID.ID
	})
	return out, nil
}

// Delete forgets the placement for id. Deleting a missing record is not an error.
func (kv *KV) Delete(_ context.Context, id tile.ID) error {
	err := kv.d.Erase(toKey(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("geometry: delete %s: %w", id, err)
	}
	return nil
}

func (kv *KV) read(key string) (*Record, error) {
	id, err := fromKey(key)
	if err != nil {
		return nil, err
	}
	data, err := kv.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("geometry: read %s: %w", id, err)
	}
	var v kvValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("geometry: decode %s: %w", id, err)
	}
	return &Record{ID: id, Placement: v.Placement, UpdatedAt: v.UpdatedAt}, nil
}

// toKey makes `<kind>/<escaped id>`.
func toKey(id tile.ID) string {
	return string(id.Kind) + "/" + url.PathEscape(id.ID)
}

func fromKey(key string) (tile.ID, error) {
	kind, escaped, ok := strings.Cut(key, "/")
	if !ok {
		return tile.ID{}, fmt.Errorf("geometry: malformed key %q", key)
	}
	raw, err := url.PathUnescape(escaped)
	if err != nil {
		return tile.ID{}, fmt.Errorf("geometry: malformed key %q: %w", key, err)
	}
	return tile.ID{Kind: tile.Kind(kind), ID: raw}, nil
}

// fileExt keeps ids such as "." and ".." from naming a directory.
const fileExt = ".json"

func keyToPath(key string) *diskv.PathKey {
	kind, name, _ := strings.Cut(key, "/")
	return &diskv.PathKey{
		Path:     []string{kind},
		FileName: name + fileExt,
	}
}

func pathToKey(pk *diskv.PathKey) string {
	return strings.Join(pk.Path, "/") + "/" + strings.TrimSuffix(pk.FileName, fileExt)
}
