// Package layout computes the deterministic auto-tiling arrangement used when
// a tile has no remembered position.
//
// The arrangement follows a small set of fixed schemes keyed by tile count:
// one full tile, a 50/50 split, a master column with a two-tile stack, a 2×2
// quad, and a row-major grid from five tiles up. Every rectangle lies inside
// the working area (the canvas inset by one gap on each side) and adjacent
// rectangles are separated by exactly one gap.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/starford/tessera/internal/tile"
)

// Scheme names the arrangement used for a tile count.
type Scheme string

const (
	SchemeEmpty       Scheme = "empty"
	SchemeSingle      Scheme = "single"
	SchemeSplit       Scheme = "split"
	SchemeMasterStack Scheme = "master-stack"
	SchemeQuad        Scheme = "quad"
	SchemeGrid        Scheme = "grid"
)

// ErrCanvas is returned by Check for a canvas Compute cannot lay tiles on.
var ErrCanvas = errors.New("layout: canvas leaves no room for tiles")

// masterRatio is the share of the working width taken by the master column.
const masterRatio = 0.5

// SchemeFor returns the scheme Compute applies to n tiles.
func SchemeFor(n int) Scheme {
	switch {
	case n <= 0:
		return SchemeEmpty
	case n == 1:
		return SchemeSingle
	case n == 2:
		return SchemeSplit
	case n == 3:
		return SchemeMasterStack
	case n == 4:
		return SchemeQuad
	default:
		return SchemeGrid
	}
}

// GridSize returns the column and row count of the grid scheme for n tiles.
func GridSize(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}
	cols = int(math.Ceil(math.Sqrt(float64(n) * 1.5)))
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Check reports whether Compute yields rectangles of positive size for n
// tiles. The canvas must be finite and positive, the gap finite and not
// negative. A count below one is checked as a single tile.
func Check(n int, width, height, gap float64) error {
	for _, v := range []float64{width, height, gap} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: dimensions must be finite", ErrCanvas)
		}
	}
	if width <= 0 || height <= 0 || gap < 0 {
		return fmt.Errorf("%w: width and height must be positive and gap not negative", ErrCanvas)
	}
	for _, r := range Compute(max(n, 1), width, height, gap) {
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("%w: %gx%g is too small for %d tiles with gap %g", ErrCanvas, width, height, max(n, 1), gap)
		}
	}
	return nil
}

// Compute returns n rectangles for a width×height canvas with the given gap.
// The result is a pure function of its arguments.
func Compute(n int, width, height, gap float64) []tile.Geometry {
	if n <= 0 {
		return []tile.Geometry{}
	}

	ww := width - gap*2
	wh := height - gap*2
	out := make([]tile.Geometry, 0, n)

	switch SchemeFor(n) {
	case SchemeSingle:
		out = append(out, tile.Geometry{X: gap, Y: gap, Width: ww, Height: wh})

	case SchemeSplit:
		half := (ww - gap) / 2
		out = append(out,
			tile.Geometry{X: gap, Y: gap, Width: half, Height: wh},
			tile.Geometry{X: gap + half + gap, Y: gap, Width: half, Height: wh},
		)

	case SchemeMasterStack:
		master := ww * masterRatio
		stackW := ww - master - gap
		stackH := (wh - gap) / 2
		stackX := gap + master + gap
		out = append(out,
			tile.Geometry{X: gap, Y: gap, Width: master, Height: wh},
			tile.Geometry{X: stackX, Y: gap, Width: stackW, Height: stackH},
			tile.Geometry{X: stackX, Y: gap + stackH + gap, Width: stackW, Height: stackH},
		)

	case SchemeQuad:
		halfW := (ww - gap) / 2
		halfH := (wh - gap) / 2
		out = append(out,
			tile.Geometry{X: gap, Y: gap, Width: halfW, Height: halfH},
			tile.Geometry{X: gap + halfW + gap, Y: gap, Width: halfW, Height: halfH},
			tile.Geometry{X: gap, Y: gap + halfH + gap, Width: halfW, Height: halfH},
			tile.Geometry{X: gap + halfW + gap, Y: gap + halfH + gap, Width: halfW, Height: halfH},
		)

	default:
		cols, rows := GridSize(n)
		cellW := (ww - gap*float64(cols-1)) / float64(cols)
		cellH := (wh - gap*float64(rows-1)) / float64(rows)
		// Incomplete last row keeps the cell size; it is not stretched.
		for i := 0; i < n; i++ {
			col := i % cols
			row := i / cols
			out = append(out, tile.Geometry{
				X:      gap + float64(col)*(cellW+gap),
				Y:      gap + float64(row)*(cellH+gap),
				Width:  cellW,
				Height: cellH,
			})
		}
	}

	return out
}
