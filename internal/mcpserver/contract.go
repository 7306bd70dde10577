package mcpserver

// LayoutRules describes how tiles are placed, for LLM consumers deciding
// whether to move tiles by hand or let auto-tiling do it.
const LayoutRules = `# Tessera Layout Rules

A workspace holds an ordered list of tiles. Each tile wraps one record,
identified by (kind, id). Kinds: note, journal, quick-note.

## Auto-tiling

Without remembered geometry every open tile is re-tiled over the working
area (the canvas minus the gap on each side), in insertion order:

| Tiles | Arrangement |
|-------|-------------|
| 1     | the whole working area |
| 2     | two equal columns |
| 3     | a master column on the left (half the width), two stacked tiles on the right |
| 4     | a 2x2 grid |
| 5+    | cols = ceil(sqrt(1.5 * n)), rows = ceil(n / cols), filled row by row |

Adjacent tiles are separated by the gap. Closing a tile re-tiles every
remaining tile, discarding manual placement.

## Remembered geometry

Moving or resizing a tile stores its geometry. The next time the same
record is opened it appears where it was left and the other tiles stay put.
Width and height never go below the configured minimums.

## Stacking

Tiles carry a z-index. Bringing a tile to the front gives it one more than
the current maximum. Re-tiling resets z-index to insertion order.

## Workspaces

- ` + "`quick-notes`" + ` and ` + "`journal`" + ` are global.
- ` + "`project-<id>`" + ` is one per project.

The same record may be open in several workspaces with independent geometry.
`
