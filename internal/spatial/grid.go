// Package spatial provides a uniform grid broad phase over entity bounds.
package spatial

import (
	"math"
	"sort"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// CellKey identifies a grid cell.
type CellKey struct {
	X int
	Y int
}

const (
	// DefaultCellSize matches the typical wall tile size.
	DefaultCellSize = 64.0
	// MinExtentFraction clamps narrow bounds so they still occupy a cell.
	MinExtentFraction = 0.25
)

type entry struct {
	bounds geometry.Rect
	cells  []CellKey
}

// Grid buckets entity bounds into square cells. It is not safe for
// concurrent use; callers own it from a single tick goroutine.
type Grid struct {
	cellSize    float64
	invCellSize float64
	cells       map[CellKey][]state.EntityID
	entries     map[state.EntityID]*entry
}

// NewGrid constructs a grid; non-positive sizes fall back to DefaultCellSize.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cells:       make(map[CellKey][]state.EntityID),
		entries:     make(map[state.EntityID]*entry),
	}
}

// Len returns the number of indexed entities.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Upsert inserts or moves an entity's bounds.
func (g *Grid) Upsert(id state.EntityID, bounds geometry.Rect) {
	if g == nil {
		return
	}
	if existing, ok := g.entries[id]; ok {
		if existing.bounds == bounds {
			return
		}
		g.removeFromCells(id, existing.cells)
	}

	cells := g.cellsFor(bounds)
	g.entries[id] = &entry{bounds: bounds, cells: cells}
	for _, cell := range cells {
		g.cells[cell] = append(g.cells[cell], id)
	}
}

// Remove deletes an entity from the grid.
func (g *Grid) Remove(id state.EntityID) {
	if g == nil {
		return
	}
	existing, ok := g.entries[id]
	if !ok {
		return
	}
	g.removeFromCells(id, existing.cells)
	delete(g.entries, id)
}

// Reset drops every entry.
func (g *Grid) Reset() {
	if g == nil {
		return
	}
	g.cells = make(map[CellKey][]state.EntityID)
	g.entries = make(map[state.EntityID]*entry)
}

// Query returns the ids whose stored bounds intersect area, ascending.
func (g *Grid) Query(area geometry.Rect) []state.EntityID {
	if g == nil || len(g.entries) == 0 {
		return nil
	}
	seen := make(map[state.EntityID]struct{})
	var out []state.EntityID
	for _, cell := range g.cellsFor(area) {
		for _, id := range g.cells[cell] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if touches(g.entries[id].bounds, area) {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QueryRadius returns the ids whose bounds touch the square around center.
func (g *Grid) QueryRadius(center geometry.Vec2, radius float64) []state.EntityID {
	return g.Query(geometry.Rect{X: center.X - radius, Y: center.Y - radius, Width: radius * 2, Height: radius * 2})
}

// touches is Rect.Intersects with closed edges so zero-size bounds still match.
func touches(a, b geometry.Rect) bool {
	return a.X <= b.MaxX() && a.MaxX() >= b.X && a.Y <= b.MaxY() && a.MaxY() >= b.Y
}

func (g *Grid) removeFromCells(id state.EntityID, cells []CellKey) {
	for _, cell := range cells {
		bucket := g.cells[cell]
		for i := range bucket {
			if bucket[i] != id {
				continue
			}
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
		if len(bucket) == 0 {
			delete(g.cells, cell)
		} else {
			g.cells[cell] = bucket
		}
	}
}

func (g *Grid) cellsFor(r geometry.Rect) []CellKey {
	minExtent := g.cellSize * MinExtentFraction
	width := math.Max(math.Abs(r.Width), minExtent)
	height := math.Max(math.Abs(r.Height), minExtent)

	minX := g.coordToCell(r.X)
	minY := g.coordToCell(r.Y)
	maxX := g.coordToCell(r.X + width)
	maxY := g.coordToCell(r.Y + height)
	cells := make([]CellKey, 0, (maxX-minX+1)*(maxY-minY+1))
	for row := minY; row <= maxY; row++ {
		for col := minX; col <= maxX; col++ {
			cells = append(cells, CellKey{X: col, Y: row})
		}
	}
	return cells
}

func (g *Grid) coordToCell(value float64) int {
	return int(math.Floor(value * g.invCellSize))
}
