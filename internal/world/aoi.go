package world

import (
	"math"
	"slices"

	"github.com/l1jgo/spellengine/internal/core/ecs"
)

// AOIGrid implements a cell-based area of interest index. A range search
// visits only the cells its bounding square overlaps and the caller does
// the fine-grained distance filtering.
// Accessed only from the game loop goroutine, no locks.

const cellSize = 20.0

type cellKey struct {
	cx int32
	cy int32
}

func toCellCoord(v float64) int32 {
	return int32(math.Floor(v / cellSize))
}

// AOIGrid tracks which units are in which cells.
type AOIGrid struct {
	cells map[cellKey][]ecs.EntityID
	count int
}

func NewAOIGrid() *AOIGrid {
	return &AOIGrid{
		cells: make(map[cellKey][]ecs.EntityID),
	}
}

func (g *AOIGrid) key(x, y float64) cellKey {
	return cellKey{cx: toCellCoord(x), cy: toCellCoord(y)}
}

// Add places a unit into the grid.
func (g *AOIGrid) Add(id ecs.EntityID, x, y float64) {
	k := g.key(x, y)
	g.cells[k] = append(g.cells[k], id)
	g.count++
}

// Remove takes a unit out of the grid.
func (g *AOIGrid) Remove(id ecs.EntityID, x, y float64) {
	k := g.key(x, y)
	cell := g.cells[k]
	i := slices.Index(cell, id)
	if i < 0 {
		return
	}
	cell = slices.Delete(cell, i, i+1)
	g.count--
	if len(cell) == 0 {
		delete(g.cells, k)
		return
	}
	g.cells[k] = cell
}

// Move updates a unit's cell when its position changes.
func (g *AOIGrid) Move(id ecs.EntityID, oldX, oldY, newX, newY float64) {
	if g.key(oldX, oldY) == g.key(newX, newY) {
		return
	}
	g.Remove(id, oldX, oldY)
	g.Add(id, newX, newY)
}

// GetNearby returns every unit in the cells overlapping the square of
// half-width radius around (x, y), sorted by id so callers see the same
// order on every run.
func (g *AOIGrid) GetNearby(x, y, radius float64) []ecs.EntityID {
	if radius < 0 {
		radius = 0
	}
	minX, maxX := toCellCoord(x-radius), toCellCoord(x+radius)
	minY, maxY := toCellCoord(y-radius), toCellCoord(y+radius)
	var result []ecs.EntityID
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			result = append(result, g.cells[cellKey{cx: cx, cy: cy}]...)
		}
	}
	slices.Sort(result)
	return result
}

// Len returns the number of indexed units.
func (g *AOIGrid) Len() int { return g.count }
