package spaceship

import (
	"spacelock/internal/netcode/sim"
)

// HitRadius is the narrow-phase hit distance between a missile and a
// ship's center, and also the broad-phase grid's cell size — the cell
// size must equal the largest query radius for the 3x3 neighborhood
// scan in queryNearest to be sufficient.
const HitRadius = 40.0

// grid is a broad-phase spatial index for missile-vs-ship proximity
// checks: fixed-cell-size bucketing over the live *Ship pointers a
// snapshot's View hands out.
type grid struct {
	cols, rows int
	cells      map[int][]*Ship
}

// newGrid buckets every live, undocked ship visible through view into a
// fresh grid. Built fresh on each call rather than cached on the
// snapshot: sim.View deliberately exposes no per-step scratch space
// shared across entities (Step must stay a pure function of one entity
// plus the view, per the core's contract), so every missile's Step call
// pays the same O(ships) bucketing cost a cached-and-invalidated version
// would spend anyway at this domain's entity counts.
func newGrid(view *sim.View) *grid {
	g := &grid{
		cols:  int(WorldWidth/HitRadius) + 1,
		cells: make(map[int][]*Ship),
	}
	view.Each(func(e sim.Entity) {
		ship, ok := e.(*Ship)
		if !ok || ship.Docked {
			return
		}
		g.insert(ship)
	})
	return g
}

func (g *grid) cellOf(x, y float64) int {
	col := int(x / HitRadius)
	row := int(y / HitRadius)
	return row*g.cols + col
}

func (g *grid) insert(s *Ship) {
	idx := g.cellOf(s.X, s.Y)
	g.cells[idx] = append(g.cells[idx], s)
}

// queryNearest returns the closest ship within HitRadius of (x, y) that
// is not owner, or nil if none is in range. Only the 3x3 neighborhood of
// cells around (x, y) can possibly hold a ship within HitRadius since the
// grid's cell size equals that radius.
func (g *grid) queryNearest(x, y float64, owner sim.EntityID) *Ship {
	col := int(x / HitRadius)
	row := int(y / HitRadius)

	var best *Ship
	bestDistSq := HitRadius * HitRadius
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			idx := (row+dr)*g.cols + (col + dc)
			for _, s := range g.cells[idx] {
				if s.ID() == owner {
					continue
				}
				dx, dy := s.X-x, s.Y-y
				distSq := dx*dx + dy*dy
				if distSq <= bestDistSq {
					best = s
					bestDistSq = distSq
				}
			}
		}
	}
	return best
}
