/*Package cell implements the spatial index: the Cell type and the
per-rank Map of occupied cells it is stored in. A Cell is a square tile
of space addressed by an integer lattice coordinate; it is the unit of
both spatial lookup (manager.Manager.GetNearestParticles) and
load-balancing (partition.Adapter treats each occupied cell as one
object).

The lattice spacing (cell size) is recomputed every update cycle from
the live particle distribution rather than fixed ahead of time, so the
grid tracks however the particles happen to be distributed at each call.
*/
package cell

import "math"

// ID is a cell's discrete lattice coordinate. Go's native map[ID]*Cell
// already hashes a 2-field comparable struct key, so no custom hash is
// needed and no ordering is required of the map either.
//
// ID deliberately carries no Z field: binning itself is 2D-only, even
// though centroids and bounding boxes still carry a z component (the
// centroid's z is always zero; the box spans +/- the inflation around it).
type ID struct {
	X, Y int32
}

// IndexOf computes the lattice ID a point (x, y) falls into at the given
// cell size: floor(coord / cellSize) per axis. The mapping is a pure
// function of floor division, not a hash, so there is no collision
// probability to reason about.
func IndexOf(x, y, cellSize float64) ID {
	return ID{
		X: int32(math.Floor(x / cellSize)),
		Y: int32(math.Floor(y / cellSize)),
	}
}

// Cell is one entry in a Map: its discrete index, centroid, inflated
// bounding box, per-array row/gid lists, boundary flag, and overlapping
// neighbor-rank set.
type Cell struct {
	CID      ID
	CellSize float64

	// Centroid is (cid + 0.5) * cellSize per axis; z is always 0 since
	// binning is 2D-only (see ID's doc comment).
	Centroid [3]float64
	// BoxMin/BoxMax are centroid +/- (ghostLayers + 0.5) * cellSize per
	// axis — the inflated box used for halo-overlap tests.
	BoxMin, BoxMax [3]float64

	// LIndices[k] is the ordered sequence of row indices into particle
	// array k that this cell currently owns.
	LIndices [][]int
	// GIndices[k] is the parallel sequence of global ids: GIndices[k][i]
	// is the gid of the row LIndices[k][i].
	GIndices [][]uint32

	IsBoundary bool
	// NbrProcs is the set of other ranks whose partitions overlap this
	// cell's inflated box.
	NbrProcs map[int]bool
}

// newCell constructs a Cell for lattice coordinate cid at the given cell
// size and ghost-layer count, with nArrays empty per-array index lists;
// LIndices[k] and GIndices[k] start empty and stay parallel.
func newCell(cid ID, cellSize float64, ghostLayers int, nArrays int) *Cell {
	c := &Cell{
		CID:      cid,
		CellSize: cellSize,
		LIndices: make([][]int, nArrays),
		GIndices: make([][]uint32, nArrays),
		NbrProcs: make(map[int]bool),
	}

	c.Centroid = [3]float64{
		(float64(cid.X) + 0.5) * cellSize,
		(float64(cid.Y) + 0.5) * cellSize,
		0,
	}

	inflate := (float64(ghostLayers) + 0.5) * cellSize
	c.BoxMin = [3]float64{c.Centroid[0] - inflate, c.Centroid[1] - inflate, c.Centroid[2] - inflate}
	c.BoxMax = [3]float64{c.Centroid[0] + inflate, c.Centroid[1] + inflate, c.Centroid[2] + inflate}

	return c
}

// AppendRow records that particle array k's row r (with global id gid)
// belongs to this cell.
func (c *Cell) AppendRow(k, r int, gid uint32) {
	c.LIndices[k] = append(c.LIndices[k], r)
	c.GIndices[k] = append(c.GIndices[k], gid)
}
