package cell

// Map is the per-rank mapping from cell ID to *Cell, holding non-empty
// cells only. It is meant to be rebuilt wholesale rather than mutated
// incrementally — after initial binning, after load-balance exchange,
// after halo exchange, and on every Update call — so it exposes Clear,
// not a per-cell Delete.
type Map struct {
	cells       map[ID]*Cell
	nArrays     int
	ghostLayers int
}

// NewMap returns an empty Map configured for nArrays particle arrays and
// ghostLayers ghost layers. Every Cell subsequently created by GetOrCreate
// inherits these two values.
func NewMap(nArrays, ghostLayers int) *Map {
	return &Map{
		cells:       make(map[ID]*Cell),
		nArrays:     nArrays,
		ghostLayers: ghostLayers,
	}
}

// Clear empties the map. Callers must call Clear before any rebinding
// pass rather than mutate cells left over from a previous phase.
func (m *Map) Clear() {
	m.cells = make(map[ID]*Cell)
}

// Len returns the number of occupied cells.
func (m *Map) Len() int { return len(m.cells) }

// Get returns the cell at id, or nil if unoccupied.
func (m *Map) Get(id ID) *Cell { return m.cells[id] }

// GetOrCreate returns the cell at id, creating an empty one (at the given
// cellSize) if none exists yet.
func (m *Map) GetOrCreate(id ID, cellSize float64) *Cell {
	c, ok := m.cells[id]
	if ok {
		return c
	}
	c = newCell(id, cellSize, m.ghostLayers, m.nArrays)
	m.cells[id] = c
	return c
}

// Each calls fn once per occupied cell, in unspecified order.
func (m *Map) Each(fn func(*Cell)) {
	for _, c := range m.cells {
		fn(c)
	}
}

// EachErr calls fn once per occupied cell, in the same unspecified order
// as Each, stopping and returning the first error fn reports. Callers
// whose per-cell work can fail (e.g. a partitioner call that must abort
// the whole walk on InvariantViolation) use this instead of Each, which
// has no way to propagate a failure out of the closure.
func (m *Map) EachErr(fn func(*Cell) error) error {
	for _, c := range m.cells {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns every occupied cell's ID, in unspecified order. Used by the
// partitioner adapter to build its dense per-cell object arrays.
func (m *Map) IDs() []ID {
	ids := make([]ID, 0, len(m.cells))
	for id := range m.cells {
		ids = append(ids, id)
	}
	return ids
}

// Neighborhood9 returns the up-to-nine cells in the 3x3 block centered on
// id, skipping any that are unoccupied. Used by
// manager.Manager.GetNearestParticles to bound its neighbor search to the
// cells that could possibly hold a particle within range.
func (m *Map) Neighborhood9(id ID) []*Cell {
	var out []*Cell
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			if c, ok := m.cells[ID{X: id.X + dx, Y: id.Y + dy}]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}
