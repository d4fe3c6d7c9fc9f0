package cell

import "testing"

func TestIndexOfFloorsToLatticeCoordinate(t *testing.T) {
	cases := []struct {
		x, y, cellSize float64
		want           ID
	}{
		{0, 0, 1.0, ID{0, 0}},
		{0.99, 0.99, 1.0, ID{0, 0}},
		{1.0, 1.0, 1.0, ID{1, 1}},
		{-0.5, -0.5, 1.0, ID{-1, -1}},
		{2.5, -3.5, 2.0, ID{1, -2}},
	}
	for _, c := range cases {
		got := IndexOf(c.x, c.y, c.cellSize)
		if got != c.want {
			t.Errorf("IndexOf(%v,%v,%v) = %v, want %v", c.x, c.y, c.cellSize, got, c.want)
		}
	}
}

func TestNewCellCentroidAndInflatedBox(t *testing.T) {
	m := NewMap(1, 2)
	c := m.GetOrCreate(ID{X: 0, Y: 0}, 2.0)
	wantCentroid := [3]float64{1.0, 1.0, 0}
	if c.Centroid != wantCentroid {
		t.Fatalf("Centroid = %v, want %v", c.Centroid, wantCentroid)
	}
	// inflate = (ghostLayers + 0.5) * cellSize = 2.5 * 2.0 = 5.0
	wantMin := [3]float64{-4.0, -4.0, -5.0}
	wantMax := [3]float64{6.0, 6.0, 5.0}
	if c.BoxMin != wantMin || c.BoxMax != wantMax {
		t.Fatalf("box = [%v,%v], want [%v,%v]", c.BoxMin, c.BoxMax, wantMin, wantMax)
	}
}

func TestAppendRowKeepsIndicesAndGidsParallel(t *testing.T) {
	m := NewMap(2, 0)
	c := m.GetOrCreate(ID{0, 0}, 1.0)
	c.AppendRow(0, 5, 105)
	c.AppendRow(0, 7, 107)
	c.AppendRow(1, 2, 202)

	if len(c.LIndices[0]) != 2 || len(c.GIndices[0]) != 2 {
		t.Fatalf("array 0 lists out of sync: %v %v", c.LIndices[0], c.GIndices[0])
	}
	if c.LIndices[0][1] != 7 || c.GIndices[0][1] != 107 {
		t.Fatalf("array 0 row/gid mismatch: %v %v", c.LIndices[0], c.GIndices[0])
	}
	if len(c.LIndices[1]) != 1 || c.LIndices[1][0] != 2 {
		t.Fatalf("array 1 rows = %v, want [2]", c.LIndices[1])
	}
}

func TestMapClearEmptiesOccupiedCells(t *testing.T) {
	m := NewMap(1, 0)
	m.GetOrCreate(ID{0, 0}, 1.0)
	m.GetOrCreate(ID{1, 1}, 1.0)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", m.Len())
	}
}

func TestNeighborhood9SkipsUnoccupiedCells(t *testing.T) {
	m := NewMap(1, 0)
	m.GetOrCreate(ID{0, 0}, 1.0)
	m.GetOrCreate(ID{1, 0}, 1.0)
	m.GetOrCreate(ID{5, 5}, 1.0) // far away, not a neighbor of {0,0}

	nbrs := m.Neighborhood9(ID{0, 0})
	if len(nbrs) != 2 {
		t.Fatalf("Neighborhood9 returned %d cells, want 2", len(nbrs))
	}
}
