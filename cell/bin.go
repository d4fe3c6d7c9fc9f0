package cell

import "github.com/phil-mansfield/pmanager/particle"

// Bin assigns every row in rows to a cell: for particle array index k and
// the current cellSize, it computes each row's cell ID from view's x/y
// coordinates, fetches or creates that cell in m, and appends the row and
// its gid to the cell's k-th index lists.
//
// Bin never clears m itself; callers binding several arrays into the same
// map in sequence are responsible for clearing it first.
func Bin(k int, rows []int, cellSize float64, m *Map, view *particle.View) {
	for _, r := range rows {
		id := IndexOf(view.X[r], view.Y[r], cellSize)
		c := m.GetOrCreate(id, cellSize)
		c.AppendRow(k, r, view.GID[r])
	}
}

// AllRows returns {0, 1, ..., n-1}, the row-index sequence Bin is most
// commonly called with (a full rebind over every row currently in the
// array).
func AllRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
