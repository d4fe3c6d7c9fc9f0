/*Package manager implements the Parallel Manager: the coordinator that
binds one or more particle arrays, maintains the cell map, drives the
global-bound reduction, computes cell size, requests a partition from
the geometric partitioner, constructs particle-level export lists from
cell-level export lists, triggers exchanges in sequence, rebinds, and
answers neighbor queries.

Update runs this as a fixed ordered sequence of named steps, each one
guarded and reported through the same error path, so a repeatable cycle
can be driven once per simulation timestep.
*/
package manager

import (
	"math"
	"sort"

	"github.com/phil-mansfield/pmanager/cell"
	"github.com/phil-mansfield/pmanager/config"
	"github.com/phil-mansfield/pmanager/exchange"
	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/partition"
	"github.com/phil-mansfield/pmanager/particle"
	"github.com/phil-mansfield/pmanager/perr"
)

// Bounds holds a global coordinate box and maximum smoothing length.
// Update reduces only the maximum smoothing length (see computeCellSize);
// it does not reduce the coordinate extrema, and no code path fills a
// Bounds.
type Bounds struct {
	Min, Max [3]float64
	MaxH     float64
}

// arrayState bundles one bound particle array with the View the manager
// uses to read its coordinate/h/tag/gid columns.
type arrayState struct {
	arr  *particle.Array
	view *particle.View
}

// Manager owns a Comm, a Config, an ordered set of bound particle
// arrays, an Adapter, and the single live cell.Map rebuilt at every
// Update call.
type Manager struct {
	Comm mpitransport.Comm
	Cfg  *config.Config
	Adp  partition.Adapter

	arrays []arrayState
	cells  *cell.Map

	cellSize      float64
	cellGIDOffset uint32

	// InParallel, when true, runs the load-balance/halo steps of Update's
	// cycle; when false, Update only performs the local binning steps. A
	// single-rank LocalComm can run either way; InParallel defaults to
	// Comm.Size() > 1.
	InParallel bool
}

// New constructs a Manager over comm and cfg, binding the given particle
// arrays in order. adp is the partitioner adapter used when InParallel is
// true; it may be nil when the manager will only ever run with one rank.
func New(comm mpitransport.Comm, cfg *config.Config, adp partition.Adapter, arrs []*particle.Array) (*Manager, error) {
	if err := cfg.CheckInit(); err != nil {
		return nil, err
	}
	m := &Manager{
		Comm:       comm,
		Cfg:        cfg,
		Adp:        adp,
		cells:      cell.NewMap(len(arrs), cfg.GhostLayers),
		InParallel: comm.Size() > 1,
	}
	for _, a := range arrs {
		v, err := particle.NewView(a)
		if err != nil {
			return nil, perr.Newf(perr.ConfigError, "manager: binding array: %v", err)
		}
		m.arrays = append(m.arrays, arrayState{arr: a, view: v})
	}
	if m.InParallel && m.Adp == nil {
		return nil, perr.Newf(perr.ConfigError, "manager: InParallel requires a non-nil partition.Adapter")
	}
	return m, nil
}

// Cells returns the manager's live cell map, for inspection by callers
// and tests; it is rebuilt wholesale on every Update.
func (m *Manager) Cells() *cell.Map { return m.cells }

// Update runs the full six-step cycle. initial marks the first call (no
// prior Remote/Ghost rows exist yet, so there's nothing to drop); every
// subsequent call must drop Remote/Ghost rows from every array before
// anything else.
//
// Update is collective: every rank must call it at the same logical
// point, since its Allgather/Allreduce rounds and exchanges block until
// every peer takes part.
func (m *Manager) Update(initial bool) error {
	if !initial {
		if err := m.dropNonLocal(); err != nil {
			return err
		}
	}

	if err := m.renumberGlobalIDs(); err != nil {
		return err
	}

	cellSize, err := m.computeCellSize()
	if err != nil {
		return err
	}
	m.cellSize = cellSize

	m.cells.Clear()
	m.rebin()

	if err := m.numerateCells(); err != nil {
		return err
	}

	if m.InParallel {
		if err := m.partitionAndExchange(); err != nil {
			return err
		}
	}

	for k, s := range m.arrays {
		if err := s.arr.AlignParticles(); err != nil {
			return perr.Newf(perr.InvariantViolation, "manager: AlignParticles: %v", err)
		}
		if err := m.refreshView(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) dropNonLocal() error {
	for k, s := range m.arrays {
		if err := s.arr.DropNonLocal(); err != nil {
			return perr.Newf(perr.InvariantViolation, "manager: dropping non-Local rows: %v", err)
		}
		if err := m.refreshView(k); err != nil {
			return err
		}
	}
	return nil
}

// refreshView re-resolves arrayState.view for array k against its
// backing Array. Every Field.RemoveRows/Resize/Reorder reassigns
// Field.Data to a new backing slice rather than mutating the old one in
// place, so a View's cached slices go stale the moment the array they
// were read from changes shape or order underneath them. Any call that
// removes rows, resizes, or reorders an array (DropNonLocal,
// exchange.Exchange.LBExchange/RemoteExchange, AlignParticles) must be
// followed by refreshView before the next view-based read.
func (m *Manager) refreshView(k int) error {
	v, err := particle.NewView(m.arrays[k].arr)
	if err != nil {
		return perr.Newf(perr.InvariantViolation, "manager: refreshing view for array %d: %v", k, err)
	}
	m.arrays[k].view = v
	return nil
}

// renumberGlobalIDs has every rank report its local Local-count via
// Allgather, then assigns its own rows dense,
// contiguous global ids starting at the prefix sum of every lower rank's
// count — so gids stay dense and globally unique across every rank
// without a central counter.
func (m *Manager) renumberGlobalIDs() error {
	rank := m.Comm.Rank()
	for _, s := range m.arrays {
		local, _, _ := s.arr.CountByTag()
		counts, err := m.Comm.AllgatherInt(local)
		if err != nil {
			return perr.Newf(perr.TransportError, "manager: gid renumbering Allgather: %v", err)
		}
		offset := uint32(0)
		for r := 0; r < rank; r++ {
			offset += uint32(counts[r])
		}
		for i := range s.view.GID {
			if s.view.Tag[i] == particle.TagLocal {
				s.view.GID[i] = offset
				offset++
			}
		}
	}
	return nil
}

// computeCellSize reduces the global maximum smoothing length h across
// every array via AllreduceMax, then sets cellSize = radius_scale * Mh,
// clamped to 1.0 with a warning if the reduction degenerates to zero or
// negative (e.g. no particles on any rank yet).
func (m *Manager) computeCellSize() (float64, error) {
	localMaxH := 0.0
	for _, s := range m.arrays {
		for i, t := range s.view.Tag {
			if t != particle.TagLocal {
				continue
			}
			if s.view.H[i] > localMaxH {
				localMaxH = s.view.H[i]
			}
		}
	}
	globalMax, err := m.Comm.AllreduceMax([]float64{localMaxH})
	if err != nil {
		return 0, perr.Newf(perr.TransportError, "manager: cell size Allreduce: %v", err)
	}
	mh := globalMax[0]
	size := m.Cfg.RadiusScale * mh
	if size <= 0 {
		perr.Warnf("manager: degenerate cell size (radius_scale*Mh = %g), clamping to 1.0", size)
		size = 1.0
	}
	return size, nil
}

// rebin bins every array's currently-Local rows into the (already
// cleared) cell map. Remote/Ghost rows are never binned until they have
// arrived via an exchange and this method is called again after a
// rebuild.
func (m *Manager) rebin() {
	for k, s := range m.arrays {
		var rows []int
		for i, t := range s.view.Tag {
			if t == particle.TagLocal {
				rows = append(rows, i)
			}
		}
		cell.Bin(k, rows, m.cellSize, m.cells, s.view)
	}
}

// numerateCells assigns each occupied cell a dense global id via the
// same Allgather prefix-sum scheme used for particle gids. Cell gids
// aren't otherwise read by the manager itself but are required as the
// partitioner's per-object identifiers.
func (m *Manager) numerateCells() error {
	rank := m.Comm.Rank()
	local := m.cells.Len()
	counts, err := m.Comm.AllgatherInt(local)
	if err != nil {
		return perr.Newf(perr.TransportError, "manager: cell gid Allgather: %v", err)
	}
	offset := uint32(0)
	for r := 0; r < rank; r++ {
		offset += uint32(counts[r])
	}
	m.cellGIDOffset = offset
	return nil
}

func (m *Manager) orderedCellIDs() []cell.ID {
	ids := m.cells.IDs()
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].X != ids[j].X {
			return ids[i].X < ids[j].X
		}
		return ids[i].Y < ids[j].Y
	})
	return ids
}

// partitionAndExchange asks the partitioner to balance the occupied
// cells, translates the resulting cell-level export lists into
// particle-level export lists per array, runs the load-balance exchange,
// rebins, then computes and runs the halo exchange, and finally rebinds
// the newly-arrived Remote rows.
func (m *Manager) partitionAndExchange() error {
	ids := m.orderedCellIDs()
	centroids := make([][3]float64, len(ids))
	gids := make([]uint32, len(ids))
	for i, id := range ids {
		c := m.cells.Get(id)
		centroids[i] = c.Centroid
		gids[i] = m.cellGIDOffset + uint32(i)
	}

	globalN, err := m.globalCount(len(ids))
	if err != nil {
		return err
	}

	m.Adp.SetNumObjects(len(ids), globalN)
	m.Adp.UpdateGlobalIDs(gids)
	m.Adp.SetCentroids(centroids)

	expLocal, expGlobal, expProcs, err := m.Adp.Balance()
	if err != nil {
		return perr.Newf(perr.TransportError, "manager: partitioner Balance: %v", err)
	}
	_, _, impProcs, err := m.Adp.InvertLists(expLocal, expGlobal, expProcs)
	if err != nil {
		return perr.Newf(perr.TransportError, "manager: partitioner InvertLists: %v", err)
	}

	exportingCells := make(map[cell.ID]int) // cell.ID -> destination rank
	for i, lid := range expLocal {
		exportingCells[ids[lid]] = expProcs[i]
	}

	for k, s := range m.arrays {
		exportLists, _ := cellListsToParticleLists(k, m.cells, exportingCells, impProcs)
		// impProcs has one entry per imported cell, not per imported row,
		// so the row-level import counts come from the senders directly.
		rowImportProcs, err := m.announceHaloImports(exportLists.Procs)
		if err != nil {
			return err
		}
		importLists := exchange.Lists{
			Procs:     rowImportProcs,
			LocalIDs:  make([]int, len(rowImportProcs)),
			GlobalIDs: make([]uint32, len(rowImportProcs)),
		}
		ex, err := exchange.New(s.arr, m.Comm, m.Cfg.LBProps)
		if err != nil {
			return err
		}
		if err := ex.LBExchange(exportLists, importLists); err != nil {
			return perr.Newf(perr.TransportError, "manager: LBExchange array %d: %v", k, err)
		}
		if err := m.refreshView(k); err != nil {
			return err
		}
	}

	m.cells.Clear()
	m.rebin()

	if err := m.haloExchange(); err != nil {
		return err
	}
	return nil
}

// globalCount sums local across every rank using the AllgatherInt
// primitive Comm exposes (there is no direct Allreduce-sum collective —
// see partition.RCB.globalSum for the same pattern).
func (m *Manager) globalCount(local int) (int, error) {
	counts, err := m.Comm.AllgatherInt(local)
	if err != nil {
		return 0, perr.Newf(perr.TransportError, "manager: count Allgather: %v", err)
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	return sum, nil
}

// cellListsToParticleLists projects a cell-level export/import plan onto
// array k's row indices: every row bound to an exporting cell is
// exported to that cell's destination rank. The import side it returns
// holds one entry per element of importProcs, with zero-valued LocalIDs
// and GlobalIDs — one entry per imported cell, not per imported row, so
// partitionAndExchange uses only the export side and takes its row-level
// import counts from announceHaloImports.
func cellListsToParticleLists(k int, cells *cell.Map, exportingCells map[cell.ID]int, importProcs []int) (export, importSide exchange.Lists) {
	cells.Each(func(c *cell.Cell) {
		dest, ok := exportingCells[c.CID]
		if !ok {
			return
		}
		for idx, row := range c.LIndices[k] {
			export.LocalIDs = append(export.LocalIDs, row)
			export.GlobalIDs = append(export.GlobalIDs, c.GIndices[k][idx])
			export.Procs = append(export.Procs, dest)
		}
	})
	importSide.Procs = append([]int{}, importProcs...)
	importSide.LocalIDs = make([]int, len(importProcs))
	importSide.GlobalIDs = make([]uint32, len(importProcs))
	return export, importSide
}

// haloExchange walks the cell map, asks the
// partitioner which other ranks' boxes overlap each cell's inflated
// box, build per-array export/import lists for those overlaps, run
// RemoteExchange (no row removal, arrivals tagged Remote), then rebind
// the cell map so the newly-arrived Remote rows are visible to
// GetNearestParticles.
func (m *Manager) haloExchange() error {
	myRank := m.Comm.Rank()

	type haloDest struct {
		row  int
		dest int
	}
	perArrayExports := make([][]haloDest, len(m.arrays))

	err := m.cells.EachErr(func(c *cell.Cell) error {
		procs, err := m.Adp.BoxAssign(c.BoxMin, c.BoxMax)
		if err != nil {
			return perr.Newf(perr.InvariantViolation, "manager: halo overlap detection: %v", err)
		}
		for _, p := range procs {
			if p == myRank {
				continue
			}
			c.NbrProcs[p] = true
			c.IsBoundary = true
		}
		for k, rows := range c.LIndices {
			for _, row := range rows {
				for p := range c.NbrProcs {
					perArrayExports[k] = append(perArrayExports[k], haloDest{row, p})
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for k, s := range m.arrays {
		export := exchange.Lists{}
		for _, h := range perArrayExports[k] {
			export.LocalIDs = append(export.LocalIDs, h.row)
			export.GlobalIDs = append(export.GlobalIDs, s.view.GID[h.row])
			export.Procs = append(export.Procs, h.dest)
		}

		expProcsCopy := append([]int{}, export.Procs...)
		localImportProcs, err := m.announceHaloImports(expProcsCopy)
		if err != nil {
			return err
		}
		importSide := exchange.Lists{
			Procs:     localImportProcs,
			LocalIDs:  make([]int, len(localImportProcs)),
			GlobalIDs: make([]uint32, len(localImportProcs)),
		}

		ex, err := exchange.New(s.arr, m.Comm, m.Cfg.LBProps)
		if err != nil {
			return err
		}
		if err := ex.RemoteExchange(export, importSide); err != nil {
			return perr.Newf(perr.TransportError, "manager: RemoteExchange array %d: %v", k, err)
		}
		if err := m.refreshView(k); err != nil {
			return err
		}
	}

	m.cells.Clear()
	m.rebin()
	m.rebindRemote()
	return nil
}

// announceHaloImports tells every rank, via the same count-style
// Allgather/point-to-point idiom used elsewhere in this package, how
// many rows this rank is about to export to each destination, and
// returns the per-source proc list this rank should expect to receive
// from in return. It is a small, self-contained all-to-all built on
// Comm.Send/Recv rather than a dedicated primitive, since
// mpitransport.Comm exposes no Alltoall.
func (m *Manager) announceHaloImports(myExportProcs []int) ([]int, error) {
	size := m.Comm.Size()
	myRank := m.Comm.Rank()

	counts := make([]int, size)
	for _, p := range myExportProcs {
		counts[p]++
	}

	const haloCountTag = 9101
	for dest := 0; dest < size; dest++ {
		if dest == myRank {
			continue
		}
		if err := m.Comm.Send(dest, haloCountTag, encodeInt(counts[dest])); err != nil {
			return nil, perr.Newf(perr.TransportError, "manager: halo count send to %d: %v", dest, err)
		}
	}
	var importProcs []int
	for src := 0; src < size; src++ {
		if src == myRank {
			continue
		}
		buf, err := m.Comm.Recv(src, haloCountTag)
		if err != nil {
			return nil, perr.Newf(perr.TransportError, "manager: halo count recv from %d: %v", src, err)
		}
		n := decodeInt(buf)
		for i := 0; i < n; i++ {
			importProcs = append(importProcs, src)
		}
	}
	return importProcs, nil
}

// rebindRemote walks every array's Remote-tagged rows and bins them into
// the cell map alongside the Local rows just rebound by rebin, so the
// newly-arrived halo rows are visible to GetNearestParticles too.
func (m *Manager) rebindRemote() {
	for k, s := range m.arrays {
		var rows []int
		for i, t := range s.view.Tag {
			if t == particle.TagRemote {
				rows = append(rows, i)
			}
		}
		cell.Bin(k, rows, m.cellSize, m.cells, s.view)
	}
}

// GetNearestParticles returns every row j of array srcK such that,
// letting xi = dst coord at row i of array dstK, xj = src coord at row
// j, hi = radius_scale * dst_h[i], hj = radius_scale * src_h[j], and
// d = |xi-xj|: d < hi OR d < hj. It visits the 3x3 block of cells around
// the query point's cell and iterates each such cell's LIndices[srcK].
// out is grown in 50-row increments as it fills, favoring an
// append-and-grow pass over a two-pass count-then-fill.
func (m *Manager) GetNearestParticles(srcK, dstK, i int, out []int) []int {
	src := m.arrays[srcK].view
	dst := m.arrays[dstK].view

	xi, yi := dst.X[i], dst.Y[i]
	hi := m.Cfg.RadiusScale * dst.H[i]
	id := cell.IndexOf(xi, yi, m.cellSize)

	for _, c := range m.cells.Neighborhood9(id) {
		for _, j := range c.LIndices[srcK] {
			dx := src.X[j] - xi
			dy := src.Y[j] - yi
			r2 := dx*dx + dy*dy
			hj := m.Cfg.RadiusScale * src.H[j]
			cutoff := math.Max(hi, hj)
			if r2 < cutoff*cutoff {
				if len(out) == cap(out) {
					grown := make([]int, len(out), len(out)+50)
					copy(grown, out)
					out = grown
				}
				out = append(out, j)
			}
		}
	}
	return out
}

func encodeInt(v int) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func decodeInt(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	return int(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
}
