package manager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/pmanager/cell"
	"github.com/phil-mansfield/pmanager/config"
	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/particle"
	"github.com/phil-mansfield/pmanager/partition"
)

func newManagerTestArray(t *testing.T, xs, ys []float64) *particle.Array {
	t.Helper()
	n := len(xs)
	h := make([]float64, n)
	tag := make([]int32, n)
	gid := make([]uint32, n)
	for i := range h {
		h[i] = 0.1
		tag[i] = particle.TagLocal
	}
	arr := particle.NewArray()
	for _, f := range []particle.Field{
		particle.NewFloat64Field("x", append([]float64{}, xs...)),
		particle.NewFloat64Field("y", append([]float64{}, ys...)),
		particle.NewFloat64Field("h", h),
		particle.NewInt32Field("tag", tag),
		particle.NewUint32Field("gid", gid),
	} {
		if err := arr.AddField(f); err != nil {
			t.Fatalf("AddField %q: %v", f.Name(), err)
		}
	}
	return arr
}

func newManagerTestArrayWithH(t *testing.T, xs, ys, hs []float64) *particle.Array {
	t.Helper()
	n := len(xs)
	tag := make([]int32, n)
	gid := make([]uint32, n)
	for i := range tag {
		tag[i] = particle.TagLocal
	}
	arr := particle.NewArray()
	for _, f := range []particle.Field{
		particle.NewFloat64Field("x", append([]float64{}, xs...)),
		particle.NewFloat64Field("y", append([]float64{}, ys...)),
		particle.NewFloat64Field("h", append([]float64{}, hs...)),
		particle.NewInt32Field("tag", tag),
		particle.NewUint32Field("gid", gid),
	} {
		if err := arr.AddField(f); err != nil {
			t.Fatalf("AddField %q: %v", f.Name(), err)
		}
	}
	return arr
}

func managerTestConfig(t *testing.T, validProps []string) *config.Config {
	t.Helper()
	raw := &config.Raw{}
	set := map[string]bool{}
	for i, p := range validProps {
		set[p] = true
		if i > 0 {
			raw.Manager.LBProps += ","
		}
		raw.Manager.LBProps += p
	}
	cfg, err := raw.Process(set)
	if err != nil {
		t.Fatalf("config.Process: %v", err)
	}
	return cfg
}

// TestUpdateSingleRankBinsEveryParticle exercises the non-parallel path
// of the six-step cycle: a single-rank LocalComm never flips InParallel
// on, so only local binning and gid renumbering run. Every particle must
// still end up bound into the cell map, and gid renumbering must leave
// every Local row with a dense, unique gid.
func TestUpdateSingleRankBinsEveryParticle(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)
	arr := newManagerTestArray(t, []float64{0.1, 0.2, 1.9, 5.5}, []float64{0.1, 0.3, 0.2, 5.5})
	cfg := managerTestConfig(t, []string{"x", "y", "h", "tag", "gid"})

	mgr, err := New(comms[0], cfg, nil, []*particle.Array{arr})
	require.NoError(t, err)
	assert.False(t, mgr.InParallel, "a single-rank comm must never flip InParallel on")
	require.NoError(t, mgr.Update(true))

	boundRows := 0
	mgr.Cells().Each(func(c *cell.Cell) {
		boundRows += len(c.LIndices[0])
	})
	assert.Equal(t, 4, boundRows, "every seeded row should be bound into the cell map")

	local, remote, ghost := arr.CountByTag()
	assert.Equal(t, 4, local)
	assert.Equal(t, 0, remote)
	assert.Equal(t, 0, ghost)

	gidField, err := arr.GetField("gid")
	require.NoError(t, err)
	gids := gidField.(*particle.Uint32Field).Data
	assert.ElementsMatch(t, []uint32{0, 1, 2, 3}, gids, "renumbering must leave a dense, unique gid per row")
}

// TestUpdateTwoRanksPreservesParticleCount drives a full two-rank
// parallel cycle (load-balance exchange + halo exchange) and checks the
// conservation property: the sum of Local counts across every rank must
// equal the number of particles seeded, both before and after the cycle
// runs.
func TestUpdateTwoRanksPreservesParticleCount(t *testing.T) {
	comms := mpitransport.NewLocalComms(2)
	cfg := managerTestConfig(t, []string{"x", "y", "h", "tag", "gid"})

	// Rank 0 owns a dense cluster; rank 1 owns almost nothing, so the
	// very first Update has real load-balance work to do.
	arr0 := newManagerTestArray(t, linspace(0, 2, 20), linspace(0, 2, 20))
	arr1 := newManagerTestArray(t, []float64{10.0}, []float64{10.0})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	locals := make([]int, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		mgr, err := New(comms[0], cfg, partition.NewRCB(comms[0]), []*particle.Array{arr0})
		if err != nil {
			errs[0] = err
			return
		}
		errs[0] = mgr.Update(true)
		local, _, _ := arr0.CountByTag()
		locals[0] = local
	}()
	go func() {
		defer wg.Done()
		mgr, err := New(comms[1], cfg, partition.NewRCB(comms[1]), []*particle.Array{arr1})
		if err != nil {
			errs[1] = err
			return
		}
		errs[1] = mgr.Update(true)
		local, _, _ := arr1.CountByTag()
		locals[1] = local
	}()
	wg.Wait()

	require.NoError(t, errs[0], "rank 0")
	require.NoError(t, errs[1], "rank 1")

	assert.Equal(t, 21, locals[0]+locals[1], "total Local particles must be conserved across the parallel Update cycle")
}

// TestScenarioBNeighborQueryAppliesRadiusScale runs a neighbor query
// over four particles at (0.1,0.1), (0.4,0.2), (1.2,0.2), (0.3,1.1), all
// h=0.5, radius_scale=2.0 (cell_size=1.0), through
// GetNearestParticles(0, 0, 0, nil).
//
// The cutoff per row pair is max(radius_scale*dst_h[i], radius_scale*src_h[j])
// = 1.0 here. Row 0 to row 1 has distance sqrt(0.09+0.01) =~ 0.316 < 1.0,
// so row 1 qualifies; row 0 to row 2 is =~1.10 and row 0 to row 3 is
// =~1.02, both over the 1.0 cutoff, so neither qualifies under the exact
// "d < hi OR d < hj" inequality even though row 3 sits just outside the
// ball. The result is {0,1}.
func TestScenarioBNeighborQueryAppliesRadiusScale(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)
	arr := newManagerTestArrayWithH(t,
		[]float64{0.1, 0.4, 1.2, 0.3},
		[]float64{0.1, 0.2, 0.2, 1.1},
		[]float64{0.5, 0.5, 0.5, 0.5})
	cfg := managerTestConfig(t, []string{"x", "y", "h", "tag", "gid"})

	mgr, err := New(comms[0], cfg, nil, []*particle.Array{arr})
	require.NoError(t, err)
	require.NoError(t, mgr.Update(true))
	require.Equal(t, 1.0, mgr.cellSize, "radius_scale(2.0)*Mh(0.5) should give cell_size=1.0")

	got := mgr.GetNearestParticles(0, 0, 0, nil)
	assert.ElementsMatch(t, []int{0, 1}, got)
}

// TestScenarioEEmptyCellQueryReturnsNoNeighbors checks that a neighbor
// query whose query point lies in a cell far from every occupied source
// cell returns an empty set and does not create a cell map entry for the
// empty region (Map.GetOrCreate is only ever called by cell.Bin, never
// by GetNearestParticles, so a read-only query cannot mutate Len()).
func TestScenarioEEmptyCellQueryReturnsNoNeighbors(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)
	src := newManagerTestArrayWithH(t, []float64{0.1, 0.2, 0.3}, []float64{0.1, 0.2, 0.1}, []float64{0.1, 0.1, 0.1})
	dst := newManagerTestArrayWithH(t, []float64{5.5}, []float64{5.5}, []float64{0.1})
	cfg := managerTestConfig(t, []string{"x", "y", "h", "tag", "gid"})

	mgr, err := New(comms[0], cfg, nil, []*particle.Array{src, dst})
	require.NoError(t, err)
	require.NoError(t, mgr.Update(true))

	before := mgr.Cells().Len()
	got := mgr.GetNearestParticles(0, 1, 0, nil)
	assert.Empty(t, got, "a query point far from every source cell must return no neighbors")
	assert.Equal(t, before, mgr.Cells().Len(), "a neighbor query must never mutate the cell map")
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
