package partition

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/perr"
)

// cutIterations bounds the binary search used to locate each recursive
// bisection's split coordinate. 32 halvings of a float64-range box is far
// beyond the precision any real cell layout needs, but the search is
// cheap (a handful of collectives per level) so there's no reason to cut
// it finer than that.
const cutIterations = 32

// rankRange is a contiguous, inclusive range of ranks that currently own
// one node of the recursion tree.
type rankRange struct{ lo, hi int }

func (r rankRange) size() int    { return r.hi - r.lo + 1 }
func (r rankRange) leaf() bool   { return r.lo == r.hi }
func (r rankRange) contains(rank int) bool { return rank >= r.lo && rank <= r.hi }

func (r rankRange) split() (left, right rankRange) {
	leftSize := (r.size() + 1) / 2 // left gets the larger half when odd
	mid := r.lo + leftSize - 1
	return rankRange{r.lo, mid}, rankRange{mid + 1, r.hi}
}

// RCB is a recursive-coordinate-bisection Adapter. At each level of a
// balanced binary tree over the rank set, it picks the coordinate axis
// with the larger global spread within the current group and finds (by
// bisection search over the coordinate range, since objects are
// distributed across ranks and cannot be sorted globally without an extra
// all-to-all) a cut that splits the group's object count as evenly as
// possible between its two rank sub-groups, then recurses.
//
// Every rank walks the *entire* tree, not just its own branch, because
// every tree node's search issues collectives over the full communicator
// (mpitransport.Comm has no sub-communicator concept) — a rank not
// currently active in a branch contributes neutral values (+/-Inf bounds,
// zero counts) to that branch's collectives so the active ranks' reductions
// are unaffected, then continues its own branch once the walk returns to a
// node it's actually a member of.
//
// RCB is the one Method with a concrete implementation in this module;
// see adapter.go's ParseMethod for RIB/HSFC's unimplemented status.
type RCB struct {
	comm mpitransport.Comm

	localN, globalN int
	gids             []uint32
	centroids        [][3]float64

	exportLocalIDs, exportGlobalIDs []uint32
	exportProcs                     []int

	// myBox is this rank's own assigned partition bounding box, computed
	// as a side effect of Balance and consumed by BoxAssign.
	myBox     [3][2]float64
	haveBox   bool
	// peerBoxes holds every rank's box, gathered once at the end of
	// Balance so BoxAssign can answer locally without a further
	// collective per call.
	peerBoxes []([3][2]float64)
}

// NewRCB returns an RCB adapter bound to comm.
func NewRCB(comm mpitransport.Comm) *RCB {
	return &RCB{comm: comm}
}

func (r *RCB) SetNumObjects(local, global int) {
	r.localN, r.globalN = local, global
}

func (r *RCB) UpdateGlobalIDs(gids []uint32) {
	r.gids = append([]uint32{}, gids...)
}

func (r *RCB) SetCentroids(centroids [][3]float64) {
	r.centroids = append([][3]float64{}, centroids...)
}

// bisectionNode is one node of the recursion tree: the rank range it
// covers and which of this rank's own local object indices (into
// r.centroids/r.gids) are still routed through it.
type bisectionNode struct {
	rng     rankRange
	indices []int
}

// Balance runs the full recursive bisection and returns this rank's
// export lists at cell granularity.
func (r *RCB) Balance() (exportLocalIDs, exportGlobalIDs []uint32, exportProcs []int, err error) {
	size := r.comm.Size()
	myRank := r.comm.Rank()

	root := bisectionNode{
		rng:     rankRange{0, size - 1},
		indices: allIndices(r.localN),
	}

	// destRank[i] collects, once the recursion for local index i reaches a
	// leaf, the destination rank it was routed to.
	destRank := make([]int, r.localN)
	// leafBoxes[rank] holds the partition box of every leaf, keyed by the
	// leaf's rank and filled in as recursion bottoms out; every rank
	// records every leaf, since every rank walks the whole tree.
	leafBoxes := make(map[int][3][2]float64)

	var walk func(node bisectionNode, box [3][2]float64) error
	walk = func(node bisectionNode, box [3][2]float64) error {
		if node.rng.leaf() {
			// node.indices holds only this rank's own local objects that
			// were routed into this branch — possibly empty, if this
			// rank was never active on the path leading here. Whatever
			// it holds belongs to rank node.rng.lo now, regardless of
			// whether that happens to be this rank.
			for _, i := range node.indices {
				destRank[i] = node.rng.lo
			}
			if node.rng.lo == myRank {
				r.myBox = box
				r.haveBox = true
			}
			leafBoxes[node.rng.lo] = box
			return nil
		}

		active := node.rng.contains(myRank)

		localMin, localMax := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
			[3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
		if active {
			for _, i := range node.indices {
				for a := 0; a < 3; a++ {
					if r.centroids[i][a] < localMin[a] {
						localMin[a] = r.centroids[i][a]
					}
					if r.centroids[i][a] > localMax[a] {
						localMax[a] = r.centroids[i][a]
					}
				}
			}
		}
		globalMin, e1 := r.comm.AllreduceMin(localMin[:])
		if e1 != nil {
			return perr.Newf(perr.TransportError, "rcb: bounds reduction: %v", e1)
		}
		globalMax, e2 := r.comm.AllreduceMax(localMax[:])
		if e2 != nil {
			return perr.Newf(perr.TransportError, "rcb: bounds reduction: %v", e2)
		}

		span := []float64{globalMax[0] - globalMin[0], globalMax[1] - globalMin[1], globalMax[2] - globalMin[2]}
		axis := floats.MaxIdx(span)

		left, right := node.rng.split()
		totalGroup, err := r.globalSum(active, len(node.indices))
		if err != nil {
			return err
		}

		targetLeft := int(math.Round(float64(totalGroup) * float64(left.size()) / float64(node.rng.size())))

		lo, hi := globalMin[axis], globalMax[axis]
		cut := lo
		if span[axis] > 0 && totalGroup > 0 {
			for iter := 0; iter < cutIterations; iter++ {
				mid := (lo + hi) / 2
				localCount := 0
				if active {
					for _, i := range node.indices {
						if r.centroids[i][axis] <= mid {
							localCount++
						}
					}
				}
				globalCount, err := r.globalSum(active, localCount)
				if err != nil {
					return err
				}
				if globalCount < targetLeft {
					lo = mid
				} else {
					hi = mid
				}
			}
			cut = hi
		}

		var leftIdx, rightIdx []int
		if active {
			for _, i := range node.indices {
				if r.centroids[i][axis] <= cut {
					leftIdx = append(leftIdx, i)
				} else {
					rightIdx = append(rightIdx, i)
				}
			}
		}

		leftBox, rightBox := box, box
		leftBox[axis][1] = cut
		rightBox[axis][0] = cut

		if err := walk(bisectionNode{left, leftIdx}, leftBox); err != nil {
			return err
		}
		return walk(bisectionNode{right, rightIdx}, rightBox)
	}

	worldBox := [3][2]float64{{math.Inf(-1), math.Inf(1)}, {math.Inf(-1), math.Inf(1)}, {math.Inf(-1), math.Inf(1)}}
	if err := walk(root, worldBox); err != nil {
		return nil, nil, nil, err
	}

	r.peerBoxes = make([]([3][2]float64), size)
	for rank, b := range leafBoxes {
		r.peerBoxes[rank] = b
	}

	r.exportLocalIDs, r.exportGlobalIDs, r.exportProcs = nil, nil, nil
	for i, dest := range destRank {
		if dest != myRank {
			r.exportLocalIDs = append(r.exportLocalIDs, uint32(i))
			r.exportGlobalIDs = append(r.exportGlobalIDs, r.gids[i])
			r.exportProcs = append(r.exportProcs, dest)
		}
	}
	return r.exportLocalIDs, r.exportGlobalIDs, r.exportProcs, nil
}

// globalSum contributes localValue if active, 0 otherwise, and returns
// the sum across every rank — built on AllgatherInt since Comm has no
// direct Allreduce-sum primitive, only min/max.
func (r *RCB) globalSum(active bool, localValue int) (int, error) {
	contribution := 0
	if active {
		contribution = localValue
	}
	all, err := r.comm.AllgatherInt(contribution)
	if err != nil {
		return 0, perr.Newf(perr.TransportError, "rcb: count reduction: %v", err)
	}
	sum := 0
	for _, v := range all {
		sum += v
	}
	return sum, nil
}

// InvertLists computes the mirror-image list of a transfer: given one
// side's (localIDs, globalIDs, procs) — e.g. this rank's export lists —
// it returns the matching import lists every destination/source rank
// should expect. This is a collective all-to-all: every rank tells every
// other rank how many (and which) objects it is sending them, and gets
// back the matching inbound list.
type outgoing struct {
	gids []uint32
}

func (r *RCB) InvertLists(localIDs, globalIDs []uint32, procs []int) (outLocalIDs, outGlobalIDs []uint32, outProcs []int, err error) {
	size := r.comm.Size()
	myRank := r.comm.Rank()

	perDest := make(map[int]*outgoing)
	for i, p := range procs {
		if perDest[p] == nil {
			perDest[p] = &outgoing{}
		}
		perDest[p].gids = append(perDest[p].gids, globalIDs[i])
	}

	const tag = 7001
	for dest := 0; dest < size; dest++ {
		if dest == myRank {
			continue
		}
		payload := encodeUint32s(perDest[dest].gidsOrEmpty())
		if err := r.comm.Send(dest, tag, payload); err != nil {
			return nil, nil, nil, perr.Newf(perr.TransportError, "rcb: invert_lists send to %d: %v", dest, err)
		}
	}
	for src := 0; src < size; src++ {
		if src == myRank {
			continue
		}
		buf, err := r.comm.Recv(src, tag)
		if err != nil {
			return nil, nil, nil, perr.Newf(perr.TransportError, "rcb: invert_lists recv from %d: %v", src, err)
		}
		gids := decodeUint32s(buf)
		for _, g := range gids {
			outGlobalIDs = append(outGlobalIDs, g)
			outLocalIDs = append(outLocalIDs, uint32(len(outLocalIDs)))
			outProcs = append(outProcs, src)
		}
	}
	return outLocalIDs, outGlobalIDs, outProcs, nil
}

func (o *outgoing) gidsOrEmpty() []uint32 {
	if o == nil {
		return nil
	}
	return o.gids
}

// BoxAssign returns every rank whose partition box intersects [min, max];
// callers are responsible for filtering out their own rank if needed. It
// is answered locally against the peerBoxes snapshot Balance gathered, so
// it issues no further collective — every rank's boxes are already
// globally known after one Balance call.
func (r *RCB) BoxAssign(min, max [3]float64) ([]int, error) {
	if r.peerBoxes == nil {
		return nil, perr.Newf(perr.InvariantViolation, "rcb: BoxAssign called before Balance populated partition boxes")
	}
	var out []int
	for rank, box := range r.peerBoxes {
		if boxesOverlap(box, min, max) {
			out = append(out, rank)
		}
	}
	if len(out) == 0 {
		return nil, perr.Newf(perr.InvariantViolation,
			"rcb: box [%v,%v] does not overlap any rank's partition — centroid outside every partition", min, max)
	}
	return out, nil
}

func boxesOverlap(box [3][2]float64, min, max [3]float64) bool {
	for a := 0; a < 3; a++ {
		if max[a] < box[a][0] || min[a] > box[a][1] {
			return false
		}
	}
	return true
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
