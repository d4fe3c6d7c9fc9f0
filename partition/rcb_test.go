package partition

import (
	"sync"
	"testing"

	"github.com/phil-mansfield/pmanager/mpitransport"
)

func TestParseMethodRecognizesAllThreeNames(t *testing.T) {
	cases := map[string]Method{"rcb": MethodRCB, "RIB": MethodRIB, "hsfc": MethodHSFC}
	for s, want := range cases {
		got, ok := ParseMethod(s)
		if !ok || got != want {
			t.Errorf("ParseMethod(%q) = (%v,%v), want (%v,true)", s, got, ok, want)
		}
	}
	if _, ok := ParseMethod("not-a-method"); ok {
		t.Errorf("ParseMethod(%q) should fail", "not-a-method")
	}
}

// TestRCBBalanceSplitsTwoRanksByCount drives a real two-rank RCB pass:
// rank 0 owns 10 objects clustered at small x, rank 1 owns 2 objects at
// large x. Balance should export some of rank 0's objects to rank 1 so
// the two groups end up roughly even, and every rank must walk the same
// collective call sequence to avoid hanging — hence two goroutines, not
// two sequential calls.
func TestRCBBalanceSplitsTwoRanksByCount(t *testing.T) {
	comms := mpitransport.NewLocalComms(2)

	rank0Centroids := make([][3]float64, 10)
	rank0Gids := make([]uint32, 10)
	for i := range rank0Centroids {
		rank0Centroids[i] = [3]float64{float64(i) * 0.1, 0, 0}
		rank0Gids[i] = uint32(i)
	}
	rank1Centroids := [][3]float64{{10, 0, 0}, {10.1, 0, 0}}
	rank1Gids := []uint32{10, 11}

	var wg sync.WaitGroup
	results := make([][]int, 2) // export destination procs, per rank
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		r := NewRCB(comms[0])
		r.SetNumObjects(10, 12)
		r.UpdateGlobalIDs(rank0Gids)
		r.SetCentroids(rank0Centroids)
		_, _, procs, err := r.Balance()
		results[0], errs[0] = procs, err
	}()
	go func() {
		defer wg.Done()
		r := NewRCB(comms[1])
		r.SetNumObjects(2, 12)
		r.UpdateGlobalIDs(rank1Gids)
		r.SetCentroids(rank1Centroids)
		_, _, procs, err := r.Balance()
		results[1], errs[1] = procs, err
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: Balance: %v", i, err)
		}
	}

	// Rank 1 (2 objects, far away) should export nothing to rank 0 — it
	// already owns fewer than its fair share.
	for _, p := range results[1] {
		if p != 1 {
			t.Errorf("rank 1 exported an object to rank %d, want none exported away", p)
		}
	}
	// Rank 0 (10 objects) should export some objects to rank 1 to even
	// the 12-object total (6 each).
	exportedToOther := 0
	for _, p := range results[0] {
		if p == 1 {
			exportedToOther++
		}
	}
	if exportedToOther == 0 {
		t.Errorf("rank 0 exported nothing to rank 1; expected the heavier rank to shed objects")
	}
}

func TestBoxAssignRejectsCallBeforeBalance(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)
	r := NewRCB(comms[0])
	_, err := r.BoxAssign([3]float64{0, 0, 0}, [3]float64{1, 1, 1})
	if err == nil {
		t.Fatalf("expected an error calling BoxAssign before Balance")
	}
}

func TestBoxAssignFindsOverlappingSingleRankPartition(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)
	r := NewRCB(comms[0])
	r.SetNumObjects(1, 1)
	r.UpdateGlobalIDs([]uint32{0})
	r.SetCentroids([][3]float64{{0, 0, 0}})
	if _, _, _, err := r.Balance(); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	procs, err := r.BoxAssign([3]float64{-1, -1, -1}, [3]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("BoxAssign: %v", err)
	}
	if len(procs) != 1 || procs[0] != 0 {
		t.Fatalf("BoxAssign = %v, want [0]", procs)
	}
}
