package particle

import "testing"

func newTestArray(t *testing.T, n int) *Array {
	t.Helper()
	x := make([]float64, n)
	tag := make([]int32, n)
	gid := make([]uint32, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i)
		gid[i] = uint32(i)
	}
	arr := NewArray()
	if err := arr.AddField(NewFloat64Field("x", x)); err != nil {
		t.Fatalf("AddField x: %v", err)
	}
	if err := arr.AddField(NewInt32Field("tag", tag)); err != nil {
		t.Fatalf("AddField tag: %v", err)
	}
	if err := arr.AddField(NewUint32Field("gid", gid)); err != nil {
		t.Fatalf("AddField gid: %v", err)
	}
	return arr
}

func TestAddFieldRejectsDuplicateAndLengthMismatch(t *testing.T) {
	arr := newTestArray(t, 4)
	if err := arr.AddField(NewFloat64Field("x", []float64{1, 2, 3, 4})); err == nil {
		t.Fatalf("expected error re-registering field %q", "x")
	}
	if err := arr.AddField(NewFloat64Field("y", []float64{1, 2})); err == nil {
		t.Fatalf("expected error registering mismatched-length field %q", "y")
	}
}

func TestResizeGrowsAndShrinksEveryField(t *testing.T) {
	arr := newTestArray(t, 3)
	arr.Resize(5)
	if arr.Length() != 5 {
		t.Fatalf("Length() = %d, want 5", arr.Length())
	}
	xf, _ := arr.GetField("x")
	if xf.Len() != 5 {
		t.Fatalf("x field length = %d, want 5", xf.Len())
	}
	arr.Resize(2)
	if arr.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", arr.Length())
	}
}

func TestRemoveParticlesIsStableAndUnordered(t *testing.T) {
	arr := newTestArray(t, 5) // x = 0,1,2,3,4
	if err := arr.RemoveParticles([]int{3, 1, 1}); err != nil {
		t.Fatalf("RemoveParticles: %v", err)
	}
	xf, _ := arr.GetField("x")
	got := xf.(*Float64Field).Data
	want := []float64{0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRemoveParticlesRejectsOutOfRange(t *testing.T) {
	arr := newTestArray(t, 3)
	if err := arr.RemoveParticles([]int{5}); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestAlignParticlesGroupsByTagStably(t *testing.T) {
	arr := newTestArray(t, 6)
	tagField, _ := arr.GetField("tag")
	tags := tagField.(*Int32Field)
	tags.Data[0] = TagRemote
	tags.Data[1] = TagLocal
	tags.Data[2] = TagGhost
	tags.Data[3] = TagLocal
	tags.Data[4] = TagRemote
	tags.Data[5] = TagLocal

	if err := arr.AlignParticles(); err != nil {
		t.Fatalf("AlignParticles: %v", err)
	}

	local, remote, ghost := arr.CountByTag()
	if local != 3 || remote != 2 || ghost != 1 {
		t.Fatalf("CountByTag() = (%d,%d,%d), want (3,2,1)", local, remote, ghost)
	}

	xf, _ := arr.GetField("x")
	xs := xf.(*Float64Field).Data
	for i := 0; i < int(local); i++ {
		if tags.Data[i] != TagLocal {
			t.Fatalf("row %d tag = %d, want Local after alignment", i, tags.Data[i])
		}
	}
	// x[i] == i before alignment, so the x order shows the original rows:
	// Local 1,3,5, then Remote 0,4, then Ghost 2, each group in input order.
	wantX := []float64{1, 3, 5, 0, 4, 2}
	for i, want := range wantX {
		if xs[i] != want {
			t.Fatalf("x after alignment = %v, want %v", xs, wantX)
		}
	}
}

func TestDropNonLocalKeepsOnlyLocalRows(t *testing.T) {
	arr := newTestArray(t, 4)
	tagField, _ := arr.GetField("tag")
	tags := tagField.(*Int32Field)
	tags.Data[0] = TagLocal
	tags.Data[1] = TagRemote
	tags.Data[2] = TagLocal
	tags.Data[3] = TagGhost

	if err := arr.DropNonLocal(); err != nil {
		t.Fatalf("DropNonLocal: %v", err)
	}
	if arr.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", arr.Length())
	}
	local, remote, ghost := arr.CountByTag()
	if local != 2 || remote != 0 || ghost != 0 {
		t.Fatalf("CountByTag() = (%d,%d,%d), want (2,0,0)", local, remote, ghost)
	}
}
