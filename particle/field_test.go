package particle

import "testing"

func TestFloat64FieldEncodeDecodeRoundTrip(t *testing.T) {
	f := NewFloat64Field("x", []float64{1.5, -2.25, 3.0, 42.125})
	buf := f.EncodeRows(nil, []int{3, 0, 1})

	dst := NewFloat64Field("x", make([]float64, 3))
	n, err := dst.DecodeRows(buf, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("DecodeRows consumed %d bytes, want %d", n, len(buf))
	}
	want := []float64{42.125, 1.5, -2.25}
	for i, v := range want {
		if dst.Data[i] != v {
			t.Fatalf("dst.Data[%d] = %v, want %v", i, dst.Data[i], v)
		}
	}
}

func TestUint32FieldEncodeDecodeRoundTrip(t *testing.T) {
	f := NewUint32Field("gid", []uint32{10, 20, 30})
	buf := f.EncodeRows(nil, []int{0, 1, 2})

	dst := NewUint32Field("gid", make([]uint32, 3))
	if _, err := dst.DecodeRows(buf, []int{0, 1, 2}); err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	for i, v := range []uint32{10, 20, 30} {
		if dst.Data[i] != v {
			t.Fatalf("dst.Data[%d] = %d, want %d", i, dst.Data[i], v)
		}
	}
}

func TestInt32FieldDecodeRowsRejectsShortBuffer(t *testing.T) {
	dst := NewInt32Field("tag", make([]int32, 2))
	if _, err := dst.DecodeRows([]byte{1, 2, 3}, []int{0, 1}); err == nil {
		t.Fatalf("expected error decoding a too-short buffer")
	}
}

func TestFieldTransferCopiesNamedRows(t *testing.T) {
	src := NewInt64Field("id", []int64{100, 200, 300})
	dst := src.CreateLike(3).(*Int64Field)

	if err := src.Transfer(dst, []int{2, 0}, []int{0, 1}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if dst.Data[0] != 300 || dst.Data[1] != 100 {
		t.Fatalf("dst.Data = %v, want [300 100 0]", dst.Data)
	}
}

func TestFieldReorderAppliesPermutation(t *testing.T) {
	f := NewFloat64Field("x", []float64{10, 20, 30})
	f.Reorder([]int{2, 0, 1})
	want := []float64{30, 10, 20}
	for i, v := range want {
		if f.Data[i] != v {
			t.Fatalf("f.Data[%d] = %v, want %v", i, f.Data[i], v)
		}
	}
}
