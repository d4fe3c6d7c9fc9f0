/*Package particle implements a particle array as a named mapping from
property name to a dense, homogeneous vector of one of four element
kinds, plus resize, row-removal, and stable Local/Remote/Ghost alignment.

Each element kind gets its own Field implementation rather than one
generic implementation, since every kind also needs its own Encode/Decode
and Transfer logic for the exact wire width of its element type.
*/
package particle

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is one of the four element kinds a particle array property may
// hold.
type Kind int

const (
	KindFloat64 Kind = iota
	KindUint32
	KindInt32
	KindInt64
)

func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "double"
	case KindUint32:
		return "unsigned int"
	case KindInt32:
		return "int"
	case KindInt64:
		return "long"
	default:
		return "unknown"
	}
}

// byteWidth returns the per-element encoded size of a Kind. Nothing in
// this module calls it; EncodeRows grows its buffer by append.
func (k Kind) byteWidth() int {
	switch k {
	case KindFloat64, KindInt64:
		return 8
	case KindUint32, KindInt32:
		return 4
	default:
		return 0
	}
}

// Field is one named column of a particle array. Kind reports its element
// kind; serialization is chosen by the concrete Field type itself, whose
// Encode/Decode methods let the exchange package write rows directly onto
// a mpitransport.Comm message without going through Go's reflection-based
// encoding/binary path row by row.
type Field interface {
	// Name returns this column's property name.
	Name() string
	// Kind returns this column's element kind.
	Kind() Kind
	// Len returns the number of rows currently stored.
	Len() int
	// Resize grows or shrinks the column to exactly n rows, preserving
	// existing rows in place. New rows are zero-valued.
	Resize(n int)
	// RemoveRows deletes the rows at the given sorted, unique indices in one
	// pass, shifting later rows down to fill the gap.
	RemoveRows(sorted []int)
	// Reorder replaces the column's contents with its own rows visited in
	// the given order: out[i] = old[order[i]].
	Reorder(order []int)
	// Transfer copies len(from) rows of this field into dst's
	// identically-named field, src row from[i] going to dst row to[i].
	Transfer(dst Field, from, to []int) error
	// CreateLike returns a new, same-kind, same-name Field of length n, all
	// zero-valued, suitable as a Transfer destination.
	CreateLike(n int) Field
	// EncodeRows appends the binary encoding of the given rows, in order,
	// onto buf and returns the extended buffer.
	EncodeRows(buf []byte, rows []int) []byte
	// DecodeRows reads len(rows) elements from buf (little-endian) and
	// writes them into this field at the given row indices, in order, and
	// returns the number of bytes consumed.
	DecodeRows(buf []byte, rows []int) (int, error)
}

var byteOrder = binary.LittleEndian

// ---- Float64 ----

// Float64Field implements Field over a []float64 column.
type Float64Field struct {
	name string
	Data []float64
}

func NewFloat64Field(name string, data []float64) *Float64Field {
	return &Float64Field{name: name, Data: data}
}

func (f *Float64Field) Name() string { return f.name }
func (f *Float64Field) Kind() Kind   { return KindFloat64 }
func (f *Float64Field) Len() int     { return len(f.Data) }

func (f *Float64Field) Resize(n int) {
	f.Data = resizeFloat64(f.Data, n)
}

func (f *Float64Field) RemoveRows(sorted []int) {
	f.Data = removeFloat64(f.Data, sorted)
}

func (f *Float64Field) Reorder(order []int) {
	out := make([]float64, len(order))
	for i, src := range order {
		out[i] = f.Data[src]
	}
	f.Data = out
}

func (f *Float64Field) Transfer(dst Field, from, to []int) error {
	d, ok := dst.(*Float64Field)
	if !ok {
		return fmt.Errorf("particle: field %q: destination is not a Float64Field", f.name)
	}
	if d.name != f.name {
		return fmt.Errorf("particle: field %q: destination field is named %q", f.name, d.name)
	}
	if len(from) != len(to) {
		return fmt.Errorf("particle: field %q: from/to length mismatch (%d vs %d)", f.name, len(from), len(to))
	}
	for i := range from {
		d.Data[to[i]] = f.Data[from[i]]
	}
	return nil
}

func (f *Float64Field) CreateLike(n int) Field {
	return NewFloat64Field(f.name, make([]float64, n))
}

func (f *Float64Field) EncodeRows(buf []byte, rows []int) []byte {
	for _, r := range rows {
		var tmp [8]byte
		byteOrder.PutUint64(tmp[:], float64bits(f.Data[r]))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (f *Float64Field) DecodeRows(buf []byte, rows []int) (int, error) {
	need := 8 * len(rows)
	if len(buf) < need {
		return 0, fmt.Errorf("particle: field %q: buffer too short (need %d, have %d)", f.name, need, len(buf))
	}
	for i, r := range rows {
		f.Data[r] = float64frombits(byteOrder.Uint64(buf[i*8 : i*8+8]))
	}
	return need, nil
}

// ---- Uint32 ----

// Uint32Field implements Field over a []uint32 column. It is the kind used
// for the `gid` property.
type Uint32Field struct {
	name string
	Data []uint32
}

func NewUint32Field(name string, data []uint32) *Uint32Field {
	return &Uint32Field{name: name, Data: data}
}

func (f *Uint32Field) Name() string { return f.name }
func (f *Uint32Field) Kind() Kind   { return KindUint32 }
func (f *Uint32Field) Len() int     { return len(f.Data) }

func (f *Uint32Field) Resize(n int) { f.Data = resizeUint32(f.Data, n) }

func (f *Uint32Field) RemoveRows(sorted []int) { f.Data = removeUint32(f.Data, sorted) }

func (f *Uint32Field) Reorder(order []int) {
	out := make([]uint32, len(order))
	for i, src := range order {
		out[i] = f.Data[src]
	}
	f.Data = out
}

func (f *Uint32Field) Transfer(dst Field, from, to []int) error {
	d, ok := dst.(*Uint32Field)
	if !ok {
		return fmt.Errorf("particle: field %q: destination is not a Uint32Field", f.name)
	}
	if len(from) != len(to) {
		return fmt.Errorf("particle: field %q: from/to length mismatch (%d vs %d)", f.name, len(from), len(to))
	}
	for i := range from {
		d.Data[to[i]] = f.Data[from[i]]
	}
	return nil
}

func (f *Uint32Field) CreateLike(n int) Field { return NewUint32Field(f.name, make([]uint32, n)) }

func (f *Uint32Field) EncodeRows(buf []byte, rows []int) []byte {
	for _, r := range rows {
		var tmp [4]byte
		byteOrder.PutUint32(tmp[:], f.Data[r])
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (f *Uint32Field) DecodeRows(buf []byte, rows []int) (int, error) {
	need := 4 * len(rows)
	if len(buf) < need {
		return 0, fmt.Errorf("particle: field %q: buffer too short (need %d, have %d)", f.name, need, len(buf))
	}
	for i, r := range rows {
		f.Data[r] = byteOrder.Uint32(buf[i*4 : i*4+4])
	}
	return need, nil
}

// ---- Int32 ----

// Int32Field implements Field over a []int32 column. It is the kind used
// for the `tag` property.
type Int32Field struct {
	name string
	Data []int32
}

func NewInt32Field(name string, data []int32) *Int32Field {
	return &Int32Field{name: name, Data: data}
}

func (f *Int32Field) Name() string { return f.name }
func (f *Int32Field) Kind() Kind   { return KindInt32 }
func (f *Int32Field) Len() int     { return len(f.Data) }

func (f *Int32Field) Resize(n int) { f.Data = resizeInt32(f.Data, n) }

func (f *Int32Field) RemoveRows(sorted []int) { f.Data = removeInt32(f.Data, sorted) }

func (f *Int32Field) Reorder(order []int) {
	out := make([]int32, len(order))
	for i, src := range order {
		out[i] = f.Data[src]
	}
	f.Data = out
}

func (f *Int32Field) Transfer(dst Field, from, to []int) error {
	d, ok := dst.(*Int32Field)
	if !ok {
		return fmt.Errorf("particle: field %q: destination is not an Int32Field", f.name)
	}
	if len(from) != len(to) {
		return fmt.Errorf("particle: field %q: from/to length mismatch (%d vs %d)", f.name, len(from), len(to))
	}
	for i := range from {
		d.Data[to[i]] = f.Data[from[i]]
	}
	return nil
}

func (f *Int32Field) CreateLike(n int) Field { return NewInt32Field(f.name, make([]int32, n)) }

func (f *Int32Field) EncodeRows(buf []byte, rows []int) []byte {
	for _, r := range rows {
		var tmp [4]byte
		byteOrder.PutUint32(tmp[:], uint32(f.Data[r]))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (f *Int32Field) DecodeRows(buf []byte, rows []int) (int, error) {
	need := 4 * len(rows)
	if len(buf) < need {
		return 0, fmt.Errorf("particle: field %q: buffer too short (need %d, have %d)", f.name, need, len(buf))
	}
	for i, r := range rows {
		f.Data[r] = int32(byteOrder.Uint32(buf[i*4 : i*4+4]))
	}
	return need, nil
}

// ---- Int64 ----

// Int64Field implements Field over a []int64 column.
type Int64Field struct {
	name string
	Data []int64
}

func NewInt64Field(name string, data []int64) *Int64Field {
	return &Int64Field{name: name, Data: data}
}

func (f *Int64Field) Name() string { return f.name }
func (f *Int64Field) Kind() Kind   { return KindInt64 }
func (f *Int64Field) Len() int     { return len(f.Data) }

func (f *Int64Field) Resize(n int) { f.Data = resizeInt64(f.Data, n) }

func (f *Int64Field) RemoveRows(sorted []int) { f.Data = removeInt64(f.Data, sorted) }

func (f *Int64Field) Reorder(order []int) {
	out := make([]int64, len(order))
	for i, src := range order {
		out[i] = f.Data[src]
	}
	f.Data = out
}

func (f *Int64Field) Transfer(dst Field, from, to []int) error {
	d, ok := dst.(*Int64Field)
	if !ok {
		return fmt.Errorf("particle: field %q: destination is not an Int64Field", f.name)
	}
	if len(from) != len(to) {
		return fmt.Errorf("particle: field %q: from/to length mismatch (%d vs %d)", f.name, len(from), len(to))
	}
	for i := range from {
		d.Data[to[i]] = f.Data[from[i]]
	}
	return nil
}

func (f *Int64Field) CreateLike(n int) Field { return NewInt64Field(f.name, make([]int64, n)) }

func (f *Int64Field) EncodeRows(buf []byte, rows []int) []byte {
	for _, r := range rows {
		var tmp [8]byte
		byteOrder.PutUint64(tmp[:], uint64(f.Data[r]))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (f *Int64Field) DecodeRows(buf []byte, rows []int) (int, error) {
	need := 8 * len(rows)
	if len(buf) < need {
		return 0, fmt.Errorf("particle: field %q: buffer too short (need %d, have %d)", f.name, need, len(buf))
	}
	for i, r := range rows {
		f.Data[r] = int64(byteOrder.Uint64(buf[i*8 : i*8+8]))
	}
	return need, nil
}

// ---- shared resize/remove helpers ----
//
// One copy per element kind rather than a single generic implementation:
// each operates on a concrete slice type so callers never pay for a type
// assertion or interface indirection on the hot row-removal path.

func resizeFloat64(x []float64, n int) []float64 {
	if n <= len(x) {
		return x[:n]
	}
	return append(x, make([]float64, n-len(x))...)
}

func resizeUint32(x []uint32, n int) []uint32 {
	if n <= len(x) {
		return x[:n]
	}
	return append(x, make([]uint32, n-len(x))...)
}

func resizeInt32(x []int32, n int) []int32 {
	if n <= len(x) {
		return x[:n]
	}
	return append(x, make([]int32, n-len(x))...)
}

func resizeInt64(x []int64, n int) []int64 {
	if n <= len(x) {
		return x[:n]
	}
	return append(x, make([]int64, n-len(x))...)
}

func removeFloat64(x []float64, sorted []int) []float64 {
	out := x[:0:0]
	skip := 0
	for i, v := range x {
		if skip < len(sorted) && sorted[skip] == i {
			skip++
			continue
		}
		out = append(out, v)
	}
	return out
}

func removeUint32(x []uint32, sorted []int) []uint32 {
	out := x[:0:0]
	skip := 0
	for i, v := range x {
		if skip < len(sorted) && sorted[skip] == i {
			skip++
			continue
		}
		out = append(out, v)
	}
	return out
}

func removeInt32(x []int32, sorted []int) []int32 {
	out := x[:0:0]
	skip := 0
	for i, v := range x {
		if skip < len(sorted) && sorted[skip] == i {
			skip++
			continue
		}
		out = append(out, v)
	}
	return out
}

func removeInt64(x []int64, sorted []int) []int64 {
	out := x[:0:0]
	skip := 0
	for i, v := range x {
		if skip < len(sorted) && sorted[skip] == i {
			skip++
			continue
		}
		out = append(out, v)
	}
	return out
}

func float64bits(f float64) uint64     { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }
