package particle

import (
	"fmt"
	"sort"

	"github.com/phil-mansfield/pmanager/cuckoo"
)

// Tag values for the `tag` property: Local is owned by this rank,
// Remote is haloed in from another rank's Local rows, Ghost is a
// periodic image. Periodic-boundary ghosting itself is not implemented,
// but the tag value is reserved since AlignParticles's ordering contract
// — Local before Remote before Ghost — names it explicitly.
const (
	TagLocal  int32 = 0
	TagRemote int32 = 1
	TagGhost  int32 = 2
)

// Array is a named mapping from property to a dense, homogeneous
// vector, all vectors sharing one length, built on top of the Field
// implementations in field.go.
type Array struct {
	fields map[string]Field
	order  []string
	n      int
}

// NewArray returns an empty particle array.
func NewArray() *Array {
	return &Array{fields: make(map[string]Field)}
}

// AddField registers a field with the array. The field's current length
// must equal the array's current length (or the array must be empty, in
// which case the array adopts the field's length). Registering a field
// under a name that already exists is an error.
func (a *Array) AddField(f Field) error {
	if _, exists := a.fields[f.Name()]; exists {
		return fmt.Errorf("particle: field %q already registered", f.Name())
	}
	if len(a.order) == 0 {
		a.n = f.Len()
	} else if f.Len() != a.n {
		return fmt.Errorf("particle: field %q has length %d, array length is %d", f.Name(), f.Len(), a.n)
	}
	a.fields[f.Name()] = f
	a.order = append(a.order, f.Name())
	return nil
}

// Length returns the array's current row count.
func (a *Array) Length() int { return a.n }

// FieldNames returns the registered field names in registration order.
func (a *Array) FieldNames() []string {
	return append([]string{}, a.order...)
}

// GetField returns the named field.
func (a *Array) GetField(name string) (Field, error) {
	f, ok := a.fields[name]
	if !ok {
		return nil, fmt.Errorf("particle: no such field %q", name)
	}
	return f, nil
}

// Resize grows or shrinks every field to exactly newN rows, preserving
// existing rows in place; new rows are zero-valued, since Go's make()
// zeroes new slice storage anyway and a stricter guarantee than
// "uninitialized" costs nothing here.
func (a *Array) Resize(newN int) {
	for _, name := range a.order {
		a.fields[name].Resize(newN)
	}
	a.n = newN
}

// RemoveParticles removes the rows at the given indices, in one pass,
// from every field. rows need not be pre-sorted; RemoveParticles sorts
// and de-duplicates its own copy.
func (a *Array) RemoveParticles(rows []int) error {
	sorted := append([]int{}, rows...)
	sort.Ints(sorted)
	sorted = dedupeSorted(sorted)
	for _, r := range sorted {
		if r < 0 || r >= a.n {
			return fmt.Errorf("particle: row index %d out of range [0,%d)", r, a.n)
		}
	}
	for _, name := range a.order {
		a.fields[name].RemoveRows(sorted)
	}
	a.n -= len(sorted)
	return nil
}

// AlignParticles stably partitions every row by its `tag` property into
// [Local | Remote | Ghost] segments, using cuckoo.Place/Permute to compute
// the single index permutation applied identically to every field.
func (a *Array) AlignParticles() error {
	tagField, err := a.GetField("tag")
	if err != nil {
		return fmt.Errorf("particle: AlignParticles: %w", err)
	}
	tags, ok := tagField.(*Int32Field)
	if !ok {
		return fmt.Errorf("particle: AlignParticles: `tag` field is not an Int32Field")
	}

	dst := cuckoo.Place(a.n, 3, func(i int) int {
		switch tags.Data[i] {
		case TagLocal:
			return 0
		case TagRemote:
			return 1
		default:
			return 2
		}
	})
	order := cuckoo.Permute(dst)

	for _, name := range a.order {
		a.fields[name].Reorder(order)
	}
	return nil
}

// CountByTag returns the number of rows currently tagged Local, Remote,
// and Ghost respectively.
func (a *Array) CountByTag() (local, remote, ghost int) {
	tagField, err := a.GetField("tag")
	if err != nil {
		return 0, 0, 0
	}
	tags := tagField.(*Int32Field)
	for _, t := range tags.Data {
		switch t {
		case TagLocal:
			local++
		case TagRemote:
			remote++
		default:
			ghost++
		}
	}
	return local, remote, ghost
}

// DropNonLocal removes every row whose tag is not Local.
func (a *Array) DropNonLocal() error {
	tagField, err := a.GetField("tag")
	if err != nil {
		return fmt.Errorf("particle: DropNonLocal: %w", err)
	}
	tags := tagField.(*Int32Field)
	var drop []int
	for i, t := range tags.Data {
		if t != TagLocal {
			drop = append(drop, i)
		}
	}
	return a.RemoveParticles(drop)
}

func dedupeSorted(sorted []int) []int {
	out := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
