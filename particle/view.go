package particle

import "fmt"

// View is a thin accessor that caches typed references to the
// coordinate, velocity, acceleration, density, smoothing-length, mass,
// tag, and global-id vectors of one particle array. It carries no logic
// of its own — it exists so the rest of the package (cell.Bin,
// manager.Manager) can write view.X[i] instead of re-resolving a
// GetField("x") lookup on every access.
//
// A View's slices are snapshots: any Array mutation that reassigns a
// Field's backing slice (Resize, RemoveRows, Reorder) invalidates them.
// Callers must call NewView again after such a mutation before the next
// view-based read.
type View struct {
	Array *Array

	X, Y, Z    []float64
	U, V, W    []float64
	AX, AY, AZ []float64
	AU, AV, AW []float64
	Rho, ARho  []float64
	M, H       []float64
	Tag        []int32
	GID        []uint32
}

// NewView resolves and caches every field View needs from arr. Fields
// that do not exist are left as nil slices rather than causing an error —
// not every particle array configuration uses every optional property
// (e.g. a test fixture array may omit acceleration fields entirely) — but
// `x`, `y`, `h`, `tag`, and `gid` are required, since the binning, bounds,
// and exchange protocols cannot function without them.
func NewView(arr *Array) (*View, error) {
	v := &View{Array: arr}

	required := map[string]*[]float64{
		"x": &v.X, "y": &v.Y,
	}
	for name, dst := range required {
		f, err := arr.GetField(name)
		if err != nil {
			return nil, fmt.Errorf("particle: NewView: required field %q missing: %w", name, err)
		}
		ff, ok := f.(*Float64Field)
		if !ok {
			return nil, fmt.Errorf("particle: NewView: field %q is not a double field", name)
		}
		*dst = ff.Data
	}

	optional := map[string]*[]float64{
		"z": &v.Z, "u": &v.U, "v": &v.V, "w": &v.W,
		"ax": &v.AX, "ay": &v.AY, "az": &v.AZ,
		"au": &v.AU, "av": &v.AV, "aw": &v.AW,
		"rho": &v.Rho, "arho": &v.ARho,
		"m": &v.M,
	}
	for name, dst := range optional {
		if f, err := arr.GetField(name); err == nil {
			if ff, ok := f.(*Float64Field); ok {
				*dst = ff.Data
			}
		}
	}

	hField, err := arr.GetField("h")
	if err != nil {
		return nil, fmt.Errorf("particle: NewView: required field \"h\" missing: %w", err)
	}
	hf, ok := hField.(*Float64Field)
	if !ok {
		return nil, fmt.Errorf("particle: NewView: field \"h\" is not a double field")
	}
	v.H = hf.Data

	tagField, err := arr.GetField("tag")
	if err != nil {
		return nil, fmt.Errorf("particle: NewView: required field \"tag\" missing: %w", err)
	}
	tf, ok := tagField.(*Int32Field)
	if !ok {
		return nil, fmt.Errorf("particle: NewView: field \"tag\" is not an int field")
	}
	v.Tag = tf.Data

	gidField, err := arr.GetField("gid")
	if err != nil {
		return nil, fmt.Errorf("particle: NewView: required field \"gid\" missing: %w", err)
	}
	gf, ok := gidField.(*Uint32Field)
	if !ok {
		return nil, fmt.Errorf("particle: NewView: field \"gid\" is not an unsigned int field")
	}
	v.GID = gf.Data

	return v, nil
}

// Z3 returns the z-coordinate of row i, or 0 if the array has no z field.
// Binning is 2D-only: cell.IndexOf ignores z, and a Cell's centroid z is
// always 0 whatever the rows' z values are.
func (v *View) Z3(i int) float64 {
	if v.Z == nil {
		return 0
	}
	return v.Z[i]
}
