/*Package eq provides generic array-equality helpers for tests: plain
element-wise equality, an epsilon-tolerant float comparison for values
that have passed through floating-point arithmetic, and a multiset
comparison for the unordered cases (e.g. a dense gid assignment whose
order across ranks isn't guaranteed). None of this module's own tests
import it; they compare with testify or inline loops.
*/
package eq

// Generic returns true if two arrays are the same type and have the same
// values and false otherwise. Supports []int, []uint32, []int32, []int64,
// []float64, and []string.
func Generic(x, y interface{}) bool {
	switch xx := x.(type) {
	case []int:
		yy, ok := y.([]int)
		if !ok {
			return false
		}
		return Ints(xx, yy)
	case []string:
		yy, ok := y.([]string)
		if !ok {
			return false
		}
		return Strings(xx, yy)
	case []uint32:
		yy, ok := y.([]uint32)
		if !ok {
			return false
		}
		return Uint32s(xx, yy)
	case []int32:
		yy, ok := y.([]int32)
		if !ok {
			return false
		}
		return Int32s(xx, yy)
	case []int64:
		yy, ok := y.([]int64)
		if !ok {
			return false
		}
		return Int64s(xx, yy)
	case []float64:
		yy, ok := y.([]float64)
		if !ok {
			return false
		}
		return Float64s(xx, yy)
	default:
		return false
	}
}

// Strings returns true if two []string arrays are the same and false
// otherwise.
func Strings(x, y []string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Ints returns true if two []int arrays are the same and false otherwise.
func Ints(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Uint32s returns true if two []uint32 arrays are the same and false
// otherwise.
func Uint32s(x, y []uint32) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Int32s returns true if two []int32 arrays are the same and false
// otherwise.
func Int32s(x, y []int32) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Int64s returns true if two []int64 arrays are the same and false
// otherwise.
func Int64s(x, y []int64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64s returns true if two []float64 arrays are the same and false
// otherwise.
func Float64s(x, y []float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64sApprox returns true if the two []float64 arrays are within eps of
// one another, element-wise, and false otherwise. Needed because centroid
// and bounding-box arithmetic accumulates floating-point error that exact
// comparison would wrongly flag.
func Float64sApprox(x, y []float64, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i]+eps < y[i] || x[i]-eps > y[i] {
			return false
		}
	}
	return true
}

// UintSetEqual returns true if x and y contain the same multiset of values,
// ignoring order. Suited to the global-id-density property, where the
// assignment order across ranks is not guaranteed but the resulting
// multiset must be exactly {0, ..., n-1}.
func UintSetEqual(x, y []uint32) bool {
	if len(x) != len(y) {
		return false
	}
	counts := make(map[uint32]int, len(x))
	for _, v := range x {
		counts[v]++
	}
	for _, v := range y {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
