/*Package partition implements a geometric-partitioner adapter: the
abstraction the Parallel Manager depends on to decide which rank should
own which cell, and to answer box-overlap queries for halo construction.
The adapter's method names (SetNumObjects/UpdateGlobalIDs/Balance/
InvertLists/BoxAssign) mirror the Zoltan dynamic-load-balancing library's
query-function API; this module makes no claim that its RCB
implementation matches Zoltan's, only that the interface shape does,
which is what lets the manager depend only on the interface rather than
on any one partitioning algorithm.
*/
package partition

import (
	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/perr"
)

// Method selects a partitioning algorithm at construction time.
type Method int

const (
	MethodRCB Method = iota
	MethodRIB
	MethodHSFC
)

// ParseMethod maps the lb_method configuration string onto a Method; ok
// is false for anything unrecognized (config.Raw.Process reports that as
// a ConfigError).
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "rcb", "RCB":
		return MethodRCB, true
	case "rib", "RIB":
		return MethodRIB, true
	case "hsfc", "HSFC":
		return MethodHSFC, true
	default:
		return 0, false
	}
}

func (m Method) String() string {
	switch m {
	case MethodRCB:
		return "rcb"
	case MethodRIB:
		return "rib"
	case MethodHSFC:
		return "hsfc"
	default:
		return "unknown"
	}
}

// Adapter is the partitioner contract the rest of this module depends on:
//
//   - SetNumObjects/UpdateGlobalIDs/SetCentroids feed the adapter the
//     current local object set — per-local-cell centroid coordinates and
//     dense cell global ids.
//   - Balance invokes the partitioning algorithm and returns this rank's
//     export lists at object (here: cell) granularity.
//   - InvertLists computes the mirror-image list for a set of
//     (localID, globalID, proc) triples — given exports, returns imports,
//     or vice versa.
//   - BoxAssign answers which ranks' partitions intersect a query box,
//     used by halo/overlap detection.
//
// Every method that exchanges information with other ranks (Balance,
// InvertLists, BoxAssign against a not-yet-locally-known box) is a
// collective: every rank must call it at the same logical point.
type Adapter interface {
	SetNumObjects(local, global int)
	UpdateGlobalIDs(gids []uint32)
	SetCentroids(centroids [][3]float64)

	Balance() (exportLocalIDs, exportGlobalIDs []uint32, exportProcs []int, err error)

	InvertLists(localIDs, globalIDs []uint32, procs []int) (outLocalIDs, outGlobalIDs []uint32, outProcs []int, err error)

	BoxAssign(min, max [3]float64) ([]int, error)
}

// New constructs the Adapter named by method, bound to comm. RCB is the
// only method with a concrete implementation in this module; RIB and
// HSFC are recognized by ParseMethod but have no adapter to construct.
// Requesting either fails fast here rather than silently running RCB
// under a different name.
func New(method Method, comm mpitransport.Comm) (Adapter, error) {
	switch method {
	case MethodRCB:
		return NewRCB(comm), nil
	case MethodRIB, MethodHSFC:
		return nil, perr.Newf(perr.ConfigError, "partition: lb_method %q recognized but not implemented in this build", method)
	default:
		return nil, perr.Newf(perr.ConfigError, "partition: unknown lb_method %v", method)
	}
}
