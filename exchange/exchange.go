/*Package exchange implements the two bulk particle-data migration
protocols the parallel manager drives: the load-balance exchange
(particles actually change ownership; exported rows are removed
locally) and the halo/remote exchange (rows are replicated, not moved;
nothing is removed locally). Both run over the same deterministic,
deadlock-free send/receive schedule — gather exported rows into
per-destination buffers, verify the sender's and receiver's row counts
agree, then drain lower-ranked sources, send, and drain higher-ranked
sources in that fixed order so no two ranks ever both block waiting on
each other. The halo variant differs only in skipping row removal and
tagging arrivals Remote instead of Local.
*/
package exchange

import (
	"sort"

	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/particle"
	"github.com/phil-mansfield/pmanager/perr"
)

// countTag and dataTag separate the count-verification phase from the
// bulk property transfer on the wire, so a slow count message from one
// call can never be mistaken for a data message from another.
const (
	countTag = 9001
	dataTag  = 9002
)

// Lists is the parallel (localID, globalID, proc) triple describing one
// side (export or import) of an exchange.
type Lists struct {
	LocalIDs  []int
	GlobalIDs []uint32
	Procs     []int
}

// Count returns the number of rows this side of the exchange names.
func (l Lists) Count() int { return len(l.LocalIDs) }

// groupByProc returns, for each export, the set of local row indices
// destined for each rank, and the distinct destination ranks in sorted
// order.
func (l Lists) groupByProc() (byProc map[int][]int, procs []int) {
	byProc = make(map[int][]int)
	for i, p := range l.Procs {
		byProc[p] = append(byProc[p], l.LocalIDs[i])
	}
	for p := range byProc {
		procs = append(procs, p)
	}
	sort.Ints(procs)
	return byProc, procs
}

// Exchange drives both bulk-migration protocols for one particle.Array:
// it owns the array and executes the bulk data-movement protocols using
// precomputed export/import lists.
type Exchange struct {
	Arr  *particle.Array
	Comm mpitransport.Comm
	// Props is the ordered list of property names transferred. This
	// order must be identical on every rank, since both sides read and
	// write the wire payload by walking Props in the same sequence with
	// no field tag on the wire to disambiguate.
	Props []string
}

// New returns an Exchange over arr, using comm as its transport and props
// as the fixed transfer order.
func New(arr *particle.Array, comm mpitransport.Comm, props []string) (*Exchange, error) {
	for _, p := range props {
		if _, err := arr.GetField(p); err != nil {
			return nil, perr.Newf(perr.ConfigError, "exchange: lb_props names unknown property %q", p)
		}
	}
	return &Exchange{Arr: arr, Comm: comm, Props: props}, nil
}

// LBExchange runs the load-balance particle exchange: exported rows are
// removed from Arr, imported rows are appended and tagged Local.
func (e *Exchange) LBExchange(export, importSide Lists) error {
	return e.run(export, importSide, true, particle.TagLocal)
}

// RemoteExchange runs the halo exchange: no rows are removed, imported
// rows are appended and tagged Remote.
func (e *Exchange) RemoteExchange(export, importSide Lists) error {
	return e.run(export, importSide, false, particle.TagRemote)
}

func (e *Exchange) run(export, importSide Lists, removeExports bool, newTag int32) error {
	rank := e.Comm.Rank()

	exportByProc, exportProcs := export.groupByProc()
	importByProc, importProcs := importSide.groupByProc()

	if err := e.verifyCounts(exportByProc, exportProcs, importByProc, importProcs); err != nil {
		return err
	}

	payloads := make(map[int][]byte, len(exportProcs))
	for _, dest := range exportProcs {
		rows := exportByProc[dest]
		var buf []byte
		for _, name := range e.Props {
			f, err := e.Arr.GetField(name)
			if err != nil {
				return perr.Newf(perr.ConfigError, "exchange: unknown property %q", name)
			}
			buf = f.EncodeRows(buf, rows)
		}
		payloads[dest] = buf
	}

	nOld := e.Arr.Length()
	numExport, numImport := export.Count(), importSide.Count()

	if removeExports {
		sortedExportRows := sortedUnion(exportByProc)
		if err := e.Arr.RemoveParticles(sortedExportRows); err != nil {
			return perr.Newf(perr.InvariantViolation, "exchange: removing exported rows: %v", err)
		}
	}

	var newLen int
	if removeExports {
		newLen = nOld - numExport + numImport
	} else {
		newLen = nOld + numImport
	}
	e.Arr.Resize(newLen)

	writeStart := e.Arr.Length() - numImport
	tagField, err := e.Arr.GetField("tag")
	if err != nil {
		return perr.Newf(perr.ConfigError, "exchange: particle array has no `tag` property")
	}
	tags, ok := tagField.(*particle.Int32Field)
	if !ok {
		return perr.Newf(perr.ConfigError, "exchange: `tag` property is not an int field")
	}

	var lower, upper []int
	for _, src := range importProcs {
		if src < rank {
			lower = append(lower, src)
		} else {
			upper = append(upper, src)
		}
	}
	sort.Ints(lower)
	sort.Ints(upper)

	cursor := writeStart
	recvFrom := func(src int) error {
		buf, err := e.Comm.Recv(src, dataTag)
		if err != nil {
			return perr.Newf(perr.TransportError, "exchange: recv from rank %d: %v", src, err)
		}
		n := len(importByProc[src])
		rows := contiguousRows(cursor, n)
		off := 0
		for _, name := range e.Props {
			f, err := e.Arr.GetField(name)
			if err != nil {
				return perr.Newf(perr.ConfigError, "exchange: unknown property %q", name)
			}
			consumed, err := f.DecodeRows(buf[off:], rows)
			if err != nil {
				return perr.Newf(perr.SizeMismatch, "exchange: decoding %q from rank %d: %v", name, src, err)
			}
			off += consumed
		}
		cursor += n
		return nil
	}

	for _, src := range lower {
		if err := recvFrom(src); err != nil {
			return err
		}
	}
	for _, dest := range exportProcs {
		if err := e.Comm.Send(dest, dataTag, payloads[dest]); err != nil {
			return perr.Newf(perr.TransportError, "exchange: send to rank %d: %v", dest, err)
		}
	}
	for _, src := range upper {
		if err := recvFrom(src); err != nil {
			return err
		}
	}

	// Stamp the arrivals only after decoding: a `tag` entry in Props
	// carries the sender's own tag and would otherwise overwrite newTag.
	for i := writeStart; i < writeStart+numImport; i++ {
		tags.Data[i] = newTag
	}

	if cursor != writeStart+numImport {
		return perr.Newf(perr.SizeMismatch,
			"exchange: expected to fill %d imported rows, filled %d", numImport, cursor-writeStart)
	}
	return nil
}

// verifyCounts has every rank tell every source it expects imports from
// how many rows it expects, and every sender cross-check that
// expectation against the export count it actually computed. A mismatch
// is a fatal SizeMismatch error, surfaced before a single byte of
// particle data moves.
func (e *Exchange) verifyCounts(exportByProc map[int][]int, exportProcs []int, importByProc map[int][]int, importProcs []int) error {
	rank := e.Comm.Rank()

	for _, src := range importProcs {
		expected := int32(len(importByProc[src]))
		if err := e.Comm.Send(src, countTag, encodeInt32(expected)); err != nil {
			return perr.Newf(perr.TransportError, "exchange: count_recv_data send to rank %d: %v", src, err)
		}
	}
	for _, dest := range exportProcs {
		buf, err := e.Comm.Recv(dest, countTag)
		if err != nil {
			return perr.Newf(perr.TransportError, "exchange: count_recv_data recv from rank %d: %v", dest, err)
		}
		expected := decodeInt32(buf)
		actual := int32(len(exportByProc[dest]))
		if expected != actual {
			return perr.Newf(perr.SizeMismatch,
				"exchange: rank %d expects %d rows from rank %d, but rank %d is exporting %d",
				dest, expected, rank, rank, actual)
		}
	}
	return nil
}

func sortedUnion(byProc map[int][]int) []int {
	var all []int
	for _, rows := range byProc {
		all = append(all, rows...)
	}
	sort.Ints(all)
	return all
}

func contiguousRows(start, n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = start + i
	}
	return rows
}

func encodeInt32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeInt32(buf []byte) int32 {
	if len(buf) < 4 {
		return -1
	}
	return int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
}
