package mpitransport

import (
	"sync"

	"github.com/phil-mansfield/pmanager/perr"
)

// mailKey identifies one ordered point-to-point channel: messages sent from
// src to dest tagged tag are delivered in send order.
type mailKey struct {
	src, dest, tag int
}

// localHub is the shared state behind a group of LocalComm values that
// together emulate an MPI communicator within a single process. Every
// collective (Allreduce*, AllgatherInt, Barrier) is implemented as one
// instance of the same generic gather-compute-release barrier, since the
// SPMD discipline (every rank issues the same sequence of Comm calls)
// means the ranks are always contributing to the *same* logical
// collective call at any instant, never two different ones at once.
type localHub struct {
	mu   sync.Mutex
	cond *sync.Cond

	size          int
	contributions []interface{}
	arrived       int
	result        interface{}
	resultReady   bool
	leavers       int

	mailbox map[mailKey][][]byte
}

func newLocalHub(size int) *localHub {
	h := &localHub{
		size:          size,
		contributions: make([]interface{}, size),
		mailbox:       make(map[mailKey][][]byte),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// runCollective blocks this rank's contribution into the current round,
// waits for every rank to arrive, and returns the value combine computed
// over all size contributions — identical on every rank, as every
// Comm collective must be.
func (h *localHub) runCollective(rank int, contribution interface{}, combine func([]interface{}) interface{}) interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.resultReady {
		h.cond.Wait()
	}

	h.contributions[rank] = contribution
	h.arrived++
	if h.arrived == h.size {
		h.result = combine(h.contributions)
		h.resultReady = true
		h.leavers = h.size
		h.cond.Broadcast()
	} else {
		for !h.resultReady {
			h.cond.Wait()
		}
	}

	result := h.result
	h.leavers--
	if h.leavers == 0 {
		h.resultReady = false
		h.arrived = 0
		h.contributions = make([]interface{}, h.size)
		h.cond.Broadcast()
	}
	return result
}

func (h *localHub) send(key mailKey, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mailbox[key] = append(h.mailbox[key], data)
	h.cond.Broadcast()
}

func (h *localHub) recv(key mailKey) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.mailbox[key]) == 0 {
		h.cond.Wait()
	}
	data := h.mailbox[key][0]
	h.mailbox[key] = h.mailbox[key][1:]
	return data
}

// LocalComm is a pure-Go, in-process Comm backend: every "rank" is a
// goroutine and every collective/point-to-point primitive is implemented
// with a shared mutex and condition variable rather than a real network or
// shared-memory transport. It exists because this environment has no MPI
// runtime to link the cgo backend (mpi_backend.go) against: LocalComm
// with size 1 covers the single-rank case, and size > 1 emulates a real
// multi-rank job entirely with goroutines so multi-rank load-balance and
// halo-exchange tests can run without mpirun.
type LocalComm struct {
	hub  *localHub
	rank int
}

// NewLocalComms returns size LocalComm values sharing one in-process hub,
// one per emulated rank. Every test in this module that exercises the
// "in_parallel" path of manager.Manager.Update drives one goroutine per
// returned Comm.
func NewLocalComms(size int) []Comm {
	hub := newLocalHub(size)
	comms := make([]Comm, size)
	for r := 0; r < size; r++ {
		comms[r] = &LocalComm{hub: hub, rank: r}
	}
	return comms
}

func (c *LocalComm) Rank() int { return c.rank }
func (c *LocalComm) Size() int { return c.hub.size }

func (c *LocalComm) AllreduceMin(local []float64) ([]float64, error) {
	result, err := c.allreduce(local, func(a, b []float64) []float64 {
		out := make([]float64, len(a))
		for i := range a {
			if a[i] < b[i] {
				out[i] = a[i]
			} else {
				out[i] = b[i]
			}
		}
		return out
	})
	return result, err
}

func (c *LocalComm) AllreduceMax(local []float64) ([]float64, error) {
	result, err := c.allreduce(local, func(a, b []float64) []float64 {
		out := make([]float64, len(a))
		for i := range a {
			if a[i] > b[i] {
				out[i] = a[i]
			} else {
				out[i] = b[i]
			}
		}
		return out
	})
	return result, err
}

func (c *LocalComm) allreduce(local []float64, fold func(a, b []float64) []float64) ([]float64, error) {
	n := len(local)
	localCopy := append([]float64{}, local...)

	var sizeErr error
	raw := c.hub.runCollective(c.rank, localCopy, func(contribs []interface{}) interface{} {
		acc := contribs[0].([]float64)
		if len(acc) != n {
			sizeErr = perr.Newf(perr.SizeMismatch,
				"rank 0 contributed %d values, rank %d contributed %d", len(acc), c.rank, n)
		}
		out := append([]float64{}, acc...)
		for r := 1; r < len(contribs); r++ {
			v := contribs[r].([]float64)
			if len(v) != len(out) {
				sizeErr = perr.Newf(perr.SizeMismatch,
					"allreduce contribution length mismatch: rank %d has %d, expected %d", r, len(v), len(out))
				continue
			}
			out = fold(out, v)
		}
		return out
	})
	if sizeErr != nil {
		return nil, sizeErr
	}
	return raw.([]float64), nil
}

func (c *LocalComm) AllgatherInt(local int) ([]int, error) {
	raw := c.hub.runCollective(c.rank, local, func(contribs []interface{}) interface{} {
		out := make([]int, len(contribs))
		for i, v := range contribs {
			out[i] = v.(int)
		}
		return out
	})
	return raw.([]int), nil
}

func (c *LocalComm) Send(dest, tag int, data []byte) error {
	if dest < 0 || dest >= c.hub.size {
		return wrapTransportErr("Send", perr.Newf(perr.TransportError, "destination rank %d out of range [0,%d)", dest, c.hub.size))
	}
	payload := append([]byte{}, data...)
	c.hub.send(mailKey{src: c.rank, dest: dest, tag: tag}, payload)
	return nil
}

func (c *LocalComm) Recv(src, tag int) ([]byte, error) {
	if src < 0 || src >= c.hub.size {
		return nil, wrapTransportErr("Recv", perr.Newf(perr.TransportError, "source rank %d out of range [0,%d)", src, c.hub.size))
	}
	return c.hub.recv(mailKey{src: src, dest: c.rank, tag: tag}), nil
}

func (c *LocalComm) Barrier() error {
	c.hub.runCollective(c.rank, struct{}{}, func(contribs []interface{}) interface{} {
		return struct{}{}
	})
	return nil
}
