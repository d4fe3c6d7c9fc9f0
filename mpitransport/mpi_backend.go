//go:build mpi

package mpitransport

// This backend is the real transport for a multi-node job: a thin cgo
// wrapper around an OpenMPI install, using accessor functions to get
// opaque C MPI_Comm/MPI_Datatype values into Go and a panic-on-error
// pattern rooted in MPI_Error_string. Build with -tags mpi once an MPI
// development environment is available; without the tag, mpitransport
// compiles with only the pure-Go LocalComm backend, which is what every
// test in this module uses.

/*
#cgo LDFLAGS: -pthread -L/usr/lib/x86_64-linux-gnu/openmpi/lib -lmpi
#cgo CFLAGS: -std=gnu99 -Wall -I/usr/lib/x86_64-linux-gnu/openmpi/include/openmpi -I/usr/lib/x86_64-linux-gnu/openmpi/include -pthread
#include <mpi.h>
#include <stdlib.h>

MPI_Comm pmanager_comm_world() {
    return (MPI_Comm)(MPI_COMM_WORLD);
}
*/
import "C"

import (
	"unsafe"

	"github.com/phil-mansfield/pmanager/perr"
)

// MPIComm is the real cgo-MPI Comm backend, one per process, wrapping
// MPI_COMM_WORLD.
type MPIComm struct {
	comm C.MPI_Comm
}

// InitMPI calls MPI_Init and returns an MPIComm bound to MPI_COMM_WORLD.
// Must be called exactly once per process, before any other Comm method,
// and FinalizeMPI must be called exactly once before the process exits.
func InitMPI() (*MPIComm, error) {
	if err := C.MPI_Init(nil, nil); err != 0 {
		return nil, mpiErr("MPI_Init", err)
	}
	return &MPIComm{comm: C.pmanager_comm_world()}, nil
}

// FinalizeMPI calls MPI_Finalize.
func FinalizeMPI() error {
	if err := C.MPI_Finalize(); err != 0 {
		return mpiErr("MPI_Finalize", err)
	}
	return nil
}

func mpiErr(op string, code C.int) error {
	buf := make([]C.char, C.MPI_MAX_ERROR_STRING)
	n := C.int(0)
	C.MPI_Error_string(code, &buf[0], &n)
	return wrapTransportErr(op, perr.Newf(perr.TransportError, "%s", C.GoString(&buf[0])))
}

func (c *MPIComm) Rank() int {
	var n C.int
	C.MPI_Comm_rank(c.comm, &n)
	return int(n)
}

func (c *MPIComm) Size() int {
	var n C.int
	C.MPI_Comm_size(c.comm, &n)
	return int(n)
}

func (c *MPIComm) AllreduceMin(local []float64) ([]float64, error) {
	return c.allreduceFloat64(local, C.MPI_MIN)
}

func (c *MPIComm) AllreduceMax(local []float64) ([]float64, error) {
	return c.allreduceFloat64(local, C.MPI_MAX)
}

func (c *MPIComm) allreduceFloat64(local []float64, op C.MPI_Op) ([]float64, error) {
	n := len(local)
	if n == 0 {
		return nil, nil
	}
	out := make([]float64, n)
	errc := C.MPI_Allreduce(
		unsafe.Pointer(&local[0]), unsafe.Pointer(&out[0]),
		C.int(n), C.MPI_DOUBLE, op, c.comm)
	if errc != 0 {
		return nil, mpiErr("MPI_Allreduce", errc)
	}
	return out, nil
}

func (c *MPIComm) AllgatherInt(local int) ([]int, error) {
	size := c.Size()
	send := C.int(local)
	recv := make([]C.int, size)
	errc := C.MPI_Allgather(
		unsafe.Pointer(&send), 1, C.MPI_INT,
		unsafe.Pointer(&recv[0]), 1, C.MPI_INT, c.comm)
	if errc != 0 {
		return nil, mpiErr("MPI_Allgather", errc)
	}
	out := make([]int, size)
	for i, v := range recv {
		out[i] = int(v)
	}
	return out, nil
}

func (c *MPIComm) Send(dest, tag int, data []byte) error {
	if len(data) == 0 {
		data = []byte{0}
	}
	errc := C.MPI_Send(
		unsafe.Pointer(&data[0]), C.int(len(data)), C.MPI_BYTE,
		C.int(dest), C.int(tag), c.comm)
	if errc != 0 {
		return mpiErr("MPI_Send", errc)
	}
	return nil
}

func (c *MPIComm) Recv(src, tag int) ([]byte, error) {
	var status C.MPI_Status
	errc := C.MPI_Probe(C.int(src), C.int(tag), c.comm, &status)
	if errc != 0 {
		return nil, mpiErr("MPI_Probe", errc)
	}
	var n C.int
	C.MPI_Get_count(&status, C.MPI_BYTE, &n)

	buf := make([]byte, int(n))
	if len(buf) == 0 {
		buf = []byte{0}
	}
	errc = C.MPI_Recv(
		unsafe.Pointer(&buf[0]), n, C.MPI_BYTE,
		C.int(src), C.int(tag), c.comm, &status)
	if errc != 0 {
		return nil, mpiErr("MPI_Recv", errc)
	}
	return buf[:int(n)], nil
}

func (c *MPIComm) Barrier() error {
	if errc := C.MPI_Barrier(c.comm); errc != 0 {
		return mpiErr("MPI_Barrier", errc)
	}
	return nil
}
