/*Command pmanager is a local, non-MPI smoke-test harness for the
parallel manager: it fans N "ranks" out over goroutines sharing one
mpitransport.LocalComm hub, seeds each with a synthetic, deliberately
unbalanced patch of particles, and drives a couple of Manager.Update
cycles to completion, reporting the per-rank cell and particle-tag
counts that result.

It exists because this environment has no MPI runtime to link a cgo
backend against or launch under mpirun, so it plays the role a
multi-rank binary would using mpitransport.LocalComm instead of a real
communicator. It is not a simulation driver — it carries no kernel
physics, time integration, or I/O.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"

	"github.com/phil-mansfield/pmanager/config"
	"github.com/phil-mansfield/pmanager/manager"
	"github.com/phil-mansfield/pmanager/mpitransport"
	"github.com/phil-mansfield/pmanager/particle"
	"github.com/phil-mansfield/pmanager/partition"
	"github.com/phil-mansfield/pmanager/perr"
	"github.com/phil-mansfield/pmanager/pmthread"
)

func main() {
	ranks := flag.Int("ranks", 4, "number of in-process ranks to simulate")
	perRank := flag.Int("particles", 2000, "particles seeded per rank before the first Update")
	threads := flag.Int("threads", -1, "GOMAXPROCS; -1 uses every core")
	configPath := flag.String("config", "", "path to an INI manager config file; empty uses defaults")
	flag.Parse()

	if err := pmthread.SetThreads(*threads); err != nil {
		perr.External("%v", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		perr.External("%v", err)
	}

	comms := mpitransport.NewLocalComms(*ranks)

	var wg sync.WaitGroup
	reports := make([]string, *ranks)
	errs := make([]error, *ranks)

	for r := 0; r < *ranks; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			reports[rank], errs[rank] = runRank(comms[rank], cfg, *perRank, rank)
		}(r)
	}
	wg.Wait()

	for r := 0; r < *ranks; r++ {
		if errs[r] != nil {
			log.Printf("rank %d: %v", r, errs[r])
			os.Exit(1)
		}
		fmt.Println(reports[r])
	}
}

func loadConfig(path string) (*config.Config, error) {
	validProps := map[string]bool{}
	for _, p := range config.DefaultLBProps {
		validProps[p] = true
	}
	if path == "" {
		raw := &config.Raw{}
		// The synthetic particles seeded by seedArray only carry
		// x/y/z/h/m/tag/gid; restrict the default lb_props to that set
		// rather than the full physics set config.DefaultLBProps names,
		// since this binary never seeds acceleration/velocity/density
		// fields.
		raw.Manager.LBProps = "x,y,z,h,m,tag,gid"
		return raw.Process(validProps)
	}
	raw, err := config.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return raw.Process(validProps)
}

// runRank builds one rank's particle array seeded in a rank-specific
// sub-box starting at x = 10*rank (deliberately unbalanced — every rank
// seeds the same particle count over a sub-box whose width shrinks as
// rank increases, so the
// very first load-balance pass has real work to do), then runs two
// Update cycles and returns a one-line summary.
func runRank(comm mpitransport.Comm, cfg *config.Config, n int, rank int) (string, error) {
	arr := seedArray(n, rank)

	adp, err := partition.New(cfg.LBMethod, comm)
	if err != nil {
		return "", err
	}
	mgr, err := manager.New(comm, cfg, adp, []*particle.Array{arr})
	if err != nil {
		return "", err
	}

	if err := mgr.Update(true); err != nil {
		return "", err
	}
	if err := mgr.Update(false); err != nil {
		return "", err
	}

	local, remote, ghost := arr.CountByTag()
	return fmt.Sprintf("rank %d: cells=%d local=%d remote=%d ghost=%d",
		rank, mgr.Cells().Len(), local, remote, ghost), nil
}

func seedArray(n, rank int) *particle.Array {
	rng := rand.New(rand.NewSource(int64(rank) + 1))
	lo := float64(rank) * 10.0
	hi := lo + 10.0/float64(rank+1)

	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	h := make([]float64, n)
	m := make([]float64, n)
	tag := make([]int32, n)
	gid := make([]uint32, n)

	for i := 0; i < n; i++ {
		x[i] = lo + rng.Float64()*(hi-lo)
		y[i] = rng.Float64() * 10.0
		z[i] = 0
		h[i] = 0.1 + 0.05*rng.Float64()
		m[i] = 1.0
		tag[i] = particle.TagLocal
		gid[i] = uint32(i)
	}

	arr := particle.NewArray()
	must(arr.AddField(particle.NewFloat64Field("x", x)))
	must(arr.AddField(particle.NewFloat64Field("y", y)))
	must(arr.AddField(particle.NewFloat64Field("z", z)))
	must(arr.AddField(particle.NewFloat64Field("h", h)))
	must(arr.AddField(particle.NewFloat64Field("m", m)))
	must(arr.AddField(particle.NewInt32Field("tag", tag)))
	must(arr.AddField(particle.NewUint32Field("gid", gid)))
	return arr
}

func must(err error) {
	if err != nil {
		perr.External("%v", err)
	}
}
