package part

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FloorplanResult carries per-partition geometry derived from the best
// annealing worker. Slices are indexed by partition id; partitions that
// held no area get a unit aspect ratio at the origin.
type FloorplanResult struct {
	AspectRatios []float64
	X            []float64
	Y            []float64
	Valid        bool
}

// Floorplanner turns a partition into chiplet shapes by running a
// small pool of SAWorker instances over the same initial state and
// keeping the best outcome. It also caches the winning sequence pair
// in a "local" and a "global" slot so subsequent calls warm-start
// instead of re-annealing from identity.
//
// A Floorplanner is owned by one refiner/goroutine and is not safe for
// concurrent use; its workers run concurrently internally.
type Floorplanner struct {
	hgraph     *Hypergraph
	separation float64
	cfg        AnnealConfig
	seed       int64

	localPos  []int
	localNeg  []int
	globalPos []int
	globalNeg []int
}

// NewFloorplanner creates a floorplanner for the given hypergraph.
// Worker RNGs derive from seed + workerID.
func NewFloorplanner(h *Hypergraph, separation float64, cfg AnnealConfig, seed int64) *Floorplanner {
	return &Floorplanner{hgraph: h, separation: separation, cfg: cfg, seed: seed}
}

// ClearLocalSequences drops the local warm-start slot.
func (f *Floorplanner) ClearLocalSequences() { f.localPos, f.localNeg = nil, nil }

// ClearGlobalSequences drops the global warm-start slot.
func (f *Floorplanner) ClearGlobalSequences() { f.globalPos, f.globalNeg = nil, nil }

// Run floorplans the given partition. steps and perturbs are the total
// budget, split across the worker pool. local selects which warm-start
// slot is consulted and updated: the local slot serves mid-pass
// feasibility probes, the global slot pass boundaries.
//
// All failures are contained: a run that cannot build chiplets or
// produces no worker output returns an empty result with Valid=false.
func (f *Floorplanner) Run(partition []int, steps, perturbs int, local bool) FloorplanResult {
	numParts := NumParts(partition)
	chiplets, nets, index := BuildChiplets(f.hgraph, partition, f.separation)
	if len(chiplets) == 0 {
		logrus.Debugf("floorplanner: no chiplets for %d partitions, skipping", numParts)
		return FloorplanResult{}
	}

	pos, neg := f.warmStart(len(chiplets), local)

	numWorkers := f.cfg.Workers
	if numWorkers > 4 {
		numWorkers = 4
	}
	if numWorkers < 2 {
		numWorkers = 2
	}
	perWorkerSteps := steps / numWorkers
	if perWorkerSteps < 10 {
		perWorkerSteps = 10
	}
	perWorkerPerturbs := perturbs / numWorkers
	if perWorkerPerturbs < 5 {
		perWorkerPerturbs = 5
	}
	deltaAccel := 0.0
	if numWorkers > 1 {
		deltaAccel = (f.cfg.MaxCoolingAccel - f.cfg.MinCoolingAccel) / float64(numWorkers-1)
	}

	workers := make([]*SAWorker, numWorkers)
	for id := 0; id < numWorkers; id++ {
		accel := f.cfg.MinCoolingAccel + float64(id)*deltaAccel
		workers[id] = NewSAWorker(id, chiplets, nets, f.cfg, perWorkerSteps, perWorkerPerturbs, accel, WorkerRNG(f.seed, id))
		if pos != nil {
			workers[id].SetSequences(pos, neg)
		}
	}

	// Worker 0 derives the penalty normalizers once; every worker
	// adopts them so costs stay comparable across the pool.
	workers[0].Initialize()
	na, np, nn := workers[0].Normalizers()
	for _, w := range workers {
		w.SetNormalizers(na, np, nn)
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *SAWorker) {
			defer wg.Done()
			w.Run()
		}(w)
	}
	wg.Wait()

	var best *SAWorker
	bestCost := 0.0
	bestValid := false
	for _, w := range workers {
		cost := w.Cost()
		valid := w.Valid()
		if best == nil || (valid && !bestValid) || (valid == bestValid && cost < bestCost) {
			best, bestCost, bestValid = w, cost, valid
		}
	}
	if best == nil {
		return FloorplanResult{}
	}

	bestPos, bestNeg := best.Sequences()
	if local {
		f.localPos, f.localNeg = bestPos, bestNeg
	} else {
		f.globalPos, f.globalNeg = bestPos, bestNeg
	}

	result := FloorplanResult{
		AspectRatios: make([]float64, numParts),
		X:            make([]float64, numParts),
		Y:            make([]float64, numParts),
		Valid:        bestValid,
	}
	for p := 0; p < numParts; p++ {
		if index[p] < 0 {
			result.AspectRatios[p] = 1.0
			continue
		}
		c := &best.Chiplets()[index[p]]
		result.AspectRatios[p] = c.AspectRatio()
		result.X[p] = c.RealX()
		result.Y[p] = c.RealY()
	}
	return result
}

// warmStart returns the cached sequence pair for the requested slot
// when its length matches the chiplet count, nil otherwise.
func (f *Floorplanner) warmStart(n int, local bool) (pos, neg []int) {
	if local {
		pos, neg = f.localPos, f.localNeg
	} else {
		pos, neg = f.globalPos, f.globalNeg
	}
	if len(pos) != n || len(neg) != n {
		return nil, nil
	}
	return pos, neg
}
