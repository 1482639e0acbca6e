package part

import (
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
)

// parallelVertexThreshold switches boundary discovery and gain bucket
// initialization to their parallel variants.
const parallelVertexThreshold = 1000

// Refiner improves a partition with K-way Fiduccia-Mattheyses passes
// whose gains come from the cost oracle: the gain of moving vertex v
// from partition a to b is the cached solution cost minus the
// (approximate) cost of the solution with v reassigned.
//
// A Refiner owns its oracle and floorplanner handles exclusively; the
// driver creates one Refiner per worker goroutine.
type Refiner struct {
	hgraph  *Hypergraph
	cfg     RefinerConfig
	oracle  CostOracle
	factory OracleFactory
	fp      *Floorplanner
	rng     *rand.Rand

	techs        []string
	aspectRatios []float64
	xLocs        []float64
	yLocs        []float64

	legacyCost float64
}

// NewRefiner creates a refiner. oracle may be nil, in which case
// refinement short-circuits with zero gain (the driver still emits the
// best initial partition). fp may be nil when floorplan gating is off.
func NewRefiner(h *Hypergraph, cfg RefinerConfig, oracle CostOracle, fp *Floorplanner, rng *rand.Rand) *Refiner {
	return &Refiner{hgraph: h, cfg: cfg, oracle: oracle, fp: fp, rng: rng}
}

// SetOracleFactory enables parallel gain-bucket initialization on
// large graphs by minting one oracle per worker goroutine. Without a
// factory, initialization stays sequential on the refiner's own
// oracle.
func (r *Refiner) SetOracleFactory(f OracleFactory) { r.factory = f }

// SetNumParts reconfigures the partition count K.
func (r *Refiner) SetNumParts(k int) { r.cfg.NumParts = k }

// SetTechs installs the partition→technology assignment consulted on
// every oracle call.
func (r *Refiner) SetTechs(techs []string) { r.techs = techs }

// Techs returns the current technology assignment.
func (r *Refiner) Techs() []string { return r.techs }

// SetGeometry installs per-partition aspect ratios and coordinates
// from a floorplan result.
func (r *Refiner) SetGeometry(aspectRatios, x, y []float64) {
	r.aspectRatios, r.xLocs, r.yLocs = aspectRatios, x, y
}

// LegacyCost returns the cached cost of the current solution.
func (r *Refiner) LegacyCost() float64 { return r.legacyCost }

// CostFromScratch evaluates the oracle on the given partition with the
// refiner's technology assignment and geometry.
func (r *Refiner) CostFromScratch(partition []int, approx bool) float64 {
	if r.oracle == nil {
		return 0
	}
	numParts := NumParts(partition)
	techs := resizeTechs(r.techs, numParts)
	return r.oracle.Cost(partition, techs, r.aspectRatios, r.xLocs, r.yLocs, approx)
}

// resizeTechs pads or truncates a tech assignment to numParts entries,
// reusing the first tech as the filler.
func resizeTechs(techs []string, numParts int) []string {
	if len(techs) == numParts {
		return techs
	}
	out := make([]string, numParts)
	for i := range out {
		if i < len(techs) {
			out[i] = techs[i]
		} else if len(techs) > 0 {
			out[i] = techs[0]
		}
	}
	return out
}

// singleMoveGain probes the oracle for the gain of one move using the
// cheap approximation path: legacyCost − approxCost(π with π[v]:=to).
// The partition is mutated and restored in place.
func (r *Refiner) singleMoveGain(partition []int, v, from, to int) float64 {
	if from == to || r.oracle == nil {
		return 0
	}
	partition[v] = to
	newCost := r.CostFromScratch(partition, true)
	partition[v] = from
	return r.legacyCost - newCost
}

// FindBoundaryVertices returns the shuffled set of vertices incident
// on at least one cut hyperedge, skipping already visited ones. A
// configurable fraction of interior vertices is reservoir-sampled into
// the set so refinement can escape a frozen boundary.
func (r *Refiner) FindBoundaryVertices(netDegs [][]int, visited []bool) []int {
	numEdges := r.hgraph.NumEdges()
	numVertices := r.hgraph.NumVertices()

	boundaryNet := make([]bool, numEdges)
	for e := 0; e < numEdges; e++ {
		span := 0
		for p := 0; p < r.cfg.NumParts; p++ {
			if netDegs[e][p] > 0 {
				span++
				if span >= 2 {
					boundaryNet[e] = true
					break
				}
			}
		}
	}

	isBoundary := make([]bool, numVertices)
	boundary := make([]int, 0, numVertices/5+1)
	markBoundary := func(v int) bool {
		if visited[v] || isBoundary[v] {
			return false
		}
		for _, e := range r.hgraph.Edges(v) {
			if boundaryNet[e] {
				return true
			}
		}
		return false
	}
	if numVertices > parallelVertexThreshold {
		flags := make([]bool, numVertices)
		parallelFor(numVertices, func(v int) {
			flags[v] = markBoundary(v)
		})
		for v, ok := range flags {
			if ok {
				isBoundary[v] = true
				boundary = append(boundary, v)
			}
		}
	} else {
		for v := 0; v < numVertices; v++ {
			if markBoundary(v) {
				isBoundary[v] = true
				boundary = append(boundary, v)
			}
		}
	}

	// Reservoir-sample interior vertices into the set.
	if r.cfg.RandomNonBoundaryRate > 0 {
		quota := int(r.cfg.RandomNonBoundaryRate * float64(numVertices))
		reservoir := make([]int, 0, quota)
		seen := 0
		for v := 0; v < numVertices; v++ {
			if visited[v] || isBoundary[v] {
				continue
			}
			seen++
			if len(reservoir) < quota {
				reservoir = append(reservoir, v)
			} else if j := r.rng.Intn(seen); j < quota {
				reservoir[j] = v
			}
		}
		boundary = append(boundary, reservoir...)
	}

	// Shuffle to avoid positional bias from vertex numbering.
	r.rng.Shuffle(len(boundary), func(i, j int) {
		boundary[i], boundary[j] = boundary[j], boundary[i]
	})
	return boundary
}

// initializeBuckets fills one gain bucket per destination partition
// with the gains of every boundary vertex. Buckets are independent, so
// large graphs initialize them concurrently.
func (r *Refiner) initializeBuckets(buckets []*GainBucket, boundary []int, partition []int) {
	initOne := func(toPid int) {
		for _, v := range boundary {
			from := partition[v]
			if from == toPid {
				continue
			}
			gain := r.singleMoveGain(partition, v, from, toPid)
			buckets[toPid].Insert(VertexGain{Vertex: v, From: from, To: toPid, Gain: gain})
		}
		buckets[toPid].SetActive()
		if buckets[toPid].Empty() {
			buckets[toPid].SetDeactive()
		}
	}
	if r.hgraph.NumVertices() > parallelVertexThreshold && r.cfg.NumParts > 1 && r.factory != nil {
		legacy := r.legacyCost
		var wg sync.WaitGroup
		for toPid := 0; toPid < r.cfg.NumParts; toPid++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				// Each goroutine probes on its own oracle and its own
				// copy of the partition.
				oracle := r.factory()
				local := append([]int(nil), partition...)
				for _, v := range boundary {
					from := local[v]
					if from == p {
						continue
					}
					local[v] = p
					techs := resizeTechs(r.techs, NumParts(local))
					gain := legacy - oracle.Cost(local, techs, r.aspectRatios, r.xLocs, r.yLocs, true)
					local[v] = from
					buckets[p].Insert(VertexGain{Vertex: v, From: from, To: p, Gain: gain})
				}
				buckets[p].SetActive()
				if buckets[p].Empty() {
					buckets[p].SetDeactive()
				}
			}(toPid)
		}
		wg.Wait()
		return
	}
	for toPid := 0; toPid < r.cfg.NumParts; toPid++ {
		initOne(toPid)
	}
}

// pickMove scans the buckets' balance-legal candidates and returns the
// best floorplan-feasible one, or the no-candidate sentinel.
func (r *Refiner) pickMove(buckets []*GainBucket, partition []int, balance, upper, lower [][]float64) VertexGain {
	best := noCandidate
	for _, b := range buckets {
		if !b.Active() || b.Empty() {
			continue
		}
		cand := b.GetBestCandidate(balance, upper, lower)
		if cand.Vertex < 0 {
			continue
		}
		if !r.moveFeasible(partition, cand) {
			continue
		}
		if best.Vertex < 0 || cand.Gain > best.Gain {
			best = cand
		}
	}
	return best
}

// moveFeasible runs the reduced floorplan gate for one move. With
// gating disabled every move is feasible; enabling the gate can only
// reject moves, never improve cost.
func (r *Refiner) moveFeasible(partition []int, cand VertexGain) bool {
	if !r.cfg.FloorplanGate || r.fp == nil {
		return true
	}
	partition[cand.Vertex] = cand.To
	res := r.fp.Run(partition, r.cfg.GateSteps, r.cfg.GatePerturbs, true)
	partition[cand.Vertex] = cand.From
	return res.Valid
}

// applyMove commits one move to the solution, balances and net
// degrees.
func (r *Refiner) applyMove(m VertexGain, partition []int, balance [][]float64, netDegs [][]int, visited []bool) {
	visited[m.Vertex] = true
	partition[m.Vertex] = m.To
	for i, w := range r.hgraph.VertexWeights(m.Vertex) {
		balance[m.From][i] -= w
		balance[m.To][i] += w
	}
	for _, e := range r.hgraph.Edges(m.Vertex) {
		netDegs[e][m.From]--
		netDegs[e][m.To]++
	}
}

// rollbackMove is the exact inverse of applyMove.
func (r *Refiner) rollbackMove(m VertexGain, partition []int, balance [][]float64, netDegs [][]int, visited []bool) {
	visited[m.Vertex] = false
	partition[m.Vertex] = m.From
	for i, w := range r.hgraph.VertexWeights(m.Vertex) {
		balance[m.From][i] += w
		balance[m.To][i] -= w
	}
	for _, e := range r.hgraph.Edges(m.Vertex) {
		netDegs[e][m.From]++
		netDegs[e][m.To]--
	}
}

// Pass executes one FM scan of up to MaxMove moves and rolls the
// solution back to the best prefix. Returns the best cumulative gain
// (zero or negative means the partition is unchanged).
func (r *Refiner) Pass(partition []int, upper, lower, balance [][]float64, netDegs [][]int, visited []bool) float64 {
	numVertices := r.hgraph.NumVertices()
	buckets := make([]*GainBucket, r.cfg.NumParts)
	for p := range buckets {
		buckets[p] = NewGainBucket(numVertices, r.cfg.MaxTraverseDepth, r.hgraph)
	}

	var boundary []int
	if r.cfg.BoundaryOnly {
		boundary = r.FindBoundaryVertices(netDegs, visited)
	} else {
		boundary = make([]int, numVertices)
		for v := range boundary {
			boundary[v] = v
		}
		r.rng.Shuffle(len(boundary), func(i, j int) {
			boundary[i], boundary[j] = boundary[j], boundary[i]
		})
	}

	r.initializeBuckets(buckets, boundary, partition)

	trace := make([]VertexGain, 0, r.cfg.MaxMove)
	totalGain := 0.0
	bestGain := 0.0
	bestIndex := -1

	for move := 0; move < r.cfg.MaxMove; move++ {
		cand := r.pickMove(buckets, partition, balance, upper, lower)
		if cand.Vertex < 0 {
			break
		}

		r.legacyCost -= cand.Gain
		r.applyMove(cand, partition, balance, netDegs, visited)
		trace = append(trace, cand)
		totalGain += cand.Gain
		for _, b := range buckets {
			b.Remove(cand.Vertex)
		}

		// Refresh gain estimates of the untouched boundary vertices in
		// every destination except the vacated source.
		for toPid := 0; toPid < r.cfg.NumParts; toPid++ {
			if toPid == cand.From {
				continue
			}
			for _, v := range boundary {
				if visited[v] {
					continue
				}
				from := partition[v]
				if from == toPid {
					continue
				}
				gain := r.singleMoveGain(partition, v, from, toPid)
				cell := VertexGain{Vertex: v, From: from, To: toPid, Gain: gain}
				if buckets[toPid].Contains(v) {
					buckets[toPid].ChangePriority(v, cell)
				} else {
					buckets[toPid].Insert(cell)
				}
			}
		}

		if totalGain > bestGain {
			bestGain = totalGain
			bestIndex = len(trace) - 1
		}
	}

	for i := len(trace) - 1; i > bestIndex; i-- {
		r.legacyCost += trace[i].Gain
		r.rollbackMove(trace[i], partition, balance, netDegs, visited)
	}

	for _, b := range buckets {
		b.Clear()
	}
	return bestGain
}

// Refine runs up to RefinerIters passes, stopping early when a pass
// yields no improvement. Between passes the cached cost is recomputed
// from scratch so approximation drift cannot accumulate.
func (r *Refiner) Refine(partition []int, upper, lower [][]float64) float64 {
	if r.oracle == nil {
		logrus.Warn("refiner: no cost oracle available, skipping refinement")
		return 0
	}
	if r.cfg.MaxMove <= 0 {
		return 0
	}
	r.legacyCost = r.CostFromScratch(partition, false)

	balance := BlockBalance(r.hgraph, partition, r.cfg.NumParts)
	netDegs := NetDegrees(r.hgraph, partition, r.cfg.NumParts)
	total := 0.0
	for iter := 0; iter < r.cfg.RefinerIters; iter++ {
		visited := make([]bool, r.hgraph.NumVertices())
		if r.cfg.FloorplanGate && r.fp != nil {
			// Refresh the warm-start sequences so mid-pass gates anneal
			// from a sensible state.
			r.fp.Run(partition, 200, 50, false)
		}
		gain := r.Pass(partition, upper, lower, balance, netDegs, visited)
		if gain <= 0 {
			break
		}
		total += gain
		r.legacyCost = r.CostFromScratch(partition, false)
	}
	if math.IsNaN(r.legacyCost) {
		logrus.Warnf("refiner: cost model returned NaN, solution retained as-is")
	}
	return total
}

// parallelFor fans f out over [0,n) in eight contiguous chunks, one
// goroutine each, and joins before returning.
func parallelFor(n int, f func(i int)) {
	const chunks = 8
	chunk := (n + chunks - 1) / chunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
