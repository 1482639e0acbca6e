package part

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Candidate is one initial partition with its provenance and
// unrefined cost.
type Candidate struct {
	Partition []int
	NumParts  int
	Cost      float64
	Origin    string
}

// DriverResult is the winning refined solution of a driver run.
type DriverResult struct {
	Partition    []int
	NumParts     int
	Cost         float64
	AspectRatios []float64
	X            []float64
	Y            []float64
	Valid        bool
}

// Driver runs the single-technology flow: generate initial partitions
// with every generator, filter statistical outliers, then floorplan
// and refine the survivors in parallel and keep the cheapest.
type Driver struct {
	hgraph  *Hypergraph
	cfg     DriverConfig
	anneal  AnnealConfig
	factory OracleFactory
	tech    string
	seed    int64
	rng     *EngineRNG
}

// NewDriver creates a driver. factory mints one oracle per refinement
// goroutine; tech is the uniform technology node of this run.
func NewDriver(h *Hypergraph, cfg DriverConfig, anneal AnnealConfig, factory OracleFactory, tech string, seed int64) *Driver {
	return &Driver{
		hgraph:  h,
		cfg:     cfg,
		anneal:  anneal,
		factory: factory,
		tech:    tech,
		seed:    seed,
		rng:     NewEngineRNG(EngineSeed(seed)),
	}
}

// GenerateCandidates runs every initial partitioner: one spectral
// start, and per candidate partition count one crossbar expansion, one
// balanced random k-way and one min-cut k-way. A count of 1 yields a
// single all-zero candidate instead, and a min-cut k-way that returns
// nil is replaced by a round-robin assignment. Other generators that
// fail are skipped; every emitted candidate has dense labels.
func (d *Driver) GenerateCandidates() []Candidate {
	rng := d.rng.ForSubsystem(SubsystemPartitioners)
	n := d.hgraph.NumVertices()
	candidates := make([]Candidate, 0, 3*len(d.cfg.ChipletSet)+1)

	add := func(partition []int, origin string) {
		if partition == nil {
			return
		}
		numParts := RelabelContiguous(partition)
		candidates = append(candidates, Candidate{Partition: partition, NumParts: numParts, Origin: origin})
	}

	if spec, err := SpectralPartition(d.hgraph, 4, rng); err != nil {
		logrus.Warnf("driver: spectral partition failed: %v", err)
	} else {
		add(spec, "spectral")
	}

	crossbars := FindCrossbars(d.hgraph, 0.99)
	logrus.Debugf("driver: %d high-degree crossbar vertices", len(crossbars))
	for _, p := range d.cfg.ChipletSet {
		if p == 1 {
			add(make([]int, n), "trivial")
			continue
		}
		add(CrossBarExpansion(d.hgraph, crossbars, p), "crossbar")
	}
	for _, p := range d.cfg.ChipletSet {
		if p == 1 {
			continue
		}
		add(KWayCuts(d.hgraph, p, d.cfg.UBFactor, rng), "kway-random")
		if cut := MinCutKWay(d.hgraph, p, rng); cut != nil {
			numParts := RelabelContiguous(cut)
			candidates = append(candidates, Candidate{Partition: cut, NumParts: numParts, Origin: "min-cut"})
		} else {
			add(RoundRobin(n, p), "round-robin")
		}
	}
	return candidates
}

// FilterOutliers drops candidates whose cost z-score exceeds the
// z-score threshold or whose cost/min ratio exceeds the ratio
// threshold. When fewer than MinKept would survive, both thresholds
// relax just enough to keep the MinKept cheapest.
func FilterOutliers(candidates []Candidate, zThreshold, ratioThreshold float64, minKept int) []Candidate {
	if len(candidates) <= minKept {
		return candidates
	}

	mean, min := 0.0, math.MaxFloat64
	for _, c := range candidates {
		mean += c.Cost
		if c.Cost < min {
			min = c.Cost
		}
	}
	mean /= float64(len(candidates))
	variance := 0.0
	for _, c := range candidates {
		variance += (c.Cost - mean) * (c.Cost - mean)
	}
	stddev := math.Sqrt(variance / float64(len(candidates)))

	pass := func(c Candidate, z, ratio float64) bool {
		zScore := 0.0
		if stddev > 0 {
			zScore = (c.Cost - mean) / stddev
		}
		relScore := 1.0
		if min > 0 {
			relScore = c.Cost / min
		}
		return zScore <= z && relScore <= ratio
	}

	kept := 0
	for _, c := range candidates {
		if pass(c, zThreshold, ratioThreshold) {
			kept++
		}
	}
	if kept < minKept {
		// Relax both thresholds so the minKept cheapest candidates
		// all pass.
		sorted := append([]Candidate(nil), candidates...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cost < sorted[j].Cost })
		worst := sorted[minKept-1]
		if min > 0 {
			ratioThreshold = math.Max(ratioThreshold, worst.Cost/min+0.1)
		}
		if stddev > 0 {
			zThreshold = math.Max(zThreshold, (worst.Cost-mean)/stddev+0.1)
		}
		logrus.Debugf("driver: relaxed outlier thresholds to z=%.2f ratio=%.2f", zThreshold, ratioThreshold)
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if pass(c, zThreshold, ratioThreshold) {
			out = append(out, c)
		} else {
			logrus.Debugf("driver: filtered %s candidate with %d parts, cost %.4f", c.Origin, c.NumParts, c.Cost)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// Run executes the full single-technology flow and returns the best
// refined solution. The result is best-effort: when no candidate
// floorplans cleanly the cheapest refined one is still returned with
// Valid=false.
func (d *Driver) Run() (DriverResult, error) {
	candidates := d.GenerateCandidates()
	if len(candidates) == 0 {
		return DriverResult{}, fmt.Errorf("driver: no initial partitions produced")
	}

	// Unrefined costs feed the outlier filter.
	scorer := d.factory()
	for i := range candidates {
		c := &candidates[i]
		techs := uniformTechs(d.tech, c.NumParts)
		ar := onesVector(c.NumParts)
		zeros := make([]float64, c.NumParts)
		c.Cost = scorer.Cost(c.Partition, techs, ar, zeros, zeros, false)
		logrus.Debugf("driver: candidate %d (%s) parts=%d cost=%.4f", i, c.Origin, c.NumParts, c.Cost)
	}
	survivors := FilterOutliers(candidates, d.cfg.ZScoreThreshold, d.cfg.RatioThreshold, d.cfg.MinKept)
	logrus.Infof("driver: refining %d of %d candidates", len(survivors), len(candidates))

	threads := d.cfg.MaxThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads > len(survivors) {
		threads = len(survivors)
	}

	results := make([]DriverResult, len(survivors))
	done := make([]bool, len(survivors))
	var wg sync.WaitGroup
	sem := make(chan struct{}, threads)
	for i := range survivors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cand := survivors[i]
			partition := append([]int(nil), cand.Partition...)
			numParts := cand.NumParts

			fp := NewFloorplanner(d.hgraph, d.cfg.Separation, d.anneal, d.seed+int64(i))
			refCfg := DefaultRefinerConfig(numParts, d.hgraph.NumVertices())
			refiner := NewRefiner(d.hgraph, refCfg, d.factory(), fp, WorkerRNG(d.seed, i))
			refiner.SetOracleFactory(d.factory)
			refiner.SetTechs(uniformTechs(d.tech, numParts))

			floor := fp.Run(partition, d.cfg.FloorplanSteps, d.cfg.FloorplanPerturb, false)
			if floor.AspectRatios == nil {
				logrus.Warnf("driver: floorplan failed for candidate %d, skipping", i)
				return
			}
			refiner.SetGeometry(floor.AspectRatios, floor.X, floor.Y)

			upper, lower := driverBalance(d.hgraph, numParts, d.cfg.UBFactor)
			refiner.Refine(partition, upper, lower)
			finalParts := RelabelContiguous(partition)
			refiner.SetNumParts(finalParts)
			refiner.SetTechs(uniformTechs(d.tech, finalParts))
			cost := refiner.CostFromScratch(partition, false)

			results[i] = DriverResult{
				Partition:    partition,
				NumParts:     finalParts,
				Cost:         cost,
				AspectRatios: floor.AspectRatios,
				X:            floor.X,
				Y:            floor.Y,
				Valid:        floor.Valid,
			}
			done[i] = true
		}(i)
	}
	wg.Wait()

	best := -1
	for i := range results {
		if !done[i] {
			continue
		}
		if best == -1 || results[i].Cost < results[best].Cost {
			best = i
		}
	}
	if best == -1 {
		return DriverResult{}, fmt.Errorf("driver: no candidate survived floorplanning and refinement")
	}
	r := results[best]
	if !r.Valid {
		logrus.Warnf("driver: winning solution has an infeasible floorplan (cost %.4f)", r.Cost)
	}
	logrus.Infof("driver: best solution has %d parts, cost %.4f", r.NumParts, r.Cost)
	return r, nil
}

// driverBalance derives the refinement balance envelope from the total
// vertex weights: every partition may hold up to total*ubFactor/P and
// no less than zero.
func driverBalance(h *Hypergraph, numParts int, ubFactor float64) (upper, lower [][]float64) {
	total := h.TotalVertexWeights()
	upper = make([][]float64, numParts)
	lower = make([][]float64, numParts)
	for p := 0; p < numParts; p++ {
		upper[p] = make([]float64, len(total))
		lower[p] = make([]float64, len(total))
		for i, t := range total {
			upper[p][i] = t * ubFactor / float64(numParts)
		}
	}
	return upper, lower
}

func uniformTechs(tech string, numParts int) []string {
	techs := make([]string, numParts)
	for i := range techs {
		techs[i] = tech
	}
	return techs
}

func onesVector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0
	}
	return out
}

// SavePartition writes one partition index per vertex line, the
// `.cpart.<P>` format.
func SavePartition(path string, partition []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing partition: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, p := range partition {
		fmt.Fprintln(w, p)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing partition: %w", err)
	}
	return nil
}

// LoadPartition reads a `.cpart` style file back into a partition
// vector.
func LoadPartition(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	defer f.Close()
	var partition []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var p int
		if _, err := fmt.Sscanf(line, "%d", &p); err != nil {
			return nil, fmt.Errorf("reading partition: bad line %q: %w", line, err)
		}
		partition = append(partition, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	return partition, nil
}
