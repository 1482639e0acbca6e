package part

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// GeneticSolution is one individual of the co-optimization: a
// partition count, a vertex→partition map and a partition→technology
// map, plus its cached evaluation.
type GeneticSolution struct {
	NumParts  int
	Partition []int
	Techs     []string
	Cost      float64
	Valid     bool
	evaluated bool
}

// Clone deep-copies a solution.
func (s *GeneticSolution) Clone() GeneticSolution {
	return GeneticSolution{
		NumParts:  s.NumParts,
		Partition: append([]int(nil), s.Partition...),
		Techs:     append([]string(nil), s.Techs...),
		Cost:      s.Cost,
		Valid:     s.Valid,
		evaluated: s.evaluated,
	}
}

// GeneticPartitioner co-searches (partition count, partition,
// technology assignment) with a generational genetic algorithm.
// Fitness of an individual is the refined cost produced by the same
// floorplan+FM pipeline the driver uses, minus the outer candidate
// filtering.
type GeneticPartitioner struct {
	hgraph    *Hypergraph
	cfg       GeneticConfig
	driverCfg DriverConfig
	anneal    AnnealConfig
	techNodes []string
	factory   OracleFactory
	seed      int64
	rng       *rand.Rand

	population []GeneticSolution
	best       GeneticSolution

	cacheMu sync.Mutex
	cache   map[string]float64
}

// NewGeneticPartitioner creates the co-optimizer. techNodes is the
// finite technology vocabulary; factory mints oracles per evaluation
// goroutine.
func NewGeneticPartitioner(h *Hypergraph, cfg GeneticConfig, driverCfg DriverConfig, anneal AnnealConfig, techNodes []string, factory OracleFactory, seed int64) *GeneticPartitioner {
	return &GeneticPartitioner{
		hgraph:    h,
		cfg:       cfg,
		driverCfg: driverCfg,
		anneal:    anneal,
		techNodes: techNodes,
		factory:   factory,
		seed:      seed,
		rng:       NewEngineRNG(EngineSeed(seed)).ForSubsystem(SubsystemGenetic),
		cache:     make(map[string]float64),
		best:      GeneticSolution{Cost: math.MaxFloat64},
	}
}

// initializePopulation seeds a diverse population, cycling min-cut
// partitions, spectral starts and balanced random fills across the
// partition-count range, each with a random technology assignment.
func (g *GeneticPartitioner) initializePopulation() {
	n := g.hgraph.NumVertices()
	g.population = make([]GeneticSolution, 0, g.cfg.PopulationSize)

	addSolution := func(partition []int) {
		if partition == nil {
			return
		}
		numParts := RelabelContiguous(partition)
		g.population = append(g.population, GeneticSolution{
			NumParts:  numParts,
			Partition: partition,
			Techs:     g.randomTechs(numParts),
			Cost:      math.MaxFloat64,
		})
	}

	span := g.cfg.MaxPartitions - g.cfg.MinPartitions + 1
	for i := 0; len(g.population) < g.cfg.PopulationSize; i++ {
		p := g.cfg.MinPartitions + i%span
		switch i % 3 {
		case 0:
			if cut := MinCutKWay(g.hgraph, p, g.rng); cut != nil {
				addSolution(cut)
			} else {
				addSolution(RoundRobin(n, p))
			}
		case 1:
			if spec, err := SpectralPartition(g.hgraph, p, g.rng); err == nil {
				addSolution(spec)
			} else {
				addSolution(KWayCuts(g.hgraph, p, g.driverCfg.UBFactor, g.rng))
			}
		default:
			addSolution(KWayCuts(g.hgraph, p, g.driverCfg.UBFactor, g.rng))
		}
	}
}

func (g *GeneticPartitioner) randomTechs(numParts int) []string {
	techs := make([]string, numParts)
	for i := range techs {
		techs[i] = g.techNodes[g.rng.Intn(len(g.techNodes))]
	}
	return techs
}

// cacheKey canonicalizes a solution for the evaluation cache.
func cacheKey(s *GeneticSolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", s.NumParts)
	for _, p := range s.Partition {
		fmt.Fprintf(&b, "%d,", p)
	}
	b.WriteByte('|')
	for _, t := range s.Techs {
		b.WriteString(t)
		b.WriteByte(',')
	}
	return b.String()
}

// evaluate refines one individual in place: floorplan, install
// geometry, FM-refine under the balance envelope, and cache the final
// cost. workerID seeds the evaluation's RNG streams.
func (g *GeneticPartitioner) evaluate(s *GeneticSolution, workerID int) {
	key := cacheKey(s)
	g.cacheMu.Lock()
	if cost, ok := g.cache[key]; ok {
		g.cacheMu.Unlock()
		s.Cost = cost
		s.evaluated = true
		return
	}
	g.cacheMu.Unlock()

	fp := NewFloorplanner(g.hgraph, g.driverCfg.Separation, g.anneal, g.seed+int64(workerID))
	refCfg := DefaultRefinerConfig(s.NumParts, g.hgraph.NumVertices())
	refiner := NewRefiner(g.hgraph, refCfg, g.factory(), fp, WorkerRNG(g.seed, workerID))
	refiner.SetTechs(append([]string(nil), s.Techs...))

	floor := fp.Run(s.Partition, g.driverCfg.FloorplanSteps, g.driverCfg.FloorplanPerturb, false)
	s.Valid = floor.Valid
	if floor.AspectRatios != nil {
		refiner.SetGeometry(floor.AspectRatios, floor.X, floor.Y)
	}

	upper, lower := driverBalance(g.hgraph, s.NumParts, g.driverCfg.UBFactor)
	refiner.Refine(s.Partition, upper, lower)
	// Refinement can only merge partitions away, so the tech vector is
	// repaired RNG-free here: evaluations run concurrently and must
	// not touch the shared GA stream.
	s.NumParts = RelabelContiguous(s.Partition)
	if len(s.Techs) > s.NumParts {
		s.Techs = s.Techs[:s.NumParts]
	}
	for len(s.Techs) < s.NumParts {
		s.Techs = append(s.Techs, g.techNodes[0])
	}
	refiner.SetNumParts(s.NumParts)
	refiner.SetTechs(s.Techs)
	s.Cost = refiner.CostFromScratch(s.Partition, false)
	s.evaluated = true

	g.cacheMu.Lock()
	g.cache[key] = s.Cost
	g.cacheMu.Unlock()
}

// evaluatePopulation refines every unevaluated individual, fanning out
// across the configured thread budget.
func (g *GeneticPartitioner) evaluatePopulation() {
	threads := g.driverCfg.MaxThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup
	for i := range g.population {
		if g.population[i].evaluated {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			g.evaluate(&g.population[i], i)
		}(i)
	}
	wg.Wait()
}

// tournamentSelect draws tournamentSize individuals uniformly and
// returns the index of the best.
func (g *GeneticPartitioner) tournamentSelect() int {
	k := g.cfg.TournamentSize
	if k < 2 {
		k = 2
	}
	best := g.rng.Intn(len(g.population))
	for i := 1; i < k; i++ {
		contestant := g.rng.Intn(len(g.population))
		if g.population[contestant].Cost < g.population[best].Cost {
			best = contestant
		}
	}
	return best
}

// crossover mixes two parents: the child inherits each vertex
// assignment from either parent uniformly, projected into the chosen
// parent's partition count by modulo and contiguous relabeling; the
// technology vector is a single-point cut of the shorter parent
// vector, padded with random techs from the chosen parent.
func (g *GeneticPartitioner) crossover(a, b *GeneticSolution) GeneticSolution {
	targetParts := a.NumParts
	chosen := a
	if g.rng.Float64() < 0.5 {
		targetParts = b.NumParts
		chosen = b
	}

	n := len(a.Partition)
	partition := make([]int, n)
	for v := 0; v < n; v++ {
		if g.rng.Float64() < 0.5 {
			partition[v] = a.Partition[v]
		} else {
			partition[v] = b.Partition[v]
		}
		partition[v] %= targetParts
	}
	numParts := RelabelContiguous(partition)

	short := len(a.Techs)
	if len(b.Techs) < short {
		short = len(b.Techs)
	}
	cut := 0
	if short > 0 {
		cut = g.rng.Intn(short)
	}
	techs := make([]string, 0, numParts)
	for i := 0; i < short && len(techs) < numParts; i++ {
		if i < cut {
			techs = append(techs, a.Techs[i])
		} else {
			techs = append(techs, b.Techs[i])
		}
	}
	for len(techs) < numParts {
		techs = append(techs, chosen.Techs[g.rng.Intn(len(chosen.Techs))])
	}

	child := GeneticSolution{
		NumParts:  numParts,
		Partition: partition,
		Techs:     techs[:numParts],
		Cost:      math.MaxFloat64,
	}
	g.repair(&child)
	return child
}

// mutate applies one of three operators: reassign one vertex, swap one
// partition's technology, or bump the partition count up or down
// within bounds.
func (g *GeneticPartitioner) mutate(s *GeneticSolution) {
	switch g.rng.Intn(3) {
	case 0:
		v := g.rng.Intn(len(s.Partition))
		s.Partition[v] = g.rng.Intn(s.NumParts)
	case 1:
		p := g.rng.Intn(len(s.Techs))
		s.Techs[p] = g.techNodes[g.rng.Intn(len(g.techNodes))]
	default:
		delta := 1
		if g.rng.Float64() < 0.5 {
			delta = -1
		}
		target := s.NumParts + delta
		if target < g.cfg.MinPartitions || target > g.cfg.MaxPartitions {
			target = s.NumParts - delta
		}
		if target < g.cfg.MinPartitions || target > g.cfg.MaxPartitions || target == s.NumParts {
			break
		}
		if target < s.NumParts {
			// Merge the last partition into a random survivor.
			for v, p := range s.Partition {
				if p >= target {
					s.Partition[v] = g.rng.Intn(target)
				}
			}
		} else {
			// Seed the new partition with a random vertex.
			s.Partition[g.rng.Intn(len(s.Partition))] = s.NumParts
		}
	}
	s.evaluated = false
	g.repair(s)
}

// repair restores the solution invariants: dense partition labels,
// NumParts = 1 + max(partition), |Techs| = NumParts (truncated or
// extended with random techs).
func (g *GeneticPartitioner) repair(s *GeneticSolution) {
	s.NumParts = RelabelContiguous(s.Partition)
	if len(s.Techs) > s.NumParts {
		s.Techs = s.Techs[:s.NumParts]
	}
	for len(s.Techs) < s.NumParts {
		s.Techs = append(s.Techs, g.techNodes[g.rng.Intn(len(g.techNodes))])
	}
}

// Run executes the generational loop and returns the best solution
// found. The result always has dense labels and |Techs| = NumParts.
func (g *GeneticPartitioner) Run() GeneticSolution {
	g.initializePopulation()

	stale := 0
	for gen := 0; gen < g.cfg.Generations; gen++ {
		g.evaluatePopulation()

		sort.SliceStable(g.population, func(i, j int) bool {
			return g.population[i].Cost < g.population[j].Cost
		})
		if g.population[0].Cost < g.best.Cost {
			g.best = g.population[0].Clone()
			stale = 0
		} else {
			stale++
		}
		logrus.Infof("genetic: generation %d best=%.4f parts=%d stale=%d",
			gen, g.best.Cost, g.best.NumParts, stale)
		if g.cfg.Patience > 0 && stale >= g.cfg.Patience {
			logrus.Infof("genetic: no improvement in %d generations, stopping", stale)
			break
		}
		if gen == g.cfg.Generations-1 {
			break
		}

		// Parent pool by tournament, then offspring by crossover +
		// mutation; the elite prefix carries over unchanged.
		elitism := g.cfg.Elitism
		if elitism < 2 {
			elitism = 2
		}
		if elitism > len(g.population) {
			elitism = len(g.population)
		}
		next := make([]GeneticSolution, 0, g.cfg.PopulationSize)
		for i := 0; i < elitism; i++ {
			next = append(next, g.population[i].Clone())
		}
		for len(next) < g.cfg.PopulationSize {
			pa := &g.population[g.tournamentSelect()]
			pb := &g.population[g.tournamentSelect()]
			var child GeneticSolution
			if g.rng.Float64() < g.cfg.CrossoverRate {
				child = g.crossover(pa, pb)
			} else {
				child = pa.Clone()
			}
			if g.rng.Float64() < g.cfg.MutationRate {
				g.mutate(&child)
			}
			g.repair(&child)
			next = append(next, child)
		}
		g.population = next
	}

	g.repair(&g.best)
	return g.best
}

// SaveResults persists the winning solution:
// <prefix>.chipletpart.parts.<P> with one partition index per vertex,
// <prefix>.chipletpart.techs.<P> with one technology per partition.
func SaveResults(s *GeneticSolution, prefix string) error {
	partsPath := fmt.Sprintf("%s.chipletpart.parts.%d", prefix, s.NumParts)
	if err := SavePartition(partsPath, s.Partition); err != nil {
		return err
	}
	techsPath := fmt.Sprintf("%s.chipletpart.techs.%d", prefix, s.NumParts)
	f, err := os.Create(techsPath)
	if err != nil {
		return fmt.Errorf("writing techs: %w", err)
	}
	defer f.Close()
	for _, t := range s.Techs {
		fmt.Fprintln(f, t)
	}
	logrus.Infof("genetic: results saved to %s and %s", filepath.Base(partsPath), filepath.Base(techsPath))
	return nil
}
