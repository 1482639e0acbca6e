// Package costmodel implements the built-in manufacturing cost oracle
// used by the partitioning engine: silicon cost with negative-binomial
// die yield, packaging cost from the assembled bounding box, test cost
// per die and an interconnect term from the cut bandwidth. The model
// is parameterized by the design-kit libraries the ingest package
// reads.
//
// The model is deterministic and supports a cheaper approximate path:
// die costs come from cached per-technology slopes and the
// interconnect term skips IO-cell aggregation. The approximate path is
// used during single-move gain probing and is never assumed to agree
// numerically with the exact one.
package costmodel

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/chiplet-eda/chipletor/ingest"
	"github.com/chiplet-eda/chipletor/part"
)

// Factory returns an oracle factory minting one independent Model per
// worker goroutine, each with the netlist bound for the interconnect
// term.
func Factory(design *ingest.Design, libs *ingest.Libraries, nets []ingest.Net, coeff Coefficients) part.OracleFactory {
	return func() part.CostOracle {
		m := New(libs, design.Blocks, coeff)
		m.BindNetlist(nets, design.Names)
		return m
	}
}

// Coefficients weight the cost components into the engine's scalar
// objective.
type Coefficients struct {
	Cost  float64 // silicon + packaging + test weight
	Power float64 // interconnect energy weight
}

// DefaultCoefficients returns the reference blend.
func DefaultCoefficients() Coefficients {
	return Coefficients{Cost: 1.0, Power: 0.1}
}

// Model evaluates the manufacturing cost of a candidate solution. One
// Model instance is owned by one goroutine; mint instances through
// Factory for parallel sections.
type Model struct {
	libs   *ingest.Libraries
	blocks []ingest.Block
	coeff  Coefficients

	// slope cache for the approximate path, keyed by tech name
	slopes map[string]float64

	// nets with prebound IO pricing, installed by BindNetlist
	netCache []cachedNet
}

// New creates a model over the parsed libraries and the per-vertex
// block records (aligned with hypergraph vertex indices).
func New(libs *ingest.Libraries, blocks []ingest.Block, coeff Coefficients) *Model {
	m := &Model{
		libs:   libs,
		blocks: blocks,
		coeff:  coeff,
		slopes: make(map[string]float64),
	}
	for _, layer := range libs.Layers {
		// Slope: cost per mm2 inflated by the yield of a reference die.
		m.slopes[layer.Name] = layer.CostPerMM2 / dieYield(&layer, referenceDieArea)
	}
	return m
}

// referenceDieArea anchors the approximate-path yield slope.
const referenceDieArea = 100.0

// dieYield is the negative-binomial yield of a die of the given area
// on the given layer.
func dieYield(layer *ingest.Layer, area float64) float64 {
	if layer.DefectDensity <= 0 || area <= 0 {
		return 1.0
	}
	cluster := layer.ClusteringFactor
	if cluster <= 0 {
		cluster = 2.0
	}
	critical := layer.CriticalAreaRatio
	if critical <= 0 {
		critical = 1.0
	}
	y := math.Pow(1.0+layer.DefectDensity*critical*area/cluster, -cluster)
	if y < 1e-6 {
		y = 1e-6
	}
	return y
}

// Cost implements part.CostOracle.
func (m *Model) Cost(partition []int, techs []string, aspectRatios, x, y []float64, approx bool) float64 {
	numParts := 0
	for _, p := range partition {
		if p+1 > numParts {
			numParts = p + 1
		}
	}
	if numParts == 0 {
		return 0
	}

	areas := make([]float64, numParts)
	powers := make([]float64, numParts)
	for v, p := range partition {
		if v < len(m.blocks) {
			areas[p] += m.blocks[v].Area
			powers[p] += m.blocks[v].Power
		} else {
			areas[p] += 1.0
		}
	}

	silicon := 0.0
	for p := 0; p < numParts; p++ {
		tech := ""
		if p < len(techs) {
			tech = techs[p]
		}
		if approx {
			slope, ok := m.slopes[tech]
			if !ok {
				slope = m.fallbackSlope(tech)
			}
			silicon += areas[p] * slope
			continue
		}
		layer := m.libs.LayerForTech(tech)
		if layer == nil {
			silicon += areas[p] * m.fallbackSlope(tech)
			continue
		}
		silicon += areas[p] * layer.CostPerMM2 / dieYield(layer, areas[p])
	}

	packaging := m.packagingCost(areas, aspectRatios, x, y)
	test := m.testCost(areas)
	interconnect, power := m.interconnectCost(partition, approx)

	cost := m.coeff.Cost*(silicon+packaging+test+interconnect) + m.coeff.Power*power
	if math.IsNaN(cost) || cost < 0 {
		logrus.Debugf("costmodel: clamping degenerate cost %.4f", cost)
		return 0
	}
	return cost
}

// fallbackSlope prices an unknown technology at the cheapest known
// layer so refinement still has a usable gradient.
func (m *Model) fallbackSlope(tech string) float64 {
	best := math.MaxFloat64
	for _, s := range m.slopes {
		if s < best {
			best = s
		}
	}
	if best == math.MaxFloat64 {
		best = 1.0
	}
	if tech != "" {
		logrus.Debugf("costmodel: unknown tech %q, using fallback slope", tech)
	}
	return best
}

// packagingCost prices the substrate from the assembled bounding box:
// placed chiplets use their coordinates and aspect ratios, otherwise
// the summed die areas stand in.
func (m *Model) packagingCost(areas, aspectRatios, x, y []float64) float64 {
	assembly := m.assembly()
	materials := 1.0
	if assembly != nil && assembly.MaterialsCostPerMM2 > 0 {
		materials = assembly.MaterialsCostPerMM2
	}

	placed := len(x) >= len(areas) && len(y) >= len(areas) && len(aspectRatios) >= len(areas)
	if placed {
		maxX, maxY := 0.0, 0.0
		for p, area := range areas {
			ar := aspectRatios[p]
			if ar <= 0 {
				ar = 1.0
			}
			h := math.Sqrt(area / ar)
			w := area / math.Max(h, 1e-9)
			if x[p]+w > maxX {
				maxX = x[p] + w
			}
			if y[p]+h > maxY {
				maxY = y[p] + h
			}
		}
		if maxX > 0 && maxY > 0 {
			return materials * maxX * maxY
		}
	}
	total := 0.0
	for _, a := range areas {
		total += a
	}
	return materials * total
}

func (m *Model) assembly() *ingest.AssemblyProcess {
	if len(m.libs.Assemblies) == 0 {
		return nil
	}
	return &m.libs.Assemblies[0]
}

// testCost charges each die a test time proportional to its area.
func (m *Model) testCost(areas []float64) float64 {
	if len(m.libs.Tests) == 0 {
		return 0
	}
	tp := &m.libs.Tests[0]
	perSecond := tp.CostPerSecond
	if perSecond <= 0 {
		perSecond = 0.01
	}
	cycle := tp.TimePerTestCycle
	if cycle <= 0 {
		cycle = 1e-3
	}
	total := 0.0
	for _, a := range areas {
		total += perSecond * cycle * a
	}
	return total
}

// interconnectCost prices the cut: every net whose endpoints land in
// different partitions pays an IO-cell and an energy toll scaled by
// bandwidth. The approximate path charges a flat bandwidth toll.
func (m *Model) interconnectCost(partition []int, approx bool) (cost, power float64) {
	for _, net := range m.netCache {
		if net.v0 >= len(partition) || net.v1 >= len(partition) {
			continue
		}
		if partition[net.v0] == partition[net.v1] {
			continue
		}
		if approx {
			cost += net.bandwidth * approxIOToll
			power += net.bandwidth * approxEnergyToll
			continue
		}
		cost += net.bandwidth * net.ioCellCost
		power += net.bandwidth * net.energyPerBit
	}
	return cost, power
}

const (
	approxIOToll     = 0.05
	approxEnergyToll = 0.01
)

type cachedNet struct {
	v0, v1       int
	bandwidth    float64
	ioCellCost   float64
	energyPerBit float64
}

// BindNetlist installs the netlist the interconnect term walks. Vertex
// indices must align with the hypergraph the engine partitions.
func (m *Model) BindNetlist(nets []ingest.Net, names []string) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	m.netCache = m.netCache[:0]
	for _, net := range nets {
		v0, ok0 := index[net.Block0]
		v1, ok1 := index[net.Block1]
		if !ok0 || !ok1 {
			continue
		}
		bw := net.Bandwidth
		if bw <= 0 {
			bw = 1.0
		}
		cached := cachedNet{v0: v0, v1: v1, bandwidth: bw, ioCellCost: approxIOToll, energyPerBit: approxEnergyToll}
		if io := m.libs.IOByType(net.Type); io != nil {
			if a := io.TxArea + io.RxArea; a > 0 {
				cached.ioCellCost = a
			}
			if io.EnergyPerBit > 0 {
				cached.energyPerBit = io.EnergyPerBit
			}
		}
		m.netCache = append(m.netCache, cached)
	}
}
