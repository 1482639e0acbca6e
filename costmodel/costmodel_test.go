package costmodel

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiplet-eda/chipletor/ingest"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func testLibraries() *ingest.Libraries {
	return &ingest.Libraries{
		IOs: []ingest.IO{
			{Type: "UCIe_standard", RxArea: 0.1, TxArea: 0.2, EnergyPerBit: 0.5, Reach: 2.0},
		},
		Layers: []ingest.Layer{
			{Name: "7nm", CostPerMM2: 8.0, DefectDensity: 0.002, CriticalAreaRatio: 0.6, ClusteringFactor: 2.0},
			{Name: "45nm", CostPerMM2: 1.5, DefectDensity: 0.0005, CriticalAreaRatio: 0.5, ClusteringFactor: 2.0},
		},
		Assemblies: []ingest.AssemblyProcess{{Name: "organic", MaterialsCostPerMM2: 0.1}},
		Tests:      []ingest.TestProcess{{Name: "KGD", TimePerTestCycle: 1e-5, CostPerSecond: 0.01}},
	}
}

func testBlocks() []ingest.Block {
	return []ingest.Block{
		{Name: "cpu", Area: 40, Power: 3},
		{Name: "cache", Area: 40, Power: 1},
		{Name: "io", Area: 40, Power: 0.5},
		{Name: "phy", Area: 40, Power: 0.2},
	}
}

func testNets() []ingest.Net {
	return []ingest.Net{
		{Type: "UCIe_standard", Block0: "cpu", Block1: "cache", Bandwidth: 64},
		{Type: "UCIe_standard", Block0: "cache", Block1: "io", Bandwidth: 16},
	}
}

func newTestModel() *Model {
	m := New(testLibraries(), testBlocks(), DefaultCoefficients())
	m.BindNetlist(testNets(), []string{"cpu", "cache", "io", "phy"})
	return m
}

func TestModel_CostIsPositiveAndDeterministic(t *testing.T) {
	m := newTestModel()
	partition := []int{0, 0, 1, 1}
	techs := []string{"7nm", "45nm"}

	a := m.Cost(partition, techs, nil, nil, nil, false)
	b := m.Cost(partition, techs, nil, nil, nil, false)

	assert.Greater(t, a, 0.0)
	assert.Equal(t, a, b)

	approx1 := m.Cost(partition, techs, nil, nil, nil, true)
	approx2 := m.Cost(partition, techs, nil, nil, nil, true)
	assert.Greater(t, approx1, 0.0)
	assert.Equal(t, approx1, approx2)
}

func TestModel_CheaperTechLowersCost(t *testing.T) {
	m := newTestModel()
	partition := []int{0, 0, 1, 1}

	expensive := m.Cost(partition, []string{"7nm", "7nm"}, nil, nil, nil, false)
	cheap := m.Cost(partition, []string{"45nm", "45nm"}, nil, nil, nil, false)

	assert.Less(t, cheap, expensive)
}

func TestModel_CuttingANetCosts(t *testing.T) {
	m := newTestModel()
	techs := []string{"7nm", "7nm"}

	// Equal-area splits differing only in which net is cut: cutting
	// the 64-wide cpu-cache net beats cutting the 16-wide cache-io
	// net on interconnect cost alone.
	lightCut := m.Cost([]int{0, 0, 1, 1}, techs, nil, nil, nil, false)
	heavyCut := m.Cost([]int{0, 1, 1, 0}, techs, nil, nil, nil, false)

	assert.Greater(t, heavyCut, lightCut)
}

func TestModel_SinglePartitionBaseline(t *testing.T) {
	m := newTestModel()
	cost := m.Cost([]int{0, 0, 0, 0}, []string{"7nm"}, nil, nil, nil, false)
	assert.Greater(t, cost, 0.0)

	// Empty partition vector evaluates to zero.
	assert.Equal(t, 0.0, m.Cost(nil, nil, nil, nil, nil, false))
}

func TestModel_UnknownTechUsesFallbackSlope(t *testing.T) {
	m := newTestModel()
	cost := m.Cost([]int{0, 0, 0, 0}, []string{"3nm"}, nil, nil, nil, false)
	assert.Greater(t, cost, 0.0)
}

func TestModel_PlacedGeometryAffectsPackaging(t *testing.T) {
	m := newTestModel()
	partition := []int{0, 0, 1, 1}
	techs := []string{"7nm", "7nm"}

	// A sprawling placement costs more substrate than the area-sum
	// fallback.
	compact := m.Cost(partition, techs, nil, nil, nil, false)
	sprawling := m.Cost(partition, techs,
		[]float64{1, 1}, []float64{0, 100}, []float64{0, 100}, false)

	assert.Greater(t, sprawling, compact)
}

func TestDieYield_DecreasesWithArea(t *testing.T) {
	layer := &ingest.Layer{DefectDensity: 0.01, CriticalAreaRatio: 1.0, ClusteringFactor: 2.0}
	small := dieYield(layer, 10)
	large := dieYield(layer, 500)

	assert.Greater(t, small, large)
	assert.LessOrEqual(t, small, 1.0)
	assert.Greater(t, large, 0.0)

	// Zero defect density means perfect yield.
	assert.Equal(t, 1.0, dieYield(&ingest.Layer{}, 100))
}

func TestFactory_MintsIndependentOracles(t *testing.T) {
	libs := testLibraries()
	nets := testNets()
	design := &ingest.Design{
		Names:  []string{"cpu", "cache", "io", "phy"},
		Blocks: testBlocks(),
	}
	factory := Factory(design, libs, nets, DefaultCoefficients())

	a := factory()
	b := factory()
	require.NotSame(t, a, b)

	partition := []int{0, 1, 0, 1}
	techs := []string{"7nm", "45nm"}
	assert.Equal(t,
		a.Cost(partition, techs, nil, nil, nil, false),
		b.Cost(partition, techs, nil, nil, nil, false))
}
