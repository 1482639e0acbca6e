package part

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDriverConfig() DriverConfig {
	cfg := DefaultDriverConfig()
	cfg.ChipletSet = []int{1, 2, 3}
	cfg.FloorplanSteps = 30
	cfg.FloorplanPerturb = 10
	cfg.MaxThreads = 2
	return cfg
}

func candidatesWithCosts(costs []float64) []Candidate {
	out := make([]Candidate, len(costs))
	for i, c := range costs {
		out[i] = Candidate{Cost: c, NumParts: 2, Origin: "synthetic"}
	}
	return out
}

func TestFilterOutliers_DropsTheFarOutlier(t *testing.T) {
	// GIVEN nine close costs and one 20x outlier
	costs := []float64{1, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8, 20}
	kept := FilterOutliers(candidatesWithCosts(costs), 1.5, 2.0, 3)

	require.Len(t, kept, 9)
	for _, c := range kept {
		assert.Less(t, c.Cost, 20.0)
	}
}

func TestFilterOutliers_RelaxesToKeepMinimum(t *testing.T) {
	// GIVEN only two candidates and a 3-candidate floor
	kept := FilterOutliers(candidatesWithCosts([]float64{10, 20}), 1.5, 2.0, 3)
	assert.Len(t, kept, 2)

	// GIVEN three spread candidates where thresholds alone would keep
	// fewer than three
	kept = FilterOutliers(candidatesWithCosts([]float64{1, 10, 100}), 1.5, 2.0, 3)
	assert.Len(t, kept, 3)
}

func TestFilterOutliers_IdenticalCostsAllKept(t *testing.T) {
	kept := FilterOutliers(candidatesWithCosts([]float64{5, 5, 5, 5}), 1.5, 2.0, 3)
	assert.Len(t, kept, 4)
}

func TestDriver_GenerateCandidatesAreDense(t *testing.T) {
	h := twoClusterGraph(t)
	d := NewDriver(h, testDriverConfig(), testAnnealConfig(), SharedOracle(cutCostOracle(h)), "7nm", 42)

	candidates := d.GenerateCandidates()
	require.NotEmpty(t, candidates)
	for i, c := range candidates {
		require.Len(t, c.Partition, 8, "candidate %d", i)
		assertDense(t, c.Partition, c.NumParts)
	}
}

func TestDriver_RunFindsLowCutSolution(t *testing.T) {
	// GIVEN the two-clique graph and a cut-weight oracle
	h := twoClusterGraph(t)
	d := NewDriver(h, testDriverConfig(), testAnnealConfig(), SharedOracle(cutCostOracle(h)), "7nm", 42)

	// WHEN the full flow runs
	result, err := d.Run()
	require.NoError(t, err)

	// THEN the winner is dense and cheap: nothing beats a single
	// chiplet under a pure cut objective
	assertDense(t, result.Partition, result.NumParts)
	assert.LessOrEqual(t, result.Cost, 1.0)
}

func TestDriver_RunTrivialSingleChiplet(t *testing.T) {
	// GIVEN the 5-vertex chain restricted to one chiplet
	h := lineGraph(t)
	cfg := testDriverConfig()
	cfg.ChipletSet = []int{1}
	cfg.FloorplanSteps = 200
	cfg.FloorplanPerturb = 40
	// A constant-plus-cut oracle keeps cost strictly positive.
	oracle := CostFunc(func(partition []int, techs []string, ar, x, y []float64, approx bool) float64 {
		return 1.0 + cutCostOracle(h).Cost(partition, techs, ar, x, y, approx)
	})
	d := NewDriver(h, cfg, testAnnealConfig(), SharedOracle(oracle), "7nm", 42)

	result, err := d.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.NumParts)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, result.Partition)
	assert.True(t, result.Valid)
	assert.Greater(t, result.Cost, 0.0)
	require.Len(t, result.AspectRatios, 1)
	assert.InDelta(t, 1.0, result.AspectRatios[0], 0.5)
}

func TestDriver_DeterministicForFixedSeed(t *testing.T) {
	h := twoClusterGraph(t)
	run := func() DriverResult {
		d := NewDriver(h, testDriverConfig(), testAnnealConfig(), SharedOracle(cutCostOracle(h)), "7nm", 7)
		result, err := d.Run()
		require.NoError(t, err)
		return result
	}
	a := run()
	b := run()
	assert.Equal(t, a.Partition, b.Partition)
	assert.Equal(t, a.NumParts, b.NumParts)
	assert.Equal(t, a.Cost, b.Cost)
}

func TestSaveLoadPartition_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.cpart.2")
	want := []int{0, 0, 1, 1, 0}

	require.NoError(t, SavePartition(path, want))
	got, err := LoadPartition(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadPartition_MissingFile(t *testing.T) {
	_, err := LoadPartition(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
