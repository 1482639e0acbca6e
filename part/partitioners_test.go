package part

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoClusterGraph builds two dense 4-vertex cliques joined by one
// weak bridge edge.
func twoClusterGraph(t *testing.T) *Hypergraph {
	t.Helper()
	var edges [][]int
	for _, base := range []int{0, 4} {
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				edges = append(edges, []int{base + i, base + j})
			}
		}
	}
	edges = append(edges, []int{3, 4}) // bridge
	vw := make([][]float64, 8)
	for i := range vw {
		vw[i] = []float64{1}
	}
	ew := make([][]float64, len(edges))
	reaches := make([]float64, len(edges))
	ioAreas := make([]float64, len(edges))
	for i := range ew {
		ew[i] = []float64{1}
		reaches[i] = 1
		ioAreas[i] = 1
	}
	h, err := NewHypergraph(8, edges, vw, ew, reaches, ioAreas)
	require.NoError(t, err)
	return h
}

// disconnectedPairs builds 4 vertices with hyperedges {0,1} and
// {2,3}, uniform weights.
func disconnectedPairs(t *testing.T) *Hypergraph {
	t.Helper()
	edges := [][]int{{0, 1}, {2, 3}}
	vw := [][]float64{{1}, {1}, {1}, {1}}
	ew := [][]float64{{1}, {1}}
	h, err := NewHypergraph(4, edges, vw, ew, []float64{1, 1}, []float64{1, 1})
	require.NoError(t, err)
	return h
}

func assertDense(t *testing.T, partition []int, numParts int) {
	t.Helper()
	seen := make(map[int]bool)
	for _, p := range partition {
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, numParts)
		seen[p] = true
	}
	assert.Len(t, seen, numParts, "labels are not dense")
}

func TestRelabelContiguous_CompactsGaps(t *testing.T) {
	partition := []int{3, 3, 7, 0, 7}
	numParts := RelabelContiguous(partition)
	assert.Equal(t, 3, numParts)
	assert.Equal(t, []int{0, 0, 1, 2, 1}, partition)
}

func TestRoundRobin_ModuloAssignment(t *testing.T) {
	partition := RoundRobin(5, 2)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, partition)
}

func TestFindCrossbars_PicksHighDegreeVertices(t *testing.T) {
	// GIVEN a star: vertex 0 touches everyone, leaves touch only 0
	edges := [][]int{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5}}
	vw := make([][]float64, 6)
	for i := range vw {
		vw[i] = []float64{1}
	}
	ew := make([][]float64, 5)
	reaches := make([]float64, 5)
	ioAreas := make([]float64, 5)
	for i := range ew {
		ew[i] = []float64{1}
		reaches[i] = 1
		ioAreas[i] = 1
	}
	h, err := NewHypergraph(6, edges, vw, ew, reaches, ioAreas)
	require.NoError(t, err)

	crossbars := FindCrossbars(h, 0.9)
	assert.Contains(t, crossbars, 0)
}

func TestCrossBarExpansion_SeparatesClusters(t *testing.T) {
	h := twoClusterGraph(t)
	crossbars := FindCrossbars(h, 0.0) // every vertex qualifies

	partition := CrossBarExpansion(h, crossbars, 2)

	require.NotNil(t, partition)
	numParts := RelabelContiguous(partition)
	assertDense(t, partition, numParts)
	require.Equal(t, 2, numParts)

	// Each clique should land in one partition.
	assert.Equal(t, partition[0], partition[1])
	assert.Equal(t, partition[0], partition[2])
	assert.Equal(t, partition[4], partition[5])
	assert.Equal(t, partition[4], partition[6])
}

func TestCrossBarExpansion_TooFewSeedsFails(t *testing.T) {
	h := disconnectedPairs(t)
	assert.Nil(t, CrossBarExpansion(h, []int{0}, 2))
}

func TestKWayCuts_ProducesBalancedDensePartition(t *testing.T) {
	h := twoClusterGraph(t)
	rng := rand.New(rand.NewSource(42))

	for _, numParts := range []int{2, 3, 4} {
		partition := KWayCuts(h, numParts, 1.1, rng)
		require.Len(t, partition, 8)
		numFound := RelabelContiguous(partition)
		assertDense(t, partition, numFound)

		// Sizes stay within the relaxed upper bound.
		sizes := make([]int, numFound)
		for _, p := range partition {
			sizes[p]++
		}
		target := int(math.Ceil(float64(8) / float64(numParts) * 1.1 * 1.25))
		for p, s := range sizes {
			assert.LessOrEqual(t, s, target+1, "partition %d oversized", p)
		}
	}
}

func TestMinCutKWay_WithRefinement_SplitsDisconnectedPairs(t *testing.T) {
	// GIVEN two disconnected pairs
	h := disconnectedPairs(t)
	rng := rand.New(rand.NewSource(1))

	partition := MinCutKWay(h, 2, rng)
	require.NotNil(t, partition)
	numParts := RelabelContiguous(partition)
	require.Equal(t, 2, numParts)
	assertDense(t, partition, numParts)

	// WHEN the cut-driven refiner polishes the candidate
	r := newTestRefiner(h, 2)
	r.SetTechs([]string{"7nm", "7nm"})
	upper := [][]float64{{3}, {3}}
	lower := [][]float64{{1}, {1}}
	r.Refine(partition, upper, lower)

	// THEN the pairs are whole and no hyperedge is cut
	assert.Equal(t, partition[0], partition[1])
	assert.Equal(t, partition[2], partition[3])
	assert.NotEqual(t, partition[0], partition[2])
	assert.Equal(t, 0, CutEdges(h, partition))
}

func TestMinCutKWay_SinglePartition(t *testing.T) {
	h := disconnectedPairs(t)
	partition := MinCutKWay(h, 1, rand.New(rand.NewSource(1)))
	assert.Equal(t, []int{0, 0, 0, 0}, partition)
}

func TestPartitioners_DeterministicForFixedSeed(t *testing.T) {
	h := twoClusterGraph(t)
	a := KWayCuts(h, 3, 1.1, rand.New(rand.NewSource(9)))
	b := KWayCuts(h, 3, 1.1, rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)

	c := MinCutKWay(h, 2, rand.New(rand.NewSource(9)))
	d := MinCutKWay(h, 2, rand.New(rand.NewSource(9)))
	assert.Equal(t, c, d)
}
