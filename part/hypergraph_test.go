package part

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineGraph builds the 5-vertex chain used by several tests:
// hyperedges (0,1),(1,2),(2,3),(3,4), all areas 100, bandwidth 1.
func lineGraph(t *testing.T) *Hypergraph {
	t.Helper()
	edges := [][]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}
	vw := [][]float64{{100}, {100}, {100}, {100}, {100}}
	ew := [][]float64{{1}, {1}, {1}, {1}}
	reaches := []float64{2, 2, 2, 2}
	ioAreas := []float64{1, 1, 1, 1}
	h, err := NewHypergraph(5, edges, vw, ew, reaches, ioAreas)
	require.NoError(t, err)
	return h
}

func TestNewHypergraph_BuildsBothCSRViews(t *testing.T) {
	h := lineGraph(t)

	assert.Equal(t, 5, h.NumVertices())
	assert.Equal(t, 4, h.NumEdges())
	assert.Equal(t, []int{0, 1}, h.Vertices(0))
	assert.Equal(t, []int{1, 2}, h.Vertices(1))

	// Vertex 1 sits on edges 0 and 1, vertex 0 only on edge 0.
	assert.ElementsMatch(t, []int{0, 1}, h.Edges(1))
	assert.Equal(t, []int{0}, h.Edges(0))
	assert.Equal(t, 2, h.Degree(1))
}

func TestNewHypergraph_RejectsBadShapes(t *testing.T) {
	// GIVEN an edge referencing an out-of-range vertex
	_, err := NewHypergraph(2, [][]int{{0, 5}}, [][]float64{{1}, {1}}, [][]float64{{1}}, []float64{1}, []float64{1})
	// THEN construction fails
	assert.Error(t, err)

	// GIVEN a weight row count mismatching the edge count
	_, err = NewHypergraph(2, [][]int{{0, 1}}, [][]float64{{1}, {1}}, [][]float64{}, []float64{1}, []float64{1})
	assert.Error(t, err)

	// GIVEN an empty hyperedge
	_, err = NewHypergraph(2, [][]int{{}}, [][]float64{{1}, {1}}, [][]float64{{1}}, []float64{1}, []float64{1})
	assert.Error(t, err)
}

func TestHypergraph_OutOfRangePanics(t *testing.T) {
	h := lineGraph(t)
	assert.Panics(t, func() { h.VertexWeights(99) })
	assert.Panics(t, func() { h.Vertices(99) })
	assert.Panics(t, func() { h.Reach(-1) })
}

func TestHypergraph_Neighbors(t *testing.T) {
	h := lineGraph(t)
	assert.Equal(t, []int{0, 2}, h.Neighbors(1))
	assert.Equal(t, []int{1}, h.Neighbors(0))
	assert.Equal(t, []int{3}, h.Neighbors(4))
}

func TestHypergraph_TotalAndBalanceEnvelopes(t *testing.T) {
	h := lineGraph(t)
	assert.Equal(t, []float64{500}, h.TotalVertexWeights())

	// Uniform base: each of 2 partitions gets 50% +- 10%.
	upper := h.UpperVertexBalance(2, 10, nil)
	lower := h.LowerVertexBalance(2, 10, nil)
	assert.InDelta(t, 300, upper[0][0], 1e-9)
	assert.InDelta(t, 200, lower[0][0], 1e-9)

	// Lower envelope never goes negative.
	lower = h.LowerVertexBalance(2, 80, nil)
	assert.GreaterOrEqual(t, lower[0][0], 0.0)
}

func TestBlockBalanceAndNetDegrees_TrackAssignment(t *testing.T) {
	h := lineGraph(t)
	partition := []int{0, 0, 1, 1, 1}

	balance := BlockBalance(h, partition, 2)
	assert.Equal(t, 200.0, balance[0][0])
	assert.Equal(t, 300.0, balance[1][0])

	degs := NetDegrees(h, partition, 2)
	// Edge (1,2) is the only cut edge.
	assert.Equal(t, []int{2, 0}, degs[0])
	assert.Equal(t, []int{1, 1}, degs[1])
	assert.Equal(t, []int{0, 2}, degs[2])
	assert.Equal(t, 1, CutEdges(h, partition))
}

func TestNumParts_DenseLabeling(t *testing.T) {
	assert.Equal(t, 3, NumParts([]int{0, 2, 1, 0}))
	assert.Equal(t, 0, NumParts(nil))
}
