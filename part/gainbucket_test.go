package part

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bucketGraph(t *testing.T) *Hypergraph {
	t.Helper()
	edges := [][]int{{0, 1, 2, 3}}
	vw := [][]float64{{10}, {20}, {30}, {5}}
	h, err := NewHypergraph(4, edges, vw, [][]float64{{1}}, []float64{1}, []float64{1})
	require.NoError(t, err)
	return h
}

func TestGainBucket_ExtractsInGainOrder(t *testing.T) {
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)

	b.Insert(VertexGain{Vertex: 0, From: 0, To: 1, Gain: 1.0})
	b.Insert(VertexGain{Vertex: 1, From: 0, To: 1, Gain: 5.0})
	b.Insert(VertexGain{Vertex: 2, From: 0, To: 1, Gain: 3.0})

	assert.Equal(t, 1, b.PeekMax().Vertex)
	assert.Equal(t, 5.0, b.ExtractMax().Gain)
	assert.Equal(t, 3.0, b.ExtractMax().Gain)
	assert.Equal(t, 1.0, b.ExtractMax().Gain)
	assert.True(t, b.Empty())
	assert.Equal(t, -1, b.ExtractMax().Vertex)
}

func TestGainBucket_TieBreakPrefersLighterVertex(t *testing.T) {
	// GIVEN two moves of equal gain where vertex 3 weighs 5 and
	// vertex 2 weighs 30
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)
	b.Insert(VertexGain{Vertex: 2, From: 0, To: 1, Gain: 2.0})
	b.Insert(VertexGain{Vertex: 3, From: 0, To: 1, Gain: 2.0})

	// THEN the lighter vertex surfaces first
	assert.Equal(t, 3, b.ExtractMax().Vertex)
	assert.Equal(t, 2, b.ExtractMax().Vertex)
}

func TestGainBucket_ChangePriorityReordersHeap(t *testing.T) {
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)
	b.Insert(VertexGain{Vertex: 0, From: 0, To: 1, Gain: 1.0})
	b.Insert(VertexGain{Vertex: 1, From: 0, To: 1, Gain: 2.0})

	b.ChangePriority(0, VertexGain{Vertex: 0, From: 0, To: 1, Gain: 9.0})
	assert.Equal(t, 0, b.PeekMax().Vertex)

	b.ChangePriority(0, VertexGain{Vertex: 0, From: 0, To: 1, Gain: 0.5})
	assert.Equal(t, 1, b.PeekMax().Vertex)
}

func TestGainBucket_RemoveMiddleElement(t *testing.T) {
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)
	for v := 0; v < 4; v++ {
		b.Insert(VertexGain{Vertex: v, From: 0, To: 1, Gain: float64(v)})
	}

	require.True(t, b.Contains(2))
	b.Remove(2)
	assert.False(t, b.Contains(2))
	assert.Equal(t, 3, b.Len())

	// Remaining order is intact.
	assert.Equal(t, 3, b.ExtractMax().Vertex)
	assert.Equal(t, 1, b.ExtractMax().Vertex)
	assert.Equal(t, 0, b.ExtractMax().Vertex)

	// Removing an absent vertex is a no-op.
	b.Remove(2)
}

func TestGainBucket_GetBestCandidateRespectsBalance(t *testing.T) {
	// GIVEN the best move would overfill its destination
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)
	b.Insert(VertexGain{Vertex: 2, From: 0, To: 1, Gain: 10.0}) // weight 30
	b.Insert(VertexGain{Vertex: 3, From: 0, To: 1, Gain: 1.0})  // weight 5

	balance := [][]float64{{65}, {0}}
	upper := [][]float64{{65}, {20}}
	lower := [][]float64{{0}, {0}}

	// WHEN the candidate scan runs
	got := b.GetBestCandidate(balance, upper, lower)

	// THEN the lighter, legal move is returned instead
	assert.Equal(t, 3, got.Vertex)

	// AND with no legal move the sentinel comes back
	upper[1][0] = 1
	got = b.GetBestCandidate(balance, upper, lower)
	assert.Equal(t, -1, got.Vertex)
}

func TestGainBucket_ClearResetsContainment(t *testing.T) {
	h := bucketGraph(t)
	b := NewGainBucket(4, 10, h)
	b.Insert(VertexGain{Vertex: 1, From: 0, To: 1, Gain: 1.0})
	b.SetActive()
	b.Clear()
	assert.True(t, b.Empty())
	assert.False(t, b.Contains(1))
	assert.True(t, b.Active())
	b.SetDeactive()
	assert.False(t, b.Active())
}
