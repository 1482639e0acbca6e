package part

import "math"

// VertexGain records a candidate move of one vertex between two
// partitions and the cost-model gain of making it. It is the element
// type of the FM gain buckets.
type VertexGain struct {
	Vertex int
	From   int
	To     int
	Gain   float64
}

// noCandidate is the sentinel returned when a bucket holds no legal
// move.
var noCandidate = VertexGain{Vertex: -1, From: -1, To: -1, Gain: -math.MaxFloat64}

// GainBucket is an array-backed max-heap of VertexGain keyed by gain,
// with a vertex→heap-index map so priorities can be changed and
// arbitrary vertices removed in O(log n). The standard library heap is
// not used because it hides element positions.
//
// Ties on gain prefer the vertex with the lexicographically smaller
// weight vector, steering the refiner toward cheap moves first.
type GainBucket struct {
	hgraph   *Hypergraph
	heap     []VertexGain
	where    []int // vertex -> heap index, -1 when absent
	maxDepth int
	active   bool
}

// NewGainBucket creates a bucket able to hold one entry per vertex.
// maxDepth bounds the heap traversal of GetBestCandidate.
func NewGainBucket(totalVertices, maxDepth int, h *Hypergraph) *GainBucket {
	where := make([]int, totalVertices)
	for i := range where {
		where[i] = -1
	}
	return &GainBucket{
		hgraph:   h,
		heap:     make([]VertexGain, 0, totalVertices/4+1),
		where:    where,
		maxDepth: maxDepth,
	}
}

// Len returns the number of queued moves.
func (b *GainBucket) Len() int { return len(b.heap) }

// Empty reports whether the bucket holds no moves.
func (b *GainBucket) Empty() bool { return len(b.heap) == 0 }

// Contains reports whether vertex v has a queued move.
func (b *GainBucket) Contains(v int) bool {
	return v >= 0 && v < len(b.where) && b.where[v] >= 0
}

// SetActive marks the bucket as participating in candidate picking.
func (b *GainBucket) SetActive() { b.active = true }

// SetDeactive withdraws the bucket from candidate picking.
func (b *GainBucket) SetDeactive() { b.active = false }

// Active reports the participation flag.
func (b *GainBucket) Active() bool { return b.active }

// Clear removes all entries.
func (b *GainBucket) Clear() {
	for _, e := range b.heap {
		b.where[e.Vertex] = -1
	}
	b.heap = b.heap[:0]
}

// Insert adds a move. The vertex must not already be present.
func (b *GainBucket) Insert(e VertexGain) {
	b.heap = append(b.heap, e)
	b.where[e.Vertex] = len(b.heap) - 1
	b.siftUp(len(b.heap) - 1)
}

// PeekMax returns the best move without removing it, or the
// no-candidate sentinel when empty.
func (b *GainBucket) PeekMax() VertexGain {
	if len(b.heap) == 0 {
		return noCandidate
	}
	return b.heap[0]
}

// ExtractMax removes and returns the best move, or the no-candidate
// sentinel when empty.
func (b *GainBucket) ExtractMax() VertexGain {
	if len(b.heap) == 0 {
		return noCandidate
	}
	top := b.heap[0]
	b.removeAt(0)
	return top
}

// ChangePriority re-keys the queued move of vertex v.
func (b *GainBucket) ChangePriority(v int, e VertexGain) {
	idx := b.where[v]
	if idx < 0 {
		return
	}
	old := b.heap[idx].Gain
	b.heap[idx] = e
	if e.Gain > old {
		b.siftUp(idx)
	} else if e.Gain < old {
		b.siftDown(idx)
	}
}

// Remove deletes the queued move of vertex v, if any. Implemented by
// re-keying to +inf, sifting to the root and extracting.
func (b *GainBucket) Remove(v int) {
	if v < 0 || v >= len(b.where) {
		return
	}
	idx := b.where[v]
	if idx < 0 {
		return
	}
	b.heap[idx].Gain = math.Inf(1)
	b.siftUp(idx)
	b.removeAt(0)
}

// GetBestCandidate breadth-first scans the heap up to the configured
// depth and returns the first move satisfying the balance envelopes:
// upper[to] must absorb the vertex and lower[from] must survive its
// departure. Returns the no-candidate sentinel when nothing within
// depth is legal.
func (b *GainBucket) GetBestCandidate(balance, upper, lower [][]float64) VertexGain {
	if len(b.heap) == 0 {
		return noCandidate
	}
	limit := len(b.heap)
	if b.maxDepth > 0 && b.maxDepth < limit {
		limit = b.maxDepth
	}
	// The heap's array order is a breadth-first walk of the tree.
	for i := 0; i < limit; i++ {
		e := b.heap[i]
		if b.moveLegal(e, balance, upper, lower) {
			return e
		}
	}
	return noCandidate
}

func (b *GainBucket) moveLegal(e VertexGain, balance, upper, lower [][]float64) bool {
	w := b.hgraph.VertexWeights(e.Vertex)
	for i, x := range w {
		if balance[e.To][i]+x > upper[e.To][i] {
			return false
		}
		if balance[e.From][i]-x < lower[e.From][i] {
			return false
		}
	}
	return true
}

// less orders parent/child pairs: larger gain wins, equal gains prefer
// the smaller weight vector.
func (b *GainBucket) less(i, j int) bool {
	if b.heap[i].Gain != b.heap[j].Gain {
		return b.heap[i].Gain < b.heap[j].Gain
	}
	wi := b.hgraph.VertexWeights(b.heap[i].Vertex)
	wj := b.hgraph.VertexWeights(b.heap[j].Vertex)
	for k := range wi {
		if wi[k] != wj[k] {
			return wi[k] > wj[k]
		}
	}
	return false
}

func (b *GainBucket) swap(i, j int) {
	b.heap[i], b.heap[j] = b.heap[j], b.heap[i]
	b.where[b.heap[i].Vertex] = i
	b.where[b.heap[j].Vertex] = j
}

func (b *GainBucket) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !b.less(parent, i) {
			return
		}
		b.swap(parent, i)
		i = parent
	}
}

func (b *GainBucket) siftDown(i int) {
	n := len(b.heap)
	for {
		largest := i
		if l := 2*i + 1; l < n && b.less(largest, l) {
			largest = l
		}
		if r := 2*i + 2; r < n && b.less(largest, r) {
			largest = r
		}
		if largest == i {
			return
		}
		b.swap(i, largest)
		i = largest
	}
}

func (b *GainBucket) removeAt(i int) {
	last := len(b.heap) - 1
	b.where[b.heap[i].Vertex] = -1
	if i != last {
		b.heap[i] = b.heap[last]
		b.where[b.heap[i].Vertex] = i
	}
	b.heap = b.heap[:last]
	if i < len(b.heap) {
		b.siftDown(i)
		b.siftUp(i)
	}
}
