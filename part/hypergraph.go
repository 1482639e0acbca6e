package part

import (
	"fmt"
	"sort"
)

// Hypergraph is the immutable block-level connectivity model. Vertices
// are IP blocks carrying a weight vector (area first), hyperedges are
// inter-block nets carrying a weight vector (bandwidth first) plus a
// reach and an IO area scalar.
//
// Connectivity is stored twice in CSR form: edge→vertices and
// vertex→edges. Both views are built once at construction and never
// mutated; all engine components share the same *Hypergraph by
// reference.
//
// Index arguments outside [0, NumVertices) / [0, NumEdges) are
// programmer bugs and panic.
type Hypergraph struct {
	numVertices int
	numEdges    int
	vertexDims  int
	edgeDims    int

	// edge -> vertices CSR
	edgePtr     []int
	edgeVertices []int

	// vertex -> edges CSR
	vertexPtr   []int
	vertexEdges []int

	vertexWeights [][]float64
	edgeWeights   [][]float64
	reaches       []float64
	ioAreas       []float64
}

// NewHypergraph builds the CSR views from an edge list. Each hyperedge
// must contain at least one vertex, every vertex index must be in
// range, and the weight/reach/ioArea slices must match the edge count.
func NewHypergraph(numVertices int, edges [][]int, vertexWeights, edgeWeights [][]float64, reaches, ioAreas []float64) (*Hypergraph, error) {
	if len(vertexWeights) != numVertices {
		return nil, fmt.Errorf("hypergraph: %d vertices but %d vertex weight rows", numVertices, len(vertexWeights))
	}
	if len(edgeWeights) != len(edges) {
		return nil, fmt.Errorf("hypergraph: %d edges but %d edge weight rows", len(edges), len(edgeWeights))
	}
	if len(reaches) != len(edges) || len(ioAreas) != len(edges) {
		return nil, fmt.Errorf("hypergraph: reach/io_area length mismatch (%d edges, %d reaches, %d io areas)",
			len(edges), len(reaches), len(ioAreas))
	}
	vertexDims := 1
	if numVertices > 0 {
		vertexDims = len(vertexWeights[0])
	}
	edgeDims := 1
	if len(edges) > 0 {
		edgeDims = len(edgeWeights[0])
	}

	h := &Hypergraph{
		numVertices:   numVertices,
		numEdges:      len(edges),
		vertexDims:    vertexDims,
		edgeDims:      edgeDims,
		edgePtr:       make([]int, len(edges)+1),
		vertexPtr:     make([]int, numVertices+1),
		vertexWeights: vertexWeights,
		edgeWeights:   edgeWeights,
		reaches:       reaches,
		ioAreas:       ioAreas,
	}

	degree := make([]int, numVertices)
	total := 0
	for e, verts := range edges {
		if len(verts) == 0 {
			return nil, fmt.Errorf("hypergraph: hyperedge %d has no vertices", e)
		}
		for _, v := range verts {
			if v < 0 || v >= numVertices {
				return nil, fmt.Errorf("hypergraph: hyperedge %d references vertex %d (have %d)", e, v, numVertices)
			}
			degree[v]++
		}
		total += len(verts)
	}

	h.edgeVertices = make([]int, 0, total)
	for e, verts := range edges {
		h.edgePtr[e] = len(h.edgeVertices)
		h.edgeVertices = append(h.edgeVertices, verts...)
	}
	h.edgePtr[len(edges)] = len(h.edgeVertices)

	for v := 0; v < numVertices; v++ {
		h.vertexPtr[v+1] = h.vertexPtr[v] + degree[v]
	}
	h.vertexEdges = make([]int, total)
	fill := make([]int, numVertices)
	copy(fill, h.vertexPtr[:numVertices])
	for e := range edges {
		for _, v := range h.Vertices(e) {
			h.vertexEdges[fill[v]] = e
			fill[v]++
		}
	}
	return h, nil
}

// NumVertices returns the vertex count.
func (h *Hypergraph) NumVertices() int { return h.numVertices }

// NumEdges returns the hyperedge count.
func (h *Hypergraph) NumEdges() int { return h.numEdges }

// VertexDims returns the dimensionality of vertex weight vectors.
func (h *Hypergraph) VertexDims() int { return h.vertexDims }

// EdgeDims returns the dimensionality of hyperedge weight vectors.
func (h *Hypergraph) EdgeDims() int { return h.edgeDims }

func (h *Hypergraph) checkVertex(v int) {
	if v < 0 || v >= h.numVertices {
		panic(fmt.Sprintf("hypergraph: vertex %d out of range [0,%d)", v, h.numVertices))
	}
}

func (h *Hypergraph) checkEdge(e int) {
	if e < 0 || e >= h.numEdges {
		panic(fmt.Sprintf("hypergraph: hyperedge %d out of range [0,%d)", e, h.numEdges))
	}
}

// VertexWeights returns the weight vector of vertex v. The returned
// slice is shared; callers must not mutate it.
func (h *Hypergraph) VertexWeights(v int) []float64 {
	h.checkVertex(v)
	return h.vertexWeights[v]
}

// EdgeWeights returns the weight vector of hyperedge e.
func (h *Hypergraph) EdgeWeights(e int) []float64 {
	h.checkEdge(e)
	return h.edgeWeights[e]
}

// Reach returns the admissible interconnect length of hyperedge e.
func (h *Hypergraph) Reach(e int) float64 {
	h.checkEdge(e)
	return h.reaches[e]
}

// IOArea returns the IO cell area of hyperedge e.
func (h *Hypergraph) IOArea(e int) float64 {
	h.checkEdge(e)
	return h.ioAreas[e]
}

// Vertices returns the vertices of hyperedge e as a shared sub-slice.
func (h *Hypergraph) Vertices(e int) []int {
	h.checkEdge(e)
	return h.edgeVertices[h.edgePtr[e]:h.edgePtr[e+1]]
}

// Edges returns the hyperedges incident on vertex v as a shared
// sub-slice.
func (h *Hypergraph) Edges(v int) []int {
	h.checkVertex(v)
	return h.vertexEdges[h.vertexPtr[v]:h.vertexPtr[v+1]]
}

// Degree returns the number of hyperedges incident on v.
func (h *Hypergraph) Degree(v int) int {
	h.checkVertex(v)
	return h.vertexPtr[v+1] - h.vertexPtr[v]
}

// Neighbors returns the sorted set of vertices sharing at least one
// hyperedge with v, excluding v itself.
func (h *Hypergraph) Neighbors(v int) []int {
	h.checkVertex(v)
	seen := make(map[int]struct{})
	for _, e := range h.Edges(v) {
		for _, u := range h.Vertices(e) {
			if u != v {
				seen[u] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

// TotalVertexWeights sums vertex weight vectors componentwise.
func (h *Hypergraph) TotalVertexWeights() []float64 {
	total := make([]float64, h.vertexDims)
	for _, w := range h.vertexWeights {
		for i, x := range w {
			total[i] += x
		}
	}
	return total
}

// UpperVertexBalance returns the per-partition upper balance envelope:
// row p is (base[p] + ubFactor/100) * total, componentwise. A nil base
// means a uniform 1/numParts split.
func (h *Hypergraph) UpperVertexBalance(numParts int, ubFactor float64, base []float64) [][]float64 {
	return h.balanceEnvelope(numParts, ubFactor, base)
}

// LowerVertexBalance is the mirror of UpperVertexBalance with the
// factor subtracted. Rows are floored at zero.
func (h *Hypergraph) LowerVertexBalance(numParts int, ubFactor float64, base []float64) [][]float64 {
	return h.balanceEnvelope(numParts, -ubFactor, base)
}

func (h *Hypergraph) balanceEnvelope(numParts int, signedFactor float64, base []float64) [][]float64 {
	total := h.TotalVertexWeights()
	out := make([][]float64, numParts)
	for p := 0; p < numParts; p++ {
		share := 1.0 / float64(numParts)
		if base != nil {
			share = base[p]
		}
		f := share + signedFactor*0.01
		row := make([]float64, h.vertexDims)
		for i, t := range total {
			row[i] = f * t
			if row[i] < 0 {
				row[i] = 0
			}
		}
		out[p] = row
	}
	return out
}

// NumParts returns 1 + max(partition), the partition count implied by
// a dense assignment vector. An empty vector yields zero.
func NumParts(partition []int) int {
	max := -1
	for _, p := range partition {
		if p > max {
			max = p
		}
	}
	return max + 1
}

// BlockBalance accumulates per-partition weight vectors for the given
// assignment.
func BlockBalance(h *Hypergraph, partition []int, numParts int) [][]float64 {
	balance := make([][]float64, numParts)
	for p := range balance {
		balance[p] = make([]float64, h.vertexDims)
	}
	for v, p := range partition {
		for i, w := range h.vertexWeights[v] {
			balance[p][i] += w
		}
	}
	return balance
}

// NetDegrees counts, for every hyperedge, how many of its pins land in
// each partition.
func NetDegrees(h *Hypergraph, partition []int, numParts int) [][]int {
	degs := make([][]int, h.numEdges)
	for e := range degs {
		degs[e] = make([]int, numParts)
		for _, v := range h.Vertices(e) {
			degs[e][partition[v]]++
		}
	}
	return degs
}

// CutEdges counts hyperedges spanning two or more partitions.
func CutEdges(h *Hypergraph, partition []int) int {
	cut := 0
	for e := 0; e < h.numEdges; e++ {
		verts := h.Vertices(e)
		first := partition[verts[0]]
		for _, v := range verts[1:] {
			if partition[v] != first {
				cut++
				break
			}
		}
	}
	return cut
}
