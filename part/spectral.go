package part

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// SpectralPartition embeds the vertices with the low eigenvectors of
// the combinatorial Laplacian of the vertex co-occurrence graph (two
// vertices are adjacent when they share a hyperedge) and clusters the
// embedding with k-means.
//
// Returns an error when the eigensolver fails or k-means leaves a
// vertex unassigned; the driver skips spectral initialization in that
// case and proceeds with the remaining generators.
func SpectralPartition(h *Hypergraph, numClusters int, rng *rand.Rand) ([]int, error) {
	n := h.NumVertices()
	if n == 0 {
		return nil, fmt.Errorf("spectral: empty graph")
	}
	if numClusters < 2 {
		numClusters = 2
	}
	if n <= numClusters {
		partition := make([]int, n)
		for i := range partition {
			partition[i] = i % numClusters
		}
		return partition, nil
	}

	// L = D - A on the co-occurrence graph.
	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		neighbors := h.Neighbors(i)
		lap.SetSym(i, i, float64(len(neighbors)))
		for _, j := range neighbors {
			if j > i {
				lap.SetSym(i, j, -1.0)
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(lap, true) {
		return nil, fmt.Errorf("spectral: eigendecomposition did not converge")
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Embed with eigenvectors 1..dim in ascending eigenvalue order,
	// skipping the first (the constant vector of a connected graph).
	maxVecs := numClusters + 3
	if maxVecs > n {
		maxVecs = n
	}
	dim := maxVecs - 1
	if dim > numClusters {
		dim = numClusters
	}
	if dim < 1 {
		return nil, fmt.Errorf("spectral: graph too small for an embedding")
	}
	embedding := mat.NewDense(n, dim, nil)
	for j := 0; j < dim; j++ {
		col := mat.Col(nil, j+1, &vectors)
		norm := 0.0
		for _, x := range col {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		for i, x := range col {
			if norm > 1e-10 {
				x /= norm
			}
			embedding.Set(i, j, x)
		}
	}

	clusters, iters := kMeans(embedding, numClusters, rng, n > parallelKMeansThreshold)
	logrus.Debugf("spectral: k-means converged after %d iterations", iters)
	for _, c := range clusters {
		if c < 0 {
			return nil, fmt.Errorf("spectral: k-means left vertices unassigned")
		}
	}
	return clusters, nil
}

// parallelKMeansThreshold switches the assignment phase of k-means to
// the parallel variant.
const parallelKMeansThreshold = 5000

const kMeansMaxIterations = 100

// kMeans clusters the rows of the embedding. Centroids seed from the
// caller's RNG; empty clusters reseed to a random row. The parallel
// variant only parallelizes the (pure) assignment phase and merges the
// centroid sums in fixed row order, so results are identical to the
// sequential variant.
func kMeans(embedding *mat.Dense, k int, rng *rand.Rand, parallel bool) ([]int, int) {
	n, dims := embedding.Dims()
	clusters := make([]int, n)

	// Distinct random rows as initial centroids.
	chosen := make(map[int]struct{})
	centroids := mat.NewDense(k, dims, nil)
	for len(chosen) < k {
		idx := rng.Intn(n)
		if _, dup := chosen[idx]; dup {
			continue
		}
		centroids.SetRow(len(chosen), mat.Row(nil, idx, embedding))
		chosen[idx] = struct{}{}
	}

	assign := func(i int) bool {
		minDist := math.MaxFloat64
		best := 0
		row := embedding.RawRowView(i)
		for j := 0; j < k; j++ {
			c := centroids.RawRowView(j)
			dist := 0.0
			for d := 0; d < dims; d++ {
				diff := row[d] - c[d]
				dist += diff * diff
			}
			if dist < minDist {
				minDist = dist
				best = j
			}
		}
		if clusters[i] != best {
			clusters[i] = best
			return true
		}
		return false
	}

	iter := 0
	changed := true
	for changed && iter < kMeansMaxIterations {
		changed = false
		iter++

		if parallel {
			flips := make([]bool, n)
			parallelFor(n, func(i int) { flips[i] = assign(i) })
			for _, f := range flips {
				if f {
					changed = true
					break
				}
			}
		} else {
			for i := 0; i < n; i++ {
				if assign(i) {
					changed = true
				}
			}
		}

		// Recompute centroids in fixed row order.
		sums := mat.NewDense(k, dims, nil)
		counts := make([]int, k)
		for i := 0; i < n; i++ {
			c := clusters[i]
			counts[c]++
			for d := 0; d < dims; d++ {
				sums.Set(c, d, sums.At(c, d)+embedding.At(i, d))
			}
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				for d := 0; d < dims; d++ {
					centroids.Set(j, d, sums.At(j, d)/float64(counts[j]))
				}
			} else {
				centroids.SetRow(j, mat.Row(nil, rng.Intn(n), embedding))
				changed = true
			}
		}
	}
	return clusters, iter
}
