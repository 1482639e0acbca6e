package part

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnnealConfig() AnnealConfig {
	cfg := DefaultAnnealConfig()
	cfg.MaxSteps = 60
	cfg.PerturbsPerStep = 20
	return cfg
}

func randomChiplets(rng *rand.Rand, n int) []Chiplet {
	chiplets := make([]Chiplet, n)
	for i := range chiplets {
		chiplets[i] = NewChiplet(50+rng.Float64()*200, 0.1)
	}
	return chiplets
}

func rectanglesOverlap(a, b *Chiplet) bool {
	const eps = 1e-9
	return a.X+a.Width() > b.X+eps && b.X+b.Width() > a.X+eps &&
		a.Y+a.Height() > b.Y+eps && b.Y+b.Height() > a.Y+eps
}

func TestPack_ProducesNonOverlappingRectangles(t *testing.T) {
	// GIVEN random sequence pairs over 8 random chiplets
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		chiplets := randomChiplets(rng, 8)
		w := NewSAWorker(0, chiplets, nil, testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(int64(trial))))
		pos := rng.Perm(8)
		neg := rng.Perm(8)
		w.SetSequences(pos, neg)

		// WHEN positions are derived
		w.Pack()

		// THEN no two rectangles overlap and the bounding box holds
		// the total area
		packed := w.Chiplets()
		totalArea := 0.0
		for i := range packed {
			totalArea += packed[i].Width() * packed[i].Height()
			for j := i + 1; j < len(packed); j++ {
				assert.False(t, rectanglesOverlap(&packed[i], &packed[j]),
					"trial %d: chiplets %d and %d overlap", trial, i, j)
			}
		}
		width, height := w.Size()
		assert.GreaterOrEqual(t, width*height+1e-6, totalArea)
	}
}

func TestPack_RoundTripFromPersistedSequences(t *testing.T) {
	// GIVEN a packed floorplan on 8 random chiplets
	rng := rand.New(rand.NewSource(11))
	chiplets := randomChiplets(rng, 8)
	w1 := NewSAWorker(0, chiplets, nil, testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(1)))
	w1.SetSequences(rng.Perm(8), rng.Perm(8))
	w1.Pack()
	width1, height1 := w1.Size()
	pos, neg := w1.Sequences()

	// WHEN a fresh worker repacks from the persisted sequence pair
	w2 := NewSAWorker(1, chiplets, nil, testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(2)))
	w2.SetSequences(pos, neg)
	w2.Pack()
	width2, height2 := w2.Size()

	// THEN the bounding box reproduces exactly
	assert.InDelta(t, width1, width2, 1e-6)
	assert.InDelta(t, height1, height2, 1e-6)
}

func TestChiplet_ResizePreservesAreaAndClampsAspect(t *testing.T) {
	c := NewChiplet(100, 0.5)
	area := c.Area()

	c.ResizeRandomly(3.0)
	assert.InDelta(t, area, c.Area(), 1e-9)
	assert.InDelta(t, 3.0, c.AspectRatio(), 1e-9)

	c.ResizeRandomly(100.0) // clamped to 5.0
	assert.InDelta(t, maxAspectRatio, c.AspectRatio(), 1e-9)

	c.SetWidth(c.Width() * 2)
	assert.GreaterOrEqual(t, c.Area()+1e-9, c.MinArea)
	assert.LessOrEqual(t, c.AspectRatio(), maxAspectRatio+1e-9)
	assert.GreaterOrEqual(t, c.AspectRatio(), minAspectRatio-1e-9)

	// Too-small targets are ignored.
	before := c
	c.SetWidth(0.5)
	assert.Equal(t, before, c)
}

func TestNetViolation_MatchesRoutingProxy(t *testing.T) {
	// Two unit chiplets side by side with vertical overlap.
	a := Chiplet{X: 0, Y: 0, W: 2, H: 2}
	b := Chiplet{X: 5, Y: 0, W: 2, H: 2}
	w := NewSAWorker(0, []Chiplet{a, b}, []BundledNet{{TermA: 0, TermB: 1, Weight: 2, Reach: 1, IOArea: 0.5}},
		testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(3)))

	// Vertical overlap w=2, gap=3: L = 3 + 2*(sqrt(4+1) - 2).
	wantL := 3 + 2*(math.Sqrt(5)-2)
	want := 2 * math.Max(0, wantL-1)
	assert.InDelta(t, want, w.NetPenalty(), 1e-9)

	// Within reach there is no violation.
	w.nets[0].Reach = 100
	assert.Equal(t, 0.0, w.NetPenalty())
}

func TestNetViolation_DisjointUsesCenterDistance(t *testing.T) {
	a := Chiplet{X: 0, Y: 0, W: 2, H: 2}
	b := Chiplet{X: 10, Y: 10, W: 2, H: 2}
	w := NewSAWorker(0, []Chiplet{a, b}, []BundledNet{{TermA: 0, TermB: 1, Weight: 1, Reach: 0, IOArea: 0.5}},
		testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(4)))

	// |dcx|+|dcy| - halfW - halfH + 2*sqrt(2*io).
	want := 10.0 + 10.0 - 2 - 2 + 2*math.Sqrt(1.0)
	assert.InDelta(t, want, w.NetPenalty(), 1e-9)
}

func TestSAWorker_RunReducesCost(t *testing.T) {
	// GIVEN a congested initial floorplan of 6 connected chiplets
	rng := rand.New(rand.NewSource(21))
	chiplets := randomChiplets(rng, 6)
	nets := []BundledNet{
		{TermA: 0, TermB: 1, Weight: 1, Reach: 5, IOArea: 1},
		{TermA: 1, TermB: 2, Weight: 1, Reach: 5, IOArea: 1},
		{TermA: 3, TermB: 4, Weight: 1, Reach: 5, IOArea: 1},
		{TermA: 4, TermB: 5, Weight: 1, Reach: 5, IOArea: 1},
	}
	w := NewSAWorker(0, chiplets, nets, testAnnealConfig(), 60, 20, 1.0, rand.New(rand.NewSource(5)))
	w.Initialize()
	before := w.Cost()

	// WHEN annealing runs
	w.Run()

	// THEN the final cost is no worse than the initial one
	after := w.Cost()
	assert.LessOrEqual(t, after, before+1e-6)
}

func TestSAWorker_RestoreUndoesPerturbation(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	chiplets := randomChiplets(rng, 5)
	w := NewSAWorker(0, chiplets, nil, testAnnealConfig(), 10, 5, 1.0, rand.New(rand.NewSource(6)))
	w.Pack()
	w.calPenalty()

	posBefore, negBefore := w.Sequences()
	widthBefore, heightBefore := w.Size()

	for i := 0; i < 50; i++ {
		w.perturb()
		w.restore()
		pos, neg := w.Sequences()
		require.Equal(t, posBefore, pos, "iteration %d", i)
		require.Equal(t, negBefore, neg, "iteration %d", i)
		width, height := w.Size()
		require.Equal(t, widthBefore, width)
		require.Equal(t, heightBefore, height)
	}
}

func TestBuildChiplets_FirstTwoPartitionPolicy(t *testing.T) {
	// GIVEN a 3-pin hyperedge spanning three partitions
	edges := [][]int{{0, 1, 2}}
	vw := [][]float64{{10}, {20}, {30}}
	h, err := NewHypergraph(3, edges, vw, [][]float64{{4}}, []float64{7}, []float64{2})
	require.NoError(t, err)

	chiplets, nets, index := BuildChiplets(h, []int{0, 1, 2}, 0.5)

	require.Len(t, chiplets, 3)
	require.Len(t, nets, 1)
	assert.Equal(t, index[0], nets[0].TermA)
	assert.Equal(t, index[1], nets[0].TermB)
	assert.Equal(t, 4.0, nets[0].Weight)
	assert.Equal(t, 7.0, nets[0].Reach)
	assert.Equal(t, 2.0, nets[0].IOArea)

	// Chiplet areas equal the partition area sums.
	assert.InDelta(t, 10.0, chiplets[index[0]].Area(), 1e-9)
	assert.InDelta(t, 30.0, chiplets[index[2]].Area(), 1e-9)
	assert.Equal(t, 0.5, chiplets[0].Halo)
}

func TestBuildChiplets_UncutEdgeProducesNoNet(t *testing.T) {
	h := lineGraph(t)
	chiplets, nets, _ := BuildChiplets(h, []int{0, 0, 0, 0, 0}, 0.1)
	assert.Len(t, chiplets, 1)
	assert.Empty(t, nets)
	assert.InDelta(t, 500.0, chiplets[0].Area(), 1e-9)
}
