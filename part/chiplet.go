package part

import "math"

// Aspect ratio clamps for a resizable chiplet.
const (
	minAspectRatio = 0.2
	maxAspectRatio = 5.0
)

// Chiplet is one partition rendered as a soft rectangle during
// floorplanning. x/y locate the lower-left corner of the halo box;
// width/height are the die dimensions without halo. Resizes preserve
// area (floored at MinArea) and clamp the aspect ratio.
type Chiplet struct {
	X       float64
	Y       float64
	W       float64
	H       float64
	MinArea float64
	Halo    float64
}

// NewChiplet creates a square chiplet of the given area with a halo
// ring of the given width.
func NewChiplet(area, halo float64) Chiplet {
	side := math.Sqrt(area)
	return Chiplet{W: side, H: side, MinArea: area, Halo: halo}
}

// Width returns the halo-inclusive width used for packing.
func (c *Chiplet) Width() float64 { return c.W + 2*c.Halo }

// Height returns the halo-inclusive height used for packing.
func (c *Chiplet) Height() float64 { return c.H + 2*c.Halo }

// RealX returns the die (halo-exclusive) lower-left X.
func (c *Chiplet) RealX() float64 { return c.X + c.Halo }

// RealY returns the die (halo-exclusive) lower-left Y.
func (c *Chiplet) RealY() float64 { return c.Y + c.Halo }

// Area returns the die area.
func (c *Chiplet) Area() float64 { return c.W * c.H }

// AspectRatio returns width/height of the die.
func (c *Chiplet) AspectRatio() float64 {
	if c.H <= 0 {
		return 1.0
	}
	return c.W / c.H
}

// SetWidth resizes to the given halo-inclusive width, preserving area
// and clamping the implied aspect ratio. No-ops when the target is
// smaller than the halo ring itself.
func (c *Chiplet) SetWidth(width float64) {
	if width <= 2*c.Halo {
		return
	}
	area := math.Max(c.MinArea, c.W*c.H)
	minW := math.Sqrt(area / maxAspectRatio)
	maxW := math.Sqrt(area / minAspectRatio)
	c.W = clamp(width-2*c.Halo, minW, maxW)
	c.H = area / c.W
}

// SetHeight resizes to the given halo-inclusive height, preserving
// area and clamping the implied aspect ratio.
func (c *Chiplet) SetHeight(height float64) {
	if height <= 2*c.Halo {
		return
	}
	area := math.Max(c.MinArea, c.W*c.H)
	minH := math.Sqrt(area * minAspectRatio)
	maxH := math.Sqrt(area * maxAspectRatio)
	c.H = clamp(height-2*c.Halo, minH, maxH)
	c.W = area / c.H
}

// SetShape grows the chiplet to the given halo-inclusive bounding box.
// Only growth is allowed; shrinking requests are ignored.
func (c *Chiplet) SetShape(width, height float64) {
	if width <= c.Width() || height <= c.Height() {
		return
	}
	c.W = width - 2*c.Halo
	c.H = height - 2*c.Halo
}

// ResizeRandomly reshapes to the given aspect ratio, preserving area
// with the min-area floor.
func (c *Chiplet) ResizeRandomly(aspectRatio float64) {
	ar := clamp(aspectRatio, minAspectRatio, maxAspectRatio)
	area := math.Max(c.MinArea, c.W*c.H)
	c.H = math.Sqrt(area / ar)
	c.W = area / c.H
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// BundledNet aggregates the connectivity between two chiplets induced
// by one cut hyperedge. TermA/TermB index into the chiplet slice.
type BundledNet struct {
	TermA  int
	TermB  int
	Weight float64
	Reach  float64
	IOArea float64
}

// BuildChiplets materializes the chiplet set and bundled nets for a
// partition. Every non-empty partition becomes one chiplet sized to
// the sum of its vertex areas (weight component 0). Every hyperedge
// touching two or more partitions becomes one bundled net between the
// first two distinct partitions it touches; wider hyperedges are
// reduced by the same first-two policy, held constant for the run.
//
// The returned index slice maps partition id → chiplet index (-1 for
// empty partitions).
func BuildChiplets(h *Hypergraph, partition []int, separation float64) ([]Chiplet, []BundledNet, []int) {
	numParts := NumParts(partition)
	if numParts == 0 {
		return nil, nil, nil
	}
	areas := make([]float64, numParts)
	for v, p := range partition {
		areas[p] += h.VertexWeights(v)[0]
	}

	index := make([]int, numParts)
	chiplets := make([]Chiplet, 0, numParts)
	for p := 0; p < numParts; p++ {
		if areas[p] <= 0 {
			index[p] = -1
			continue
		}
		index[p] = len(chiplets)
		chiplets = append(chiplets, NewChiplet(areas[p], separation))
	}

	nets := make([]BundledNet, 0, h.NumEdges())
	for e := 0; e < h.NumEdges(); e++ {
		first, second := -1, -1
		for _, v := range h.Vertices(e) {
			p := partition[v]
			if first == -1 {
				first = p
			} else if p != first {
				second = p
				break
			}
		}
		if second == -1 {
			continue
		}
		if index[first] < 0 || index[second] < 0 {
			continue
		}
		nets = append(nets, BundledNet{
			TermA:  index[first],
			TermB:  index[second],
			Weight: h.EdgeWeights(e)[0],
			Reach:  h.Reach(e),
			IOArea: h.IOArea(e),
		})
	}
	return chiplets, nets, index
}
