package part

import (
	"math"
	"math/rand"
	"sort"
)

// saAction identifies the perturbation applied last, so a rejected
// move restores exactly what it touched.
type saAction int

const (
	saActionNone saAction = iota
	saActionPosSwap
	saActionNegSwap
	saActionDoubleSwap
	saActionResize
	saActionExpand
)

// SAWorker solves one floorplan by simulated annealing on a
// sequence-pair representation. A worker owns its chiplets and nets
// (copied on construction); mutable state (positions, sequences,
// temperature) is local to the worker, so a pool of workers can run
// concurrently without coordination.
type SAWorker struct {
	id  int
	rng *rand.Rand

	chiplets []Chiplet
	nets     []BundledNet

	posSeq []int
	negSeq []int

	width  float64
	height float64

	areaPenalty    float64
	packagePenalty float64
	netPenalty     float64

	normArea    float64
	normPackage float64
	normNet     float64

	maxSteps        int
	perturbsPerStep int
	coolingAccel    float64
	initTemp        float64
	minTemp         float64

	areaWeight    float64
	packageWeight float64
	netWeight     float64

	posSwapProb    float64
	negSwapProb    float64
	doubleSwapProb float64
	resizeProb     float64
	expandProb     float64

	netTolerance float64

	// backup state for restore-on-reject
	action          saAction
	resizedChiplet  int
	prePosSeq       []int
	preNegSeq       []int
	preChiplets     []Chiplet
	preWidth        float64
	preHeight       float64
	preAreaPenalty  float64
	prePackagePen   float64
	preNetPenalty   float64
}

// NewSAWorker builds a worker over copies of the given chiplets and
// nets. steps and perturbs are this worker's own budget (the pool
// splits the run budget before construction). The RNG must be derived
// as seed + workerID by the caller.
func NewSAWorker(id int, chiplets []Chiplet, nets []BundledNet, cfg AnnealConfig, steps, perturbs int, coolingAccel float64, rng *rand.Rand) *SAWorker {
	w := &SAWorker{
		id:              id,
		rng:             rng,
		chiplets:        append([]Chiplet(nil), chiplets...),
		nets:            append([]BundledNet(nil), nets...),
		maxSteps:        steps,
		perturbsPerStep: perturbs,
		coolingAccel:    coolingAccel,
		initTemp:        cfg.InitTemperature,
		minTemp:         cfg.MinTemperature,
		areaWeight:      cfg.AreaWeight,
		packageWeight:   cfg.PackageWeight,
		netWeight:       cfg.NetWeight,
		posSwapProb:     cfg.PosSwapProb,
		negSwapProb:     cfg.NegSwapProb,
		doubleSwapProb:  cfg.DoubleSwapProb,
		resizeProb:      cfg.ResizeProb,
		expandProb:      cfg.ExpandProb,
		netTolerance:    cfg.NetTolerance,
	}
	w.posSeq = make([]int, len(chiplets))
	w.negSeq = make([]int, len(chiplets))
	for i := range w.posSeq {
		w.posSeq[i] = i
		w.negSeq[i] = i
	}
	return w
}

// SetSequences installs a warm-start sequence pair. Ignored when the
// length does not match the chiplet count.
func (w *SAWorker) SetSequences(pos, neg []int) {
	if len(pos) != len(w.chiplets) || len(neg) != len(w.chiplets) {
		return
	}
	copy(w.posSeq, pos)
	copy(w.negSeq, neg)
}

// Sequences returns copies of the current sequence pair.
func (w *SAWorker) Sequences() (pos, neg []int) {
	return append([]int(nil), w.posSeq...), append([]int(nil), w.negSeq...)
}

// Chiplets returns the worker's chiplet set (live slice).
func (w *SAWorker) Chiplets() []Chiplet { return w.chiplets }

// Size returns the current floorplan bounding box.
func (w *SAWorker) Size() (width, height float64) { return w.width, w.height }

// Pack derives all rectangle positions from the current sequence pair
// and updates the floorplan bounding box. Deterministic given the
// sequences and chiplet shapes.
func (w *SAWorker) Pack() {
	n := len(w.chiplets)
	if n == 0 {
		w.width, w.height = 0, 0
		return
	}
	for i := range w.chiplets {
		w.chiplets[i].X = 0
		w.chiplets[i].Y = 0
	}

	// posInNeg[c] is the position of chiplet c inside negSeq.
	posInNeg := make([]int, n)
	for i, c := range w.negSeq {
		posInNeg[c] = i
	}

	length := make([]float64, n)
	for _, b := range w.posSeq {
		p := posInNeg[b]
		w.chiplets[b].X = length[p]
		right := w.chiplets[b].X + w.chiplets[b].Width()
		for j := p; j < n; j++ {
			if right > length[j] {
				length[j] = right
			} else {
				break
			}
		}
	}
	w.width = length[n-1]

	for i := range length {
		length[i] = 0
	}
	// Y pass walks posSeq in reverse.
	for i := n - 1; i >= 0; i-- {
		b := w.posSeq[i]
		p := posInNeg[b]
		w.chiplets[b].Y = length[p]
		top := w.chiplets[b].Y + w.chiplets[b].Height()
		for j := p; j < n; j++ {
			if top > length[j] {
				length[j] = top
			} else {
				break
			}
		}
	}
	w.height = length[n-1]
}

func (w *SAWorker) swapTwo(seq []int) (int, int) {
	n := len(seq)
	i := w.rng.Intn(n)
	j := w.rng.Intn(n)
	for i == j {
		j = w.rng.Intn(n)
	}
	seq[i], seq[j] = seq[j], seq[i]
	return i, j
}

func (w *SAWorker) singleSeqSwap(pos bool) {
	if len(w.chiplets) <= 1 {
		return
	}
	if pos {
		w.swapTwo(w.posSeq)
	} else {
		w.swapTwo(w.negSeq)
	}
}

func (w *SAWorker) doubleSeqSwap() {
	if len(w.chiplets) <= 1 {
		return
	}
	n := len(w.posSeq)
	i := w.rng.Intn(n)
	j := w.rng.Intn(n)
	for i == j {
		j = w.rng.Intn(n)
	}
	w.posSeq[i], w.posSeq[j] = w.posSeq[j], w.posSeq[i]
	w.negSeq[i], w.negSeq[j] = w.negSeq[j], w.negSeq[i]
}

// resizeOneChiplet reshapes one randomly chosen chiplet: with
// probability 0.2 to a random aspect ratio, otherwise by snapping its
// width or height to the nearest neighbor edge in one of the four
// directions.
func (w *SAWorker) resizeOneChiplet() {
	idx := w.rng.Intn(len(w.chiplets))
	w.resizedChiplet = idx
	src := &w.chiplets[idx]

	lx := src.X
	ly := src.Y
	ux := lx + src.Width()
	uy := ly + src.Height()

	if w.rng.Float64() < 0.2 {
		src.ResizeRandomly(clamp(w.rng.Float64()*maxAspectRatio, minAspectRatio, maxAspectRatio))
		return
	}

	switch option := w.rng.Float64(); {
	case option <= 0.25:
		// Snap width out to the next right edge beyond ours.
		e := w.width
		for i := range w.chiplets {
			if x2 := w.chiplets[i].X + w.chiplets[i].Width(); x2 > ux && x2 < e {
				e = x2
			}
		}
		src.SetWidth(e - lx)
	case option <= 0.5:
		// Snap width in to the previous right edge inside ours.
		d := lx
		for i := range w.chiplets {
			if x2 := w.chiplets[i].X + w.chiplets[i].Width(); x2 < ux && x2 > d {
				d = x2
			}
		}
		if d <= lx {
			return
		}
		src.SetWidth(d - lx)
	case option <= 0.75:
		// Snap height up to the next top edge above ours.
		a := w.height
		for i := range w.chiplets {
			if y2 := w.chiplets[i].Y + w.chiplets[i].Height(); y2 > uy && y2 < a {
				a = y2
			}
		}
		src.SetHeight(a - ly)
	default:
		// Snap height down to the previous top edge below ours.
		c := ly
		for i := range w.chiplets {
			if y2 := w.chiplets[i].Y + w.chiplets[i].Height(); y2 < uy && y2 > c {
				c = y2
			}
		}
		if c <= ly {
			return
		}
		src.SetHeight(c - ly)
	}
}

// segmentLoc locates the grid cells containing a segment's endpoints.
func segmentLoc(segStart, segEnd float64, grid []float64) (startID, endID int) {
	startID, endID = -1, -1
	for i := 0; i+1 < len(grid); i++ {
		if grid[i] <= segStart && grid[i+1] > segStart {
			startID = i
		}
		if grid[i] <= segEnd && grid[i+1] > segEnd {
			endID = i
		}
	}
	if endID == -1 {
		endID = len(grid) - 1
	}
	return startID, endID
}

// expandChiplet grows the chiplet with minimal net-violation load into
// adjacent free space of the occupancy grid formed by the unique X and
// Y breakpoints, clamped per direction by the violation slack of its
// connected nets.
func (w *SAWorker) expandChiplet() {
	n := len(w.chiplets)
	if n == 0 {
		return
	}

	xSet := make(map[float64]struct{})
	ySet := make(map[float64]struct{})
	for i := range w.chiplets {
		c := &w.chiplets[i]
		xSet[c.X] = struct{}{}
		xSet[c.X+c.Width()] = struct{}{}
		ySet[c.Y] = struct{}{}
		ySet[c.Y+c.Height()] = struct{}{}
	}
	xGrid := sortedKeys(xSet)
	yGrid := sortedKeys(ySet)
	numX := len(xGrid) - 1
	numY := len(yGrid) - 1
	if numX <= 0 || numY <= 0 {
		return
	}
	grid := make([][]int, numY)
	for j := range grid {
		grid[j] = make([]int, numX)
		for i := range grid[j] {
			grid[j][i] = -1
		}
	}

	// Pick the chiplet carrying the least net violation; its nets'
	// overage bounds how far each side may move.
	violation := make([]float64, n)
	netOverage := make([]float64, len(w.nets))
	for i := range w.nets {
		net := &w.nets[i]
		pen := w.netViolation(net)
		if net.Weight > 0 {
			netOverage[i] = pen / net.Weight
		}
		violation[net.TermA] += pen
		violation[net.TermB] += pen
	}
	src := 0
	for i := 1; i < n; i++ {
		if violation[i] < violation[src] {
			src = i
		}
	}

	srcC := &w.chiplets[src]
	srcLX, srcLY := srcC.X, srcC.Y
	srcUX, srcUY := srcLX+srcC.Width(), srcLY+srcC.Height()

	var leftMax, rightMax, topMax, downMax float64
	for i := range w.nets {
		net := &w.nets[i]
		if net.TermA != src && net.TermB != src {
			continue
		}
		other := net.TermA
		if other == src {
			other = net.TermB
		}
		o := &w.chiplets[other]
		oLX, oLY := o.X, o.Y
		oUX, oUY := oLX+o.Width(), oLY+o.Height()
		if srcLX > oUX {
			leftMax = math.Max(leftMax, netOverage[i])
		}
		if srcUX < oLX {
			rightMax = math.Max(rightMax, netOverage[i])
		}
		if srcLY > oUY {
			downMax = math.Max(downMax, netOverage[i])
		}
		if srcUY < oLY {
			topMax = math.Max(topMax, netOverage[i])
		}
	}

	// Mark occupancy of every other chiplet, then sweep the source
	// outward while the swept band stays free.
	for id := range w.chiplets {
		if id == src {
			continue
		}
		c := &w.chiplets[id]
		xs, xe := segmentLoc(c.X, c.X+c.Width(), xGrid)
		ys, ye := segmentLoc(c.Y, c.Y+c.Height(), yGrid)
		if xs < 0 || ys < 0 {
			continue
		}
		for j := ys; j < ye; j++ {
			for i := xs; i < xe; i++ {
				grid[j][i] = id
			}
		}
	}

	xStart, xEnd := segmentLoc(srcLX, srcUX, xGrid)
	yStart, yEnd := segmentLoc(srcLY, srcUY, yGrid)
	if xStart < 0 || yStart < 0 {
		return
	}

	for i := xStart - 1; i >= 0; i-- {
		if !bandFree(grid, yStart, yEnd, i, i+1) {
			break
		}
		xStart = i
	}
	for j := yEnd; j < numY; j++ {
		if !bandFree(grid, j, j+1, xStart, xEnd) {
			break
		}
		yEnd = j + 1
	}
	for i := xEnd; i < numX; i++ {
		if !bandFree(grid, yStart, yEnd, i, i+1) {
			break
		}
		xEnd = i + 1
	}
	for j := yStart - 1; j >= 0; j-- {
		if !bandFree(grid, j, j+1, xStart, xEnd) {
			break
		}
		yStart = j
	}

	left := math.Max(xGrid[xStart], srcLX-leftMax)
	down := math.Max(yGrid[yStart], srcLY-downMax)
	right := math.Min(xGrid[xEnd], srcUX+rightMax)
	top := math.Min(yGrid[yEnd], srcUY+topMax)

	srcC.X = left
	srcC.Y = down
	srcC.SetShape(right-srcC.X, top-srcC.Y)
}

func bandFree(grid [][]int, y0, y1, x0, x1 int) bool {
	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			if grid[j][i] != -1 {
				return false
			}
		}
	}
	return true
}

func sortedKeys(set map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

// netViolation returns weight * max(0, L - reach) where L is the
// two-rectangle routing length proxy between the net's terminals.
func (w *SAWorker) netViolation(net *BundledNet) float64 {
	a := &w.chiplets[net.TermA]
	b := &w.chiplets[net.TermB]

	lxa, lya := a.RealX(), a.RealY()
	uxa, uya := lxa+a.W, lya+a.H
	lxb, lyb := b.RealX(), b.RealY()
	uxb, uyb := lxb+b.W, lyb+b.H

	var length float64
	switch {
	case math.Min(uya, uyb) > math.Max(lya, lyb):
		// Vertical overlap: route across the shared band.
		overlap := math.Min(uya, uyb) - math.Max(lya, lyb)
		gap := math.Max(lxa, lxb) - math.Min(uxa, uxb)
		length = gap + 2*(math.Sqrt(overlap*overlap+2*net.IOArea)-overlap)
	case math.Min(uxa, uxb) > math.Max(lxa, lxb):
		overlap := math.Min(uxa, uxb) - math.Max(lxa, lxb)
		gap := math.Max(lya, lyb) - math.Min(uya, uyb)
		length = gap + 2*(math.Sqrt(overlap*overlap+2*net.IOArea)-overlap)
	default:
		// Disjoint: center-to-center Manhattan distance less the half
		// extents, plus the IO escape.
		cxa, cya := (lxa+uxa)/2, (lya+uya)/2
		cxb, cyb := (lxb+uxb)/2, (lyb+uyb)/2
		halfW := (uxa - lxa + uxb - lxb) / 2
		halfH := (uya - lya + uyb - lyb) / 2
		length = math.Abs(cxa-cxb) + math.Abs(cya-cyb) - halfW - halfH
		length += 2 * math.Sqrt(2*net.IOArea)
	}
	return net.Weight * math.Max(0, length-net.Reach)
}

// NetPenalty sums the violation over all bundled nets.
func (w *SAWorker) NetPenalty() float64 {
	total := 0.0
	for i := range w.nets {
		total += w.netViolation(&w.nets[i])
	}
	return total
}

func (w *SAWorker) calAreaPenalty() float64 {
	if w.areaWeight <= 0 {
		return 0
	}
	total := 0.0
	for i := range w.chiplets {
		total += math.Max(0, w.chiplets[i].Area()-w.chiplets[i].MinArea)
	}
	return total
}

func (w *SAWorker) calPackagePenalty() float64 {
	if w.packageWeight <= 0 {
		return 0
	}
	return w.width * w.height
}

func (w *SAWorker) calPenalty() {
	w.areaPenalty = w.calAreaPenalty()
	w.packagePenalty = w.calPackagePenalty()
	w.netPenalty = w.NetPenalty()
}

// Valid reports whether the floorplan satisfies all reach constraints
// within the configured tolerance.
func (w *SAWorker) Valid() bool {
	return w.NetPenalty() <= w.netTolerance
}

// Initialize applies one random perturbation (which repacks),
// evaluates penalties and derives the normalization constants from
// the resulting floorplan. Worker 0 of a
// pool runs this; its normalizers are copied to the other workers so
// all cost values are comparable.
func (w *SAWorker) Initialize() {
	w.perturb()
	w.calPenalty()
	w.normArea = w.width * w.height
	w.normPackage = w.width * w.height
	w.normNet = w.width + w.height
}

// Normalizers returns the penalty normalization constants.
func (w *SAWorker) Normalizers() (area, pkg, net float64) {
	return w.normArea, w.normPackage, w.normNet
}

// SetNormalizers installs the penalty normalization constants.
func (w *SAWorker) SetNormalizers(area, pkg, net float64) {
	w.normArea, w.normPackage, w.normNet = area, pkg, net
}

// Cost returns the normalized weighted penalty of the current state.
func (w *SAWorker) Cost() float64 {
	w.calPenalty()
	cost := 0.0
	if w.normArea > 0 {
		cost += w.areaWeight * w.areaPenalty / w.normArea
	}
	if w.normPackage > 0 {
		cost += w.packageWeight * w.packagePenalty / w.normPackage
	}
	if w.normNet > 0 {
		cost += w.netWeight * w.netPenalty / w.normNet
	}
	return cost
}

// perturb backs up the current state, applies one weighted-random
// perturbation and repacks.
func (w *SAWorker) perturb() {
	if len(w.chiplets) == 0 {
		return
	}
	w.prePosSeq = append(w.prePosSeq[:0], w.posSeq...)
	w.preNegSeq = append(w.preNegSeq[:0], w.negSeq...)
	w.preWidth = w.width
	w.preHeight = w.height
	w.preAreaPenalty = w.areaPenalty
	w.prePackagePen = w.packagePenalty
	w.preNetPenalty = w.netPenalty

	p1 := w.posSwapProb
	p2 := p1 + w.negSwapProb
	p3 := p2 + w.doubleSwapProb
	p4 := p3 + w.resizeProb
	total := p4 + w.expandProb

	switch op := w.rng.Float64() * total; {
	case op <= p1:
		w.action = saActionPosSwap
		w.singleSeqSwap(true)
	case op <= p2:
		w.action = saActionNegSwap
		w.singleSeqSwap(false)
	case op <= p3:
		w.action = saActionDoubleSwap
		w.doubleSeqSwap()
	case op <= p4:
		w.action = saActionResize
		w.preChiplets = append(w.preChiplets[:0], w.chiplets...)
		w.resizeOneChiplet()
	default:
		w.action = saActionExpand
		w.preChiplets = append(w.preChiplets[:0], w.chiplets...)
		w.expandChiplet()
	}
	w.Pack()
}

// restore undoes the last perturbation.
func (w *SAWorker) restore() {
	if len(w.chiplets) == 0 {
		return
	}
	switch w.action {
	case saActionPosSwap:
		copy(w.posSeq, w.prePosSeq)
	case saActionNegSwap:
		copy(w.negSeq, w.preNegSeq)
	case saActionDoubleSwap:
		copy(w.posSeq, w.prePosSeq)
		copy(w.negSeq, w.preNegSeq)
	case saActionResize:
		w.chiplets[w.resizedChiplet] = w.preChiplets[w.resizedChiplet]
	case saActionExpand:
		copy(w.chiplets, w.preChiplets)
	}
	w.width = w.preWidth
	w.height = w.preHeight
	w.areaPenalty = w.preAreaPenalty
	w.packagePenalty = w.prePackagePen
	w.netPenalty = w.preNetPenalty
}

// Run executes the Metropolis loop: maxSteps cooling steps of
// perturbsPerStep perturbations each, geometric cooling accelerated by
// the worker's cooling factor.
func (w *SAWorker) Run() {
	w.Pack()
	if w.normArea <= 0 {
		w.normArea = 1
	}
	if w.normPackage <= 0 {
		w.normPackage = 1
	}
	if w.normNet <= 0 {
		w.normNet = 1
	}

	preCost := w.Cost()
	temperature := w.initTemp
	tFactor := math.Exp(math.Log(w.minTemp/w.initTemp) / (float64(w.maxSteps) * w.coolingAccel))

	for step := 1; step <= w.maxSteps; step++ {
		for i := 0; i < w.perturbsPerStep; i++ {
			w.perturb()
			cost := w.Cost()
			delta := cost - preCost
			accept := 1.0
			if delta > 0 {
				accept = math.Exp(-delta / temperature)
			}
			if w.rng.Float64() < accept {
				preCost = cost
			} else {
				w.restore()
			}
		}
		temperature *= tFactor
	}

	w.Pack()
	w.calPenalty()
}
