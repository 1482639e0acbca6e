// Package ingest reads the chiplet design kit: the XML library files
// (IO cells, layers, wafer processes, assembly processes, test
// processes), the XML block-level netlist and the plain-text block
// description file. It produces the immutable hypergraph consumed by
// the partitioning engine and the library bundle consumed by the cost
// model.
package ingest

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chiplet-eda/chipletor/part"
)

// IO describes one IO cell type. Reach bounds the interconnect length
// of nets using this type.
type IO struct {
	Type          string  `xml:"type,attr"`
	RxArea        float64 `xml:"rx_area,attr"`
	TxArea        float64 `xml:"tx_area,attr"`
	Shoreline     float64 `xml:"shoreline,attr"`
	Bandwidth     float64 `xml:"bandwidth,attr"`
	WireCount     int     `xml:"wire_count,attr"`
	Bidirectional string  `xml:"bidirectional,attr"`
	EnergyPerBit  float64 `xml:"energy_per_bit,attr"`
	Reach         float64 `xml:"reach,attr"`
}

// Layer describes one process layer of a technology node.
type Layer struct {
	Name              string  `xml:"name,attr"`
	Active            string  `xml:"active,attr"`
	CostPerMM2        float64 `xml:"cost_per_mm2,attr"`
	TransistorDensity float64 `xml:"transistor_density,attr"`
	DefectDensity     float64 `xml:"defect_density,attr"`
	CriticalAreaRatio float64 `xml:"critical_area_ratio,attr"`
	ClusteringFactor  float64 `xml:"clustering_factor,attr"`
	LithoPercent      float64 `xml:"litho_percent,attr"`
	NREMaskCost       float64 `xml:"nre_mask_cost,attr"`
	StitchingYield    float64 `xml:"stitching_yield,attr"`
}

// WaferProcess describes one wafer manufacturing process.
type WaferProcess struct {
	Name              string  `xml:"name,attr"`
	WaferDiameter     float64 `xml:"wafer_diameter,attr"`
	EdgeExclusion     float64 `xml:"edge_exclusion,attr"`
	WaferProcessYield float64 `xml:"wafer_process_yield,attr"`
	DicingDistance    float64 `xml:"dicing_distance,attr"`
	ReticleX          float64 `xml:"reticle_x,attr"`
	ReticleY          float64 `xml:"reticle_y,attr"`
}

// AssemblyProcess describes one die assembly process.
type AssemblyProcess struct {
	Name                string  `xml:"name,attr"`
	MaterialsCostPerMM2 float64 `xml:"materials_cost_per_mm2,attr"`
	PickNPlaceTime      float64 `xml:"picknplace_time,attr"`
	BondingTime         float64 `xml:"bonding_time,attr"`
	DieSeparation       float64 `xml:"die_separation,attr"`
	MaxPadCurrent       float64 `xml:"max_pad_current_density,attr"`
	AssemblyYield       float64 `xml:"alignment_yield,attr"`
}

// TestProcess describes one die/package test process.
type TestProcess struct {
	Name            string  `xml:"name,attr"`
	TimePerTestCycle float64 `xml:"time_per_test_cycle,attr"`
	CostPerSecond   float64 `xml:"cost_per_second,attr"`
	SelfTestYield   float64 `xml:"self_test_reliability,attr"`
}

// Block is one IP block from the block description file.
type Block struct {
	Name     string
	Area     float64
	Power    float64
	Tech     string
	IsMemory bool
}

// Net is one inter-block connection from the netlist.
type Net struct {
	Type      string  `xml:"type,attr"`
	Block0    string  `xml:"block0,attr"`
	Block1    string  `xml:"block1,attr"`
	Bandwidth float64 `xml:"bandwidth,attr"`
}

// Libraries bundles everything the cost model needs.
type Libraries struct {
	IOs        []IO
	Layers     []Layer
	Wafers     []WaferProcess
	Assemblies []AssemblyProcess
	Tests      []TestProcess
	Blocks     []Block
}

// LayerForTech returns the layer entry whose name contains the tech
// node identifier, or nil.
func (l *Libraries) LayerForTech(tech string) *Layer {
	for i := range l.Layers {
		if l.Layers[i].Name == tech || strings.Contains(l.Layers[i].Name, tech) {
			return &l.Layers[i]
		}
	}
	return nil
}

// IOByType returns the IO cell entry for a net type, or nil.
func (l *Libraries) IOByType(netType string) *IO {
	for i := range l.IOs {
		if l.IOs[i].Type == netType {
			return &l.IOs[i]
		}
	}
	return nil
}

// decodeList parses an XML library file whose root wraps a flat list
// of entries.
func decodeList[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc struct {
		Items []T `xml:",any"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc.Items, nil
}

// ReadIOs parses the IO cell library.
func ReadIOs(path string) ([]IO, error) { return decodeList[IO](path) }

// ReadLayers parses the layer library.
func ReadLayers(path string) ([]Layer, error) { return decodeList[Layer](path) }

// ReadWaferProcesses parses the wafer process library.
func ReadWaferProcesses(path string) ([]WaferProcess, error) {
	return decodeList[WaferProcess](path)
}

// ReadAssemblyProcesses parses the assembly process library.
func ReadAssemblyProcesses(path string) ([]AssemblyProcess, error) {
	return decodeList[AssemblyProcess](path)
}

// ReadTestProcesses parses the test process library.
func ReadTestProcesses(path string) ([]TestProcess, error) {
	return decodeList[TestProcess](path)
}

// ReadBlocks parses the plain-text block description file: one block
// per line, "name area power tech [memory]". Malformed lines are
// skipped with a warning.
func ReadBlocks(path string) ([]Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading blocks: %w", err)
	}
	defer f.Close()

	var blocks []Block
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			logrus.Warnf("blocks: skipping malformed line %d: %q", lineNo, line)
			continue
		}
		var b Block
		b.Name = fields[0]
		if _, err := fmt.Sscanf(fields[1], "%g", &b.Area); err != nil {
			logrus.Warnf("blocks: skipping line %d, bad area %q", lineNo, fields[1])
			continue
		}
		if _, err := fmt.Sscanf(fields[2], "%g", &b.Power); err != nil {
			logrus.Warnf("blocks: skipping line %d, bad power %q", lineNo, fields[2])
			continue
		}
		b.Tech = fields[3]
		if len(fields) > 4 {
			b.IsMemory = strings.EqualFold(fields[4], "memory") || strings.EqualFold(fields[4], "true")
		}
		blocks = append(blocks, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading blocks: %w", err)
	}
	return blocks, nil
}

// ReadNetlist parses the XML netlist.
func ReadNetlist(path string) ([]Net, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading netlist: %w", err)
	}
	var doc struct {
		XMLName xml.Name `xml:"netlist"`
		Nets    []Net    `xml:"net"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing netlist: %w", err)
	}
	return doc.Nets, nil
}

// ReadLibraries reads all five library files plus the block
// description file.
func ReadLibraries(ioFile, layerFile, waferFile, assemblyFile, testFile, blocksFile string) (*Libraries, error) {
	ios, err := ReadIOs(ioFile)
	if err != nil {
		return nil, err
	}
	layers, err := ReadLayers(layerFile)
	if err != nil {
		return nil, err
	}
	wafers, err := ReadWaferProcesses(waferFile)
	if err != nil {
		return nil, err
	}
	assemblies, err := ReadAssemblyProcesses(assemblyFile)
	if err != nil {
		return nil, err
	}
	tests, err := ReadTestProcesses(testFile)
	if err != nil {
		return nil, err
	}
	blocks, err := ReadBlocks(blocksFile)
	if err != nil {
		return nil, err
	}
	return &Libraries{
		IOs:        ios,
		Layers:     layers,
		Wafers:     wafers,
		Assemblies: assemblies,
		Tests:      tests,
		Blocks:     blocks,
	}, nil
}

// Design is the parsed problem instance: the hypergraph plus the
// vertex naming and the per-vertex block records aligned with it.
type Design struct {
	Hypergraph *part.Hypergraph
	Names      []string
	Blocks     []Block
	NetTypes   []string
}

// BuildDesign converts the netlist into a hypergraph. Vertices are
// discovered in netlist order; each net becomes a two-pin hyperedge
// whose weight is its bandwidth, whose reach comes from the IO library
// entry of its type (falling back to defaultReach) and whose IO area
// comes from the IO cell tx+rx area (falling back to 1.0). Block
// records supply the vertex weight vector [area].
func BuildDesign(nets []Net, blocks []Block, libs *Libraries, defaultReach float64) (*Design, error) {
	if len(nets) == 0 {
		return nil, fmt.Errorf("design: netlist has no nets")
	}
	blockByName := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		blockByName[b.Name] = b
	}

	nameToIndex := make(map[string]int)
	var names []string
	index := func(name string) int {
		if idx, ok := nameToIndex[name]; ok {
			return idx
		}
		idx := len(names)
		nameToIndex[name] = idx
		names = append(names, name)
		return idx
	}

	edges := make([][]int, 0, len(nets))
	edgeWeights := make([][]float64, 0, len(nets))
	reaches := make([]float64, 0, len(nets))
	ioAreas := make([]float64, 0, len(nets))
	netTypes := make([]string, 0, len(nets))
	for _, net := range nets {
		v0 := index(net.Block0)
		v1 := index(net.Block1)
		edges = append(edges, []int{v0, v1})
		bw := net.Bandwidth
		if bw <= 0 {
			bw = 1.0
		}
		edgeWeights = append(edgeWeights, []float64{bw})

		reach := defaultReach
		ioArea := 1.0
		if libs != nil {
			if io := libs.IOByType(net.Type); io != nil {
				if io.Reach > 0 {
					reach = io.Reach
				}
				if a := io.TxArea + io.RxArea; a > 0 {
					ioArea = a
				}
			}
		}
		reaches = append(reaches, reach)
		ioAreas = append(ioAreas, ioArea)
		netTypes = append(netTypes, net.Type)
	}

	vertexWeights := make([][]float64, len(names))
	vertexBlocks := make([]Block, len(names))
	missing := 0
	for i, name := range names {
		b, ok := blockByName[name]
		if !ok {
			b = Block{Name: name, Area: 1.0}
			missing++
		}
		vertexWeights[i] = []float64{b.Area}
		vertexBlocks[i] = b
	}
	if missing > 0 {
		logrus.Warnf("design: %d blocks missing from the block file, assuming unit area", missing)
	}

	h, err := part.NewHypergraph(len(names), edges, vertexWeights, edgeWeights, reaches, ioAreas)
	if err != nil {
		return nil, err
	}
	logrus.Infof("design: %d blocks, %d nets", h.NumVertices(), h.NumEdges())
	return &Design{Hypergraph: h, Names: names, Blocks: vertexBlocks, NetTypes: netTypes}, nil
}

// WriteBlockMap writes the diagnostic "output.map" file: one line
// "<1-based index> <block name>" per vertex.
func (d *Design) WriteBlockMap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing block map: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i, name := range d.Names {
		fmt.Fprintf(w, "%d %s\n", i+1, name)
	}
	return w.Flush()
}

// TechNodes returns the sorted distinct technology identifiers seen in
// the layer library.
func (l *Libraries) TechNodes() []string {
	seen := make(map[string]struct{})
	for _, layer := range l.Layers {
		seen[layer.Name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
