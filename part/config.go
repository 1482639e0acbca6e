package part

// AnnealConfig groups sequence-pair simulated annealing parameters.
// The zero value is unusable; start from DefaultAnnealConfig.
type AnnealConfig struct {
	MaxSteps        int     `yaml:"max_steps"`          // SA steps per run (split across workers)
	PerturbsPerStep int     `yaml:"perturbs_per_step"`  // perturbations per step (split across workers)
	InitTemperature float64 `yaml:"init_temperature"`   // Metropolis start temperature
	MinTemperature  float64 `yaml:"min_temperature"`    // Metropolis floor temperature
	MinCoolingAccel float64 `yaml:"min_cooling_accel"`  // worker 0's cooling factor; smaller values cool faster
	MaxCoolingAccel float64 `yaml:"max_cooling_accel"`  // last worker's cooling factor; 1.0 reaches MinTemperature at the last step
	Workers         int     `yaml:"workers"`            // requested pool size, clamped to [2,4]
	NetTolerance    float64 `yaml:"net_tolerance"`      // accepted residual net violation

	// Perturbation mix. Probabilities are cumulative-normalized, so
	// they need not sum to one.
	PosSwapProb    float64 `yaml:"pos_swap_prob"`
	NegSwapProb    float64 `yaml:"neg_swap_prob"`
	DoubleSwapProb float64 `yaml:"double_swap_prob"`
	ResizeProb     float64 `yaml:"resize_prob"`
	ExpandProb     float64 `yaml:"expand_prob"`

	// Penalty weights for the normalized SA cost.
	AreaWeight    float64 `yaml:"area_weight"`
	PackageWeight float64 `yaml:"package_weight"`
	NetWeight     float64 `yaml:"net_weight"`
}

// DefaultAnnealConfig returns the reference annealing parameters.
func DefaultAnnealConfig() AnnealConfig {
	return AnnealConfig{
		MaxSteps:        2000,
		PerturbsPerStep: 500,
		InitTemperature: 100.0,
		MinTemperature:  1e-12,
		MinCoolingAccel: 0.1,
		MaxCoolingAccel: 1.0,
		Workers:         4,
		NetTolerance:    0.001,
		PosSwapProb:     0.2,
		NegSwapProb:     0.2,
		DoubleSwapProb:  0.2,
		ResizeProb:      0.2,
		ExpandProb:      0.2,
		AreaWeight:      1.0,
		PackageWeight:   1.0,
		NetWeight:       1.0,
	}
}

// RefinerConfig groups K-way FM refinement parameters.
type RefinerConfig struct {
	NumParts              int     `yaml:"num_parts"`                // K
	RefinerIters          int     `yaml:"refiner_iters"`            // passes per Refine call
	MaxMove               int     `yaml:"max_move"`                 // moves per pass
	BoundaryOnly          bool    `yaml:"boundary_only"`            // restrict candidates to boundary vertices
	RandomNonBoundaryRate float64 `yaml:"random_non_boundary_rate"` // interior vertices injected into the boundary set
	FloorplanGate         bool    `yaml:"floorplan_gate"`           // per-move feasibility SA check
	GateSteps             int     `yaml:"gate_steps"`               // reduced SA steps for the gate
	GatePerturbs          int     `yaml:"gate_perturbs"`            // reduced SA perturbations for the gate
	MaxTraverseDepth      int     `yaml:"max_traverse_depth"`       // gain bucket candidate search depth
}

// DefaultRefinerConfig returns the reference refinement parameters
// for a graph of numVertices vertices. Large graphs take shallow,
// cheap passes; small graphs can afford deep repeated ones.
func DefaultRefinerConfig(numParts, numVertices int) RefinerConfig {
	cfg := RefinerConfig{
		NumParts:              numParts,
		RefinerIters:          3,
		MaxMove:               int(float64(numVertices) * 0.5),
		BoundaryOnly:          false,
		RandomNonBoundaryRate: 0.05,
		FloorplanGate:         false,
		GateSteps:             50,
		GatePerturbs:          10,
		MaxTraverseDepth:      25,
	}
	if numVertices > 200 {
		cfg.RefinerIters = 1
		cfg.MaxMove = int(float64(numVertices) * 0.05)
		cfg.BoundaryOnly = true
	}
	return cfg
}

// GeneticConfig groups the genetic co-optimization parameters.
type GeneticConfig struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	TournamentSize int     `yaml:"tournament_size"`
	Elitism        int     `yaml:"elitism"`
	Patience       int     `yaml:"patience"` // generations without improvement before stopping; 0 disables
	MinPartitions  int     `yaml:"min_partitions"`
	MaxPartitions  int     `yaml:"max_partitions"`
}

// DefaultGeneticConfig returns the reference genetic parameters.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 50,
		Generations:    50,
		MutationRate:   0.2,
		CrossoverRate:  0.7,
		TournamentSize: 3,
		Elitism:        2,
		Patience:       10,
		MinPartitions:  2,
		MaxPartitions:  8,
	}
}

// DriverConfig groups the multi-start driver parameters.
type DriverConfig struct {
	ChipletSet       []int   `yaml:"chiplet_set"`       // candidate partition counts
	UBFactor         float64 `yaml:"ub_factor"`         // balance slack, multiplier on the even share (1.10 = 10% over)
	ZScoreThreshold  float64 `yaml:"zscore_threshold"`  // outlier filter: z-score cutoff
	RatioThreshold   float64 `yaml:"ratio_threshold"`   // outlier filter: cost/min cutoff
	MinKept          int     `yaml:"min_kept"`          // candidates always retained
	MaxThreads       int     `yaml:"max_threads"`       // parallel refinement cap; 0 = NumCPU
	Separation       float64 `yaml:"separation"`        // chiplet halo width
	FloorplanSteps   int     `yaml:"floorplan_steps"`   // SA steps for candidate floorplans
	FloorplanPerturb int     `yaml:"floorplan_perturb"` // SA perturbations for candidate floorplans
}

// DefaultDriverConfig returns the reference driver parameters.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		ChipletSet:       []int{1, 2, 3, 4, 5, 6, 7, 8},
		UBFactor:         1.10,
		ZScoreThreshold:  1.5,
		RatioThreshold:   2.0,
		MinKept:          3,
		MaxThreads:       0,
		Separation:       0.1,
		FloorplanSteps:   100,
		FloorplanPerturb: 100,
	}
}
