// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chiplet-eda/chipletor/costmodel"
	"github.com/chiplet-eda/chipletor/ingest"
	"github.com/chiplet-eda/chipletor/part"
)

var (
	seed       int64
	logLevel   string
	tuningFile string

	generations    int
	populationSize int
	techNodes      []string
	outputPrefix   string
)

var rootCmd = &cobra.Command{
	Use:   "chipletor",
	Short: "Chiplet partitioning and technology co-optimization",
}

// designArgs is the common positional tail of every subcommand:
// <io> <layer> <wafer> <assembly> <test> <netlist> <blocks> <reach> <separation>.
type designArgs struct {
	ioFile       string
	layerFile    string
	waferFile    string
	assemblyFile string
	testFile     string
	netlistFile  string
	blocksFile   string
	reach        float64
	separation   float64
}

func parseDesignArgs(args []string) (designArgs, error) {
	var d designArgs
	if len(args) < 9 {
		return d, fmt.Errorf("expected at least 9 design arguments, got %d", len(args))
	}
	d.ioFile, d.layerFile, d.waferFile = args[0], args[1], args[2]
	d.assemblyFile, d.testFile = args[3], args[4]
	d.netlistFile, d.blocksFile = args[5], args[6]
	var err error
	if d.reach, err = strconv.ParseFloat(args[7], 64); err != nil {
		return d, fmt.Errorf("bad reach %q: %w", args[7], err)
	}
	if d.separation, err = strconv.ParseFloat(args[8], 64); err != nil {
		return d, fmt.Errorf("bad separation %q: %w", args[8], err)
	}
	return d, nil
}

// loadDesign reads the libraries and netlist and builds the engine
// inputs.
func loadDesign(d designArgs) (*ingest.Design, *ingest.Libraries, part.OracleFactory, error) {
	libs, err := ingest.ReadLibraries(d.ioFile, d.layerFile, d.waferFile, d.assemblyFile, d.testFile, d.blocksFile)
	if err != nil {
		return nil, nil, nil, err
	}
	nets, err := ingest.ReadNetlist(d.netlistFile)
	if err != nil {
		return nil, nil, nil, err
	}
	design, err := ingest.BuildDesign(nets, libs.Blocks, libs, d.reach)
	if err != nil {
		return nil, nil, nil, err
	}
	factory := costmodel.Factory(design, libs, nets, costmodel.DefaultCoefficients())
	return design, libs, factory, nil
}

func engineConfigs() (part.AnnealConfig, part.GeneticConfig, part.DriverConfig, error) {
	anneal := part.DefaultAnnealConfig()
	genetic := part.DefaultGeneticConfig()
	driver := part.DefaultDriverConfig()
	if tuningFile == "" {
		return anneal, genetic, driver, nil
	}
	bundle, err := part.LoadTuningBundle(tuningFile)
	if err != nil {
		return anneal, genetic, driver, err
	}
	anneal, genetic, driver = bundle.Apply(anneal, genetic, driver)
	return anneal, genetic, driver, nil
}

var partitionCmd = &cobra.Command{
	Use:   "partition <io> <layer> <wafer> <assembly> <test> <netlist> <blocks> <reach> <separation> <tech>",
	Short: "Partition a design under one technology (or co-optimize over a comma-separated tech list)",
	Args:  cobra.ExactArgs(10),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseDesignArgs(args)
		if err != nil {
			return err
		}
		tech := args[9]

		design, _, factory, err := loadDesign(d)
		if err != nil {
			return err
		}
		if err := design.WriteBlockMap("output.map"); err != nil {
			logrus.Warnf("could not write output.map: %v", err)
		}
		anneal, genetic, driver, err := engineConfigs()
		if err != nil {
			return err
		}
		driver.Separation = d.separation

		// A comma-separated tech list switches to co-optimization.
		if strings.Contains(tech, ",") {
			techs := strings.Split(tech, ",")
			return runGenetic(design, factory, techs, anneal, genetic, driver, d.netlistFile)
		}

		logrus.Infof("partitioning %s under %s (seed %d)", d.netlistFile, tech, seed)
		drv := part.NewDriver(design.Hypergraph, driver, anneal, factory, tech, seed)
		result, err := drv.Run()
		if err != nil {
			return err
		}
		out := fmt.Sprintf("%s.cpart.%d", d.netlistFile, result.NumParts)
		if err := part.SavePartition(out, result.Partition); err != nil {
			return err
		}
		logrus.Infof("best partition: %d parts, cost %.4f, saved to %s", result.NumParts, result.Cost, out)
		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <part_file> <io> <layer> <wafer> <assembly> <test> <netlist> <blocks> <reach> <separation> <tech>",
	Short: "Evaluate an existing partition file",
	Args:  cobra.ExactArgs(11),
	RunE: func(cmd *cobra.Command, args []string) error {
		partFile := args[0]
		d, err := parseDesignArgs(args[1:])
		if err != nil {
			return err
		}
		tech := args[10]

		design, _, factory, err := loadDesign(d)
		if err != nil {
			return err
		}
		partition, err := part.LoadPartition(partFile)
		if err != nil {
			return err
		}
		if len(partition) != design.Hypergraph.NumVertices() {
			return fmt.Errorf("partition file has %d entries for %d blocks", len(partition), design.Hypergraph.NumVertices())
		}
		numParts := part.NumParts(partition)

		anneal, _, driver, err := engineConfigs()
		if err != nil {
			return err
		}
		fp := part.NewFloorplanner(design.Hypergraph, d.separation, anneal, seed)
		floor := fp.Run(partition, driver.FloorplanSteps, driver.FloorplanPerturb, false)

		techs := make([]string, numParts)
		for i := range techs {
			techs[i] = tech
		}
		oracle := factory()
		cost := oracle.Cost(partition, techs, floor.AspectRatios, floor.X, floor.Y, false)
		logrus.Infof("evaluated %s: %d parts, cost %.4f, floorplan feasible: %v",
			partFile, numParts, cost, floor.Valid)
		fmt.Printf("parts=%d cost=%.6f feasible=%v\n", numParts, cost, floor.Valid)
		return nil
	},
}

var geneticCmd = &cobra.Command{
	Use:   "genetic <io> <layer> <wafer> <assembly> <test> <netlist> <blocks> <reach> <separation>",
	Short: "Co-optimize partitioning and per-partition technology assignment",
	Args:  cobra.ExactArgs(9),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := parseDesignArgs(args)
		if err != nil {
			return err
		}
		design, libs, factory, err := loadDesign(d)
		if err != nil {
			return err
		}
		anneal, genetic, driver, err := engineConfigs()
		if err != nil {
			return err
		}
		driver.Separation = d.separation
		if generations > 0 {
			genetic.Generations = generations
		}
		if populationSize > 0 {
			genetic.PopulationSize = populationSize
		}
		techs := techNodes
		if len(techs) == 0 {
			techs = libs.TechNodes()
		}
		if len(techs) == 0 {
			return fmt.Errorf("no technology nodes given and none found in the layer library")
		}
		return runGenetic(design, factory, techs, anneal, genetic, driver, d.netlistFile)
	},
}

func runGenetic(design *ingest.Design, factory part.OracleFactory, techs []string, anneal part.AnnealConfig, genetic part.GeneticConfig, driver part.DriverConfig, netlistFile string) error {
	logrus.Infof("co-optimizing %s over techs %v (population %d, %d generations, seed %d)",
		netlistFile, techs, genetic.PopulationSize, genetic.Generations, seed)

	gp := part.NewGeneticPartitioner(design.Hypergraph, genetic, driver, anneal, techs, factory, seed)
	best := gp.Run()
	prefix := netlistFile
	if outputPrefix != "" {
		prefix = fmt.Sprintf("%s.%s", netlistFile, outputPrefix)
	}
	if err := part.SaveResults(&best, prefix); err != nil {
		return err
	}
	logrus.Infof("best co-optimized solution: %d parts, techs %v, cost %.4f, valid=%v",
		best.NumParts, best.Techs, best.Cost, best.Valid)
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 42, "Master random seed")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML tuning bundle overriding engine defaults")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	}

	geneticCmd.Flags().IntVar(&generations, "generations", 0, "Number of generations (0 = default)")
	geneticCmd.Flags().IntVar(&populationSize, "population", 0, "Population size (0 = default)")
	geneticCmd.Flags().StringSliceVar(&techNodes, "tech-nodes", nil, "Technology nodes to co-optimize over")
	geneticCmd.Flags().StringVar(&outputPrefix, "output-prefix", "", "Extra prefix segment for genetic result files")

	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(geneticCmd)
}
