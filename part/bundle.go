package part

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TuningBundle holds engine tuning knobs, loadable from a YAML file.
// Nil sections mean "not set" — they do not override the defaults.
type TuningBundle struct {
	Anneal  *AnnealConfig  `yaml:"anneal"`
	Genetic *GeneticConfig `yaml:"genetic"`
	Driver  *DriverConfig  `yaml:"driver"`
}

// LoadTuningBundle reads and parses a YAML tuning file. Uses strict
// parsing: unrecognized keys (typos) are rejected.
func LoadTuningBundle(path string) (*TuningBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tuning config: %w", err)
	}
	var bundle TuningBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing tuning config: %w", err)
	}
	return &bundle, nil
}

// Apply overlays the bundle's set sections onto the given defaults and
// returns the merged configs.
func (b *TuningBundle) Apply(anneal AnnealConfig, genetic GeneticConfig, driver DriverConfig) (AnnealConfig, GeneticConfig, DriverConfig) {
	if b == nil {
		return anneal, genetic, driver
	}
	if b.Anneal != nil {
		anneal = *b.Anneal
	}
	if b.Genetic != nil {
		genetic = *b.Genetic
	}
	if b.Driver != nil {
		driver = *b.Driver
	}
	return anneal, genetic, driver
}
