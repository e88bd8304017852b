package learner

import (
	"fmt"
	"os"

	"github.com/HumanCompatibleAI/il-representations/augmenters"
	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// A Config describes one representation-learning run.
//
// Unknown keys in a config file are rejected at load time,
// so a typo fails the run before any training happens.
type Config struct {
	LogDir string `yaml:"log_dir"`

	// Observation shape, channels-first.
	Channels int `yaml:"channels"`
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`

	Arch              string `yaml:"arch"`
	RepresentationDim int    `yaml:"representation_dim"`
	ProjectionDim     int    `yaml:"projection_dim"`

	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	SaveInterval int     `yaml:"save_interval"`

	// MaxStepsPerEpoch caps optimizer updates within an
	// epoch; zero means no cap.
	MaxStepsPerEpoch int `yaml:"max_steps_per_epoch,omitempty"`

	MomentumWeight float64 `yaml:"momentum_weight"`
	QueueSize      int     `yaml:"queue_size"`
	Temperature    float64 `yaml:"temperature"`

	Augmentation []augmenters.TransformSpec `yaml:"augmentation,omitempty"`
}

// Default fills in unset fields with the standard values.
func (c *Config) Default() {
	if c.Arch == "" {
		c.Arch = "BasicCNN"
	}
	if c.RepresentationDim == 0 {
		c.RepresentationDim = 512
	}
	if c.ProjectionDim == 0 {
		// Matches the representation unless a projection
		// head narrows it.
		c.ProjectionDim = c.RepresentationDim
	}
	if c.BatchSize == 0 {
		c.BatchSize = 256
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.SaveInterval == 0 {
		c.SaveInterval = 1
	}
	if c.MomentumWeight == 0 {
		c.MomentumWeight = 0.999
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
}

// Validate checks field ranges after defaults are applied.
func (c *Config) Validate() error {
	if c.Channels <= 0 || c.Height <= 0 || c.Width <= 0 {
		return fmt.Errorf("bad observation shape: %dx%dx%d",
			c.Channels, c.Height, c.Width)
	}
	if c.Channels >= c.Height || c.Channels >= c.Width {
		return fmt.Errorf("shape %dx%dx%d is not channels-first",
			c.Channels, c.Height, c.Width)
	}
	if c.RepresentationDim <= 0 {
		return fmt.Errorf("bad representation_dim: %d", c.RepresentationDim)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("bad batch_size: %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("bad learning_rate: %v", c.LearningRate)
	}
	if c.MomentumWeight < 0 || c.MomentumWeight > 1 {
		return fmt.Errorf("bad momentum_weight: %v", c.MomentumWeight)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("bad queue_size: %d", c.QueueSize)
	}
	if c.MaxStepsPerEpoch < 0 {
		return fmt.Errorf("bad max_steps_per_epoch: %d", c.MaxStepsPerEpoch)
	}
	return nil
}

// LoadConfig reads a YAML config file, rejecting unknown
// keys, then applies defaults and validates.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	defer f.Close()

	var conf Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	conf.Default()
	if err := conf.Validate(); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	return &conf, nil
}
