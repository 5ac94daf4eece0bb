// Package config loads autosad settings.
//
// Sources, highest priority first:
//  1. command-line flags bound by the CLI
//  2. environment variables with the AUTOSAD_ prefix, dots replaced by
//     underscores (AUTOSAD_ENSEMBLE_POOL_SIZE)
//  3. a YAML file
//  4. Default()
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/ensemble"
	"github.com/hed1ad/autosad/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOSAD"

// Config is the full application configuration.
type Config struct {
	Ensemble   EnsembleConfig   `mapstructure:"ensemble" yaml:"ensemble"`
	Input      InputConfig      `mapstructure:"input" yaml:"input"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging    logging.Config   `mapstructure:"logging" yaml:"logging"`
}

// EnsembleConfig mirrors ensemble.Options in plain types.
type EnsembleConfig struct {
	PoolSize           int      `mapstructure:"pool_size" yaml:"pool_size"`
	EvolutionInterval  int64    `mapstructure:"evolution_interval" yaml:"evolution_interval"`
	Acquisition        string   `mapstructure:"acquisition" yaml:"acquisition"`
	Reward             string   `mapstructure:"reward" yaml:"reward"`
	RewardWindow       int      `mapstructure:"reward_window" yaml:"reward_window"`
	Seed               uint64   `mapstructure:"seed" yaml:"seed"`
	Variants           []string `mapstructure:"variants" yaml:"variants"`
	DiversityThreshold float64  `mapstructure:"diversity_threshold" yaml:"diversity_threshold"`
	BanditDecay        float64  `mapstructure:"bandit_decay" yaml:"bandit_decay"`
	ExplorationSigma   float64  `mapstructure:"exploration_sigma" yaml:"exploration_sigma"`
	Workers            int      `mapstructure:"workers" yaml:"workers"`
}

// InputConfig selects the data source.
type InputConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Format is csv or pcap; empty infers it from the file extension.
	Format string `mapstructure:"format" yaml:"format"`
	Header bool   `mapstructure:"header" yaml:"header"`
	// LabelColumn names the ground-truth column of a CSV with a header.
	LabelColumn string `mapstructure:"label_column" yaml:"label_column"`
	// LabelIndex selects the ground-truth column by position; negative
	// values count from the end. Ignored when LabelColumn is set.
	LabelIndex *int   `mapstructure:"label_index" yaml:"label_index,omitempty"`
	Comma      string `mapstructure:"comma" yaml:"comma"`
	// Scale scans the input once for feature ranges before streaming.
	Scale bool `mapstructure:"scale" yaml:"scale"`
}

// OutputConfig selects where scores go. An empty path means stdout.
type OutputConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Features bool   `mapstructure:"features" yaml:"features"`
}

// CheckpointConfig enables periodic snapshots.
type CheckpointConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Every is the number of instances between checkpoints; 0 only
	// checkpoints at the end of the stream.
	Every int64 `mapstructure:"every" yaml:"every"`
	Keep  int   `mapstructure:"keep" yaml:"keep"`
	// Resume is a run id whose latest checkpoint seeds the ensemble.
	Resume string `mapstructure:"resume" yaml:"resume"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address to serve /metrics on; empty disables it.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() Config {
	d := ensemble.DefaultOptions()
	variants := make([]string, len(d.Variants))
	for i, v := range d.Variants {
		variants[i] = v.String()
	}

	return Config{
		Ensemble: EnsembleConfig{
			PoolSize:           d.PoolSize,
			EvolutionInterval:  d.EvolutionInterval,
			Acquisition:        string(d.Acquisition),
			Reward:             string(d.Reward),
			RewardWindow:       d.RewardWindow,
			Seed:               d.Seed,
			Variants:           variants,
			DiversityThreshold: d.DiversityThreshold,
			BanditDecay:        d.BanditDecay,
			ExplorationSigma:   d.ExplorationSigma,
			Workers:            d.Workers,
		},
		Input:      InputConfig{Header: true, Comma: ","},
		Checkpoint: CheckpointConfig{Keep: 3},
		Logging:    logging.DefaultConfig(),
	}
}

// NewViper returns a viper instance with defaults and environment
// overrides in place. path may be empty.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file from v and decodes the result.
// A missing file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFile is NewViper followed by Load.
func LoadFile(path string) (*Config, error) {
	return Load(NewViper(path))
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("ensemble.pool_size", d.Ensemble.PoolSize)
	v.SetDefault("ensemble.evolution_interval", d.Ensemble.EvolutionInterval)
	v.SetDefault("ensemble.acquisition", d.Ensemble.Acquisition)
	v.SetDefault("ensemble.reward", d.Ensemble.Reward)
	v.SetDefault("ensemble.reward_window", d.Ensemble.RewardWindow)
	v.SetDefault("ensemble.seed", d.Ensemble.Seed)
	v.SetDefault("ensemble.variants", d.Ensemble.Variants)
	v.SetDefault("ensemble.diversity_threshold", d.Ensemble.DiversityThreshold)
	v.SetDefault("ensemble.bandit_decay", d.Ensemble.BanditDecay)
	v.SetDefault("ensemble.exploration_sigma", d.Ensemble.ExplorationSigma)
	v.SetDefault("ensemble.workers", d.Ensemble.Workers)

	v.SetDefault("input.path", d.Input.Path)
	v.SetDefault("input.format", d.Input.Format)
	v.SetDefault("input.header", d.Input.Header)
	v.SetDefault("input.label_column", d.Input.LabelColumn)
	v.SetDefault("input.comma", d.Input.Comma)
	v.SetDefault("input.scale", d.Input.Scale)

	v.SetDefault("output.path", d.Output.Path)
	v.SetDefault("output.features", d.Output.Features)

	v.SetDefault("checkpoint.path", d.Checkpoint.Path)
	v.SetDefault("checkpoint.every", d.Checkpoint.Every)
	v.SetDefault("checkpoint.keep", d.Checkpoint.Keep)
	v.SetDefault("checkpoint.resume", d.Checkpoint.Resume)

	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// EnsembleOptions converts the ensemble section to constructor options.
// Scaling, logger and metrics are supplied by the caller.
func (c *Config) EnsembleOptions() ([]ensemble.Option, error) {
	e := c.Ensemble

	acq, err := ensemble.ParseAcquisition(e.Acquisition)
	if err != nil {
		return nil, err
	}
	reward, err := ensemble.ParseRewardStrategy(e.Reward)
	if err != nil {
		return nil, err
	}
	variants, err := parseVariants(e.Variants)
	if err != nil {
		return nil, err
	}

	return []ensemble.Option{
		ensemble.WithPoolSize(e.PoolSize),
		ensemble.WithEvolutionInterval(e.EvolutionInterval),
		ensemble.WithAcquisition(acq),
		ensemble.WithReward(reward),
		ensemble.WithRewardWindow(e.RewardWindow),
		ensemble.WithSeed(e.Seed),
		ensemble.WithVariants(variants...),
		ensemble.WithDiversityThreshold(e.DiversityThreshold),
		ensemble.WithBanditDecay(e.BanditDecay),
		ensemble.WithExplorationSigma(e.ExplorationSigma),
		ensemble.WithWorkers(e.Workers),
	}, nil
}

func parseVariants(names []string) ([]detectors.Variant, error) {
	variants := make([]detectors.Variant, 0, len(names))
	for _, name := range names {
		v, err := detectors.ParseVariant(name)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}
