package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/ensemble"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	e := c.Ensemble
	if e.PoolSize < 1 {
		add("ensemble.pool_size", "must be at least 1, got %d", e.PoolSize)
	}
	if e.EvolutionInterval < 0 {
		add("ensemble.evolution_interval", "must be non-negative, got %d", e.EvolutionInterval)
	}
	if _, err := ensemble.ParseAcquisition(e.Acquisition); err != nil {
		add("ensemble.acquisition", "must be one of UCB, EI, PI, got %q", e.Acquisition)
	}
	if _, err := ensemble.ParseRewardStrategy(e.Reward); err != nil {
		add("ensemble.reward", "must be one of direct, consensus, median, got %q", e.Reward)
	}
	if e.RewardWindow < 1 {
		add("ensemble.reward_window", "must be at least 1, got %d", e.RewardWindow)
	}
	if len(e.Variants) == 0 {
		add("ensemble.variants", "at least one variant is required")
	}
	for _, name := range e.Variants {
		if _, err := detectors.ParseVariant(name); err != nil {
			add("ensemble.variants", "unknown variant %q", name)
		}
	}
	if e.DiversityThreshold <= 0 || e.DiversityThreshold > 1 {
		add("ensemble.diversity_threshold", "must be in (0, 1], got %g", e.DiversityThreshold)
	}
	if e.BanditDecay < 0 || e.BanditDecay >= 1 {
		add("ensemble.bandit_decay", "must be in [0, 1), got %g", e.BanditDecay)
	}
	if e.ExplorationSigma <= 0 {
		add("ensemble.exploration_sigma", "must be positive, got %g", e.ExplorationSigma)
	}
	if e.Workers < 1 {
		add("ensemble.workers", "must be at least 1, got %d", e.Workers)
	}

	if _, err := c.Input.ResolvedFormat(); err != nil {
		add("input.format", "%v", err)
	}
	if len([]rune(c.Input.Comma)) != 1 {
		add("input.comma", "must be a single character, got %q", c.Input.Comma)
	}

	if c.Checkpoint.Every < 0 {
		add("checkpoint.every", "must be non-negative, got %d", c.Checkpoint.Every)
	}
	if c.Checkpoint.Keep < 0 {
		add("checkpoint.keep", "must be non-negative, got %d", c.Checkpoint.Keep)
	}
	if c.Checkpoint.Resume != "" {
		if _, err := uuid.Parse(c.Checkpoint.Resume); err != nil {
			add("checkpoint.resume", "invalid run id %q", c.Checkpoint.Resume)
		}
		if c.Checkpoint.Path == "" {
			add("checkpoint.path", "is required when checkpoint.resume is set")
		}
	}

	if err := c.Logging.Validate(); err != nil {
		add("logging", "%v", err)
	}

	return errs
}

// Err joins the results of Validate, or returns nil.
func (c *Config) Err() error {
	return errors.Join(c.Validate()...)
}

// ResolvedFormat returns the input format, inferring it from the path
// extension when unset.
func (in InputConfig) ResolvedFormat() (string, error) {
	format := strings.ToLower(in.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(in.Path)) {
		case ".pcap", ".cap":
			format = "pcap"
		default:
			format = "csv"
		}
	}
	switch format {
	case "csv", "pcap":
		return format, nil
	}
	return "", fmt.Errorf("unknown input format %q: want csv or pcap", in.Format)
}
