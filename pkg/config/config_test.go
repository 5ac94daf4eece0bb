package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/ensemble"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autosad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Empty(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ensemble.DefaultPoolSize, cfg.Ensemble.PoolSize)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
ensemble:
  pool_size: 4
  evolution_interval: 0
  acquisition: ei
  reward: median
  variants: [LODA, HalfSpaceTrees]
input:
  path: traffic.pcap
  label_index: -1
logging:
  level: debug
  format: json
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Ensemble.PoolSize)
	assert.Equal(t, int64(0), cfg.Ensemble.EvolutionInterval)
	assert.Equal(t, "ei", cfg.Ensemble.Acquisition)
	assert.Equal(t, []string{"LODA", "HalfSpaceTrees"}, cfg.Ensemble.Variants)
	require.NotNil(t, cfg.Input.LabelIndex)
	assert.Equal(t, -1, *cfg.Input.LabelIndex)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, ensemble.DefaultDiversityThreshold, cfg.Ensemble.DiversityThreshold)
	assert.Equal(t, 3, cfg.Checkpoint.Keep)

	format, err := cfg.Input.ResolvedFormat()
	require.NoError(t, err)
	assert.Equal(t, "pcap", format)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "ensemble: [unterminated")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "ensemble:\n  pool_size: 4\n")
	t.Setenv("AUTOSAD_ENSEMBLE_POOL_SIZE", "8")
	t.Setenv("AUTOSAD_ENSEMBLE_VARIANTS", "LODA,OnlineIsolationForest")
	t.Setenv("AUTOSAD_LOGGING_LEVEL", "warn")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Ensemble.PoolSize)
	assert.Equal(t, []string{"LODA", "OnlineIsolationForest"}, cfg.Ensemble.Variants)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Ensemble.PoolSize = 0
	cfg.Ensemble.Acquisition = "thompson"
	cfg.Ensemble.Variants = []string{"LODA", "KMeans"}
	cfg.Ensemble.DiversityThreshold = 1.5
	cfg.Input.Format = "parquet"
	cfg.Checkpoint.Resume = "not-a-uuid"
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	fields := make([]string, 0, len(errs))
	for _, err := range errs {
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		fields = append(fields, ve.Field)
	}
	assert.ElementsMatch(t, []string{
		"ensemble.pool_size",
		"ensemble.acquisition",
		"ensemble.variants",
		"ensemble.diversity_threshold",
		"input.format",
		"checkpoint.resume",
		"checkpoint.path",
		"logging",
	}, fields)

	err := cfg.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensemble.pool_size")
	assert.Contains(t, err.Error(), "KMeans")

	valid := Default()
	assert.NoError(t, valid.Err())
}

func TestResolvedFormat(t *testing.T) {
	tests := []struct {
		in   InputConfig
		want string
	}{
		{InputConfig{Path: "data.csv"}, "csv"},
		{InputConfig{Path: "dump.PCAP"}, "pcap"},
		{InputConfig{Path: "dump.cap"}, "pcap"},
		{InputConfig{Path: "stdin"}, "csv"},
		{InputConfig{Path: "data.txt", Format: "PCAP"}, "pcap"},
	}
	for _, tt := range tests {
		got, err := tt.in.ResolvedFormat()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in.Path)
	}
}

func TestEnsembleOptions(t *testing.T) {
	cfg := Default()
	cfg.Ensemble.PoolSize = 3
	cfg.Ensemble.Acquisition = "pi"
	cfg.Ensemble.Reward = "Consensus"
	cfg.Ensemble.Variants = []string{"loda", "halfspacetrees"}
	cfg.Ensemble.Seed = 7

	opts, err := cfg.EnsembleOptions()
	require.NoError(t, err)

	e, err := ensemble.New(opts...)
	require.NoError(t, err)
	got := e.Options()
	assert.Equal(t, 3, got.PoolSize)
	assert.Equal(t, ensemble.PI, got.Acquisition)
	assert.Equal(t, ensemble.RewardConsensus, got.Reward)
	assert.Equal(t, []detectors.Variant{detectors.LODA, detectors.HalfSpaceTrees}, got.Variants)
	assert.Equal(t, uint64(7), got.Seed)

	cfg.Ensemble.Variants = []string{"nope"}
	_, err = cfg.EnsembleOptions()
	assert.Error(t, err)
}
