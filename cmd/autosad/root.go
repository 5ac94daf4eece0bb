package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hed1ad/autosad/pkg/config"
	"github.com/hed1ad/autosad/pkg/logging"
)

type app struct {
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"log-file":   "logging.file",

	"input":        "input.path",
	"format":       "input.format",
	"header":       "input.header",
	"label-column": "input.label_column",
	"comma":        "input.comma",
	"scale":        "input.scale",

	"output":   "output.path",
	"features": "output.features",

	"pool-size":           "ensemble.pool_size",
	"interval":            "ensemble.evolution_interval",
	"acquisition":         "ensemble.acquisition",
	"reward":              "ensemble.reward",
	"reward-window":       "ensemble.reward_window",
	"seed":                "ensemble.seed",
	"variants":            "ensemble.variants",
	"diversity-threshold": "ensemble.diversity_threshold",
	"workers":             "ensemble.workers",

	"checkpoint-dir":   "checkpoint.path",
	"checkpoint-every": "checkpoint.every",
	"checkpoint-keep":  "checkpoint.keep",
	"resume":           "checkpoint.resume",

	"metrics-listen": "metrics.listen",
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "autosad",
		Short:         "Online ensemble selection for streaming anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	d := config.Default()
	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "path to a YAML config file")
	pf.String("log-level", d.Logging.Level, "log level (debug, info, warn, error)")
	pf.String("log-format", d.Logging.Format, "log format (console, json)")
	pf.String("log-file", "", "also write JSON logs to this rotating file")

	cmd.AddCommand(
		newScoreCmd(a),
		newGridCmd(a),
		newConfigCmd(a),
		newCheckpointsCmd(a),
	)
	return cmd
}

// load resolves the configuration from defaults, file, environment and
// the flags set on the running command, then builds the logger.
func (a *app) load(fs *pflag.FlagSet) error {
	v := config.NewViper(a.cfgFile)
	if err := bindFlags(v, fs); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if fs.Changed("label-index") {
		idx, _ := fs.GetInt("label-index")
		cfg.Input.LabelIndex = &idx
	}
	if err := cfg.Err(); err != nil {
		return err
	}

	log, err := logging.Build(cfg.Logging, zapcore.AddSync(a.stderr))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}
