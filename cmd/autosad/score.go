package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/autosad/pkg/checkpoint"
	"github.com/hed1ad/autosad/pkg/config"
	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/ensemble"
	"github.com/hed1ad/autosad/pkg/evaluation"
	aio "github.com/hed1ad/autosad/pkg/io"
	"github.com/hed1ad/autosad/pkg/io/csv"
	"github.com/hed1ad/autosad/pkg/io/pcap"
)

func newScoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [input]",
		Short: "Score a CSV or PCAP stream and write one result per instance",
		Long: `Score streams every instance of the input through the ensemble and writes
step, score, selected arm and variant as CSV. When the input carries labels
the AUROC of the emitted scores is reported at the end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Input.Path = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.score(ctx)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringP("input", "i", "", "input file; - reads CSV from stdin")
	f.String("format", "", "input format (csv, pcap); inferred from the extension when empty")
	f.Bool("header", d.Input.Header, "CSV input has a header row")
	f.String("label-column", "", "name of the CSV ground-truth column")
	f.Int("label-index", 0, "position of the CSV ground-truth column; negative counts from the end")
	f.String("comma", d.Input.Comma, "CSV field delimiter")
	f.Bool("scale", false, "scan the input for feature ranges before scoring")
	f.StringP("output", "o", "", "output CSV file; stdout when empty")
	f.Bool("features", false, "include input features in the output")

	f.Int("pool-size", d.Ensemble.PoolSize, "number of arms in the pool")
	f.Int64("interval", d.Ensemble.EvolutionInterval, "instances between evolutions; 0 disables evolution")
	f.String("acquisition", d.Ensemble.Acquisition, "bandit acquisition (UCB, EI, PI)")
	f.String("reward", d.Ensemble.Reward, "reward strategy (direct, consensus, median)")
	f.Int("reward-window", d.Ensemble.RewardWindow, "score history kept per arm for rewards")
	f.Uint64("seed", d.Ensemble.Seed, "random seed")
	f.StringSlice("variants", d.Ensemble.Variants, "detector variants allowed in the pool")
	f.Float64("diversity-threshold", d.Ensemble.DiversityThreshold, "largest share of the pool one variant may hold")
	f.Int("workers", d.Ensemble.Workers, "goroutines scoring arms in parallel")

	f.String("checkpoint-dir", "", "directory of the checkpoint store; empty disables checkpoints")
	f.Int64("checkpoint-every", 0, "instances between checkpoints; 0 saves only at the end")
	f.Int("checkpoint-keep", d.Checkpoint.Keep, "checkpoints retained per run; 0 keeps all")
	f.String("resume", "", "run id to resume from its latest checkpoint")

	f.String("metrics-listen", "", "address to serve Prometheus metrics on, e.g. :9090")
	return cmd
}

func (a *app) score(ctx context.Context) error {
	cfg := a.cfg
	log := a.log
	defer log.Sync() //nolint:errcheck

	reader, err := a.openReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	opts, err := cfg.EnsembleOptions()
	if err != nil {
		return err
	}

	if cfg.Input.Scale {
		scaling, err := a.scanRange()
		if err != nil {
			return fmt.Errorf("scan feature ranges: %w", err)
		}
		opts = append(opts, ensemble.WithScaling(scaling))
		log.Info("feature ranges scanned", zap.Int("features", len(scaling.Mins)))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	opts = append(opts, ensemble.WithLogger(log), ensemble.WithMetrics(ensemble.NewMetrics(reg)))

	if cfg.Metrics.Listen != "" {
		stop, err := serveMetrics(cfg.Metrics.Listen, reg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	e, err := ensemble.New(opts...)
	if err != nil {
		return err
	}

	run := uuid.New()
	var store *checkpoint.Store
	if cfg.Checkpoint.Path != "" {
		store, err = checkpoint.Open(checkpoint.Config{
			Path:       cfg.Checkpoint.Path,
			SyncWrites: true,
			Keep:       cfg.Checkpoint.Keep,
		}, log)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.Checkpoint.Resume != "" {
			run = uuid.MustParse(cfg.Checkpoint.Resume)
			step, err := store.Resume(run, e)
			if err != nil {
				return fmt.Errorf("resume run %s: %w", run, err)
			}
			log.Info("resumed from checkpoint", zap.Int64("step", step))
		}
	}
	log = log.With(zap.Stringer("run", run))

	writer, err := a.openWriter()
	if err != nil {
		return err
	}

	samples, err := reader.Stream(ctx)
	if err != nil {
		writer.Close()
		return err
	}

	rec := evaluation.NewRecorder()
	started := time.Now()
	for sample := range samples {
		s := e.Score(sample.Features)
		if err := writer.Write(aio.NewResult(s, sample)); err != nil {
			writer.Close()
			return fmt.Errorf("write result: %w", err)
		}
		if sample.Labeled {
			rec.Add(s.Value, sample.Anomaly)
		}
		if store != nil && cfg.Checkpoint.Every > 0 && s.Step%cfg.Checkpoint.Every == 0 {
			if err := store.Checkpoint(run, e); err != nil {
				log.Warn("checkpoint failed", zap.Int64("step", s.Step), zap.Error(err))
			}
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	if store != nil {
		if err := store.Checkpoint(run, e); err != nil {
			return fmt.Errorf("final checkpoint: %w", err)
		}
	}

	elapsed := time.Since(started)
	log.Info("stream scored",
		zap.Int64("instances", e.Step()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("sigma", e.Sigma()),
	)
	if r, ok := reader.(*csv.Reader); ok && r.Skipped() > 0 {
		log.Warn("malformed rows skipped", zap.Int("rows", r.Skipped()))
	}

	if rec.Len() > 0 {
		summary, err := rec.Summary()
		switch {
		case errors.Is(err, evaluation.ErrSingleClass):
			log.Warn("labels contain a single class, AUROC undefined", zap.Int("labeled", rec.Len()))
		case err != nil:
			return err
		default:
			log.Info("evaluation",
				zap.Int("instances", summary.Instances),
				zap.Int("anomalies", summary.Anomalies),
				zap.Float64("auroc", summary.AUROC),
			)
			fmt.Fprintf(a.stderr, "AUROC: %.4f (%d instances, %d anomalies)\n",
				summary.AUROC, summary.Instances, summary.Anomalies)
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) openReader() (aio.Reader, error) {
	in := a.cfg.Input
	if in.Path == "" {
		return nil, errors.New("no input given")
	}
	format, err := in.ResolvedFormat()
	if err != nil {
		return nil, err
	}

	if format == "pcap" {
		if in.Path == "-" {
			return pcap.New(a.stdin)
		}
		return pcap.NewFileReader(in.Path)
	}
	if in.Path == "-" {
		return csv.New(a.stdin, a.csvOptions()...)
	}
	return csv.NewReader(in.Path, a.csvOptions()...)
}

func (a *app) csvOptions() []csv.Option {
	in := a.cfg.Input
	opts := []csv.Option{
		csv.WithHeader(in.Header),
		csv.WithComma([]rune(in.Comma)[0]),
	}
	switch {
	case in.LabelColumn != "":
		opts = append(opts, csv.WithLabelColumn(in.LabelColumn))
	case in.LabelIndex != nil:
		opts = append(opts, csv.WithLabelIndex(*in.LabelIndex))
	}
	return opts
}

// scanRange makes a first pass over the input for feature bounds.
func (a *app) scanRange() (detectors.Scaling, error) {
	in := a.cfg.Input
	if in.Path == "-" {
		return detectors.Scaling{}, errors.New("cannot scan stdin twice; drop --scale")
	}
	format, _ := in.ResolvedFormat()
	if format == "csv" {
		return csv.ScanRange(in.Path, a.csvOptions()...)
	}

	r, err := pcap.NewFileReader(in.Path)
	if err != nil {
		return detectors.Scaling{}, err
	}
	defer r.Close()
	samples, err := r.Read()
	if err != nil {
		return detectors.Scaling{}, err
	}
	return aio.FeatureRange(samples), nil
}

func (a *app) openWriter() (aio.Writer, error) {
	out := a.cfg.Output
	if out.Path == "" {
		return csv.NewWriter(a.stdout, csv.WithFeatures(out.Features)), nil
	}
	return csv.CreateWriter(out.Path, csv.WithFeatures(out.Features))
}

// serveMetrics serves reg on addr until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}
