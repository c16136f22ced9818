package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/load"
	"github.com/roach88/conform/internal/store"
	"github.com/roach88/conform/internal/suite"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Flow       string
	Thresholds []string // "metric=expr", repeatable
	NoSave     bool
	Export     string // summary JSON file
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a load flow with concurrent virtual users",
		Long: `Run a built-in load flow against rest_url with concurrent virtual users.

Flows:
  user-checkout      POST /api/users/login, then POST /api/checkout
  instructor-lesson  POST /instructors/login, then POST /lessons

Each virtual user repeats its flow until --duration elapses or it has run
--iterations times, pausing --think between iterations. Thresholds use k6
syntax and replace the configured ones for the metric they name.

Exit codes:
  0 - All thresholds held
  1 - One or more thresholds breached
  2 - Command error (unknown flow, invalid threshold, etc.)

Examples:
  conform load --flow user-checkout --vus 10 --duration 20s
  conform load --threshold "http_req_duration=p(95)<=2000" --threshold "http_req_failed=rate<0.01"
  conform load --iterations 5 --push http://pushgateway:9091 --format json
  conform load --vus 5 --duration 1m --summary-export summary.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, cmd)
		},
	}

	addTargetFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.Flow, "flow", suite.UserCheckoutName, "flow to run (user-checkout|instructor-lesson)")
	cmd.Flags().Int("vus", d.Load.VUs, "concurrent virtual users")
	cmd.Flags().Duration("duration", d.Load.Duration, "run length (0 runs until iterations complete)")
	cmd.Flags().Int("iterations", 0, "iterations per virtual user (0 runs until duration elapses)")
	cmd.Flags().Duration("think", d.Load.ThinkTime, "pause between iterations")
	cmd.Flags().StringArrayVar(&opts.Thresholds, "threshold", nil, `threshold as metric=expr, e.g. "http_req_duration=p(95)<=2000"`)
	cmd.Flags().String("push", "", "Prometheus Pushgateway URL")
	cmd.Flags().String("db", "", "run history database (default from config)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "do not record the run in the history database")
	cmd.Flags().StringVar(&opts.Export, "summary-export", "", "also write the summary as JSON to this file")

	return cmd
}

func runLoad(opts *LoadOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	flows := suite.Flows(cfg)
	flow, ok := flows[opts.Flow]
	if !ok {
		names := slices.Sorted(maps.Keys(flows))
		msg := fmt.Sprintf("unknown flow %q: must be one of %v", opts.Flow, names)
		_ = formatter.Error(ErrCodeInvalid, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	thresholds, err := mergeThresholds(cfg.Load.Thresholds, opts.Thresholds)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid threshold", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	client := newHarnessRunner(cfg, cfg.RESTURL, logger)
	if err := waitReady(ctx, cfg, client, formatter); err != nil {
		return err
	}

	runner := load.NewRunner(client, load.WithLogger(logger))
	started := time.Now()
	summary, runErr := runner.Run(ctx, flow, load.Options{
		VUs:        cfg.Load.VUs,
		Duration:   cfg.Load.Duration,
		Iterations: cfg.Load.Iterations,
		ThinkTime:  cfg.Load.ThinkTime,
		Thresholds: thresholds,
	})
	var loadErr *load.LoadError
	if runErr != nil && !errors.As(runErr, &loadErr) && summary == nil {
		_ = formatter.Error(ErrCodeInvalid, runErr.Error(), nil)
		return WrapExitError(ExitCommandError, "load run failed", runErr)
	}

	if cfg.Metrics.Pushgateway != "" {
		if err := runner.Metrics().Push(cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
			logger.Error("failed to push metrics", "url", cfg.Metrics.Pushgateway, "error", err)
		} else {
			logger.Info("metrics pushed", "url", cfg.Metrics.Pushgateway, "job", cfg.Metrics.Job)
		}
	}

	runID := ""
	if !opts.NoSave {
		runID = saveRun(ctx, cfg, logger, func(ctx context.Context, st *store.Store) (string, error) {
			return st.SaveLoadRun(ctx, cfg.RESTURL, started, summary)
		})
	}

	if opts.Export != "" {
		if err := exportSummary(opts.Export, summary); err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "summary export failed", err)
		}
	}

	if opts.Format == "json" {
		code, msg := "", ""
		if loadErr != nil {
			code, msg = ErrCodeBreached, fmt.Sprintf("%d threshold(s) breached", len(loadErr.Breached))
		}
		if err := formatter.Result(summary, runID, code, msg); err != nil {
			return err
		}
	} else {
		if err := summary.WriteText(formatter.Writer); err != nil {
			return err
		}
		if runID != "" {
			fmt.Fprintf(formatter.Writer, "Run ID: %s\n", runID)
		}
	}

	if loadErr != nil {
		return WrapExitError(ExitFailure, "thresholds breached", loadErr)
	}
	if runErr != nil {
		return WrapExitError(ExitCommandError, "load run interrupted", runErr)
	}
	return nil
}

func exportSummary(path string, summary *load.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary export: %w", err)
	}
	if err := summary.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write summary export %s: %w", path, err)
	}
	return f.Close()
}

// mergeThresholds overlays flag thresholds on the configured ones. Flags
// naming a metric replace every configured expression for that metric.
func mergeThresholds(configured map[string][]string, flags []string) (map[string][]string, error) {
	out := make(map[string][]string, len(configured))
	for metric, exprs := range configured {
		out[metric] = slices.Clone(exprs)
	}

	fromFlags := map[string][]string{}
	for _, f := range flags {
		metric, expr, ok := strings.Cut(f, "=")
		metric, expr = strings.TrimSpace(metric), strings.TrimSpace(expr)
		if !ok || metric == "" || expr == "" {
			return nil, fmt.Errorf("threshold %q: want metric=expr", f)
		}
		fromFlags[metric] = append(fromFlags[metric], expr)
	}
	maps.Copy(out, fromFlags)

	if _, err := load.ParseThresholds(out); err != nil {
		return nil, err
	}
	return out, nil
}
