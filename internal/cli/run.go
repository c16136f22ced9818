package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/store"
	"github.com/roach88/conform/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Vars   map[string]string
	NoSave bool
}

// ScenarioReport is the reported outcome of one scenario.
type ScenarioReport struct {
	Name       string   `json:"name"`
	Pass       bool     `json:"pass"`
	Status     int      `json:"status,omitempty"`
	Error      string   `json:"error"`
	DurationMs int64    `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

// SuiteReport is the reported outcome of one suite.
type SuiteReport struct {
	Suite     string           `json:"suite"`
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [suite-file]",
		Short: "Run a conformance suite against a live server",
		Long: `Run a conformance suite against a live server.

Without an argument the built-in GraphQL external suite runs against
graphql_url. A suite file (.yaml, .yml, .json, .cue) runs against
rest_url when every request in it is REST, and graphql_url otherwise.

The result is saved to the run history unless --no-save is given.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid suite, unreachable server, etc.)

Examples:
  conform run
  conform run ./suites/checkout.yaml --graphql-url http://staging:4000
  conform run --wait 30s --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runSuite(opts, path, cmd)
		},
	}

	addTargetFlags(cmd.Flags())
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "suite variable as name=value (repeatable)")
	cmd.Flags().String("db", "", "run history database (default from config)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "do not record the run in the history database")

	return cmd
}

// addTargetFlags registers the flags that locate and bound the server
// under test. They are bound to configuration through config.FlagKeys.
func addTargetFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("graphql-url", d.GraphQLURL, "GraphQL server base URL")
	fs.String("rest-url", d.RESTURL, "REST server base URL")
	fs.Duration("timeout", d.Timeout, "per-request timeout")
	fs.Duration("wait", 0, "wait up to this long for the server to become ready")
}

func runSuite(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	s := suite.GraphQL(cfg)
	if path != "" {
		s, err = harness.LoadSuite(path)
		if err != nil {
			_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load suite", err)
		}
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	runner := newHarnessRunner(cfg, suiteBaseURL(cfg, s), logger, harness.WithVars(opts.Vars))
	if err := waitReady(ctx, cfg, runner, formatter); err != nil {
		return err
	}

	logger.Info("running suite", "suite", s.Name, "url", runner.BaseURL(), "scenarios", len(s.Scenarios))
	started := time.Now()
	res := runner.RunSuite(ctx, s)

	runID := ""
	if !opts.NoSave {
		runID = saveRun(ctx, cfg, logger, func(ctx context.Context, st *store.Store) (string, error) {
			return st.SaveSuiteRun(ctx, runner.BaseURL(), started, res)
		})
	}

	report := newSuiteReport(res)
	if opts.Format == "json" {
		code, msg := "", ""
		if report.Failed > 0 {
			code, msg = ErrCodeFailed, fmt.Sprintf("%d scenario(s) failed", report.Failed)
		}
		if err := formatter.Result(report, runID, code, msg); err != nil {
			return err
		}
	} else {
		writeSuiteText(formatter, report, opts.Verbose)
		if runID != "" {
			fmt.Fprintf(formatter.Writer, "Run ID: %s\n", runID)
		}
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newHarnessRunner(cfg *config.Config, baseURL string, logger *slog.Logger, extra ...harness.Option) *harness.Runner {
	opts := []harness.Option{
		harness.WithTimeout(cfg.Timeout),
		harness.WithMessages(cfg.Messages),
		harness.WithLogger(logger),
	}
	return harness.NewRunner(baseURL, append(opts, extra...)...)
}

// suiteBaseURL picks rest_url for an all-REST suite and graphql_url
// otherwise.
func suiteBaseURL(cfg *config.Config, s *harness.Suite) string {
	if s.Login != nil && s.Login.Protocol != harness.ProtocolREST {
		return cfg.GraphQLURL
	}
	reqs := append([]harness.Request{}, s.Setup...)
	for _, sc := range s.Scenarios {
		reqs = append(reqs, sc.Request)
		reqs = append(reqs, sc.Setup...)
	}
	if len(reqs) == 0 {
		return cfg.GraphQLURL
	}
	for _, r := range reqs {
		if r.Protocol != harness.ProtocolREST {
			return cfg.GraphQLURL
		}
	}
	return cfg.RESTURL
}

func waitReady(ctx context.Context, cfg *config.Config, runner *harness.Runner, formatter *OutputFormatter) error {
	if cfg.WaitReady <= 0 {
		return nil
	}
	formatter.VerboseLog("Waiting up to %s for %s", cfg.WaitReady, runner.BaseURL())
	if err := runner.WaitReady(ctx, cfg.WaitReady); err != nil {
		_ = formatter.Error(ErrCodeNotReady, err.Error(), nil)
		return WrapExitError(ExitCommandError, "server not ready", err)
	}
	return nil
}

// saveRun records a run in the history database. A history failure is
// logged and does not fail the command. The save still runs after ctx is
// cancelled so interrupted runs are kept.
func saveRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, save func(context.Context, *store.Store) (string, error)) string {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open run history", "path", cfg.Store.Path, "error", err)
		return ""
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	id, err := save(context.WithoutCancel(ctx), st)
	if err != nil {
		logger.Error("failed to save run", "error", err)
		return ""
	}
	logger.Debug("run saved", "id", id, "path", cfg.Store.Path)
	return id
}

func newSuiteReport(res *harness.SuiteResult) SuiteReport {
	report := SuiteReport{
		Suite:     res.Name,
		Scenarios: make([]ScenarioReport, 0, len(res.Scenarios)),
		Total:     len(res.Scenarios),
	}
	for _, sc := range res.Scenarios {
		report.Scenarios = append(report.Scenarios, ScenarioReport{
			Name:       sc.Name,
			Pass:       sc.Pass(),
			Status:     sc.Status,
			Error:      harness.ErrorKind(sc.ServerErr),
			DurationMs: sc.Duration.Milliseconds(),
			Errors:     sc.Errors(),
		})
	}
	report.Passed, report.Failed = res.Counts()
	return report
}

func writeSuiteText(f *OutputFormatter, report SuiteReport, verbose bool) {
	w := f.Writer
	fmt.Fprintf(w, "Suite: %s\n", report.Suite)
	for _, sc := range report.Scenarios {
		if sc.Pass {
			if verbose {
				fmt.Fprintf(w, "✓ %s (%d, %dms)\n", sc.Name, sc.Status, sc.DurationMs)
			} else {
				fmt.Fprintf(w, "✓ %s\n", sc.Name)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sc.Name)
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
	if report.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
