package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit    int
	Scenario string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs or show one run",
		Long: `List the most recent runs recorded by run and load, newest first.
With a run ID, show that run's scenarios or load summary. With
--scenario, list that scenario's outcomes across suite runs.

Examples:
  conform history
  conform history --limit 5 --format json
  conform history --scenario "checkout with credit card"
  conform history 3f0c9a52-5a3e-4c1e-9d0e-7a8f7d1e2b11`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if opts.Scenario != "" {
					return NewExitError(ExitCommandError, "--scenario cannot be combined with a run ID")
				}
				return showRun(opts, args[0], cmd)
			}
			if opts.Scenario != "" {
				return scenarioHistory(opts, cmd)
			}
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 lists all)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "list one scenario's outcomes across runs")
	cmd.Flags().String("db", "", "run history database (default from config)")

	return cmd
}

func openHistory(opts *HistoryOptions, cmd *cobra.Command) (*store.Store, error) {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func listRuns(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openHistory(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Kind,
			r.Name,
			r.Target,
			r.Duration.Round(time.Millisecond).String(),
			passLabel(r.Pass),
		})
	}
	formatter.Table([]string{"ID", "Started", "Kind", "Name", "Target", "Duration", "Result"}, rows)
	return nil
}

func showRun(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openHistory(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	detail, err := st.GetRun(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		return formatter.Success(detail)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run:      %s\n", detail.ID)
	fmt.Fprintf(w, "Kind:     %s\n", detail.Kind)
	fmt.Fprintf(w, "Name:     %s\n", detail.Name)
	fmt.Fprintf(w, "Target:   %s\n", detail.Target)
	fmt.Fprintf(w, "Started:  %s\n", detail.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Duration: %s\n", detail.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Result:   %s\n\n", passLabel(detail.Pass))

	if detail.Load != nil {
		l := detail.Load
		formatter.Table([]string{"VUs", "Iterations", "Requests", "Failed", "p(95) ms", "p(99) ms", "Checks"}, [][]string{{
			strconv.Itoa(l.VUs),
			strconv.Itoa(l.Iterations),
			strconv.Itoa(l.Requests),
			fmt.Sprintf("%d (%.2f%%)", l.Failed, l.FailedRate*100),
			strconv.FormatFloat(l.P95, 'f', 2, 64),
			strconv.FormatFloat(l.P99, 'f', 2, 64),
			fmt.Sprintf("%d/%d", l.ChecksPassed, l.ChecksPassed+l.ChecksFailed),
		}})
		return nil
	}

	rows := make([][]string, 0, len(detail.Scenarios))
	for _, sc := range detail.Scenarios {
		rows = append(rows, []string{
			sc.Name,
			strconv.Itoa(sc.Status),
			sc.ErrorKind,
			passLabel(sc.Pass),
		})
	}
	formatter.Table([]string{"Scenario", "Status", "Error", "Result"}, rows)

	for _, sc := range detail.Scenarios {
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "\n%s:\n  %s\n", sc.Name, e)
		}
	}
	return nil
}

func scenarioHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openHistory(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	outcomes, err := st.ScenarioHistory(cmd.Context(), opts.Scenario, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read scenario history", err)
	}

	if opts.Format == "json" {
		return formatter.Success(outcomes)
	}
	if len(outcomes) == 0 {
		fmt.Fprintf(formatter.Writer, "No runs of %q recorded.\n", opts.Scenario)
		return nil
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.RunID,
			o.StartedAt.Local().Format(time.DateTime),
			o.Suite,
			strconv.Itoa(o.Status),
			o.ErrorKind,
			passLabel(o.Pass),
		})
	}
	formatter.Table([]string{"Run", "Started", "Suite", "Status", "Error", "Result"}, rows)
	return nil
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
