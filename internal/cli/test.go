package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool              // regenerate golden files
	Filter string            // suite filter (glob pattern)
	Vars   map[string]string // extra suite variables
}

// TestFileResult holds the result of one suite file.
type TestFileResult struct {
	File   string   `json:"file"`
	Suite  string   `json:"suite,omitempty"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden"` // "match" | "mismatch" | "updated" | "none"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Suites []TestFileResult `json:"suites"`
	Passed int              `json:"passed"`
	Failed int              `json:"failed"`
	Total  int              `json:"total"`
}

// Golden comparison outcomes.
const (
	goldenMatch    = "match"
	goldenMismatch = "mismatch"
	goldenUpdated  = "updated"
	goldenNone     = "none"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <suites-dir>",
		Short: "Run conformance suites with golden comparison",
		Long: `Run every suite file in a directory and compare each result with
its golden snapshot in <suites-dir>/golden/<name>.golden.

A suite passes when all its scenarios pass and its snapshot matches.
Suites without a golden file are judged on their expectations alone.

Exit codes:
  0 - All suites passed
  1 - One or more suites failed or mismatched
  2 - Command error (invalid paths, etc.)

Examples:
  conform test ./suites
  conform test ./suites --filter "checkout-*"
  conform test ./suites --update
  conform test ./suites --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	addTargetFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter suites by glob pattern")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "suite variable as name=value (repeatable)")

	return cmd
}

func runTests(opts *TestOptions, suitesDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(suitesDir); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("suites directory not found: %s", suitesDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("suites directory not found: %s", suitesDir))
	}

	files, err := findSuiteFiles(suitesDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find suites", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return formatter.Result(TestResult{Suites: []TestFileResult{}}, "", "", "")
		}
		fmt.Fprintln(formatter.Writer, "No suites found.")
		return nil
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd)
	defer stop()

	result := TestResult{
		Suites: make([]TestFileResult, 0, len(files)),
		Total:  len(files),
	}
	waited := map[string]bool{}

	for _, file := range files {
		r := TestFileResult{File: file, Golden: goldenNone}

		s, err := harness.LoadSuite(file)
		if err != nil {
			r.Errors = []string{fmt.Sprintf("failed to load suite: %v", err)}
			result.add(r, formatter)
			continue
		}
		r.Suite = s.Name

		runner := newHarnessRunner(cfg, suiteBaseURL(cfg, s), logger, harness.WithVars(opts.Vars))
		if !waited[runner.BaseURL()] {
			if err := waitReady(ctx, cfg, runner, formatter); err != nil {
				return err
			}
			waited[runner.BaseURL()] = true
		}

		res := runner.RunSuite(ctx, s)
		r.Errors = suiteErrors(res)

		snapshot, err := harness.Snapshot(res)
		if err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("snapshot failed: %v", err))
			result.add(r, formatter)
			continue
		}

		r.Golden, err = checkGolden(file, snapshot, opts.Update, formatter)
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
		if r.Golden == goldenMismatch {
			r.Errors = append(r.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		}
		r.Pass = len(r.Errors) == 0
		result.add(r, formatter)
	}

	if opts.Format == "json" {
		code, msg := "", ""
		if result.Failed > 0 {
			code, msg = ErrCodeFailed, fmt.Sprintf("%d suite(s) failed", result.Failed)
		}
		if err := formatter.Result(result, "", code, msg); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if result.Failed == 0 {
			fmt.Fprintln(w, "✓ All suites passed")
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d suite(s) failed", result.Failed))
	}
	return nil
}

// add records r and prints its text line.
func (t *TestResult) add(r TestFileResult, f *OutputFormatter) {
	t.Suites = append(t.Suites, r)
	if r.Pass {
		t.Passed++
	} else {
		t.Failed++
	}
	if f.Format == "json" {
		return
	}

	name := r.Suite
	if name == "" {
		name = filepath.Base(r.File)
	}
	if r.Pass {
		if r.Golden == goldenUpdated {
			fmt.Fprintf(f.Writer, "✓ %s (golden updated)\n", name)
		} else {
			fmt.Fprintf(f.Writer, "✓ %s\n", name)
		}
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s\n", name)
	for _, e := range r.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", e)
	}
}

func suiteErrors(res *harness.SuiteResult) []string {
	var out []string
	for _, sc := range res.Scenarios {
		for _, e := range sc.Errors() {
			out = append(out, fmt.Sprintf("%s: %s", sc.Name, e))
		}
	}
	return out
}

// checkGolden compares snapshot with the suite's golden file, or writes
// it when update is set.
func checkGolden(suiteFile string, snapshot []byte, update bool, f *OutputFormatter) (string, error) {
	goldenPath := goldenFilePath(suiteFile)

	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return goldenNone, fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
			return goldenNone, fmt.Errorf("failed to write golden file: %w", err)
		}
		return goldenUpdated, nil
	}

	golden, err := os.ReadFile(goldenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return goldenNone, nil
	}
	if err != nil {
		return goldenNone, fmt.Errorf("failed to read golden file: %w", err)
	}

	if bytes.Equal(bytes.TrimSpace(golden), bytes.TrimSpace(snapshot)) {
		return goldenMatch, nil
	}
	f.VerboseLog("%s (-golden +actual):\n%s", goldenPath, cmp.Diff(string(golden), string(snapshot)))
	return goldenMismatch, nil
}

// goldenFilePath returns the path to the golden file for a suite file.
func goldenFilePath(suiteFile string) string {
	dir := filepath.Dir(suiteFile)
	base := filepath.Base(suiteFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// findSuiteFiles finds all suite files under dir, skipping golden
// directories. filter is matched against the file name without extension.
func findSuiteFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == "golden" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if !harness.IsSuiteFile(path) {
			return nil
		}

		if filter != "" {
			base := filepath.Base(path)
			name := strings.TrimSuffix(base, filepath.Ext(base))
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}
