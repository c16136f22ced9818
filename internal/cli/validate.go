package cli

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/harness"
)

// ValidationError is one problem found in a suite file.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|dir>",
		Short: "Validate suite files without running them",
		Long: `Load and validate suite files without contacting a server.

Checks file syntax (YAML with known fields only, JSON, or CUE), the suite
schema, expectation targets and operators, and that every GraphQL
document parses as a single-field operation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("path not found: %s", path))
	}
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	files := []string{path}
	if info.IsDir() {
		files, err = findSuiteFiles(path, "")
		if err != nil {
			return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("error scanning directory: %v", err))
		}
		if len(files) == 0 {
			return outputValidateError(formatter, ErrCodeNoFiles, fmt.Sprintf("no suite files found in %s", path))
		}
	}

	formatter.VerboseLog("Found %d suite file(s) in %s", len(files), path)

	var errs []ValidationError
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		errs = append(errs, validateSuiteFile(file)...)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(files), errs)
	}
	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: len(files)})
	}
	fmt.Fprintf(formatter.Writer, "✓ All suites valid (%d file(s))\n", len(files))
	return nil
}

func validateSuiteFile(file string) []ValidationError {
	s, err := harness.LoadSuite(file)
	if err != nil {
		return []ValidationError{{File: file, Message: err.Error()}}
	}

	var errs []ValidationError
	for _, msg := range checkDocuments(s) {
		errs = append(errs, ValidationError{File: file, Message: msg})
	}
	return errs
}

// checkDocuments parses every GraphQL document in s after template
// expansion against the suite and scenario variables.
func checkDocuments(s *harness.Suite) []string {
	var msgs []string
	check := func(where string, r harness.Request, vars map[string]string) {
		if r.Protocol != harness.ProtocolGraphQL || r.Query == "" {
			return
		}
		doc, err := harness.ExpandGraphQL(r.Query, vars)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", where, err))
			return
		}
		if _, err := graphql.ParseOperation(doc, r.Variables); err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", where, err))
		}
	}

	for i, r := range s.Setup {
		check(fmt.Sprintf("setup[%d]", i), r, s.Vars)
	}
	for i, sc := range s.Scenarios {
		vars := maps.Clone(s.Vars)
		if vars == nil {
			vars = map[string]string{}
		}
		maps.Copy(vars, sc.Let)

		for j, r := range sc.Setup {
			check(fmt.Sprintf("scenarios[%d].setup[%d]", i, j), r, vars)
		}
		check(fmt.Sprintf("scenarios[%d]", i), sc.Request, vars)
	}
	return msgs
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		result := ValidationResult{Valid: false, Files: files, Errors: errs}
		if err := formatter.Result(result, "", ErrCodeInvalid, errs[0].Message); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n", err.File)
		for _, line := range strings.Split(err.Message, "\n") {
			fmt.Fprintf(formatter.Writer, "  %s\n", line)
		}
		fmt.Fprintln(formatter.Writer)
	}

	return exitErr
}
