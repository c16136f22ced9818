package harness

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// SuiteError reports a suite file problem with its source position.
type SuiteError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SuiteError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// decodeCUE evaluates a CUE suite file. The suite may be the whole file or
// live under a top-level "suite" field. The concrete value is exported to
// JSON and decoded with the same strict rules as .json suites.
func decodeCUE(path string, data []byte) (*Suite, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if sv := v.LookupPath(cue.ParsePath("suite")); sv.Exists() {
		v = sv
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return decodeJSON(raw)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &SuiteError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
