package harness

import (
	"fmt"

	"github.com/roach88/graphc/internal/compiler"
	"github.com/roach88/graphc/internal/ir"
)

// Outcome classifies the result of compiling one fixture for one backend.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeNotImplemented   Outcome = "not_implemented"
	OutcomeCompilationError Outcome = "compilation_error"
	OutcomeAssertion        Outcome = "assertion"
	OutcomeValidation       Outcome = "validation"
	// OutcomeError is any other failure, such as a cache or I/O error.
	// Fixtures cannot expect it.
	OutcomeError Outcome = "error"
)

// Classify maps a compilation error onto an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case ir.IsNotImplemented(err):
		return OutcomeNotImplemented
	case ir.IsCompilationError(err):
		return OutcomeCompilationError
	case ir.IsAssertionError(err):
		return OutcomeAssertion
	case ir.IsValidationError(err):
		return OutcomeValidation
	}
	return OutcomeError
}

// CaseResult is one (fixture, backend) pair.
type CaseResult struct {
	Fixture string           `json:"fixture"`
	Backend compiler.Backend `json:"backend"`
	Want    Outcome          `json:"want"`
	Got     Outcome          `json:"got"`

	// Query is the emitted text when Got is OutcomeOK.
	Query string `json:"query,omitempty"`

	// Err is the compilation error text, if any.
	Err string `json:"error,omitempty"`

	// Golden is set when the emitted text differs from the golden file,
	// or the golden file is missing.
	Golden string `json:"golden,omitempty"`

	Pass bool `json:"pass"`
}

// Message describes a failing case in one line.
func (c CaseResult) Message() string {
	switch {
	case c.Pass:
		return "ok"
	case c.Want != c.Got && c.Err != "":
		return fmt.Sprintf("want %s, got %s: %s", c.Want, c.Got, c.Err)
	case c.Want != c.Got:
		return fmt.Sprintf("want %s, got %s", c.Want, c.Got)
	}
	return c.Golden
}

// Summary counts passing and failing cases.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Summarize counts results.
func Summarize(results []CaseResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}
