package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // golden file directory
	Update bool   // regenerate golden files
	Filter string // fixture name glob
}

// TestResult holds the overall test result.
type TestResult struct {
	Cases  []harness.CaseResult `json:"cases"`
	Passed int                  `json:"passed"`
	Failed int                  `json:"failed"`
	Total  int                  `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <fixtures-dir>",
		Short: "Run fixtures against every backend they expect",
		Long: `Compile every fixture for each backend listed in its expect block and
compare successful output with <fixture>.<backend>.golden.

Exit codes:
  0 - all cases passed
  1 - one or more cases failed
  2 - command error (invalid paths, etc.)

Examples:
  graphc test ./testdata/fixtures
  graphc test ./testdata/fixtures --golden ./testdata/golden --update
  graphc test ./testdata/fixtures --filter "fold*" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <fixtures-dir>/../golden)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern on the file name")

	return cmd
}

func runTests(opts *TestOptions, fixturesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(fixturesDir); os.IsNotExist(err) {
		return reportExitError(formatter, ErrCodeNotFound, NewExitError(ExitCommandError, fmt.Sprintf("fixtures directory not found: %s", fixturesDir)))
	}
	golden := opts.Golden
	if golden == "" {
		golden = filepath.Join(filepath.Dir(filepath.Clean(fixturesDir)), "golden")
	}

	files, err := harness.FindFixtures(fixturesDir)
	if err != nil {
		return reportExitError(formatter, ErrCodeGeneric, err)
	}
	if files, err = filterFixtures(files, opts.Filter); err != nil {
		return reportExitError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "invalid --filter", err))
	}

	// Golden files must not depend on what an earlier run cached.
	env, err := loadEnvironment(opts.RootOptions, true)
	if err != nil {
		return reportExitError(formatter, ErrCodeConfig, err)
	}
	defer env.Close()

	h := harness.New(env.opts, golden, opts.Update)
	result := TestResult{Cases: []harness.CaseResult{}}
	for _, f := range files {
		formatter.VerboseLog("Running %s", f)
		cases, err := h.RunFile(cmd.Context(), f)
		if err != nil {
			return reportExitError(formatter, ErrCodeFixture, WrapExitError(ExitCommandError, "running "+f, err))
		}
		result.Cases = append(result.Cases, cases...)
	}
	s := harness.Summarize(result.Cases)
	result.Passed, result.Failed, result.Total = s.Passed, s.Failed, len(result.Cases)

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputTestText(formatter, result, opts.Update)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", result.Failed))
	}
	return nil
}

func filterFixtures(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		ok, err := filepath.Match(pattern, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func outputTestText(formatter *OutputFormatter, result TestResult, update bool) {
	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No fixtures found.")
		return
	}
	for _, c := range result.Cases {
		name := fmt.Sprintf("%s/%s", c.Fixture, c.Backend)
		switch {
		case c.Pass && update && c.Got == harness.OutcomeOK:
			fmt.Fprintf(w, "✓ %s (golden updated)\n", name)
		case c.Pass:
			fmt.Fprintf(w, "✓ %s (%s)\n", name, c.Got)
		default:
			fmt.Fprintf(w, "✗ %s\n  %s\n", name, c.Message())
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
