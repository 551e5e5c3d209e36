package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/graphc/internal/sanity"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
}

// CheckResult is the verdict for one fixture file.
type CheckResult struct {
	File  string `json:"file"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// CheckReport is the output of the check command.
type CheckReport struct {
	Results []CheckResult `json:"results"`
	Valid   int           `json:"valid"`
	Invalid int           `json:"invalid"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <fixture.yaml>...",
		Short: "Validate IR fixtures without compiling them",
		Long: `Decode each fixture, run the IR sanity checks and, when a GraphQL
schema is configured, check every type the metadata table names.

Exit codes:
  0 - all fixtures are valid
  1 - one or more fixtures are invalid
  2 - command error`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}
	return cmd
}

func runCheck(opts *CheckOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	env, err := loadEnvironment(opts.RootOptions, true)
	if err != nil {
		return reportExitError(formatter, ErrCodeConfig, err)
	}
	defer env.Close()

	report := CheckReport{Results: make([]CheckResult, 0, len(paths))}
	exitCode := ExitSuccess
	for _, p := range paths {
		res, err := checkFixture(env, p)
		if err != nil {
			res.Code = ErrorCode(err)
			res.Error = err.Error()
			if !IsQueryError(err) {
				exitCode = ExitCommandError
			} else if exitCode == ExitSuccess {
				exitCode = ExitFailure
			}
			report.Invalid++
		} else {
			report.Valid++
		}
		formatter.VerboseLog("Checked %s", p)
		report.Results = append(report.Results, res)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, r := range report.Results {
			if r.Valid {
				fmt.Fprintf(w, "✓ %s\n", r.File)
			} else {
				fmt.Fprintf(w, "✗ %s [%s]: %s\n", r.File, r.Code, r.Error)
			}
		}
		fmt.Fprintf(w, "\n%d valid, %d invalid\n", report.Valid, report.Invalid)
	}

	if exitCode != ExitSuccess {
		return NewExitError(exitCode, fmt.Sprintf("%d of %d fixtures are invalid", report.Invalid, len(paths)))
	}
	return nil
}

func checkFixture(env *environment, path string) (CheckResult, error) {
	res := CheckResult{File: filepath.Base(path)}
	queries, errs := loadFixtures([]string{path})
	if len(errs) > 0 {
		return res, errs[0]
	}
	q := queries[0]
	res.Name = q.Name
	if err := sanity.Check(q.Blocks, q.Meta); err != nil {
		return res, err
	}
	if env.opts.Schema != nil {
		if err := env.opts.Schema.CheckMetadata(q.Meta); err != nil {
			return res, err
		}
	}
	res.Valid = true
	return res, nil
}
