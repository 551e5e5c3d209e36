package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphc/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Backend string
	Output  string
	Workers int
	NoCache bool
}

// CompiledQuery is one successful compilation as reported to the user.
type CompiledQuery struct {
	Name        string   `json:"name"`
	Backend     string   `json:"backend"`
	ID          string   `json:"id"`
	Fingerprint string   `json:"fingerprint"`
	Query       string   `json:"query"`
	Args        []Arg    `json:"args,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	CacheHit    bool     `json:"cache_hit"`
}

// Arg is one positional SQL argument.
type Arg struct {
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
}

// CompileFailure is one query that did not compile.
type CompileFailure struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompileReport is the output of the compile command.
type CompileReport struct {
	Queries  []CompiledQuery  `json:"queries"`
	Failures []CompileFailure `json:"failures,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <fixture.yaml>...",
		Short: "Compile IR fixtures to a backend query language",
		Long: `Compile one or more YAML IR fixtures for a single backend.

The backend defaults to the configured one. Compiled queries are cached by
fingerprint, backend and every option that changes the output.

Exit codes:
  0 - every query compiled
  1 - one or more queries were rejected
  2 - command error (unreadable files, bad config, etc.)

Examples:
  graphc compile query.yaml
  graphc compile --backend cypher queries/*.yaml
  graphc compile -c graphc.cue --backend sql --format json query.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "target backend (match|gremlin|cypher|sql); overrides the config")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "also write the compiled queries to this file")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "queries compiled in parallel")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "skip the compiled-query cache")

	return cmd
}

func runCompile(opts *CompileOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	env, err := loadEnvironment(opts.RootOptions, opts.NoCache)
	if err != nil {
		return reportExitError(formatter, ErrCodeConfig, err)
	}
	defer env.Close()

	backend := env.backend
	if opts.Backend != "" {
		if backend, err = compiler.ParseBackend(opts.Backend); err != nil {
			return reportExitError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "invalid --backend", err))
		}
	}

	queries, errs := loadFixtures(paths)
	if len(errs) > 0 {
		exit := WrapExitError(fixtureExitCode(errs), "loading fixtures", errs[0])
		return reportExitError(formatter, ErrCodeFixture, exit)
	}

	inputs := make([]compiler.Input, len(queries))
	for i, q := range queries {
		inputs[i] = compiler.Input{Name: q.Name, Blocks: q.Blocks, Meta: q.Meta, Hints: q.Hints}
	}
	formatter.VerboseLog("Compiling %d quer(ies) for %s", len(inputs), backend)
	outcomes := compiler.CompileAll(cmd.Context(), inputs, backend, env.opts, opts.Workers)

	report := CompileReport{Queries: []CompiledQuery{}}
	exitCode := ExitSuccess
	for i, o := range outcomes {
		if o.Err != nil {
			report.Failures = append(report.Failures, CompileFailure{
				Name:    inputs[i].Name,
				Code:    ErrorCode(o.Err),
				Message: o.Err.Error(),
			})
			if !IsQueryError(o.Err) {
				exitCode = ExitCommandError
			} else if exitCode == ExitSuccess {
				exitCode = ExitFailure
			}
			continue
		}
		report.Queries = append(report.Queries, compiledQuery(o.Result))
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(queryText(report.Queries)), 0o644); err != nil {
			return reportExitError(formatter, ErrCodeWriteFailed, WrapExitError(ExitCommandError, "writing output file", err))
		}
	}

	if err := outputCompileReport(formatter, report); err != nil {
		return err
	}
	if exitCode != ExitSuccess {
		return NewExitError(exitCode, fmt.Sprintf("%d of %d queries failed to compile", len(report.Failures), len(inputs)))
	}
	return nil
}

func compiledQuery(r compiler.Result) CompiledQuery {
	q := CompiledQuery{
		Name:        r.Name,
		Backend:     string(r.Backend),
		ID:          r.ID.String(),
		Fingerprint: r.Fingerprint,
		Query:       r.Query,
		Warnings:    r.Warnings,
		CacheHit:    r.CacheHit,
	}
	for _, a := range r.Args {
		q.Args = append(q.Args, Arg{Name: a.Name, Value: a.Value})
	}
	return q
}

// queryText renders compiled queries one per paragraph.
func queryText(queries []CompiledQuery) string {
	var b strings.Builder
	for i, q := range queries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s (%s)\n%s\n", q.Name, q.Backend, q.Query)
	}
	return b.String()
}

func outputCompileReport(formatter *OutputFormatter, report CompileReport) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	w := formatter.Writer
	fmt.Fprint(w, queryText(report.Queries))
	for _, q := range report.Queries {
		for _, warning := range q.Warnings {
			fmt.Fprintf(w, "warning: %s: %s\n", q.Name, warning)
		}
		if len(q.Args) > 0 {
			formatter.VerboseLog("%s binds %d argument(s)", q.Name, len(q.Args))
		}
		if q.CacheHit {
			formatter.VerboseLog("%s served from cache", q.Name)
		}
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "✗ %s [%s]: %s\n", f.Name, f.Code, f.Message)
	}
	return nil
}

// reportExitError writes err through the formatter and returns it. Errors
// without an exit code become command errors.
func reportExitError(formatter *OutputFormatter, code string, err error) error {
	if _, ok := err.(*ExitError); !ok {
		err = WrapExitError(ExitCommandError, "command failed", err)
	}
	if IsQueryError(err) {
		code = ErrorCode(err)
	}
	if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return err
}
