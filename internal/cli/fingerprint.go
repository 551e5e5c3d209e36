package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphc/internal/ir"
)

// FingerprintResult pairs a fixture with its canonical fingerprint.
type FingerprintResult struct {
	File        string `json:"file"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <fixture.yaml>...",
		Short: "Print the canonical fingerprint of IR fixtures",
		Long: `Print the sha256 of each fixture's canonical block encoding. Two
fixtures with the same fingerprint compile to the same query.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			return runFingerprint(formatter, args)
		},
	}
}

func runFingerprint(formatter *OutputFormatter, paths []string) error {
	queries, errs := loadFixtures(paths)
	if len(errs) > 0 {
		return reportExitError(formatter, ErrCodeFixture, WrapExitError(fixtureExitCode(errs), "loading fixtures", errs[0]))
	}

	results := make([]FingerprintResult, 0, len(queries))
	for i, q := range queries {
		fp, err := ir.QueryFingerprint(q.Blocks)
		if err != nil {
			return reportExitError(formatter, ErrCodeGeneric, WrapExitError(ExitFailure, "fingerprinting "+q.Name, err))
		}
		results = append(results, FingerprintResult{File: paths[i], Name: q.Name, Fingerprint: fp})
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for _, r := range results {
		fmt.Fprintf(formatter.Writer, "%s  %s\n", r.Fingerprint, r.Name)
	}
	return nil
}
