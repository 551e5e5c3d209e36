package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphc/internal/cache"
	"github.com/roach88/graphc/internal/compiler"
)

// CacheListing is the output of cache ls.
type CacheListing struct {
	Backend      string   `json:"backend"`
	Fingerprints []string `json:"fingerprints"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the compiled-query cache",
	}
	cmd.AddCommand(newCacheListCommand(rootOpts))
	return cmd
}

func newCacheListCommand(rootOpts *RootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List fingerprints with a cached compilation",
		Long: `List the fingerprints of every query the configured cache holds a
compilation for. Compare them with the output of graphc fingerprint.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			return runCacheList(cmd, formatter, rootOpts, backend)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "backend to list (default from config)")
	return cmd
}

func runCacheList(cmd *cobra.Command, formatter *OutputFormatter, rootOpts *RootOptions, backendFlag string) error {
	env, err := loadEnvironment(rootOpts, false)
	if err != nil {
		return reportExitError(formatter, ErrCodeConfig, err)
	}
	defer env.Close()

	backend := env.backend
	if backendFlag != "" {
		if backend, err = compiler.ParseBackend(backendFlag); err != nil {
			return reportExitError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "invalid --backend", err))
		}
	}

	lister, ok := env.opts.Cache.(cache.Lister)
	if !ok {
		return reportExitError(formatter, ErrCodeConfig, NewExitError(ExitCommandError, fmt.Sprintf("cache driver %q cannot list its entries", env.cfg.Cache.Driver)))
	}
	fps, err := lister.Fingerprints(cmd.Context(), string(backend))
	if err != nil {
		return reportExitError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "listing cache", err))
	}

	listing := CacheListing{Backend: string(backend), Fingerprints: fps}
	if listing.Fingerprints == nil {
		listing.Fingerprints = []string{}
	}
	if formatter.Format == "json" {
		return formatter.Success(listing)
	}
	for _, fp := range listing.Fingerprints {
		fmt.Fprintln(formatter.Writer, fp)
	}
	formatter.VerboseLog("%d cached %s fingerprints", len(listing.Fingerprints), backend)
	return nil
}
