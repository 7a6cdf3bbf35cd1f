package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/pipeline"
)

type ingestOptions struct {
	workers    int
	duplicates string
	exclude    []string
	showUnits  bool
}

func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files or directories into the concept store",
		Long: `Ingest each path. Directories are walked recursively and every file is
attempted. The command exits non-zero if any unit or file failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				return runIngest(a, opts, args, cmd)
			}, opts.apply(cmd))
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "files ingested in parallel (default from config)")
	cmd.Flags().StringVar(&opts.duplicates, "duplicates", "", "duplicate policy: fail|ignore (default from config)")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns to skip while walking")
	cmd.Flags().BoolVar(&opts.showUnits, "units", false, "list every unit outcome in text output")

	return cmd
}

func (o *ingestOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("workers") {
			cfg.Pipeline.Workers = o.workers
		}
		if o.duplicates != "" {
			cfg.Pipeline.Duplicates = o.duplicates
		}
		cfg.Pipeline.Exclude = append(cfg.Pipeline.Exclude, o.exclude...)
	}
}

func runIngest(a *app, opts *ingestOptions, args []string, cmd *cobra.Command) error {
	paths := make([]string, len(args))
	for i, p := range args {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		paths[i] = p
	}

	results, err := a.orch.Run(cmd.Context(), paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "ingest", err)
	}

	err = a.out.Print(results, func(w io.Writer) error {
		for _, r := range results {
			printRun(w, r, opts.showUnits)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !pipeline.AllOK(results) {
		return NewExitError(ExitFailure, "ingestion reported failures")
	}
	return nil
}

func printRun(w io.Writer, r pipeline.RunResult, showUnits bool) {
	mark := "ok"
	if !r.Run.OK {
		mark = "FAILED"
	}
	fmt.Fprintf(w, "%s  %s  inserted=%d duplicates=%d failures=%d  run=%s\n",
		mark, r.Run.Path, r.Run.Inserted, r.Run.Duplicates, r.Run.Failures, r.Run.ID)
	for _, f := range r.Report.Files {
		if !f.OK() {
			fmt.Fprintf(w, "  %s  %s", f.Status, f.Path)
			if f.Detail != "" {
				fmt.Fprintf(w, ": %s", f.Detail)
			}
			fmt.Fprintln(w)
		}
		if !showUnits {
			continue
		}
		for _, u := range f.Units {
			fmt.Fprintf(w, "    %-13s %s\n", u.Status, u.Name)
		}
	}
}
