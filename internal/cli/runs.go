package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/oho/hikmara/internal/storage"
)

func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded ingestion runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				if len(args) == 1 {
					return showRun(a, cmd, args[0])
				}
				runs, err := a.store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "list runs", err)
				}
				if runs == nil {
					runs = []storage.IngestRun{}
				}
				return a.out.Print(runs, func(w io.Writer) error {
					if len(runs) == 0 {
						_, err := fmt.Fprintln(w, "no runs recorded")
						return err
					}
					rows := make([][]string, len(runs))
					for i, r := range runs {
						rows[i] = []string{
							r.ID,
							r.StartedAt.Local().Format("2006-01-02 15:04:05"),
							r.Kind,
							strconv.FormatBool(r.OK),
							strconv.Itoa(r.Inserted),
							strconv.Itoa(r.Duplicates),
							strconv.Itoa(r.Failures),
							r.Path,
						}
					}
					return a.out.Table([]string{"ID", "STARTED", "KIND", "OK", "INSERTED", "DUPLICATES", "FAILURES", "PATH"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

func showRun(a *app, cmd *cobra.Command, id string) error {
	run, err := a.store.GetRun(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "get run", err)
	}
	if run == nil {
		return WrapExitError(ExitFailure, "get run", errors.Newf("no run with id %q", id))
	}
	return a.out.Print(run, func(w io.Writer) error {
		fmt.Fprintf(w, "run %s (%s)\n", run.ID, run.Kind)
		fmt.Fprintf(w, "path:       %s\n", run.Path)
		fmt.Fprintf(w, "ok:         %t\n", run.OK)
		fmt.Fprintf(w, "inserted:   %d\n", run.Inserted)
		fmt.Fprintf(w, "duplicates: %d\n", run.Duplicates)
		fmt.Fprintf(w, "failures:   %d\n", run.Failures)
		fmt.Fprintf(w, "started:    %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "finished:   %s\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	})
}
