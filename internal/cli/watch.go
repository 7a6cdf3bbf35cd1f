package cli

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oho/hikmara/internal/pipeline"
)

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Ingest files as they appear under directories",
		Long: `Watch each directory tree and ingest files that are created or written,
until interrupted. Reports are printed as they arrive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				w, err := newWatcher(a, args)
				if err != nil {
					return WrapExitError(ExitCommandError, "watch", err)
				}
				defer w.Close()

				w.OnReport(func(fr *pipeline.FileReport) {
					a.out.Print(fr, func(out io.Writer) error {
						printFileReport(out, fr)
						return nil
					})
				})

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				a.log.Infow("watching", "dirs", args)
				return w.Run(ctx)
			})
		},
	}
}

func printFileReport(w io.Writer, fr *pipeline.FileReport) {
	fmt.Fprintf(w, "%-10s %s  inserted=%d duplicates=%d", fr.Status, fr.Path, fr.Inserted(), fr.Duplicates())
	if fr.Detail != "" {
		fmt.Fprintf(w, "  %s", fr.Detail)
	}
	fmt.Fprintln(w)
}
