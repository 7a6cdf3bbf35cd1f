package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/server"
)

const pidFile = "daemon.pid"

type serveOptions struct {
	host  string
	port  int
	watch []string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Long: `Serve the concept and ingestion API until interrupted. With --watch, new
or modified files under the given directories are ingested as they appear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				return runServe(cmd.Context(), a, opts)
			}, opts.apply(cmd))
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().StringSliceVar(&opts.watch, "watch", nil, "directories to watch and ingest")

	return cmd
}

func (o *serveOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if o.host != "" {
			cfg.Host = o.host
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = o.port
		}
	}
}

func runServe(parent context.Context, a *app, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pidPath := filepath.Join(a.cfg.DataDir, pidFile)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		a.log.Warnw("write pid file", logger.FieldPath, pidPath, logger.FieldError, err)
	}
	defer os.Remove(pidPath)

	g, ctx := errgroup.WithContext(ctx)

	if len(opts.watch) > 0 {
		w, err := newWatcher(a, opts.watch)
		if err != nil {
			return WrapExitError(ExitCommandError, "watch", err)
		}
		defer w.Close()
		w.OnReport(func(fr *pipeline.FileReport) {
			a.log.Infow("watched file ingested",
				logger.FieldPath, fr.Path,
				logger.FieldStatus, fr.Status,
				"inserted", fr.Inserted(),
				"duplicates", fr.Duplicates())
		})
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		return server.Serve(ctx, server.Deps{
			Config:       a.cfg,
			Store:        a.store,
			Ingestor:     a.ingestor,
			Orchestrator: a.orch,
			Tokenizer:    a.tokenizer,
			Log:          a.log,
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "serve", err)
	}
	a.log.Info("daemon stopped")
	return nil
}

func newWatcher(a *app, dirs []string) (*pipeline.Watcher, error) {
	debounce := time.Duration(a.cfg.Pipeline.WatchDebounceMS) * time.Millisecond
	w, err := pipeline.NewWatcher(a.ingestor, debounce, a.log)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			abs = d
		}
		if err := w.Add(abs); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}
