package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/pipeline/extractors"
	"github.com/oho/hikmara/internal/storage"
	badgerstore "github.com/oho/hikmara/internal/storage/badger"
)

// app is the assembled daemon: one store opened at startup and closed on
// exit, shared by every component.
type app struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	store     storage.Backend
	tokenizer *pipeline.Tokenizer
	ingestor  *pipeline.Ingestor
	orch      *pipeline.Orchestrator
	out       *OutputFormatter
}

func openApp(opts *RootOptions, cmd *cobra.Command, overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data directory", err)
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(cfg.Log.JSON, level)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	a, err := assemble(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "build pipeline", err)
	}
	a.out = &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return a, nil
}

func openStore(cfg config.Config, log *zap.SugaredLogger) (storage.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		s, err := badgerstore.Open(cfg.Store.BadgerDir, log)
		if err != nil {
			return nil, err
		}
		log.Debugw("store opened", logger.FieldBackend, cfg.Store.Backend, logger.FieldPath, cfg.Store.BadgerDir)
		return s, nil
	default:
		db, err := storage.Open(cfg.Store.DBPath)
		if err != nil {
			return nil, errors.WithHint(err, "check store.db_path or HIKMARA_STORE_DB_PATH")
		}
		log.Debugw("store opened", logger.FieldBackend, cfg.Store.Backend, logger.FieldPath, cfg.Store.DBPath)
		return db, nil
	}
}

// assemble wires the pipeline around an open store.
func assemble(cfg config.Config, store storage.Backend, log *zap.SugaredLogger) (*app, error) {
	tok := pipeline.NewTokenizer(cfg.Pipeline.Tokenizer, log)
	learner, err := pipeline.NewLearner(store, tok, log)
	if err != nil {
		return nil, err
	}
	opts := append(pipeline.OptionsFromConfig(cfg.Pipeline), pipeline.WithLogger(log))
	in, err := pipeline.NewIngestor(learner, extractors.CreateDefaultRegistry(cfg.Pipeline.FenceTag), opts...)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		tokenizer: tok,
		ingestor:  in,
		orch:      pipeline.NewOrchestrator(in, store, log),
	}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	a.log.Sync()
	return err
}

// withApp opens the app, runs fn and closes the store afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(a *app) error, overrides ...func(*config.Config)) error {
	a, err := openApp(opts, cmd, overrides...)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
