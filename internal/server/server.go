package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/api"
	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/pipeline"
	"github.com/oho/hikmara/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Deps are the components the HTTP surface serves.
type Deps struct {
	Config       config.Config
	Store        storage.Backend
	Ingestor     *pipeline.Ingestor
	Orchestrator *pipeline.Orchestrator
	Tokenizer    *pipeline.Tokenizer
	Log          *zap.SugaredLogger
}

// Handler mounts every route.
func Handler(d Deps) http.Handler {
	r := NewRouter()
	r.Use(RequestLogger(d.Log))

	tok := pipeline.TokenizerWords
	if d.Tokenizer != nil {
		tok = d.Tokenizer.Mode()
	}
	r.Get("/health", HealthHandler(d.Config, d.Store, tok, d.Orchestrator.IsRunning))
	r.Mount("/ingest", api.IngestRouter(d.Orchestrator, d.Store))
	r.Mount("/concepts", api.ConceptsRouter(d.Store, d.Ingestor.Learner()))
	return r
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func Serve(ctx context.Context, d Deps) error {
	log := logger.OrNop(d.Log)
	addr := fmt.Sprintf("%s:%d", d.Config.Host, d.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return serveListener(ctx, ln, d, log)
}

func serveListener(ctx context.Context, ln net.Listener, d Deps, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)
	srv := &http.Server{
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("daemon ready", logger.FieldAddress, ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
