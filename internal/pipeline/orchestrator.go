package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/storage"
)

var (
	ErrBusy    = errors.New("an ingestion run is already in progress")
	ErrNoPaths = errors.New("no paths to ingest")
)

// RunResult pairs a recorded run with its full report.
type RunResult struct {
	Run    storage.IngestRun `json:"run"`
	Report *Report           `json:"report"`
}

// Orchestrator runs top-level ingestion calls one at a time and records each
// in the run log.
type Orchestrator struct {
	ingestor *Ingestor
	runs     storage.RunLog
	log      *zap.SugaredLogger

	mu      sync.Mutex
	running bool
}

// NewOrchestrator builds an orchestrator. runs may be nil, in which case
// nothing is recorded.
func NewOrchestrator(ingestor *Ingestor, runs storage.RunLog, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{ingestor: ingestor, runs: runs, log: logger.OrNop(log)}
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// Run ingests each path in order and records one run per path.
func (o *Orchestrator) Run(ctx context.Context, paths []string) ([]RunResult, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	if !o.begin() {
		return nil, ErrBusy
	}
	defer o.end()

	results := make([]RunResult, 0, len(paths))
	for _, p := range paths {
		started := time.Now().UTC()
		rep, err := o.ingestor.Ingest(ctx, p)
		if err != nil {
			rep = &Report{Root: p, Kind: KindDirectory, Files: []*FileReport{{
				Path: p, Kind: KindDirectory, Status: StatusReadError, Detail: err.Error(),
			}}}
		}
		run := NewRun(rep, started, time.Now().UTC())
		if o.runs != nil {
			if err := o.runs.RecordRun(ctx, run); err != nil {
				o.log.Warnw("could not record run", logger.FieldRunID, run.ID, logger.FieldError, err)
			}
		}
		o.log.Infow("run finished",
			logger.FieldRunID, run.ID,
			logger.FieldPath, p,
			"ok", run.OK,
			"inserted", run.Inserted,
			"failures", run.Failures,
		)
		results = append(results, RunResult{Run: run, Report: rep})
	}
	return results, nil
}

// NewRun summarizes a report as a run log entry.
func NewRun(rep *Report, started, finished time.Time) storage.IngestRun {
	run := storage.IngestRun{
		ID:         uuid.NewString(),
		Kind:       rep.Kind,
		Path:       rep.Root,
		OK:         rep.OK(),
		Inserted:   rep.Inserted(),
		Duplicates: rep.Duplicates(),
		Failures:   rep.Failures(),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if b, err := json.Marshal(rep); err == nil {
		run.ReportJSON = string(b)
	}
	return run
}

// AllOK reports whether every run succeeded.
func AllOK(results []RunResult) bool {
	for _, r := range results {
		if !r.Run.OK {
			return false
		}
	}
	return true
}
