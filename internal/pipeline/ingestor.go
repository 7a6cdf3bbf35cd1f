package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/config"
	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/pipeline/extractors"
	"github.com/oho/hikmara/internal/storage"
)

// DuplicatePolicy decides whether re-learning a known concept fails a file.
type DuplicatePolicy string

const (
	DuplicatesFail   DuplicatePolicy = config.DuplicatesFail
	DuplicatesIgnore DuplicatePolicy = config.DuplicatesIgnore
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrNoLearner    = errors.New("ingestor requires a learner")
)

const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// Ingestor dispatches files to extraction strategies and funnels every unit
// through a Learner.
type Ingestor struct {
	learner     *Learner
	registry    *extractors.Registry
	log         *zap.SugaredLogger
	workers     int
	exclude     []string
	matcher     *excludeMatcher
	policy      DuplicatePolicy
	maxFileSize int64
}

type Option func(*Ingestor)

// WithWorkers sets how many files a directory walk ingests at once.
func WithWorkers(n int) Option {
	return func(in *Ingestor) { in.workers = n }
}

// WithExclude skips walked paths matching any of the glob patterns.
func WithExclude(patterns ...string) Option {
	return func(in *Ingestor) { in.exclude = append(in.exclude, patterns...) }
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(in *Ingestor) { in.policy = p }
}

// WithMaxFileSize skips larger files. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(in *Ingestor) { in.maxFileSize = n }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(in *Ingestor) { in.log = l }
}

// OptionsFromConfig maps pipeline settings onto ingestor options.
func OptionsFromConfig(cfg config.PipelineConfig) []Option {
	return []Option{
		WithWorkers(cfg.Workers),
		WithExclude(cfg.Exclude...),
		WithDuplicatePolicy(DuplicatePolicy(cfg.Duplicates)),
		WithMaxFileSize(cfg.MaxFileSizeBytes),
	}
}

func NewIngestor(learner *Learner, registry *extractors.Registry, opts ...Option) (*Ingestor, error) {
	if learner == nil {
		return nil, ErrNoLearner
	}
	in := &Ingestor{
		learner:  learner,
		registry: registry,
		workers:  1,
		policy:   DuplicatesFail,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.registry == nil {
		in.registry = extractors.CreateDefaultRegistry(extractors.DefaultFenceTag)
	}
	in.log = logger.OrNop(in.log)
	if in.workers < 1 {
		in.workers = 1
	}
	switch in.policy {
	case DuplicatesFail, DuplicatesIgnore:
	default:
		return nil, errors.Newf("unknown duplicate policy %q", in.policy)
	}
	m, err := newExcludeMatcher(in.exclude)
	if err != nil {
		return nil, err
	}
	in.matcher = m
	return in, nil
}

// IngestFile extracts and learns every unit of one file. Unit failures do not
// stop the remaining units. It never panics.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (fr *FileReport) {
	kind := extractors.Classify(path)
	fr = &FileReport{
		Path:             path,
		Kind:             kind.String(),
		ignoreDuplicates: in.policy == DuplicatesIgnore,
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			fr.Status = StatusUnexpected
			fr.Detail = fmt.Sprintf("panic: %v", r)
			fr.Units = nil
			in.log.Errorw("ingest file panicked", logger.FieldPath, path, "panic", r)
		}
	}()

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return in.failFile(fr, StatusNotFound, err)
	case err != nil:
		return in.failFile(fr, StatusReadError, err)
	case info.IsDir():
		return in.failFile(fr, StatusReadError, errors.Newf("%s is a directory", path))
	case in.maxFileSize > 0 && info.Size() > in.maxFileSize:
		return in.failFile(fr, StatusSkipped,
			errors.Newf("file is %d bytes, limit is %d", info.Size(), in.maxFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return in.failFile(fr, StatusReadError, err)
	}

	units, err := in.registry.Extract(path, data)
	switch {
	case errors.Is(err, extractors.ErrMalformed):
		return in.failFile(fr, StatusMalformed, err)
	case err != nil:
		return in.failFile(fr, StatusUnexpected, err)
	}

	fr.Status = StatusProcessed
	fr.Units = make([]Outcome, 0, len(units))
	for _, u := range units {
		fr.Units = append(fr.Units, in.learner.Learn(ctx, u.Name, u.Content, storage.StringPtr(u.Source)))
	}

	in.log.Infow("ingested file",
		logger.FieldPath, path,
		logger.FieldStrategy, fr.Kind,
		logger.FieldCount, len(units),
		"inserted", fr.Inserted(),
		"duplicates", fr.Duplicates(),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	)
	return fr
}

func (in *Ingestor) failFile(fr *FileReport, status Status, err error) *FileReport {
	fr.Status = status
	fr.Detail = err.Error()
	in.log.Warnw("file not ingested",
		logger.FieldPath, fr.Path, logger.FieldStatus, status, logger.FieldError, err)
	return fr
}

// IngestDirectory ingests every file under root. It fails only when root is
// not an existing directory; per-file failures are recorded in the report.
func (in *Ingestor) IngestDirectory(ctx context.Context, root string) (*Report, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "ingest %s", root), ErrNotDirectory)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrNotDirectory, "ingest %s", root)
	}

	paths, walkFailures := in.walk(root)
	rep := &Report{Root: root, Kind: KindDirectory}
	rep.Files = append(in.ingestAll(ctx, paths), walkFailures...)
	sortFiles(rep.Files)

	in.log.Infow("ingested directory",
		logger.FieldPath, root,
		logger.FieldCount, len(rep.Files),
		"inserted", rep.Inserted(),
		"failures", rep.Failures(),
	)
	return rep, nil
}

// Ingest dispatches on whether path is a directory.
func (in *Ingestor) Ingest(ctx context.Context, path string) (*Report, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return in.IngestDirectory(ctx, path)
	}
	return &Report{
		Root:  path,
		Kind:  KindFile,
		Files: []*FileReport{in.IngestFile(ctx, path)},
	}, nil
}

func (in *Ingestor) Learner() *Learner { return in.learner }
