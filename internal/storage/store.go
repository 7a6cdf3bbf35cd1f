package storage

import "context"

// ConceptStore is a durable keyed record set with a unique concept name.
//
// Uniqueness is enforced by the backend itself (a declared constraint or a
// transactional check), never by the caller.
type ConceptStore interface {
	// Insert appends a record and returns its identifier. A colliding name
	// fails with ErrDuplicate; backend faults are marked ErrStorage.
	Insert(ctx context.Context, name, content string, source *string) (int64, error)
	// Get returns nil, nil when no record has that name.
	Get(ctx context.Context, name string) (*Concept, error)
	Update(ctx context.Context, name, content string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]Concept, error)
	Count(ctx context.Context) (int, error)
	// Close is idempotent.
	Close() error
}

// RunLog persists ingestion run summaries.
type RunLog interface {
	RecordRun(ctx context.Context, run IngestRun) error
	ListRuns(ctx context.Context, limit int) ([]IngestRun, error)
	GetRun(ctx context.Context, id string) (*IngestRun, error)
}

// Backend is what the daemon opens at startup: a concept store that also
// keeps the run log.
type Backend interface {
	ConceptStore
	RunLog
}
