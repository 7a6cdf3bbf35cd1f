// Package badger is an embedded key/value concept store on BadgerDB.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/storage"
)

const (
	conceptPrefix = "c/"
	idIndexPrefix = "i/"
	runPrefix     = "r/"
	conceptIDSeq  = "seq/concept"

	defaultSequenceBandwidth = 100
	maxConflictRetries       = 5
)

// Store implements storage.Backend on BadgerDB. Concept values are JSON and
// keyed by name; an ID index keeps List in insertion order.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

var _ storage.Backend = (*Store)(nil)

type conceptRecord struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Source    *string   `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// zapAdapter routes badger's internal logging onto zap.
type zapAdapter struct {
	log *zap.SugaredLogger
}

var _ badger.Logger = (*zapAdapter)(nil)

func (a *zapAdapter) Errorf(msg string, items ...any) {
	a.log.Error(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (a *zapAdapter) Warningf(msg string, items ...any) {
	a.log.Warn(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (a *zapAdapter) Infof(msg string, items ...any) {
	a.log.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (a *zapAdapter) Debugf(msg string, items ...any) {
	a.log.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

// Open opens (or creates) a store in dir. An empty dir opens an in-memory
// store.
func Open(dir string, log *zap.SugaredLogger) (*Store, error) {
	log = logger.OrNop(log).With(logger.FieldBackend, "badger")

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storage.MarkStorage(err, "create badger directory %s", dir)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, storage.MarkStorage(err, "stat %s", dir)
		}
		if !info.IsDir() {
			return nil, storage.MarkStorage(errors.Newf("%s is not a directory", dir), "open badger")
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &zapAdapter{log: log}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.MarkStorage(err, "open badger")
	}
	seq, err := db.GetSequence([]byte(conceptIDSeq), defaultSequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, storage.MarkStorage(err, "open id sequence")
	}
	return &Store{db: db, seq: seq, logger: log}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs error
	if err := s.seq.Release(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if errs != nil {
		return storage.MarkStorage(errs, "close badger")
	}
	return nil
}

func conceptKey(name string) []byte {
	return []byte(conceptPrefix + name)
}

func idKey(id int64) []byte {
	k := make([]byte, len(idIndexPrefix)+8)
	copy(k, idIndexPrefix)
	binary.BigEndian.PutUint64(k[len(idIndexPrefix):], uint64(id))
	return k
}

// Insert checks and writes inside one read-write transaction. A concurrent
// writer of the same name makes the commit fail with ErrConflict; the retry
// then observes the committed record and reports a duplicate.
func (s *Store) Insert(ctx context.Context, name, content string, source *string) (int64, error) {
	if err := storage.ValidateConcept(name, content); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, storage.Closed()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, storage.MarkStorage(err, "insert concept %q", name)
		}
		id, err := s.tryInsert(name, content, source)
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			s.logger.Debugw("insert conflict, retrying", logger.FieldConcept, name, "attempt", attempt+1)
			continue
		}
		if err != nil {
			if storage.IsDuplicate(err) {
				return 0, err
			}
			return 0, storage.MarkStorage(err, "insert concept %q", name)
		}
		return id, nil
	}
}

func (s *Store) tryInsert(name, content string, source *string) (int64, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	key := conceptKey(name)
	if _, err := txn.Get(key); err == nil {
		return 0, errors.Wrapf(storage.ErrDuplicate, "concept %q", name)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	next, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at zero; row IDs start at one.
	id := int64(next) + 1

	val, err := json.Marshal(conceptRecord{
		ID:        id,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	if err := txn.Set(key, val); err != nil {
		return 0, err
	}
	if err := txn.Set(idKey(id), []byte(name)); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func readConcept(txn *badger.Txn, name string) (*storage.Concept, error) {
	item, err := txn.Get(conceptKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec conceptRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &storage.Concept{
		ID:          rec.ID,
		ConceptName: name,
		Content:     rec.Content,
		Source:      rec.Source,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func (s *Store) Get(ctx context.Context, name string) (*storage.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Closed()
	}

	var c *storage.Concept
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = readConcept(txn, name)
		return err
	})
	if err != nil {
		return nil, storage.MarkStorage(err, "get concept %q", name)
	}
	return c, nil
}

func (s *Store) Update(ctx context.Context, name, content string) (bool, error) {
	if err := storage.ValidateContent(name, content); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storage.Closed()
	}

	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		c, err := readConcept(txn, name)
		if err != nil || c == nil {
			return err
		}
		found = true
		val, err := json.Marshal(conceptRecord{
			ID:        c.ID,
			Content:   content,
			Source:    c.Source,
			CreatedAt: c.CreatedAt,
		})
		if err != nil {
			return err
		}
		return txn.Set(conceptKey(name), val)
	})
	if err != nil {
		return false, storage.MarkStorage(err, "update concept %q", name)
	}
	return found, nil
}

func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storage.Closed()
	}

	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		c, err := readConcept(txn, name)
		if err != nil || c == nil {
			return err
		}
		found = true
		if err := txn.Delete(idKey(c.ID)); err != nil {
			return err
		}
		return txn.Delete(conceptKey(name))
	})
	if err != nil {
		return false, storage.MarkStorage(err, "delete concept %q", name)
	}
	return found, nil
}

// List walks the ID index, so results are in insertion order.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]storage.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Closed()
	}

	var out []storage.Concept
	skipped := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(idIndexPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			name, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(string(name), opts.Prefix) {
				continue
			}
			c, err := readConcept(txn, string(name))
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			if opts.Source != "" && (c.Source == nil || *c.Source != opts.Source) {
				continue
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			out = append(out, *c)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.MarkStorage(err, "list concepts")
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, storage.Closed()
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(conceptPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, storage.MarkStorage(err, "count concepts")
	}
	return n, nil
}

// -- IngestRun operations --

func (s *Store) RecordRun(ctx context.Context, run storage.IngestRun) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.Closed()
	}

	val, err := json.Marshal(run)
	if err != nil {
		return storage.MarkStorage(err, "encode run %s", run.ID)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runPrefix+run.ID), val)
	})
	if err != nil {
		return storage.MarkStorage(err, "record run %s", run.ID)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.IngestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Closed()
	}

	var runs []storage.IngestRun
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: []byte(runPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var r storage.IngestRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, storage.MarkStorage(err, "list runs")
	}

	slices.SortFunc(runs, func(a, b storage.IngestRun) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*storage.IngestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Closed()
	}

	var run *storage.IngestRun
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r storage.IngestRun
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			run = &r
			return nil
		})
	})
	if err != nil {
		return nil, storage.MarkStorage(err, "get run %s", id)
	}
	return run, nil
}
