package pipeline

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/oho/hikmara/internal/logger"
	"github.com/oho/hikmara/internal/storage"
)

// ErrNoStore is returned when a Learner is built without a store.
var ErrNoStore = errors.New("learner requires a concept store")

// Learner is the single funnel from extracted units to the store. It
// normalizes and validates each unit, counts its tokens, then inserts it.
type Learner struct {
	store     storage.ConceptStore
	tokenizer *Tokenizer
	log       *zap.SugaredLogger
}

// NewLearner binds a learner to store. A nil tokenizer counts words.
func NewLearner(store storage.ConceptStore, tokenizer *Tokenizer, log *zap.SugaredLogger) (*Learner, error) {
	if store == nil {
		return nil, errors.WithHint(ErrNoStore, "open a store before building the pipeline")
	}
	log = logger.OrNop(log)
	if tokenizer == nil {
		tokenizer = NewTokenizer(TokenizerWords, log)
	}
	return &Learner{store: store, tokenizer: tokenizer, log: log}, nil
}

func (l *Learner) Store() storage.ConceptStore { return l.store }

// Learn stores one concept and reports what happened. It never returns an
// error; every failure is a tagged Outcome.
func (l *Learner) Learn(ctx context.Context, name, content string, source *string) Outcome {
	name = norm.NFC.String(strings.TrimSpace(name))
	content = norm.NFC.String(content)
	if source != nil {
		s := norm.NFC.String(*source)
		source = &s
	}

	out := Outcome{Name: name}
	if err := storage.ValidateConcept(name, content); err != nil {
		out.Status = StatusInvalid
		out.Detail = err.Error()
		l.log.Debugw("rejected invalid concept", logger.FieldConcept, name, logger.FieldError, err)
		return out
	}
	out.Tokens = l.tokenizer.Count(content)

	id, err := l.store.Insert(ctx, name, content, source)
	switch {
	case err == nil:
		out.Status = StatusInserted
		out.ID = id
		l.log.Debugw("learned concept", logger.FieldConcept, name, "id", id, "tokens", out.Tokens)
	case storage.IsDuplicate(err):
		out.Status = StatusDuplicate
		out.Detail = "concept already exists"
		l.log.Debugw("concept already known", logger.FieldConcept, name)
	case errors.Is(err, storage.ErrInvalidConcept):
		out.Status = StatusInvalid
		out.Detail = err.Error()
	default:
		out.Status = StatusStorageError
		out.Detail = err.Error()
		l.log.Warnw("store rejected concept", logger.FieldConcept, name, logger.FieldError, err)
	}
	return out
}
