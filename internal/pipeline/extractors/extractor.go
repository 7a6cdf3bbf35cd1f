// Package extractors turns file contents into named concept units.
//
// Plain text becomes one unit per sentence, Go source one unit per type,
// function and import, and markup one unit per fenced code block. Go units
// are tagged go_class:, go_function:, go_import: and go_import_from:. The
// py_ prefixes used for Python sources are never produced.
package extractors

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the closed set of extraction strategies.
type Kind int

const (
	KindText Kind = iota
	KindGoSource
	KindMarkup
)

func (k Kind) String() string {
	switch k {
	case KindGoSource:
		return "go"
	case KindMarkup:
		return "markup"
	default:
		return "text"
	}
}

var (
	// ErrMalformed marks a file whose structure could not be parsed. No units
	// are produced from it.
	ErrMalformed = errors.New("malformed source")

	ErrNoExtractor = errors.New("no extractor registered")
)

// Classify picks a strategy from the file name alone. Suffixes are matched
// case-sensitively; anything unrecognized is plain text.
func Classify(path string) Kind {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".go"):
		return KindGoSource
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return KindMarkup
	default:
		return KindText
	}
}

// Unit is one candidate concept produced by an extractor.
type Unit struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Extractor turns the bytes of one file into zero or more units.
type Extractor interface {
	Kind() Kind
	Name() string
	Extract(path string, data []byte) ([]Unit, error)
}

// Registry maps each Kind to exactly one Extractor.
type Registry struct {
	extractors map[Kind]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[Kind]Extractor)}
}

// Register installs e for its kind, replacing any previous extractor.
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Kind()] = e
}

// For returns the extractor that handles path.
func (r *Registry) For(path string) (Extractor, error) {
	kind := Classify(path)
	e, ok := r.extractors[kind]
	if !ok {
		return nil, errors.Wrapf(ErrNoExtractor, "kind %s for %s", kind, path)
	}
	return e, nil
}

// Extract classifies path and runs the matching extractor over data.
func (r *Registry) Extract(path string, data []byte) ([]Unit, error) {
	e, err := r.For(path)
	if err != nil {
		return nil, err
	}
	return e.Extract(path, data)
}

// CreateDefaultRegistry builds a registry with all extractors. fenceTag
// selects which fenced blocks the markup extractor keeps.
func CreateDefaultRegistry(fenceTag string) *Registry {
	r := NewRegistry()
	r.Register(&TextExtractor{})
	r.Register(&GoExtractor{})
	r.Register(NewMarkupExtractor(fenceTag))
	return r
}
