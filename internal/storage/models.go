package storage

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// timeLayout is fixed width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Concept is one uniquely named knowledge record.
type Concept struct {
	ID          int64     `json:"id"`
	ConceptName string    `json:"concept_name"`
	Content     string    `json:"content"`
	Source      *string   `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListOptions filters List. A zero Limit means no limit.
type ListOptions struct {
	Prefix string
	Source string
	Limit  int
	Offset int
}

// IngestRun records one top-level ingestion call.
type IngestRun struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Path       string    `json:"path"`
	OK         bool      `json:"ok"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Failures   int       `json:"failures"`
	ReportJSON string    `json:"report_json,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ValidateConcept rejects an empty name or whitespace-only content.
func ValidateConcept(name, content string) error {
	if name == "" {
		return errors.Wrap(ErrInvalidConcept, "concept name is empty")
	}
	return ValidateContent(name, content)
}

func ValidateContent(name, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.Wrapf(ErrInvalidConcept, "concept %q has empty content", name)
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
