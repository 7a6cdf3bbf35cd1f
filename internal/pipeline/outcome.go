package pipeline

import (
	"encoding/json"
)

// Status tags the result of learning one unit or ingesting one file.
type Status string

// Unit statuses.
const (
	StatusInserted     Status = "inserted"
	StatusDuplicate    Status = "duplicate"
	StatusStorageError Status = "storage_error"
	StatusInvalid      Status = "invalid"
)

// File statuses. A file with StatusProcessed was read and extracted; its
// result is decided by its units.
const (
	StatusProcessed  Status = "processed"
	StatusNotFound   Status = "not_found"
	StatusMalformed  Status = "malformed"
	StatusReadError  Status = "read_error"
	StatusSkipped    Status = "skipped"
	StatusUnexpected Status = "unexpected"
)

// Outcome is the result of one Learn call.
type Outcome struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	ID     int64  `json:"id,omitempty"`
	Tokens int    `json:"tokens,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the unit was stored.
func (o Outcome) OK() bool {
	return o.Status == StatusInserted
}

// FileReport collects the outcomes of every unit extracted from one file.
type FileReport struct {
	Path   string    `json:"path"`
	Kind   string    `json:"kind"`
	Status Status    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Units  []Outcome `json:"units,omitempty"`

	ignoreDuplicates bool
}

func (r *FileReport) accepted(o Outcome) bool {
	return o.OK() || (r.ignoreDuplicates && o.Status == StatusDuplicate)
}

// OK is true when the file was processed and every unit was accepted. A file
// with zero units succeeds.
func (r *FileReport) OK() bool {
	if r.Status != StatusProcessed {
		return false
	}
	for _, u := range r.Units {
		if !r.accepted(u) {
			return false
		}
	}
	return true
}

func (r *FileReport) count(s Status) int {
	n := 0
	for _, u := range r.Units {
		if u.Status == s {
			n++
		}
	}
	return n
}

func (r *FileReport) Inserted() int   { return r.count(StatusInserted) }
func (r *FileReport) Duplicates() int { return r.count(StatusDuplicate) }

func (r *FileReport) MarshalJSON() ([]byte, error) {
	type alias FileReport
	return json.Marshal(struct {
		*alias
		OK bool `json:"ok"`
	}{(*alias)(r), r.OK()})
}

// Report aggregates one top-level Ingest call.
type Report struct {
	Root  string        `json:"root"`
	Kind  string        `json:"kind"`
	Files []*FileReport `json:"files"`
}

// OK is the conjunction over every file.
func (r *Report) OK() bool {
	for _, f := range r.Files {
		if !f.OK() {
			return false
		}
	}
	return true
}

func (r *Report) Inserted() int {
	n := 0
	for _, f := range r.Files {
		n += f.Inserted()
	}
	return n
}

func (r *Report) Duplicates() int {
	n := 0
	for _, f := range r.Files {
		n += f.Duplicates()
	}
	return n
}

// Failures counts files that did not succeed.
func (r *Report) Failures() int {
	n := 0
	for _, f := range r.Files {
		if !f.OK() {
			n++
		}
	}
	return n
}

func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		*alias
		OK         bool `json:"ok"`
		Inserted   int  `json:"inserted"`
		Duplicates int  `json:"duplicates"`
		Failures   int  `json:"failures"`
	}{(*alias)(r), r.OK(), r.Inserted(), r.Duplicates(), r.Failures()})
}
