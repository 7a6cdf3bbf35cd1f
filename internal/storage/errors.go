package storage

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicate reports an insert whose concept name already exists. It is
	// an expected outcome, not a fault.
	ErrDuplicate = errors.New("concept already exists")

	// ErrStorage marks every fault raised by the backing store (I/O,
	// corruption, closed handle). Use errors.Is(err, ErrStorage).
	ErrStorage = errors.New("storage error")

	// ErrInvalidConcept reports an empty name or empty content.
	ErrInvalidConcept = errors.New("invalid concept")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
)

// MarkStorage wraps a backend error and marks it as ErrStorage.
func MarkStorage(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStorage)
}

// Closed is the error every backend returns once closed.
func Closed() error {
	return errors.Mark(ErrClosed, ErrStorage)
}

func storageErr(err error, format string, args ...any) error {
	return MarkStorage(err, format, args...)
}

func closedErr() error {
	return Closed()
}

// IsDuplicate reports whether err is a name collision.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsStorage reports whether err is a store fault.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
