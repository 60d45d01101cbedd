// Package blob defines the object store the explorer persists everything into, plus
// in-memory and Badger-backed implementations. The GCS implementation lives in
// internal/gcp.
//
// Every store supports conditional writes: create-if-absent for immutable artifacts
// and match-version for the optimistic read-modify-write of the cumulative dataset.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("blob: object not found")

	// ErrPreconditionFailed is returned by Put when its precondition does not hold:
	// the object already exists for IfAbsent, or its version moved on for IfMatch.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// Version identifies one generation of an object. Zero means "no object".
type Version int64

// Object is the content of a key together with the version it was read at.
type Object struct {
	Key     string
	Data    []byte
	Version Version
}

// Precondition guards a Put.
type Precondition struct {
	// IfAbsent requires the key to not exist.
	IfAbsent bool
	// IfMatch requires the key to exist at exactly this version. Ignored when zero.
	IfMatch Version
}

// IfAbsent is the create-only precondition.
func IfAbsent() Precondition { return Precondition{IfAbsent: true} }

// IfMatch is the compare-and-swap precondition.
func IfMatch(v Version) Precondition { return Precondition{IfMatch: v} }

// Unconditional overwrites whatever is stored.
func Unconditional() Precondition { return Precondition{} }

// Store is the object store client consumed by the pipeline and readers.
// Implementations must be safe for concurrent use.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, cond Precondition) (Version, error)
	// List returns all keys beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// check evaluates a precondition against the current version (0 when absent).
func (p Precondition) check(current Version) error {
	if p.IfAbsent && current != 0 {
		return ErrPreconditionFailed
	}
	if p.IfMatch != 0 && p.IfMatch != current {
		return ErrPreconditionFailed
	}
	return nil
}

// PutIfAbsent writes data only when key does not exist. An existing object is not
// an error: the return value reports whether this call created it.
func PutIfAbsent(ctx context.Context, s Store, key string, data []byte) (bool, error) {
	_, err := s.Put(ctx, key, data, IfAbsent())
	if errors.Is(err, ErrPreconditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
