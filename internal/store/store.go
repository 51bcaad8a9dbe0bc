// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is a versioned key/value pair. Version starts at 1 on creation and
// increments by one on every successful conditional write.
type Record struct {
	Key     string
	Value   []byte
	Version int64
}

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("store: key not found")

	// ErrConflict is returned when a conditional write carries a stale version.
	ErrConflict = errors.New("store: version conflict")
)

// TransientError wraps network/timeout failures that are safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// KV is the record store contract the engine depends on. Any backend that
// provides these operations with per-key linearizability is sufficient.
//
// ConditionalPut with expectedVersion == 0 creates the key only if absent.
// A stale expectedVersion is rejected with ErrConflict; exactly one of two
// concurrent writers with the same expected version wins.
type KV interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, value []byte) error
	ConditionalPut(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)
	Scan(ctx context.Context, prefix string) ([]Record, error)
}
