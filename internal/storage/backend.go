package storage

import (
	"errors"

	"github.com/dreamware/tensorkv/internal/envelope"
)

var (
	// ErrClosed is returned by every operation on a closed backend.
	ErrClosed = errors.New("storage: backend closed")

	// ErrUnsupported is returned when a maintenance operation is invoked on a
	// backend that does not implement Maintainer.
	ErrUnsupported = errors.New("storage: operation not supported by backend")
)

// Backend defines the contract shared by every storage implementation.
// All implementations must be safe for concurrent access.
type Backend[K comparable] interface {
	// Put inserts or fully replaces the value at key.
	// Returns the previous value and true if one existed.
	Put(key K, value envelope.Envelope) (envelope.Envelope, bool, error)

	// Get retrieves the value at key.
	// A missing key returns false and a nil error.
	Get(key K) (envelope.Envelope, bool, error)

	// Delete removes the value at key.
	// Returns the removed value and true if one existed.
	Delete(key K) (envelope.Envelope, bool, error)

	// Contains reports whether key is present
	Contains(key K) (bool, error)

	// Keys returns every key. Order is implementation-defined;
	// no key appears twice.
	Keys() ([]K, error)

	// Len returns the number of entries
	Len() (int, error)

	// IsEmpty reports whether Len is zero
	IsEmpty() (bool, error)

	// Clear removes every entry
	Clear() error

	// Close releases the backend's resources
	Close() error
}

// Maintainer is implemented by backends that expose storage maintenance.
type Maintainer interface {
	// Compact reclaims space from deleted and overwritten entries without
	// changing logical content. It runs synchronously.
	Compact() error

	// DBSize returns the sum of key and value lengths over every entry.
	// This is a logical estimate, not the on-disk footprint.
	DBSize() (uint64, error)
}
