package storage

import (
	"github.com/google/uuid"

	"github.com/dreamware/tensorkv/internal/envelope"
)

// Store is the single type transport layers depend on. It owns exactly one
// backend, chosen at construction, and forwards every call to it with no
// additional logic.
type Store[K comparable] struct {
	backend Backend[K]
}

// NewStore wraps backend. The store takes ownership: closing the store
// closes the backend.
func NewStore[K comparable](backend Backend[K]) *Store[K] {
	return &Store[K]{backend: backend}
}

// NewVolatileStore creates a store over a fresh in-memory backend
func NewVolatileStore() *Store[uuid.UUID] {
	return NewStore[uuid.UUID](NewVolatileBackend())
}

// OpenPersistentStore creates a store over the Pebble database at path
func OpenPersistentStore(path string, opts ...PersistentOption) (*Store[uint64], error) {
	backend, err := OpenPersistentBackend(path, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore[uint64](backend), nil
}

// Put inserts or replaces the value at key, returning the previous value
func (s *Store[K]) Put(key K, value envelope.Envelope) (envelope.Envelope, bool, error) {
	return s.backend.Put(key, value)
}

// Get retrieves the value at key
func (s *Store[K]) Get(key K) (envelope.Envelope, bool, error) {
	return s.backend.Get(key)
}

// Delete removes key, returning the removed value
func (s *Store[K]) Delete(key K) (envelope.Envelope, bool, error) {
	return s.backend.Delete(key)
}

// Contains reports whether key is present
func (s *Store[K]) Contains(key K) (bool, error) {
	return s.backend.Contains(key)
}

// Keys returns every key
func (s *Store[K]) Keys() ([]K, error) {
	return s.backend.Keys()
}

// Len returns the number of entries
func (s *Store[K]) Len() (int, error) {
	return s.backend.Len()
}

// IsEmpty reports whether the store holds no entries
func (s *Store[K]) IsEmpty() (bool, error) {
	return s.backend.IsEmpty()
}

// Clear removes every entry
func (s *Store[K]) Clear() error {
	return s.backend.Clear()
}

// Close releases the backend
func (s *Store[K]) Close() error {
	return s.backend.Close()
}

// Maintainable reports whether Compact and DBSize are supported
func (s *Store[K]) Maintainable() bool {
	_, ok := s.backend.(Maintainer)
	return ok
}

// Compact forwards to the backend, or returns ErrUnsupported
func (s *Store[K]) Compact() error {
	m, ok := s.backend.(Maintainer)
	if !ok {
		return ErrUnsupported
	}
	return m.Compact()
}

// DBSize forwards to the backend, or returns ErrUnsupported
func (s *Store[K]) DBSize() (uint64, error) {
	m, ok := s.backend.(Maintainer)
	if !ok {
		return 0, ErrUnsupported
	}
	return m.DBSize()
}
