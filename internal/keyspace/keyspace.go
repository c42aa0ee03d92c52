// Package keyspace pairs a storage.Store with a name and operation counters.
//
// Transports serve a keyspace rather than a bare store so that operational
// statistics (gets, puts, updates, deletes, misses) are tracked in one place
// for both the persistent u64 keyspace and the volatile UUID keyspace. The
// counters never influence storage behaviour.
package keyspace

import (
	"bytes"
	"cmp"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/tensorkv/internal/envelope"
	"github.com/dreamware/tensorkv/internal/storage"
)

// Kind names the backend behind a keyspace
type Kind string

const (
	// KindPersistent is a Pebble-backed u64 keyspace
	KindPersistent Kind = "persistent"
	// KindVolatile is an in-memory UUID keyspace
	KindVolatile Kind = "volatile"
)

// OperationStats tracks operation counts
type OperationStats struct {
	Gets    uint64 `json:"gets"`    // Number of get operations
	Misses  uint64 `json:"misses"`  // Gets and deletes that found nothing
	Puts    uint64 `json:"puts"`    // Number of put operations
	Updates uint64 `json:"updates"` // Puts that replaced an existing value
	Deletes uint64 `json:"deletes"` // Number of delete operations
	Errors  uint64 `json:"errors"`  // Operations that failed
}

// Info contains metadata about a keyspace
type Info struct {
	Name    string         `json:"name"`
	Kind    Kind           `json:"kind"`
	Entries int            `json:"entries"`
	Bytes   uint64         `json:"bytes,omitempty"` // Only for maintainable stores
	Ops     OperationStats `json:"operations"`
}

// Keyspace is a named store with operation statistics
type Keyspace[K comparable] struct {
	Name  string            // Keyspace name, reported in Info
	Kind  Kind              // Backend kind
	Store *storage.Store[K] // The store this keyspace owns
	ops   OperationStats
	cmp   func(a, b K) int
}

// New creates a keyspace over store. compare orders keys for ListKeys.
func New[K comparable](name string, kind Kind, store *storage.Store[K], compare func(a, b K) int) *Keyspace[K] {
	return &Keyspace[K]{
		Name:  name,
		Kind:  kind,
		Store: store,
		cmp:   compare,
	}
}

// NewPersistent creates a keyspace over a u64 store
func NewPersistent(name string, store *storage.Store[uint64]) *Keyspace[uint64] {
	return New(name, KindPersistent, store, cmp.Compare[uint64])
}

// NewVolatile creates a keyspace over a UUID store
func NewVolatile(name string, store *storage.Store[uuid.UUID]) *Keyspace[uuid.UUID] {
	return New(name, KindVolatile, store, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}

func (ks *Keyspace[K]) countErr(err error) error {
	if err != nil {
		atomic.AddUint64(&ks.ops.Errors, 1)
	}
	return err
}

// Get retrieves a value from the keyspace
// Increments get counter for statistics
func (ks *Keyspace[K]) Get(key K) (envelope.Envelope, bool, error) {
	atomic.AddUint64(&ks.ops.Gets, 1)
	value, ok, err := ks.Store.Get(key)
	if err == nil && !ok {
		atomic.AddUint64(&ks.ops.Misses, 1)
	}
	return value, ok, ks.countErr(err)
}

// Put stores a value in the keyspace
// Increments put counter, and update counter when a value was replaced
func (ks *Keyspace[K]) Put(key K, value envelope.Envelope) (envelope.Envelope, bool, error) {
	atomic.AddUint64(&ks.ops.Puts, 1)
	prev, existed, err := ks.Store.Put(key, value)
	if err == nil && existed {
		atomic.AddUint64(&ks.ops.Updates, 1)
	}
	return prev, existed, ks.countErr(err)
}

// Delete removes a key from the keyspace
// Increments delete counter for statistics
func (ks *Keyspace[K]) Delete(key K) (envelope.Envelope, bool, error) {
	atomic.AddUint64(&ks.ops.Deletes, 1)
	removed, existed, err := ks.Store.Delete(key)
	if err == nil && !existed {
		atomic.AddUint64(&ks.ops.Misses, 1)
	}
	return removed, existed, ks.countErr(err)
}

// ListKeys returns all keys in ascending order
func (ks *Keyspace[K]) ListKeys() ([]K, error) {
	keys, err := ks.Store.Keys()
	if err != nil {
		return nil, ks.countErr(err)
	}
	slices.SortFunc(keys, ks.cmp)
	return keys, nil
}

// Stats returns a snapshot of the operation counters
func (ks *Keyspace[K]) Stats() OperationStats {
	return OperationStats{
		Gets:    atomic.LoadUint64(&ks.ops.Gets),
		Misses:  atomic.LoadUint64(&ks.ops.Misses),
		Puts:    atomic.LoadUint64(&ks.ops.Puts),
		Updates: atomic.LoadUint64(&ks.ops.Updates),
		Deletes: atomic.LoadUint64(&ks.ops.Deletes),
		Errors:  atomic.LoadUint64(&ks.ops.Errors),
	}
}

// Info returns metadata about the keyspace.
// Entry counting and byte accounting may be O(n) on persistent stores.
func (ks *Keyspace[K]) Info() (Info, error) {
	n, err := ks.Store.Len()
	if err != nil {
		return Info{}, ks.countErr(err)
	}
	info := Info{
		Name:    ks.Name,
		Kind:    ks.Kind,
		Entries: n,
		Ops:     ks.Stats(),
	}
	if ks.Store.Maintainable() {
		size, err := ks.Store.DBSize()
		if err != nil {
			return Info{}, ks.countErr(err)
		}
		info.Bytes = size
	}
	return info, nil
}
