package storage

import (
	"hash/maphash"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/tensorkv/internal/envelope"
)

const numShards = 64

// volatileShard is one lock domain of a VolatileBackend
type volatileShard struct {
	mu   sync.RWMutex                     // Protects data
	data map[uuid.UUID]envelope.Envelope // Key-value storage
}

// VolatileBackend implements Backend with in-memory storage keyed by UUID.
// Entries are spread over 64 shards so unrelated keys rarely share a lock.
// Values are copied on the way in and out to prevent external modification.
type VolatileBackend struct {
	shards [numShards]*volatileShard
	seed   maphash.Seed

	lifecycle sync.RWMutex // Held exclusively by Close
	closed    bool
}

var _ Backend[uuid.UUID] = (*VolatileBackend)(nil)

// NewVolatileBackend creates an empty in-memory backend
func NewVolatileBackend() *VolatileBackend {
	v := &VolatileBackend{seed: maphash.MakeSeed()}
	for i := range numShards {
		v.shards[i] = &volatileShard{data: make(map[uuid.UUID]envelope.Envelope)}
	}
	return v
}

func (v *VolatileBackend) shard(key uuid.UUID) *volatileShard {
	return v.shards[maphash.Bytes(v.seed, key[:])%numShards]
}

// acquire guards an operation against a concurrent Close.
// The returned function must be called when the operation is done.
func (v *VolatileBackend) acquire() (func(), error) {
	v.lifecycle.RLock()
	if v.closed {
		v.lifecycle.RUnlock()
		return nil, ErrClosed
	}
	return v.lifecycle.RUnlock, nil
}

// Put stores a copy of value, returning the replaced value if any
func (v *VolatileBackend) Put(key uuid.UUID, value envelope.Envelope) (envelope.Envelope, bool, error) {
	release, err := v.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	s := v.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stored values are never handed out, so the previous one can be returned as is
	prev, existed := s.data[key]
	s.data[key] = value.Clone()
	return prev, existed, nil
}

// Get returns a copy of the value at key
func (v *VolatileBackend) Get(key uuid.UUID) (envelope.Envelope, bool, error) {
	release, err := v.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	s := v.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return envelope.Envelope{}, false, nil
	}
	return value.Clone(), true, nil
}

// Delete removes key, returning the removed value if any
func (v *VolatileBackend) Delete(key uuid.UUID) (envelope.Envelope, bool, error) {
	release, err := v.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	s := v.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.data[key]
	if !ok {
		return envelope.Envelope{}, false, nil
	}
	delete(s.data, key)
	return value, true, nil
}

// Contains reports whether key is present
func (v *VolatileBackend) Contains(key uuid.UUID) (bool, error) {
	release, err := v.acquire()
	if err != nil {
		return false, err
	}
	defer release()

	s := v.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[key]
	return ok, nil
}

// Keys returns all keys in no particular order.
// Each shard is snapshotted under its read lock; writers on other shards
// proceed while the snapshot is taken.
func (v *VolatileBackend) Keys() ([]uuid.UUID, error) {
	release, err := v.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	keys := make([]uuid.UUID, 0, v.approxLen())
	for _, s := range v.shards {
		s.mu.RLock()
		for key := range s.data {
			keys = append(keys, key)
		}
		s.mu.RUnlock()
	}
	return keys, nil
}

// Len returns the number of entries
func (v *VolatileBackend) Len() (int, error) {
	release, err := v.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return v.approxLen(), nil
}

// IsEmpty reports whether the backend holds no entries
func (v *VolatileBackend) IsEmpty() (bool, error) {
	n, err := v.Len()
	return n == 0, err
}

func (v *VolatileBackend) approxLen() int {
	n := 0
	for _, s := range v.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes every entry, one shard at a time
func (v *VolatileBackend) Clear() error {
	release, err := v.acquire()
	if err != nil {
		return err
	}
	defer release()

	for _, s := range v.shards {
		s.mu.Lock()
		s.data = make(map[uuid.UUID]envelope.Envelope)
		s.mu.Unlock()
	}
	return nil
}

// Close drops all entries. Subsequent operations return ErrClosed.
func (v *VolatileBackend) Close() error {
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	for _, s := range v.shards {
		s.mu.Lock()
		s.data = nil
		s.mu.Unlock()
	}
	return nil
}
