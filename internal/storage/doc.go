// Package storage defines the backend contract for tensorkv and provides its
// two implementations: a volatile sharded map keyed by UUID and a persistent
// Pebble store keyed by 64-bit integers.
//
// # Overview
//
// Every value is an envelope.Envelope. Backends store and return envelopes
// byte-for-byte and never look inside them. Transport layers talk to a Store,
// which owns exactly one backend for its lifetime and forwards every call to
// it without caching or translating errors.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          Transport Layer            │
//	│       (gRPC server, HTTP API)       │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│            Store[K]                 │
//	│     (owns exactly one backend)      │
//	└─────────────────────────────────────┘
//	                 │
//	         ┌───────┴────────┐
//	         ▼                ▼
//	┌────────────────┐ ┌────────────────┐
//	│ VolatileBackend│ │PersistentBackend│
//	│  uuid.UUID     │ │  uint64         │
//	│  64 shards     │ │  Pebble LSM     │
//	└────────────────┘ └────────────────┘
//
// # Core Interfaces
//
// Backend[K]: the contract both implementations satisfy
//   - Put(key, value) - insert or replace, returning the previous value
//   - Get(key) - point lookup
//   - Delete(key) - remove, returning what was removed
//   - Contains(key), Keys(), Len(), IsEmpty()
//   - Clear() - remove every entry
//
// Maintainer: optional capability of the persistent backend
//   - Compact() - synchronous full-range compaction
//   - DBSize() - sum of key and value lengths over every entry
//
// Absence is never an error. Get, Delete and Put report it through their
// boolean result; an error always means the operation failed.
//
// # Implementations
//
// VolatileBackend: in-memory, 64 shards each guarded by its own RWMutex
//   - O(1) amortized point operations
//   - Operations on keys in different shards never contend
//   - Keys() snapshots shard by shard
//   - Data is lost when the process exits
//
// PersistentBackend: Pebble in a single directory
//   - Keys are 8-byte big-endian, so byte order equals numeric order
//   - Values are the envelope encoding
//   - Writes wait for the WAL to sync by default
//   - Len, Keys, Clear and DBSize are full forward scans, O(n)
//
// # Concurrency and Consistency
//
// Both backends are safe for concurrent use without external locking.
//
// Put and Delete on the persistent backend read the old value and then write.
// Pebble has no read-modify-write primitive, so the backend serializes the two
// steps per key with a striped mutex: concurrent Put/Delete calls on the same
// key inside one process are linearizable. A concurrent Get may observe the
// old or the new value, never a torn one. Pebble locks its directory, so no
// other process can write in between.
//
// Clear on the persistent backend collects every key into one batch and
// commits it with a single synced write: it is all-or-nothing.
//
// # Error Handling
//
// ErrClosed: the backend has been closed
//   - Every operation after Close returns it
//
// ErrUnsupported: Compact or DBSize on a backend without Maintainer
//
// Decode failures wrap envelope.ErrMalformed and indicate on-disk corruption.
// Pebble I/O errors are wrapped with the operation and key and returned as is.
// Nothing is retried.
//
// # Usage Examples
//
//	// Persistent store
//	store, err := storage.OpenPersistentStore("./data/kv")
//	if err != nil {
//	    log.Fatalf("open: %v", err)
//	}
//	defer store.Close()
//
//	prev, existed, err := store.Put(12345, env)
//	value, ok, err := store.Get(12345)
//	keys, err := store.Keys()
//
//	// Volatile store
//	mem := storage.NewVolatileStore()
//	_, _, _ = mem.Put(uuid.New(), env)
//
// # See Also
//
//   - internal/envelope: the stored record and its encoding
//   - internal/keyspace: operation counters on top of a Store
package storage
