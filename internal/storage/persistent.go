package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/dreamware/tensorkv/internal/envelope"
)

const (
	// keyLen is the width of an encoded key
	keyLen = 8

	numStripes = 256

	defaultBytesPerSync = 1 << 20
	defaultMaxOpenFiles = 10000
)

// PersistentOptions tunes the Pebble instance behind a PersistentBackend.
type PersistentOptions struct {
	// SyncWrites makes every write wait for the WAL to reach stable storage.
	SyncWrites bool

	// BytesPerSync forces an fsync of sstables and the WAL after this many
	// bytes are written, bounding the amount of unsynced data.
	BytesPerSync int

	// MaxOpenFiles is the open-file budget of the engine.
	MaxOpenFiles int

	// Logger receives engine events. Defaults to a null logger.
	Logger hclog.Logger
}

// DefaultPersistentOptions favor durability over raw throughput
func DefaultPersistentOptions() PersistentOptions {
	return PersistentOptions{
		SyncWrites:   true,
		BytesPerSync: defaultBytesPerSync,
		MaxOpenFiles: defaultMaxOpenFiles,
	}
}

// PersistentOption mutates PersistentOptions
type PersistentOption func(*PersistentOptions)

// WithSyncWrites toggles synced writes
func WithSyncWrites(sync bool) PersistentOption {
	return func(o *PersistentOptions) { o.SyncWrites = sync }
}

// WithBytesPerSync sets the background sync threshold
func WithBytesPerSync(n int) PersistentOption {
	return func(o *PersistentOptions) { o.BytesPerSync = n }
}

// WithMaxOpenFiles sets the open-file budget
func WithMaxOpenFiles(n int) PersistentOption {
	return func(o *PersistentOptions) { o.MaxOpenFiles = n }
}

// WithLogger routes engine logs to logger
func WithLogger(logger hclog.Logger) PersistentOption {
	return func(o *PersistentOptions) { o.Logger = logger }
}

// PersistentBackend implements Backend on a Pebble database keyed by uint64.
//
// Keys are stored as 8 bytes big-endian so that the engine's byte ordering
// equals numeric ordering. Values are envelope encodings.
type PersistentBackend struct {
	db        *pebble.DB
	path      string
	writeOpts *pebble.WriteOptions
	logger    hclog.Logger

	// stripes serialize the read-then-write steps of Put and Delete per key
	stripes [numStripes]sync.Mutex

	lifecycle sync.RWMutex // Held exclusively by Close
	closed    bool
}

var (
	_ Backend[uint64] = (*PersistentBackend)(nil)
	_ Maintainer      = (*PersistentBackend)(nil)
)

// OpenPersistentBackend opens or creates the database at path.
func OpenPersistentBackend(path string, opts ...PersistentOption) (*PersistentBackend, error) {
	o := DefaultPersistentOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data directory %s: %w", path, err)
	}

	db, err := pebble.Open(path, &pebble.Options{
		BytesPerSync:    o.BytesPerSync,
		WALBytesPerSync: o.BytesPerSync,
		MaxOpenFiles:    o.MaxOpenFiles,
		Logger:          pebbleLogger{o.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	writeOpts := pebble.NoSync
	if o.SyncWrites {
		writeOpts = pebble.Sync
	}

	o.Logger.Debug("opened persistent backend", "path", path, "sync_writes", o.SyncWrites)
	return &PersistentBackend{
		db:        db,
		path:      path,
		writeOpts: writeOpts,
		logger:    o.Logger,
	}, nil
}

// Path returns the database directory
func (p *PersistentBackend) Path() string {
	return p.path
}

func encodeKey(key uint64) []byte {
	var b [keyLen]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}

func decodeKey(b []byte) (uint64, bool) {
	if len(b) != keyLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func (p *PersistentBackend) stripe(key uint64) *sync.Mutex {
	// Fibonacci hashing spreads sequential and strided keys over all stripes
	return &p.stripes[(key*0x9E3779B97F4A7C15)>>56]
}

func (p *PersistentBackend) acquire() (func(), error) {
	p.lifecycle.RLock()
	if p.closed {
		p.lifecycle.RUnlock()
		return nil, ErrClosed
	}
	return p.lifecycle.RUnlock, nil
}

// Put writes value at key and returns the value it replaced.
func (p *PersistentBackend) Put(key uint64, value envelope.Envelope) (envelope.Envelope, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	mu := p.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	prev, existed, err := p.get(key)
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	if err := p.db.Set(encodeKey(key), envelope.Encode(value), p.writeOpts); err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("storage: put key %d: %w", key, err)
	}
	return prev, existed, nil
}

// Get reads the value at key
func (p *PersistentBackend) Get(key uint64) (envelope.Envelope, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	return p.get(key)
}

func (p *PersistentBackend) get(key uint64) (envelope.Envelope, bool, error) {
	raw, closer, err := p.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return envelope.Envelope{}, false, nil
	}
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("storage: get key %d: %w", key, err)
	}
	defer closer.Close()

	// Decode copies out of raw, which is only valid until closer is closed
	value, err := envelope.Decode(raw)
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("storage: decode value for key %d: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key and returns the value it held
func (p *PersistentBackend) Delete(key uint64) (envelope.Envelope, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return envelope.Envelope{}, false, err
	}
	defer release()

	mu := p.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	prev, existed, err := p.get(key)
	if err != nil || !existed {
		return envelope.Envelope{}, false, err
	}
	if err := p.db.Delete(encodeKey(key), p.writeOpts); err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("storage: delete key %d: %w", key, err)
	}
	return prev, true, nil
}

// Contains reports whether key is present without decoding its value
func (p *PersistentBackend) Contains(key uint64) (bool, error) {
	release, err := p.acquire()
	if err != nil {
		return false, err
	}
	defer release()

	_, closer, err := p.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: get key %d: %w", key, err)
	}
	return true, closer.Close()
}

// scan calls fn for every entry in ascending key order.
// key and value are only valid during the call.
func (p *PersistentBackend) scan(op string, fn func(key, value []byte) error) (err error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("storage: %s: %w", op, err)
	}
	defer func() {
		if closeErr := iter.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("storage: %s: close iterator: %w", op, closeErr)).ErrorOrNil()
		}
	}()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("storage: %s: %w", op, err)
	}
	return nil
}

// Keys returns every key in ascending numeric order.
// Entries whose key is not exactly 8 bytes are skipped.
func (p *PersistentBackend) Keys() ([]uint64, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	var keys []uint64
	err = p.scan("list keys", func(k, _ []byte) error {
		if key, ok := decodeKey(k); ok {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Len counts entries with a full forward scan. It is O(n); callers needing
// frequent size checks should cache the result.
func (p *PersistentBackend) Len() (int, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	err = p.scan("count entries", func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// IsEmpty reports whether the database holds no entries
func (p *PersistentBackend) IsEmpty() (bool, error) {
	n, err := p.Len()
	return n == 0, err
}

// Clear deletes every entry in one atomic, synced batch
func (p *PersistentBackend) Clear() error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	batch := p.db.NewBatch()
	defer batch.Close()

	err = p.scan("clear", func(k, _ []byte) error {
		// Batch.Delete copies the key
		return batch.Delete(k, nil)
	})
	if err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}

	count := batch.Count()
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("storage: clear: commit batch: %w", err)
	}
	p.logger.Debug("cleared persistent backend", "entries", count)
	return nil
}

// Compact runs a synchronous compaction over the whole key range.
// It does not change logical content.
func (p *PersistentBackend) Compact() error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	iter, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("storage: compact: %w", err)
	}
	var first, last []byte
	if iter.First() {
		first = bytes.Clone(iter.Key())
		if iter.Last() {
			last = bytes.Clone(iter.Key())
		}
	}
	iterErr := iter.Error()
	if closeErr := iter.Close(); iterErr == nil {
		iterErr = closeErr
	}
	if iterErr != nil {
		return fmt.Errorf("storage: compact: %w", iterErr)
	}
	if first == nil {
		return nil
	}

	// The end bound is exclusive; the smallest key after last is last+0x00
	end := append(last, 0x00)
	if err := p.db.Compact(first, end, true); err != nil {
		return fmt.Errorf("storage: compact: %w", err)
	}
	p.logger.Debug("compacted persistent backend", "path", p.path)
	return nil
}

// DBSize sums len(key)+len(value) over every entry. It is a logical estimate;
// the on-disk footprint differs by engine overhead, compression and stale
// tombstones.
func (p *PersistentBackend) DBSize() (uint64, error) {
	release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	var size uint64
	err = p.scan("measure size", func(k, v []byte) error {
		size += uint64(len(k) + len(v))
		return nil
	})
	return size, err
}

// Close flushes and closes the database. It waits for in-flight operations.
func (p *PersistentBackend) Close() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", p.path, err)
	}
	return nil
}
