package storage

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tensorkv/internal/envelope"
)

// sampleEnvelope builds a distinct 2x2 fp64 envelope for key index i
func sampleEnvelope(i int) envelope.Envelope {
	data := make([]byte, 32)
	for j := 0; j < 4; j++ {
		binary.LittleEndian.PutUint64(data[j*8:], uint64(i*4+j))
	}
	return envelope.Envelope{
		Shape:     []uint64{2, 2},
		DType:     envelope.FP64,
		SizeCheck: 32,
		KeyCheck:  uint64(i),
		Data:      data,
	}
}

func assertEnvelope(t *testing.T, want, got envelope.Envelope) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

// runBackendContract exercises the behaviour every Backend must share.
// open returns a fresh, empty backend; key maps an index to a distinct key.
func runBackendContract[K comparable](t *testing.T, open func(t *testing.T) Backend[K], key func(i int) K) {
	t.Run("new backend is empty", func(t *testing.T) {
		b := open(t)

		keys, err := b.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)

		n, err := b.Len()
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		empty, err := b.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty)

		_, ok, err := b.Get(key(1))
		require.NoError(t, err)
		assert.False(t, ok, "missing key is absent, not an error")
	})

	t.Run("put then get", func(t *testing.T) {
		b := open(t)
		want := sampleEnvelope(1)

		prev, existed, err := b.Put(key(1), want)
		require.NoError(t, err)
		assert.False(t, existed)
		assertEnvelope(t, envelope.Envelope{}, prev)

		got, ok, err := b.Get(key(1))
		require.NoError(t, err)
		require.True(t, ok)
		assertEnvelope(t, want, got)

		has, err := b.Contains(key(1))
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("replace returns previous value", func(t *testing.T) {
		b := open(t)
		v1, v2 := sampleEnvelope(1), sampleEnvelope(2)

		_, _, err := b.Put(key(1), v1)
		require.NoError(t, err)

		prev, existed, err := b.Put(key(1), v2)
		require.NoError(t, err)
		require.True(t, existed)
		assertEnvelope(t, v1, prev)

		got, ok, err := b.Get(key(1))
		require.NoError(t, err)
		require.True(t, ok)
		assertEnvelope(t, v2, got)

		n, err := b.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n, "replace must not add an entry")
	})

	t.Run("delete returns removed value", func(t *testing.T) {
		b := open(t)
		want := sampleEnvelope(3)
		_, _, err := b.Put(key(3), want)
		require.NoError(t, err)

		removed, existed, err := b.Delete(key(3))
		require.NoError(t, err)
		require.True(t, existed)
		assertEnvelope(t, want, removed)

		_, ok, err := b.Get(key(3))
		require.NoError(t, err)
		assert.False(t, ok)

		has, err := b.Contains(key(3))
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("delete absent key is a no-op", func(t *testing.T) {
		b := open(t)
		_, _, err := b.Put(key(1), sampleEnvelope(1))
		require.NoError(t, err)

		_, existed, err := b.Delete(key(99))
		require.NoError(t, err)
		assert.False(t, existed)

		n, err := b.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("enumeration is complete", func(t *testing.T) {
		b := open(t)
		const count = 250
		want := make(map[K]bool, count)
		for i := 0; i < count; i++ {
			_, _, err := b.Put(key(i), sampleEnvelope(i))
			require.NoError(t, err)
			want[key(i)] = true
		}

		keys, err := b.Keys()
		require.NoError(t, err)
		assert.Len(t, keys, count)

		seen := make(map[K]bool, len(keys))
		for _, k := range keys {
			assert.False(t, seen[k], "duplicate key %v", k)
			seen[k] = true
		}
		assert.Equal(t, want, seen)

		n, err := b.Len()
		require.NoError(t, err)
		assert.Equal(t, count, n)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		b := open(t)
		for i := 0; i < 50; i++ {
			_, _, err := b.Put(key(i), sampleEnvelope(i))
			require.NoError(t, err)
		}

		require.NoError(t, b.Clear())

		n, err := b.Len()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		for i := 0; i < 50; i++ {
			_, ok, err := b.Get(key(i))
			require.NoError(t, err)
			assert.False(t, ok, "key %v survived clear", key(i))
		}

		// Clearing an empty backend is fine
		require.NoError(t, b.Clear())
	})

	t.Run("values are carried byte for byte", func(t *testing.T) {
		b := open(t)
		odd := envelope.Envelope{
			Shape:     []uint64{3, 3},
			DType:     envelope.DType(77),
			SizeCheck: 1,
			KeyCheck:  424242,
			Data:      []byte{0, 0, 0},
		}
		_, _, err := b.Put(key(5), odd)
		require.NoError(t, err)

		got, ok, err := b.Get(key(5))
		require.NoError(t, err)
		require.True(t, ok)
		assertEnvelope(t, odd, got)
		assert.Equal(t, envelope.Encode(odd), envelope.Encode(got))
	})

	t.Run("caller mutations do not leak into the store", func(t *testing.T) {
		b := open(t)
		v := sampleEnvelope(1)
		_, _, err := b.Put(key(1), v)
		require.NoError(t, err)
		v.Data[0] = 0xff
		v.Shape[0] = 9

		got, _, err := b.Get(key(1))
		require.NoError(t, err)
		got.Data[1] = 0xee

		again, _, err := b.Get(key(1))
		require.NoError(t, err)
		assertEnvelope(t, sampleEnvelope(1), again)
	})

	t.Run("operations after close fail", func(t *testing.T) {
		b := open(t)
		require.NoError(t, b.Close())

		_, _, err := b.Get(key(1))
		assert.ErrorIs(t, err, ErrClosed)
		_, _, err = b.Put(key(1), sampleEnvelope(1))
		assert.ErrorIs(t, err, ErrClosed)
		_, err = b.Keys()
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, b.Clear(), ErrClosed)

		// Close is idempotent
		assert.NoError(t, b.Close())
	})
}

// TestBackendContract runs the shared contract against both backends
func TestBackendContract(t *testing.T) {
	t.Run("volatile", func(t *testing.T) {
		runBackendContract(t,
			func(t *testing.T) Backend[uuid.UUID] {
				b := NewVolatileBackend()
				t.Cleanup(func() { _ = b.Close() })
				return b
			},
			func(i int) uuid.UUID {
				return uuid.NewSHA1(uuid.NameSpaceOID, binary.BigEndian.AppendUint64(nil, uint64(i)))
			},
		)
	})

	t.Run("persistent", func(t *testing.T) {
		runBackendContract(t,
			func(t *testing.T) Backend[uint64] {
				return openTestPersistent(t)
			},
			func(i int) uint64 {
				return uint64(i) * 7919
			},
		)
	})
}
