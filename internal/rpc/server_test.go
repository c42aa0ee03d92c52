package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dreamware/tensorkv/internal/envelope"
	"github.com/dreamware/tensorkv/internal/keyspace"
	"github.com/dreamware/tensorkv/internal/storage"
)

type testServer struct {
	client *Client
	srv    *Server
	store  *storage.Store[uint64]
}

// startTestServer serves a fresh persistent keyspace over an in-memory listener.
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.OpenPersistentStore(filepath.Join(t.TempDir(), "db"), storage.WithSyncWrites(false))
	require.NoError(t, err)

	srv := NewServer(keyspace.NewPersistent("test", store), nil)
	g := NewGRPCServer(srv)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = g.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		g.Stop()
		_ = store.Close()
	})

	return &testServer{client: NewClient(conn), srv: srv, store: store}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fp64Value(key uint64) envelope.Envelope {
	return envelope.Envelope{
		Shape:     []uint64{2, 2},
		DType:     envelope.FP64,
		SizeCheck: 32,
		KeyCheck:  key,
		Data:      make([]byte, 32),
	}
}

func TestServerCRUD(t *testing.T) {
	ts := startTestServer(t)
	ctx := testContext(t)
	c := ts.client

	resp, err := c.Put(ctx, 12345, fp64Value(12345))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, uint64(12345), resp.Key)
	assert.Equal(t, "Value stored successfully", resp.Message)

	resp, err = c.Put(ctx, 12345, fp64Value(12345))
	require.NoError(t, err)
	assert.Equal(t, "Value updated successfully", resp.Message)

	got, ok, err := c.Get(ctx, 12345)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fp64Value(12345).Equal(got))

	keys, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{12345}, keys)

	existed, err := c.Delete(ctx, 12345)
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, err = c.Get(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, ok)

	existed, err = c.Delete(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, existed)

	keys, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestServerResponses(t *testing.T) {
	ts := startTestServer(t)
	ctx := testContext(t)

	t.Run("get absent", func(t *testing.T) {
		out := new(GetResponse)
		require.NoError(t, ts.client.invoke(ctx, "Get", &GetRequest{Key: 77}, out, nil))
		assert.Equal(t, &GetResponse{Key: 77, Success: false, Message: "Value not found"}, out)
	})

	t.Run("put without value", func(t *testing.T) {
		err := ts.client.invoke(ctx, "Put", &PutRequest{Key: 1}, new(PutResponse), nil)
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Equal(t, "Value is required", status.Convert(err).Message())
	})

	t.Run("create store", func(t *testing.T) {
		resp, err := ts.client.CreateStore(ctx, "matrices")
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "Store 'matrices' created successfully", resp.Message)
	})

	t.Run("health", func(t *testing.T) {
		resp, err := ts.client.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, ServiceLabel, resp.Service)

		serving, err := ts.client.Serving(ctx)
		require.NoError(t, err)
		assert.True(t, serving)

		ts.srv.Shutdown()
		serving, err = ts.client.Serving(ctx)
		require.NoError(t, err)
		assert.False(t, serving)
	})

	t.Run("list count", func(t *testing.T) {
		for _, k := range []uint64{30, 10, 20} {
			_, err := ts.client.Put(ctx, k, fp64Value(k))
			require.NoError(t, err)
		}
		out := new(ListResponse)
		require.NoError(t, ts.client.invoke(ctx, "List", &ListRequest{}, out, nil))
		assert.Equal(t, []uint64{10, 20, 30}, out.Keys)
		assert.Equal(t, uint32(3), out.Count)
		assert.True(t, out.Success)
	})
}

func TestServerStatsAndCompact(t *testing.T) {
	ts := startTestServer(t)
	ctx := testContext(t)

	for i := uint64(0); i < 10; i++ {
		_, err := ts.client.Put(ctx, i, fp64Value(i))
		require.NoError(t, err)
	}
	_, err := ts.client.Put(ctx, 0, fp64Value(0))
	require.NoError(t, err)
	_, _, err = ts.client.Get(ctx, 100)
	require.NoError(t, err)
	_, err = ts.client.Delete(ctx, 9)
	require.NoError(t, err)

	stats, err := ts.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), stats.Entries)
	var wantBytes uint64
	for i := uint64(0); i < 9; i++ {
		wantBytes += 8 + uint64(envelope.Size(fp64Value(i)))
	}
	assert.Equal(t, wantBytes, stats.DBSizeBytes)
	assert.Equal(t, uint64(11), stats.Puts)
	assert.Equal(t, uint64(1), stats.Updates)
	assert.Equal(t, uint64(1), stats.Gets)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Deletes)

	resp, err := ts.client.Compact(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	keys, err := ts.client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 9)
}

// TestServerStorageError verifies failures surface as a generic internal error
func TestServerStorageError(t *testing.T) {
	ts := startTestServer(t)
	ctx := testContext(t)
	require.NoError(t, ts.store.Close())

	_, err := ts.client.Put(ctx, 1, fp64Value(1))
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "Storage error", status.Convert(err).Message())

	_, err = ts.client.List(ctx)
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = ts.client.Compact(ctx)
	assert.Equal(t, codes.Internal, status.Code(err))
}
