package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dreamware/tensorkv/internal/envelope"
)

// Client is a typed wrapper around the kvstore service.
type Client struct {
	cc     grpc.ClientConnInterface
	closer func() error
	opts   []grpc.CallOption
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	c := NewClient(conn)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection. Close does not close cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{
		cc:   cc,
		opts: []grpc.CallOption{grpc.ForceCodec(Codec{})},
	}
}

// Close releases the connection if the client opened it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, append(c.opts, opts...)...)
}

// CreateStore calls the CreateStore RPC
func (c *Client) CreateStore(ctx context.Context, name string, opts ...grpc.CallOption) (*CreateStoreResponse, error) {
	out := new(CreateStoreResponse)
	if err := c.invoke(ctx, "CreateStore", &CreateStoreRequest{Name: name}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value under key
func (c *Client) Put(ctx context.Context, key uint64, value envelope.Envelope, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	if err := c.invoke(ctx, "Put", &PutRequest{Key: key, Value: &value}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the value under key and whether it was present
func (c *Client) Get(ctx context.Context, key uint64, opts ...grpc.CallOption) (envelope.Envelope, bool, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "Get", &GetRequest{Key: key}, out, opts); err != nil {
		return envelope.Envelope{}, false, err
	}
	if out.Value == nil {
		return envelope.Envelope{}, false, nil
	}
	return *out.Value, true, nil
}

// Delete removes key and reports whether it was present
func (c *Client) Delete(ctx context.Context, key uint64, opts ...grpc.CallOption) (bool, error) {
	out := new(DeleteResponse)
	if err := c.invoke(ctx, "Delete", &DeleteRequest{Key: key}, out, opts); err != nil {
		return false, err
	}
	return out.Success, nil
}

// List returns every key in ascending order
func (c *Client) List(ctx context.Context, opts ...grpc.CallOption) ([]uint64, error) {
	out := new(ListResponse)
	if err := c.invoke(ctx, "List", &ListRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// Health calls the kvstore Health RPC
func (c *Client) Health(ctx context.Context, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, "Health", &HealthRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Serving asks the standard grpc.health.v1 service about the kvstore service.
func (c *Client) Serving(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName}, append(c.opts, opts...)...)
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Stats returns keyspace size and counters
func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*StatsResponse, error) {
	out := new(StatsResponse)
	if err := c.invoke(ctx, "Stats", &StatsRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Compact triggers a synchronous compaction on the server
func (c *Client) Compact(ctx context.Context, opts ...grpc.CallOption) (*CompactResponse, error) {
	out := new(CompactResponse)
	if err := c.invoke(ctx, "Compact", &CompactRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
