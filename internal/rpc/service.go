package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "kvstore.KvStoreService"

// KvStoreServer is the server API for the kvstore service.
type KvStoreServer interface {
	CreateStore(context.Context, *CreateStoreRequest) (*CreateStoreResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
	Compact(context.Context, *CompactRequest) (*CompactResponse, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds a method descriptor the way protoc-gen-go-grpc does for
// each unary RPC.
func unary[Req, Resp any](name string, call func(KvStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KvStoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(KvStoreServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the kvstore service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KvStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateStore", KvStoreServer.CreateStore),
		unary("Put", KvStoreServer.Put),
		unary("Get", KvStoreServer.Get),
		unary("Delete", KvStoreServer.Delete),
		unary("List", KvStoreServer.List),
		unary("Health", KvStoreServer.Health),
		unary("Stats", KvStoreServer.Stats),
		unary("Compact", KvStoreServer.Compact),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvstore.proto",
}

// RegisterKvStoreServer registers srv on s.
func RegisterKvStoreServer(s grpc.ServiceRegistrar, srv KvStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}
