package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dreamware/tensorkv/internal/keyspace"
)

// ServiceLabel is reported by the Health RPC.
const ServiceLabel = "tensorkv"

var errStorage = status.Error(codes.Internal, "Storage error")

// Server implements KvStoreServer over a persistent keyspace.
type Server struct {
	ks     *keyspace.Keyspace[uint64]
	log    hclog.Logger
	health *health.Server
}

var _ KvStoreServer = (*Server)(nil)

// NewServer returns a Server backed by ks. A nil logger discards output.
func NewServer(ks *keyspace.Keyspace[uint64], log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Server{
		ks:     ks,
		log:    log,
		health: health.NewServer(),
	}
}

// NewGRPCServer builds a grpc.Server serving srv and the standard health
// service. Extra options are appended after the codec and interceptor.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(srv.logUnary),
	}
	g := grpc.NewServer(append(base, opts...)...)
	RegisterKvStoreServer(g, srv)
	healthpb.RegisterHealthServer(g, srv.health)
	srv.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return g
}

// Shutdown marks every service NOT_SERVING so health checks fail before
// the listener closes.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Error("rpc failed", "method", info.FullMethod, "code", status.Code(err), "error", err)
	} else {
		s.log.Trace("rpc", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

// storageFailure logs the cause and hides it from the caller.
func (s *Server) storageFailure(op string, key uint64, err error) error {
	s.log.Error("storage operation failed", "op", op, "key", key, "error", err)
	return errStorage
}

// CreateStore acknowledges the request; the keyspace always exists.
func (s *Server) CreateStore(_ context.Context, req *CreateStoreRequest) (*CreateStoreResponse, error) {
	return &CreateStoreResponse{
		Success: true,
		Message: fmt.Sprintf("Store '%s' created successfully", req.Name),
	}, nil
}

// Put stores the request value
func (s *Server) Put(_ context.Context, req *PutRequest) (*PutResponse, error) {
	if req.Value == nil {
		return nil, status.Error(codes.InvalidArgument, "Value is required")
	}
	_, existed, err := s.ks.Put(req.Key, *req.Value)
	if err != nil {
		return nil, s.storageFailure("put", req.Key, err)
	}
	msg := "Value stored successfully"
	if existed {
		msg = "Value updated successfully"
	}
	s.log.Debug("put", "key", req.Key, "updated", existed)
	return &PutResponse{Key: req.Key, Success: true, Message: msg}, nil
}

// Get reads one key
func (s *Server) Get(_ context.Context, req *GetRequest) (*GetResponse, error) {
	value, ok, err := s.ks.Get(req.Key)
	if err != nil {
		return nil, s.storageFailure("get", req.Key, err)
	}
	if !ok {
		return &GetResponse{Key: req.Key, Success: false, Message: "Value not found"}, nil
	}
	return &GetResponse{
		Key:     req.Key,
		Value:   &value,
		Success: true,
		Message: "Value retrieved successfully",
	}, nil
}

// Delete removes one key
func (s *Server) Delete(_ context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	_, existed, err := s.ks.Delete(req.Key)
	if err != nil {
		return nil, s.storageFailure("delete", req.Key, err)
	}
	if !existed {
		return &DeleteResponse{Key: req.Key, Success: false, Message: "Value not found"}, nil
	}
	s.log.Debug("delete", "key", req.Key)
	return &DeleteResponse{Key: req.Key, Success: true, Message: "Value deleted successfully"}, nil
}

// List returns every key in ascending order
func (s *Server) List(_ context.Context, _ *ListRequest) (*ListResponse, error) {
	keys, err := s.ks.ListKeys()
	if err != nil {
		return nil, s.storageFailure("list", 0, err)
	}
	return &ListResponse{Keys: keys, Count: uint32(len(keys)), Success: true}, nil
}

// Health reports liveness only
func (s *Server) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "healthy", Service: ServiceLabel}, nil
}

// Stats reports keyspace size and counters
func (s *Server) Stats(context.Context, *StatsRequest) (*StatsResponse, error) {
	info, err := s.ks.Info()
	if err != nil {
		return nil, s.storageFailure("stats", 0, err)
	}
	return &StatsResponse{
		Entries:     uint64(info.Entries),
		DBSizeBytes: info.Bytes,
		Gets:        info.Ops.Gets,
		Puts:        info.Ops.Puts,
		Deletes:     info.Ops.Deletes,
		Updates:     info.Ops.Updates,
		Misses:      info.Ops.Misses,
		Errors:      info.Ops.Errors,
	}, nil
}

// Compact runs a synchronous full-range compaction
func (s *Server) Compact(context.Context, *CompactRequest) (*CompactResponse, error) {
	start := time.Now()
	if err := s.ks.Store.Compact(); err != nil {
		return nil, s.storageFailure("compact", 0, err)
	}
	took := time.Since(start)
	s.log.Info("compaction finished", "duration", took)
	return &CompactResponse{
		Success: true,
		Message: fmt.Sprintf("Compaction finished in %s", took.Round(time.Millisecond)),
	}, nil
}
