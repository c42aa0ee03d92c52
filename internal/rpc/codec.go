package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// Codec marshals kvstore messages with their hand-written protobuf
// encoding and any generated message (such as grpc.health.v1) with
// google.golang.org/protobuf. It is installed per server and per call with
// grpc.ForceServerCodec and grpc.ForceCodec, never registered globally.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Name is the content subtype, so peers see application/grpc+proto.
func (Codec) Name() string { return "proto" }

// Marshal encodes v
func (Codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.appendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("rpc: cannot marshal %T", v)
}

// Unmarshal decodes data into v
func (Codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case wireMessage:
		return m.unmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("rpc: cannot unmarshal into %T", v)
}
