package rpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dreamware/tensorkv/internal/envelope"
)

// wireMessage is implemented by every request and response of the
// kvstore service. Encoding follows the protobuf wire format so that
// generated clients in any language interoperate.
type wireMessage interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

// CreateStoreRequest names a store to create.
type CreateStoreRequest struct {
	Name string // 1
}

// CreateStoreResponse reports the outcome of CreateStore.
type CreateStoreResponse struct {
	Success bool   // 1
	Message string // 2
}

// PutRequest stores Value under Key. A nil Value is rejected.
type PutRequest struct {
	Key   uint64             // 1
	Value *envelope.Envelope // 2
}

// PutResponse reports whether the put stored a new value or replaced one.
type PutResponse struct {
	Key     uint64 // 1
	Success bool   // 2
	Message string // 3
}

// GetRequest reads one key.
type GetRequest struct {
	Key uint64 // 1
}

// GetResponse carries the value, or Success=false when the key is absent.
type GetResponse struct {
	Key     uint64             // 1
	Value   *envelope.Envelope // 2
	Success bool               // 3
	Message string             // 4
}

// DeleteRequest removes one key.
type DeleteRequest struct {
	Key uint64 // 1
}

// DeleteResponse reports whether a value was removed.
type DeleteResponse struct {
	Key     uint64 // 1
	Success bool   // 2
	Message string // 3
}

// ListRequest has no fields.
type ListRequest struct{}

// ListResponse enumerates every key in ascending order.
type ListResponse struct {
	Keys    []uint64 // 1, packed
	Count   uint32   // 2
	Success bool     // 3
}

// HealthRequest has no fields.
type HealthRequest struct{}

// HealthResponse is constant while the process is up.
type HealthResponse struct {
	Status  string // 1
	Service string // 2
}

// StatsRequest has no fields.
type StatsRequest struct{}

// StatsResponse reports keyspace size and operation counters.
type StatsResponse struct {
	Entries     uint64 // 1
	DBSizeBytes uint64 // 2
	Gets        uint64 // 3
	Puts        uint64 // 4
	Deletes     uint64 // 5
	Updates     uint64 // 6
	Misses      uint64 // 7
	Errors      uint64 // 8
}

// CompactRequest has no fields.
type CompactRequest struct{}

// CompactResponse reports the outcome of a compaction.
type CompactResponse struct {
	Success bool   // 1
	Message string // 2
}

// Encoding helpers. Zero values are omitted as proto3 does.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendValue writes a present envelope as an embedded message, even when
// every field of it is zero.
func appendValue(b []byte, num protowire.Number, v *envelope.Envelope) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(envelope.Size(*v)))
	return envelope.Append(b, *v)
}

// Decoding helpers. A visit function returns the number of bytes it
// consumed, 0 to skip the field as unknown, or a negative protowire error.

func decodeFields(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("rpc: malformed tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m := visit(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("rpc: malformed field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeUint64(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) int {
	var v uint64
	n := consumeUint64(typ, b, &v)
	if n > 0 {
		*dst = uint32(v)
	}
	return n
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) int {
	var v uint64
	n := consumeUint64(typ, b, &v)
	if n > 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*dst = v
	}
	return n
}

// consumeValue decodes an embedded envelope. Repeated occurrences merge,
// which for the envelope means later scalars win and data is appended.
func consumeValue(typ protowire.Type, b []byte, dst **envelope.Envelope, errp *error) int {
	if typ != protowire.BytesType {
		return 0
	}
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if *dst != nil {
		raw = append(envelope.Encode(**dst), raw...)
	}
	v, err := envelope.Decode(raw)
	if err != nil {
		*errp = err
		return -1
	}
	*dst = &v
	return n
}

// consumeKeys accepts both packed and unpacked encodings of repeated uint64.
func consumeKeys(typ protowire.Type, b []byte, dst *[]uint64) int {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n > 0 {
			*dst = append(*dst, v)
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m
			}
			*dst = append(*dst, v)
			packed = packed[m:]
		}
		return n
	}
	return 0
}

func (m *CreateStoreRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, m.Name)
}

func (m *CreateStoreRequest) unmarshalWire(b []byte) error {
	*m = CreateStoreRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeString(typ, b, &m.Name)
		}
		return 0
	})
}

func (m *CreateStoreResponse) appendWire(b []byte) []byte {
	b = appendBool(b, 1, m.Success)
	return appendString(b, 2, m.Message)
}

func (m *CreateStoreResponse) unmarshalWire(b []byte) error {
	*m = CreateStoreResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.Success)
		case 2:
			return consumeString(typ, b, &m.Message)
		}
		return 0
	})
}

func (m *PutRequest) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.Key)
	return appendValue(b, 2, m.Value)
}

func (m *PutRequest) unmarshalWire(b []byte) error {
	*m = PutRequest{}
	var valueErr error
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint64(typ, b, &m.Key)
		case 2:
			return consumeValue(typ, b, &m.Value, &valueErr)
		}
		return 0
	})
	if valueErr != nil {
		return valueErr
	}
	return err
}

func (m *PutResponse) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.Key)
	b = appendBool(b, 2, m.Success)
	return appendString(b, 3, m.Message)
}

func (m *PutResponse) unmarshalWire(b []byte) error {
	*m = PutResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint64(typ, b, &m.Key)
		case 2:
			return consumeBool(typ, b, &m.Success)
		case 3:
			return consumeString(typ, b, &m.Message)
		}
		return 0
	})
}

func (m *GetRequest) appendWire(b []byte) []byte {
	return appendVarint(b, 1, m.Key)
}

func (m *GetRequest) unmarshalWire(b []byte) error {
	*m = GetRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeUint64(typ, b, &m.Key)
		}
		return 0
	})
}

func (m *GetResponse) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.Key)
	b = appendValue(b, 2, m.Value)
	b = appendBool(b, 3, m.Success)
	return appendString(b, 4, m.Message)
}

func (m *GetResponse) unmarshalWire(b []byte) error {
	*m = GetResponse{}
	var valueErr error
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint64(typ, b, &m.Key)
		case 2:
			return consumeValue(typ, b, &m.Value, &valueErr)
		case 3:
			return consumeBool(typ, b, &m.Success)
		case 4:
			return consumeString(typ, b, &m.Message)
		}
		return 0
	})
	if valueErr != nil {
		return valueErr
	}
	return err
}

func (m *DeleteRequest) appendWire(b []byte) []byte {
	return appendVarint(b, 1, m.Key)
}

func (m *DeleteRequest) unmarshalWire(b []byte) error {
	*m = DeleteRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeUint64(typ, b, &m.Key)
		}
		return 0
	})
}

func (m *DeleteResponse) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, m.Key)
	b = appendBool(b, 2, m.Success)
	return appendString(b, 3, m.Message)
}

func (m *DeleteResponse) unmarshalWire(b []byte) error {
	*m = DeleteResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeUint64(typ, b, &m.Key)
		case 2:
			return consumeBool(typ, b, &m.Success)
		case 3:
			return consumeString(typ, b, &m.Message)
		}
		return 0
	})
}

func (m *ListRequest) appendWire(b []byte) []byte { return b }

func (m *ListRequest) unmarshalWire(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *ListResponse) appendWire(b []byte) []byte {
	if len(m.Keys) > 0 {
		size := 0
		for _, k := range m.Keys {
			size += protowire.SizeVarint(k)
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(size))
		for _, k := range m.Keys {
			b = protowire.AppendVarint(b, k)
		}
	}
	b = appendVarint(b, 2, uint64(m.Count))
	return appendBool(b, 3, m.Success)
}

func (m *ListResponse) unmarshalWire(b []byte) error {
	*m = ListResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeKeys(typ, b, &m.Keys)
		case 2:
			return consumeUint32(typ, b, &m.Count)
		case 3:
			return consumeBool(typ, b, &m.Success)
		}
		return 0
	})
}

func (m *HealthRequest) appendWire(b []byte) []byte { return b }

func (m *HealthRequest) unmarshalWire(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *HealthResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Status)
	return appendString(b, 2, m.Service)
}

func (m *HealthResponse) unmarshalWire(b []byte) error {
	*m = HealthResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Status)
		case 2:
			return consumeString(typ, b, &m.Service)
		}
		return 0
	})
}

func (m *StatsRequest) appendWire(b []byte) []byte { return b }

func (m *StatsRequest) unmarshalWire(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *StatsResponse) fields() []*uint64 {
	return []*uint64{&m.Entries, &m.DBSizeBytes, &m.Gets, &m.Puts, &m.Deletes, &m.Updates, &m.Misses, &m.Errors}
}

func (m *StatsResponse) appendWire(b []byte) []byte {
	for i, f := range m.fields() {
		b = appendVarint(b, protowire.Number(i+1), *f)
	}
	return b
}

func (m *StatsResponse) unmarshalWire(b []byte) error {
	*m = StatsResponse{}
	fields := m.fields()
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num >= 1 && int(num) <= len(fields) {
			return consumeUint64(typ, b, fields[num-1])
		}
		return 0
	})
}

func (m *CompactRequest) appendWire(b []byte) []byte { return b }

func (m *CompactRequest) unmarshalWire(b []byte) error {
	return decodeFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *CompactResponse) appendWire(b []byte) []byte {
	b = appendBool(b, 1, m.Success)
	return appendString(b, 2, m.Message)
}

func (m *CompactResponse) unmarshalWire(b []byte) error {
	*m = CompactResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.Success)
		case 2:
			return consumeString(typ, b, &m.Message)
		}
		return 0
	})
}
