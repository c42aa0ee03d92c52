package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the kvstore.Value message.
const (
	fieldShape     protowire.Number = 1
	fieldDType     protowire.Number = 2
	fieldSizeCheck protowire.Number = 3
	fieldKeyCheck  protowire.Number = 4
	fieldData      protowire.Number = 5
)

// ErrMalformed is matched by every decode failure.
var ErrMalformed = errors.New("envelope: malformed encoding")

// DecodeError describes where a decode failed.
//
// errors.Is(err, ErrMalformed) holds for every DecodeError; the underlying
// protowire error (if any) can be accessed via errors.Unwrap.
type DecodeError struct {
	Offset int              // Byte offset of the field that failed
	Field  protowire.Number // Field number, zero when the tag itself was bad
	cause  error
}

func (e *DecodeError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("envelope: malformed tag at offset %d: %v", e.Offset, e.cause)
	}
	return fmt.Sprintf("envelope: malformed field %d at offset %d: %v", e.Field, e.Offset, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Is makes every DecodeError match ErrMalformed.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

// Size returns the length of Encode(e) without encoding.
func Size(e Envelope) int {
	n := 0
	if len(e.Shape) > 0 {
		packed := packedShapeSize(e.Shape)
		n += protowire.SizeTag(fieldShape) + protowire.SizeBytes(packed)
	}
	if e.DType != 0 {
		n += protowire.SizeTag(fieldDType) + protowire.SizeVarint(uint64(int64(e.DType)))
	}
	if e.SizeCheck != 0 {
		n += protowire.SizeTag(fieldSizeCheck) + protowire.SizeVarint(e.SizeCheck)
	}
	if e.KeyCheck != 0 {
		n += protowire.SizeTag(fieldKeyCheck) + protowire.SizeVarint(e.KeyCheck)
	}
	if len(e.Data) > 0 {
		n += protowire.SizeTag(fieldData) + protowire.SizeBytes(len(e.Data))
	}
	return n
}

// Encode returns the deterministic encoding of e.
func Encode(e Envelope) []byte {
	return Append(make([]byte, 0, Size(e)), e)
}

// Append appends the encoding of e to b.
func Append(b []byte, e Envelope) []byte {
	if len(e.Shape) > 0 {
		b = protowire.AppendTag(b, fieldShape, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(packedShapeSize(e.Shape)))
		for _, dim := range e.Shape {
			b = protowire.AppendVarint(b, dim)
		}
	}
	if e.DType != 0 {
		b = protowire.AppendTag(b, fieldDType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(e.DType)))
	}
	if e.SizeCheck != 0 {
		b = protowire.AppendTag(b, fieldSizeCheck, protowire.VarintType)
		b = protowire.AppendVarint(b, e.SizeCheck)
	}
	if e.KeyCheck != 0 {
		b = protowire.AppendTag(b, fieldKeyCheck, protowire.VarintType)
		b = protowire.AppendVarint(b, e.KeyCheck)
	}
	if len(e.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Data)
	}
	return b
}

// Decode parses an encoding produced by Encode or by any protobuf encoder of
// kvstore.Value. The returned envelope never aliases b.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	offset := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, &DecodeError{Offset: offset, cause: protowire.ParseError(n)}
		}
		start := offset
		b, offset = b[n:], offset+n

		switch {
		case num == fieldShape && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				for len(packed) > 0 {
					dim, m := protowire.ConsumeVarint(packed)
					if m < 0 {
						n = m
						break
					}
					e.Shape = append(e.Shape, dim)
					packed = packed[m:]
				}
			}
		case num == fieldShape && typ == protowire.VarintType:
			var dim uint64
			dim, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				e.Shape = append(e.Shape, dim)
			}
		case num == fieldDType && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			e.DType = DType(int32(int64(v)))
		case num == fieldSizeCheck && typ == protowire.VarintType:
			e.SizeCheck, n = protowire.ConsumeVarint(b)
		case num == fieldKeyCheck && typ == protowire.VarintType:
			e.KeyCheck, n = protowire.ConsumeVarint(b)
		case num == fieldData && typ == protowire.BytesType:
			var chunk []byte
			chunk, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				e.Data = append(e.Data, chunk...)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Envelope{}, &DecodeError{Offset: start, Field: num, cause: protowire.ParseError(n)}
		}
		b, offset = b[n:], offset+n
	}
	return e, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e Envelope) MarshalBinary() ([]byte, error) {
	return Encode(e), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	dec, err := Decode(b)
	if err != nil {
		return err
	}
	*e = dec
	return nil
}

func packedShapeSize(shape []uint64) int {
	n := 0
	for _, dim := range shape {
		n += protowire.SizeVarint(dim)
	}
	return n
}
