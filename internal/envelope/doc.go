// Package envelope defines the self-describing record that tensorkv stores for
// every key, together with its deterministic binary encoding.
//
// # Overview
//
// An Envelope carries one tensor: its shape, its element type, two integrity
// hints written by the producer, and the raw element bytes. The storage layer
// treats the whole record as opaque. It encodes on write, decodes on read, and
// never interprets the fields in between.
//
//	┌──────────────────────────────────────────────┐
//	│                 Envelope                      │
//	├──────────────────────────────────────────────┤
//	│  Shape      []uint64   tensor dimensions      │
//	│  DType      DType      element type tag       │
//	│  SizeCheck  uint64     expected byte length   │
//	│  KeyCheck   uint64     copy of the key        │
//	│  Data       []byte     raw payload            │
//	└──────────────────────────────────────────────┘
//
// # Wire Format
//
// The encoding is the protobuf wire format of the kvstore.Value message, so an
// encoded envelope can be embedded verbatim in gRPC messages:
//
//	field 1  shape       packed varints
//	field 2  dtype       varint (enum)
//	field 3  size_check  varint
//	field 4  key_check   varint
//	field 5  data        length-delimited bytes
//
// Encoding is deterministic: fields are written in ascending order and
// zero-valued fields are omitted. Decoding skips unknown fields, accepts
// unpacked shape elements and concatenates repeated data chunks, so records
// written by newer or chunking producers remain readable.
//
// # Integrity Fields
//
// SizeCheck and KeyCheck are pass-through hints. Neither the codec nor the
// store validates them. Callers that want to detect corruption or a value
// filed under the wrong key call Envelope.Check after reading.
//
// # Usage
//
//	env := envelope.Envelope{
//	    Shape:     []uint64{2, 2},
//	    DType:     envelope.FP64,
//	    SizeCheck: 32,
//	    KeyCheck:  12345,
//	    Data:      raw,
//	}
//	b := envelope.Encode(env)
//	back, err := envelope.Decode(b)
//	if err != nil {
//	    // errors.Is(err, envelope.ErrMalformed)
//	}
//	if err := back.Check(12345); err != nil {
//	    log.Printf("integrity: %v", err)
//	}
package envelope
