package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/exp/slices"
)

// DType tags the element type of a tensor payload.
type DType int32

// Known element types. Values outside this set are carried through unchanged.
const (
	FP64  DType = 0
	FP32  DType = 1
	FP16  DType = 2
	BF16  DType = 3
	INT64 DType = 4
	INT32 DType = 5
	INT8  DType = 6
	UINT8 DType = 7
)

var dtypeInfo = map[DType]struct {
	name  string
	width int
}{
	FP64:  {"fp64", 8},
	FP32:  {"fp32", 4},
	FP16:  {"fp16", 2},
	BF16:  {"bf16", 2},
	INT64: {"int64", 8},
	INT32: {"int32", 4},
	INT8:  {"int8", 1},
	UINT8: {"uint8", 1},
}

// String returns the lowercase name of d, or "dtype(N)" for unknown tags.
func (d DType) String() string {
	if info, ok := dtypeInfo[d]; ok {
		return info.name
	}
	return fmt.Sprintf("dtype(%d)", int32(d))
}

// Width returns the element width in bytes. ok is false for unknown tags.
func (d DType) Width() (width int, ok bool) {
	info, ok := dtypeInfo[d]
	return info.width, ok
}

// ParseDType maps a name produced by String back to its tag.
func ParseDType(name string) (DType, error) {
	for d, info := range dtypeInfo {
		if info.name == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("envelope: unknown dtype %q", name)
}

// Envelope is the unit of storage: one tensor plus its integrity hints.
type Envelope struct {
	Shape     []uint64 // Tensor dimensions; empty for scalars
	DType     DType    // Element type tag
	SizeCheck uint64   // Producer's expected byte length of Data
	KeyCheck  uint64   // Producer's copy of the key the value is filed under
	Data      []byte   // Raw element bytes
}

var (
	// ErrSizeMismatch is reported by Check when SizeCheck disagrees with Data
	// or with the size implied by Shape and DType.
	ErrSizeMismatch = errors.New("envelope: size check mismatch")

	// ErrKeyMismatch is reported by Check when KeyCheck differs from the key
	// the envelope was read from.
	ErrKeyMismatch = errors.New("envelope: key check mismatch")
)

// ExpectedSize returns product(shape) × width(dtype). ok is false when the
// dtype is unknown or the product overflows 64 bits.
func ExpectedSize(shape []uint64, dtype DType) (size uint64, ok bool) {
	width, ok := dtype.Width()
	if !ok {
		return 0, false
	}
	size = uint64(width)
	for _, dim := range shape {
		hi, lo := bits.Mul64(size, dim)
		if hi != 0 {
			return 0, false
		}
		size = lo
	}
	return size, true
}

// Check compares the integrity hints against the payload and against key.
// Unknown dtypes only have SizeCheck compared with len(Data).
func (e Envelope) Check(key uint64) error {
	if e.KeyCheck != key {
		return fmt.Errorf("%w: stored %d, read from %d", ErrKeyMismatch, e.KeyCheck, key)
	}
	if e.SizeCheck != uint64(len(e.Data)) {
		return fmt.Errorf("%w: size_check %d, payload %d bytes", ErrSizeMismatch, e.SizeCheck, len(e.Data))
	}
	if want, ok := ExpectedSize(e.Shape, e.DType); ok && want != e.SizeCheck {
		return fmt.Errorf("%w: shape %v of %s needs %d bytes, size_check %d",
			ErrSizeMismatch, e.Shape, e.DType, want, e.SizeCheck)
	}
	return nil
}

// Equal reports whether two envelopes carry the same fields. Nil and empty
// slices are equal.
func (e Envelope) Equal(other Envelope) bool {
	return e.DType == other.DType &&
		e.SizeCheck == other.SizeCheck &&
		e.KeyCheck == other.KeyCheck &&
		slices.Equal(e.Shape, other.Shape) &&
		bytes.Equal(e.Data, other.Data)
}

// Clone returns a deep copy of e.
func (e Envelope) Clone() Envelope {
	c := e
	if e.Shape != nil {
		c.Shape = slices.Clone(e.Shape)
	}
	if e.Data != nil {
		c.Data = bytes.Clone(e.Data)
	}
	return c
}
