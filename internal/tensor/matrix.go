// Package tensor holds the FP64 matrix type exchanged over the HTTP API and
// its conversion to and from storage envelopes.
package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand"

	"golang.org/x/exp/slices"

	"github.com/dreamware/tensorkv/internal/envelope"
)

var (
	// ErrShape is returned when data length and shape disagree, or when an
	// operation needs shapes it was not given.
	ErrShape = errors.New("tensor: invalid shape")

	// ErrDType is returned when an envelope does not hold FP64 elements.
	ErrDType = errors.New("tensor: unsupported dtype")
)

// Matrix is a dense row-major FP64 tensor.
// Its JSON form is {"data": [...], "shape": [...]}.
type Matrix struct {
	Data  []float64 `json:"data"`
	Shape []uint64  `json:"shape"`
}

// New returns a matrix without validating it
func New(data []float64, shape ...uint64) Matrix {
	return Matrix{Data: data, Shape: shape}
}

// Elements is the product of the shape, or 1 for a scalar. ok is false
// when the product overflows 64 bits.
func (m Matrix) Elements() (n uint64, ok bool) {
	n = 1
	for _, d := range m.Shape {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return 0, false
		}
		n = lo
	}
	return n, true
}

// Validate checks that the data length matches the shape.
func (m Matrix) Validate() error {
	n, ok := m.Elements()
	if !ok {
		return fmt.Errorf("%w: element count of shape %v overflows", ErrShape, m.Shape)
	}
	if uint64(len(m.Data)) != n {
		return fmt.Errorf("%w: %d elements for shape %v", ErrShape, len(m.Data), m.Shape)
	}
	return nil
}

func (m Matrix) dims2() (rows, cols uint64, err error) {
	if len(m.Shape) != 2 {
		return 0, 0, fmt.Errorf("%w: want 2 dimensions, have %d", ErrShape, len(m.Shape))
	}
	if err := m.Validate(); err != nil {
		return 0, 0, err
	}
	return m.Shape[0], m.Shape[1], nil
}

func (m Matrix) zip(other Matrix, op string, f func(a, b float64) float64) (Matrix, error) {
	if !slices.Equal(m.Shape, other.Shape) || len(m.Data) != len(other.Data) {
		return Matrix{}, fmt.Errorf("%w: shapes %v and %v must match for %s", ErrShape, m.Shape, other.Shape, op)
	}
	out := make([]float64, len(m.Data))
	for i := range m.Data {
		out[i] = f(m.Data[i], other.Data[i])
	}
	return Matrix{Data: out, Shape: append([]uint64(nil), m.Shape...)}, nil
}

// Add returns the element-wise sum.
func (m Matrix) Add(other Matrix) (Matrix, error) {
	return m.zip(other, "addition", func(a, b float64) float64 { return a + b })
}

// Subtract returns the element-wise difference.
func (m Matrix) Subtract(other Matrix) (Matrix, error) {
	return m.zip(other, "subtraction", func(a, b float64) float64 { return a - b })
}

// Multiply returns the matrix product of two 2D matrices.
func (m Matrix) Multiply(other Matrix) (Matrix, error) {
	r, k, err := m.dims2()
	if err != nil {
		return Matrix{}, err
	}
	k2, c, err := other.dims2()
	if err != nil {
		return Matrix{}, err
	}
	if k != k2 {
		return Matrix{}, fmt.Errorf("%w: %v and %v are incompatible for multiplication", ErrShape, m.Shape, other.Shape)
	}

	out := make([]float64, r*c)
	for i := uint64(0); i < r; i++ {
		for p := uint64(0); p < k; p++ {
			a := m.Data[i*k+p]
			for j := uint64(0); j < c; j++ {
				out[i*c+j] += a * other.Data[p*c+j]
			}
		}
	}
	return Matrix{Data: out, Shape: []uint64{r, c}}, nil
}

// Transpose swaps rows and columns of a 2D matrix.
func (m Matrix) Transpose() (Matrix, error) {
	r, c, err := m.dims2()
	if err != nil {
		return Matrix{}, err
	}
	out := make([]float64, len(m.Data))
	for i := uint64(0); i < r; i++ {
		for j := uint64(0); j < c; j++ {
			out[j*r+i] = m.Data[i*c+j]
		}
	}
	return Matrix{Data: out, Shape: []uint64{c, r}}, nil
}

// Scale multiplies every element by factor.
func (m Matrix) Scale(factor float64) Matrix {
	out := make([]float64, len(m.Data))
	for i, v := range m.Data {
		out[i] = v * factor
	}
	return Matrix{Data: out, Shape: append([]uint64(nil), m.Shape...)}
}

// Sum of all elements.
func (m Matrix) Sum() float64 {
	var s float64
	for _, v := range m.Data {
		s += v
	}
	return s
}

// Mean of all elements; 0 for an empty matrix.
func (m Matrix) Mean() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	return m.Sum() / float64(len(m.Data))
}

// Max returns the largest element, or -Inf for an empty matrix.
func (m Matrix) Max() float64 {
	best := math.Inf(-1)
	for _, v := range m.Data {
		best = math.Max(best, v)
	}
	return best
}

// Min returns the smallest element, or +Inf for an empty matrix.
func (m Matrix) Min() float64 {
	best := math.Inf(1)
	for _, v := range m.Data {
		best = math.Min(best, v)
	}
	return best
}

func filled(rows, cols uint64, v float64) Matrix {
	data := make([]float64, rows*cols)
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return Matrix{Data: data, Shape: []uint64{rows, cols}}
}

// Zeros returns a rows x cols matrix of zeros.
func Zeros(rows, cols uint64) Matrix { return filled(rows, cols, 0) }

// Ones returns a rows x cols matrix of ones.
func Ones(rows, cols uint64) Matrix { return filled(rows, cols, 1) }

// Identity returns the size x size identity matrix.
func Identity(size uint64) Matrix {
	m := Zeros(size, size)
	for i := uint64(0); i < size; i++ {
		m.Data[i*size+i] = 1
	}
	return m
}

// Random returns a rows x cols matrix with elements uniform in [-1, 1).
// A nil rng uses the package-level source.
func Random(rng *rand.Rand, rows, cols uint64) Matrix {
	next := rand.Float64
	if rng != nil {
		next = rng.Float64
	}
	m := Zeros(rows, cols)
	for i := range m.Data {
		m.Data[i] = next()*2 - 1
	}
	return m
}

// Envelope encodes the matrix as an FP64 little-endian envelope.
// keyCheck is recorded as the writer's copy of the key.
func (m Matrix) Envelope(keyCheck uint64) (envelope.Envelope, error) {
	if err := m.Validate(); err != nil {
		return envelope.Envelope{}, err
	}
	data := make([]byte, 8*len(m.Data))
	for i, v := range m.Data {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return envelope.Envelope{
		Shape:     append([]uint64(nil), m.Shape...),
		DType:     envelope.FP64,
		SizeCheck: uint64(len(data)),
		KeyCheck:  keyCheck,
		Data:      data,
	}, nil
}

// FromEnvelope decodes an FP64 envelope into a matrix.
// Size and key checks are left to the caller.
func FromEnvelope(e envelope.Envelope) (Matrix, error) {
	if e.DType != envelope.FP64 {
		return Matrix{}, fmt.Errorf("%w: %s", ErrDType, e.DType)
	}
	if len(e.Data)%8 != 0 {
		return Matrix{}, fmt.Errorf("%w: %d payload bytes is not a whole number of fp64 elements", ErrShape, len(e.Data))
	}
	data := make([]float64, len(e.Data)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(e.Data[8*i:]))
	}
	m := Matrix{Data: data, Shape: append([]uint64(nil), e.Shape...)}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}
