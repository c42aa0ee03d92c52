package tensor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// columnName names column j of a matrix record batch.
func columnName(j int) string {
	return fmt.Sprintf("col_%d", j)
}

// RecordBatch converts a 2D matrix into an Arrow record with one
// non-nullable Float64 column per matrix column, named col_0, col_1, ...
// A nil allocator uses the Go allocator. The caller must Release the record.
func (m Matrix) RecordBatch(mem memory.Allocator) (arrow.Record, error) {
	rows, cols, err := m.dims2()
	if err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, cols)
	columns := make([]arrow.Array, cols)
	defer func() {
		for _, c := range columns {
			if c != nil {
				c.Release()
			}
		}
	}()

	b := array.NewFloat64Builder(mem)
	defer b.Release()
	for j := uint64(0); j < cols; j++ {
		fields[j] = arrow.Field{Name: columnName(int(j)), Type: arrow.PrimitiveTypes.Float64}
		b.Reserve(int(rows))
		for i := uint64(0); i < rows; i++ {
			b.Append(m.Data[i*cols+j])
		}
		columns[j] = b.NewArray()
	}

	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, columns, int64(rows)), nil
}

// FromRecordBatch builds a rows x columns matrix from a record whose
// columns are all Float64 without nulls.
func FromRecordBatch(rec arrow.Record) (Matrix, error) {
	rows, cols := rec.NumRows(), rec.NumCols()
	data := make([]float64, rows*cols)
	for j := int64(0); j < cols; j++ {
		col, ok := rec.Column(int(j)).(*array.Float64)
		if !ok {
			return Matrix{}, fmt.Errorf("%w: column %q is %s", ErrDType, rec.ColumnName(int(j)), rec.Column(int(j)).DataType())
		}
		if col.NullN() > 0 {
			return Matrix{}, fmt.Errorf("%w: column %q has %d nulls", ErrShape, rec.ColumnName(int(j)), col.NullN())
		}
		for i, v := range col.Float64Values() {
			data[int64(i)*cols+j] = v
		}
	}
	return Matrix{Data: data, Shape: []uint64{uint64(rows), uint64(cols)}}, nil
}
