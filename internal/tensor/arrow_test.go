package tensor

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	t.Run("round trip", func(t *testing.T) {
		m := New([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
		rec, err := m.RecordBatch(mem)
		require.NoError(t, err)
		defer rec.Release()

		assert.Equal(t, int64(2), rec.NumRows())
		assert.Equal(t, int64(3), rec.NumCols())
		assert.Equal(t, "col_0", rec.ColumnName(0))
		assert.Equal(t, "col_2", rec.ColumnName(2))
		assert.Equal(t, []float64{1, 4}, rec.Column(0).(*array.Float64).Float64Values())
		assert.Equal(t, []float64{3, 6}, rec.Column(2).(*array.Float64).Float64Values())

		back, err := FromRecordBatch(rec)
		require.NoError(t, err)
		assert.Equal(t, m, back)
	})

	t.Run("empty columns", func(t *testing.T) {
		m := New([]float64{}, 0, 2)
		rec, err := m.RecordBatch(mem)
		require.NoError(t, err)
		defer rec.Release()

		back, err := FromRecordBatch(rec)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 2}, back.Shape)
		assert.Empty(t, back.Data)
	})

	t.Run("only 2D", func(t *testing.T) {
		_, err := New([]float64{1, 2}, 2).RecordBatch(mem)
		assert.ErrorIs(t, err, ErrShape)
		_, err = New([]float64{1, 2, 3}, 2, 2).RecordBatch(mem)
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestFromRecordBatchRejects(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	record := func(t *testing.T, field arrow.Field, build func(b array.Builder)) arrow.Record {
		b := array.NewBuilder(mem, field.Type)
		defer b.Release()
		build(b)
		col := b.NewArray()
		defer col.Release()
		rec := array.NewRecord(arrow.NewSchema([]arrow.Field{field}, nil), []arrow.Array{col}, int64(col.Len()))
		t.Cleanup(rec.Release)
		return rec
	}

	t.Run("non-float column", func(t *testing.T) {
		rec := record(t, arrow.Field{Name: "ids", Type: arrow.PrimitiveTypes.Int64}, func(b array.Builder) {
			b.(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
		})
		_, err := FromRecordBatch(rec)
		assert.ErrorIs(t, err, ErrDType)
	})

	t.Run("nulls", func(t *testing.T) {
		rec := record(t, arrow.Field{Name: "col_0", Type: arrow.PrimitiveTypes.Float64, Nullable: true}, func(b array.Builder) {
			fb := b.(*array.Float64Builder)
			fb.Append(1)
			fb.AppendNull()
		})
		_, err := FromRecordBatch(rec)
		assert.ErrorIs(t, err, ErrShape)
	})
}
