// Package segment implements the columnar record batch representation, the
// primary-key sort used by the write path, and the immutable SST (segment)
// file encode/decode the engine persists to the object store. It provides
// the minimal in-memory columnar value representation the write/scan path
// needs to sort, extract the timestamp range, and push down predicates,
// without depending on any particular external execution library.
package segment

import (
	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
)

// Column is one column's worth of values for a RecordBatch. Valid is a
// parallel nulls bitmap; a nil Valid means every value in the column is
// non-null. Values are stored as the Go-native type corresponding to
// meta.ColumnType (int8/.../uint64/float32/float64/string/bool/[]byte).
type Column struct {
	Values []any
	Valid  []bool
}

func NewColumn(n int) Column {
	return Column{Values: make([]any, n)}
}

func (c Column) Len() int { return len(c.Values) }

// IsValid reports whether row i holds a non-null value.
func (c Column) IsValid(i int) bool {
	if c.Valid == nil {
		return true
	}
	return c.Valid[i]
}

// RecordBatch is an ordered set of equal-length Columns conforming to a
// Schema.
type RecordBatch struct {
	Schema  meta.Schema
	Columns []Column
}

// NumRows is the row count, 0 for an empty batch.
func (b RecordBatch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// MatchesSchema is the write-path schema check: batch schema must equal
// engine schema in name, type, and order.
func (b RecordBatch) MatchesSchema(s meta.Schema) bool {
	return b.Schema.Equal(s)
}

// TimestampColumn returns the designated timestamp column, failing with
// ErrExpectTimestampColumn if it is not an int64 column.
func (b RecordBatch) TimestampColumn() (Column, error) {
	idx := b.Schema.TimestampIndex
	if idx < 0 || idx >= len(b.Columns) {
		return Column{}, &cmn.ErrExpectTimestampColumn{ColumnIndex: idx, ActualType: "<missing>"}
	}
	col := b.Columns[idx]
	colType := b.Schema.Columns[idx].Type
	if colType != meta.ColInt64 {
		return Column{}, &cmn.ErrExpectTimestampColumn{ColumnIndex: idx, ActualType: colTypeName(colType)}
	}
	return col, nil
}

// TimeRange computes the tight [min, max+1) range of the timestamp column.
// The batch must be non-empty.
func (b RecordBatch) TimeRange() (meta.TimeRange, error) {
	if b.NumRows() == 0 {
		return meta.TimeRange{}, cmn.ErrEmptyTimeRange
	}
	col, err := b.TimestampColumn()
	if err != nil {
		return meta.TimeRange{}, err
	}
	var min, max int64
	first := true
	for i := 0; i < col.Len(); i++ {
		if !col.IsValid(i) {
			continue
		}
		v := col.Values[i].(int64)
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if first {
		// every timestamp was null — treat as an empty range input error
		// rather than guessing a sentinel.
		return meta.TimeRange{}, cmn.ErrEmptyTimeRange
	}
	return meta.TimeRange{Start: min, End: max + 1}, nil
}

func colTypeName(t meta.ColumnType) string {
	names := [...]string{
		"int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "string", "bool", "binary",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}

// Slice returns the sub-batch [start, end) without copying column data
// (used by the writer to emit row groups of WriteOptions.MaxRowGroupSize).
func (b RecordBatch) Slice(start, end int) RecordBatch {
	out := RecordBatch{Schema: b.Schema, Columns: make([]Column, len(b.Columns))}
	for i, c := range b.Columns {
		nc := Column{Values: c.Values[start:end]}
		if c.Valid != nil {
			nc.Valid = c.Valid[start:end]
		}
		out.Columns[i] = nc
	}
	return out
}
