// Package meta holds the data-model value types shared by the shard and
// engine layers: shard/table descriptors, schema, time ranges, and segment
// (SST) file metadata.
package meta

import (
	"fmt"

	"github.com/outpostdb/mergestore/cmn"
)

// Timestamp is a nanosecond instant, int64-backed and totally ordered.
type Timestamp = int64

// TimeRange is the half-open interval [Start, End). Two ranges overlap iff
// a.Start < b.End && b.Start < a.End.
type TimeRange struct {
	Start Timestamp `json:"start" msg:"start"`
	End   Timestamp `json:"end" msg:"end"`
}

// Overlaps reports whether r and o share any instant, using the half-open
// overlap rule.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Merge returns the smallest TimeRange covering both r and o.
func (r TimeRange) Merge(o TimeRange) TimeRange {
	out := r
	if o.Start < out.Start {
		out.Start = o.Start
	}
	if o.End > out.End {
		out.End = o.End
	}
	return out
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// FileId is the monotonically allocated identity of a segment file. Never
// reused.
type FileId = uint64

// SeqNumber is the write-ordering counter recorded per segment. This
// implementation allocates it from the same monotonic counter as FileId;
// the separate name keeps the two roles distinguishable at use sites.
type SeqNumber = FileId

// ColumnType enumerates the primitive types a column may hold. The physical
// columnar execution framework sitting above the engine recognizes a richer
// type system; this is the subset the write/sort path needs to reason about
// key ordering and timestamp extraction.
type ColumnType int

const (
	ColInt8 ColumnType = iota
	ColInt16
	ColInt32
	ColInt64
	ColUint8
	ColUint16
	ColUint32
	ColUint64
	ColFloat32
	ColFloat64
	ColString
	ColBool
	ColBinary
)

// Column describes one schema column.
type Column struct {
	Name     string     `json:"name" msg:"name"`
	Type     ColumnType `json:"type" msg:"type"`
	Nullable bool       `json:"nullable" msg:"nullable"`
}

// Schema is the ordered column layout of a table. The first NumPrimaryKey
// columns are the primary key (sort key); TimestampIndex names the column
// that must decode to a 64-bit integer timestamp.
type Schema struct {
	Columns        []Column `json:"columns" msg:"columns"`
	NumPrimaryKey  int      `json:"num_primary_key" msg:"num_primary_key"`
	TimestampIndex int      `json:"timestamp_index" msg:"timestamp_index"`
}

// Equal reports whether s and o have identical column name, type, and
// order — the exact check the write path performs before accepting a batch.
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	if s.NumPrimaryKey != o.NumPrimaryKey || s.TimestampIndex != o.TimestampIndex {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i].Name != o.Columns[i].Name || s.Columns[i].Type != o.Columns[i].Type {
			return false
		}
	}
	return true
}

func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return cmn.ErrEmptySchema
	}
	if s.NumPrimaryKey <= 0 || s.NumPrimaryKey > len(s.Columns) {
		return fmt.Errorf("num_primary_key %d out of range [1,%d]", s.NumPrimaryKey, len(s.Columns))
	}
	if s.TimestampIndex < 0 || s.TimestampIndex >= len(s.Columns) {
		return fmt.Errorf("timestamp_index %d out of range", s.TimestampIndex)
	}
	return nil
}

// FileMeta is the per-segment manifest record.
type FileMeta struct {
	FileID      FileId    `json:"file_id" msg:"file_id"`
	TimeRange   TimeRange `json:"time_range" msg:"time_range"`
	NumRows     uint64    `json:"num_rows" msg:"num_rows"`
	ByteSize    uint64    `json:"byte_size" msg:"byte_size"`
	MaxSequence SeqNumber `json:"max_sequence" msg:"max_sequence"`
	// Checksum is the xxhash64 digest of the encoded segment bytes,
	// recorded so readers can detect silent corruption without a full
	// footer round-trip.
	Checksum string `json:"checksum" msg:"checksum"`
}
