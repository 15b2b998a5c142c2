package engine

import (
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/segment"
)

// CompareOp is a predicate comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
)

// Predicate is one conjunct of a scan filter: column OP value. Equality
// predicates on bloom-filtered columns are pushed down to segment
// selection; everything is re-applied row by row above the scan.
type Predicate struct {
	Column string
	Op     CompareOp
	Value  any
}

// WriteRequest carries one batch to ingest. Every call produces exactly
// one segment; there is no in-memory merge buffer between writes.
type WriteRequest struct {
	Batch segment.RecordBatch
}

// ScanRequest selects segments overlapping Range, filters them by the
// conjunction of Predicates, and projects the given column indices (nil
// means all columns).
type ScanRequest struct {
	Range       meta.TimeRange
	Predicates  []Predicate
	Projections []int
}

// CompactRequest names the segments to rewrite into one.
type CompactRequest struct {
	FileIDs []meta.FileId
}
