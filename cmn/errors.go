// Package cmn holds error kinds and other cross-package value types shared
// by the shard and engine layers.
package cmn

import "fmt"

// ShardID is the stable, externally assigned identity of a shard.
type ShardID uint64

// ErrUpdateFrozenShard is returned when a mutation is attempted on a shard
// that has already been closed (frozen is a terminal state).
type ErrUpdateFrozenShard struct {
	ShardID ShardID
}

func (e *ErrUpdateFrozenShard) Error() string {
	return fmt.Sprintf("shard %d is frozen: no further mutations accepted", e.ShardID)
}

// ErrShardVersionMismatch is the CAS failure: the caller's expected version
// no longer matches ShardData.ShardInfo.Version.
type ErrShardVersionMismatch struct {
	Current, Expected uint64
}

func (e *ErrShardVersionMismatch) Error() string {
	return fmt.Sprintf("shard version mismatch: current=%d expected=%d", e.Current, e.Expected)
}

// ErrTableAlreadyExists is returned by try_insert_table when a table with
// the same id is already present.
type ErrTableAlreadyExists struct {
	TableID uint64
}

func (e *ErrTableAlreadyExists) Error() string {
	return fmt.Sprintf("table %d already exists", e.TableID)
}

// ErrTableNotFound is returned by try_remove_table when no table matches.
type ErrTableNotFound struct {
	TableID uint64
}

func (e *ErrTableNotFound) Error() string {
	return fmt.Sprintf("table %d not found", e.TableID)
}

// ErrSchemaMismatch is returned by Engine.Write when the batch schema
// differs from the engine's schema in name, type, or column order.
type ErrSchemaMismatch struct {
	Reason string
}

func (e *ErrSchemaMismatch) Error() string { return "schema mismatch: " + e.Reason }

// ErrExpectTimestampColumn is returned when the designated timestamp column
// is not a 64-bit integer column.
type ErrExpectTimestampColumn struct {
	ColumnIndex int
	ActualType  string
}

func (e *ErrExpectTimestampColumn) Error() string {
	return fmt.Sprintf("expected int64 timestamp column at index %d, got %s", e.ColumnIndex, e.ActualType)
}

// ErrStorageIO wraps an object-store failure.
type ErrStorageIO struct {
	Op  string
	Err error
}

func (e *ErrStorageIO) Error() string { return fmt.Sprintf("storage io (%s): %v", e.Op, e.Err) }
func (e *ErrStorageIO) Unwrap() error { return e.Err }

// ErrEncodeSegment / ErrDecodeSegment wrap columnar writer/reader failures.
type ErrEncodeSegment struct{ Err error }

func (e *ErrEncodeSegment) Error() string { return fmt.Sprintf("encode segment: %v", e.Err) }
func (e *ErrEncodeSegment) Unwrap() error { return e.Err }

type ErrDecodeSegment struct{ Err error }

func (e *ErrDecodeSegment) Error() string { return fmt.Sprintf("decode segment: %v", e.Err) }
func (e *ErrDecodeSegment) Unwrap() error { return e.Err }

// ErrManifestIO wraps a manifest read/append failure.
type ErrManifestIO struct{ Err error }

func (e *ErrManifestIO) Error() string { return fmt.Sprintf("manifest io: %v", e.Err) }
func (e *ErrManifestIO) Unwrap() error { return e.Err }

// ErrEmptyTimeRange / ErrEmptySchema are protocol-boundary validation errors.
var (
	ErrEmptyTimeRange = fmt.Errorf("empty time range")
	ErrEmptySchema    = fmt.Errorf("empty schema")
)
