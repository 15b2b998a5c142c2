package shard

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/stats"
)

// ShardOperator is the serial writer lock of a shard: a single mutex held
// across the entire duration of any write-side operation, guaranteeing at
// most one write in flight per shard. Goroutines parked on a sync.Mutex do
// not pin an OS thread, so the lock may be held across object-store I/O.
type ShardOperator struct {
	mu sync.Mutex
}

// acquire locks the operator and returns a short trace id for log
// correlation across the potentially long-running operation body.
func (op *ShardOperator) acquire() string {
	op.mu.Lock()
	return uuid.New().String()[:8]
}

func (op *ShardOperator) release() { op.mu.Unlock() }

// Open transitions the shard to a readable state. Idempotent with respect
// to an already-open shard: re-opening is a no-op that does not touch
// version or the table list.
func (op *ShardOperator) Open(ctx context.Context, d *ShardData) error {
	trace := op.acquire()
	defer op.release()
	log := nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace)
	if d.Frozen() {
		log.Warningf("open called on frozen shard")
		return nil
	}
	log.Infof("shard opened")
	return nil
}

// Close freezes the shard and releases in-memory resources. After Close,
// Frozen() is true and every subsequent CreateTable, DropTable, OpenTable
// and CloseTable fails with ErrUpdateFrozenShard; Open on a frozen shard
// logs a warning and returns nil.
func (op *ShardOperator) Close(ctx context.Context, d *ShardData) error {
	trace := op.acquire()
	defer op.release()
	d.freeze()
	nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Infof("shard closed (frozen)")
	return nil
}

// CreateTable applies tryInsertTable under the serial lock.
func (op *ShardOperator) CreateTable(ctx context.Context, d *ShardData, upd meta.UpdatedTableInfo) error {
	trace := op.acquire()
	defer op.release()
	if err := d.tryInsertTable(upd); err != nil {
		var mismatch *cmn.ErrShardVersionMismatch
		if errors.As(err, &mismatch) {
			stats.IncCASConflict()
		}
		nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Warningf("create_table failed: %v", err)
		return err
	}
	nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Infof("table %d created", upd.TableInfo.ID)
	return nil
}

// DropTable applies tryRemoveTable under the serial lock.
func (op *ShardOperator) DropTable(ctx context.Context, d *ShardData, upd meta.UpdatedTableInfo) error {
	trace := op.acquire()
	defer op.release()
	if err := d.tryRemoveTable(upd); err != nil {
		var mismatch *cmn.ErrShardVersionMismatch
		if errors.As(err, &mismatch) {
			stats.IncCASConflict()
		}
		nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Warningf("drop_table failed: %v", err)
		return err
	}
	nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Infof("table %d dropped", upd.TableInfo.ID)
	return nil
}

// OpenTable and CloseTable toggle per-table readiness without altering the
// table list.
func (op *ShardOperator) OpenTable(ctx context.Context, d *ShardData, tableID uint64) error {
	trace := op.acquire()
	defer op.release()
	err := d.setTableOpen(tableID, true)
	nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Infof("open_table %d: err=%v", tableID, err)
	return err
}

func (op *ShardOperator) CloseTable(ctx context.Context, d *ShardData, tableID uint64) error {
	trace := op.acquire()
	defer op.release()
	err := d.setTableOpen(tableID, false)
	nlog.With("shard_id", d.ShardInfo().ID).With("trace", trace).Infof("close_table %d: err=%v", tableID, err)
	return err
}
