// Package shard implements the process-local shard registry: ShardSet maps
// ShardId to Shard handles; each Shard owns mutable ShardData (table list +
// frozen flag) guarded by a reader/writer lock, plus a ShardOperator that
// serializes write-side operations.
package shard

import (
	"sync"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
)

// TableState is the per-table ancillary readiness state that OpenTable and
// CloseTable toggle. Toggling it does not bump ShardInfo.Version — it is
// not a catalog mutation.
type TableState struct {
	Open bool
}

// ShardData is the mutable state of one shard. The zero value is not
// usable; construct with NewShardData.
type ShardData struct {
	mu          sync.RWMutex
	info        meta.ShardInfo
	tables      []meta.TableInfo
	tableStates map[uint64]TableState
	frozen      bool
}

func NewShardData(info meta.ShardInfo) *ShardData {
	return &ShardData{
		info:        info,
		tables:      nil,
		tableStates: make(map[uint64]TableState),
	}
}

// ShardInfo returns a snapshot of the shard descriptor. Read-only; may run
// concurrently with other reads.
func (d *ShardData) ShardInfo() meta.ShardInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Frozen reports whether the shard has been terminally closed.
func (d *ShardData) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}

// Tables returns a snapshot copy of the table list; mutating it does not
// affect ShardData.
func (d *ShardData) Tables() []meta.TableInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]meta.TableInfo, len(d.tables))
	copy(out, d.tables)
	return out
}

// FindTable is the read-only table lookup; it interleaves freely with the
// write-lock boundaries of in-flight mutations.
func (d *ShardData) FindTable(id uint64) (meta.TableInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tables {
		if t.ID == id {
			return t, true
		}
	}
	return meta.TableInfo{}, false
}

// TableOpen reports the per-table readiness bit set by OpenTable/CloseTable.
func (d *ShardData) TableOpen(id uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tableStates[id].Open
}

// tryInsertTable applies a version-guarded table insert: frozen check,
// version CAS, duplicate-id check, then the atomic info+tables swap. The
// caller (ShardOperator.CreateTable) holds the serial writer lock across
// the whole operation; this method takes the ShardData write lock only for
// the in-memory mutation itself, never across I/O.
func (d *ShardData) tryInsertTable(upd meta.UpdatedTableInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return &cmn.ErrUpdateFrozenShard{ShardID: d.info.ID}
	}
	if d.info.Version != upd.PrevVersion {
		return &cmn.ErrShardVersionMismatch{Current: d.info.Version, Expected: upd.PrevVersion}
	}
	for _, t := range d.tables {
		if t.ID == upd.TableInfo.ID {
			return &cmn.ErrTableAlreadyExists{TableID: t.ID}
		}
	}

	d.info = upd.ShardInfo
	d.tables = append(d.tables, upd.TableInfo)
	d.tableStates[upd.TableInfo.ID] = TableState{Open: false}
	return nil
}

// tryRemoveTable applies a version-guarded table removal. Remaining-table
// order is unspecified; swap-remove.
func (d *ShardData) tryRemoveTable(upd meta.UpdatedTableInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return &cmn.ErrUpdateFrozenShard{ShardID: d.info.ID}
	}
	if d.info.Version != upd.PrevVersion {
		return &cmn.ErrShardVersionMismatch{Current: d.info.Version, Expected: upd.PrevVersion}
	}

	idx := -1
	for i, t := range d.tables {
		if t.ID == upd.TableInfo.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &cmn.ErrTableNotFound{TableID: upd.TableInfo.ID}
	}

	last := len(d.tables) - 1
	d.tables[idx] = d.tables[last]
	d.tables = d.tables[:last]
	delete(d.tableStates, upd.TableInfo.ID)
	d.info = upd.ShardInfo
	return nil
}

// setTableOpen toggles per-table readiness without touching Version; it
// skips the CAS check because it is not a catalog mutation.
func (d *ShardData) setTableOpen(id uint64, open bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return &cmn.ErrUpdateFrozenShard{ShardID: d.info.ID}
	}
	found := false
	for _, t := range d.tables {
		if t.ID == id {
			found = true
			break
		}
	}
	if !found {
		return &cmn.ErrTableNotFound{TableID: id}
	}
	d.tableStates[id] = TableState{Open: open}
	return nil
}

// freeze transitions ShardData to its terminal state. There is no thaw.
func (d *ShardData) freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}
