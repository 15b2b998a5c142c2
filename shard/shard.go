package shard

import (
	"context"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
)

// Shard is the addressable shard object: ShardData behind a reader/writer
// lock, plus the serial ShardOperator. ShardSet exclusively owns each Shard
// by id; the handle itself may be freely shared to allow concurrent
// readers.
type Shard struct {
	id       cmn.ShardID
	data     *ShardData
	operator ShardOperator
}

func NewShard(info meta.ShardInfo) *Shard {
	return &Shard{
		id:   info.ID,
		data: NewShardData(info),
	}
}

func (s *Shard) ID() cmn.ShardID { return s.id }

// ShardInfo, FindTable, Tables, Frozen are read accessors that may run
// concurrently with each other and interleave freely with the write-lock
// boundaries of in-flight writes.
func (s *Shard) ShardInfo() meta.ShardInfo                  { return s.data.ShardInfo() }
func (s *Shard) Tables() []meta.TableInfo                   { return s.data.Tables() }
func (s *Shard) Frozen() bool                               { return s.data.Frozen() }
func (s *Shard) FindTable(id uint64) (meta.TableInfo, bool) { return s.data.FindTable(id) }
func (s *Shard) TableOpen(id uint64) bool                   { return s.data.TableOpen(id) }

// Open, Close, CreateTable, DropTable, OpenTable, CloseTable are write-side
// operations serialized by the shard's ShardOperator.
func (s *Shard) Open(ctx context.Context) error  { return s.operator.Open(ctx, s.data) }
func (s *Shard) Close(ctx context.Context) error { return s.operator.Close(ctx, s.data) }

func (s *Shard) CreateTable(ctx context.Context, upd meta.UpdatedTableInfo) error {
	return s.operator.CreateTable(ctx, s.data, upd)
}

func (s *Shard) DropTable(ctx context.Context, upd meta.UpdatedTableInfo) error {
	return s.operator.DropTable(ctx, s.data, upd)
}

func (s *Shard) OpenTable(ctx context.Context, tableID uint64) error {
	return s.operator.OpenTable(ctx, s.data, tableID)
}

func (s *Shard) CloseTable(ctx context.Context, tableID uint64) error {
	return s.operator.CloseTable(ctx, s.data, tableID)
}
