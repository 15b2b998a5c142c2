package meta

import "github.com/outpostdb/mergestore/cmn"

// ShardRole distinguishes the handful of roles a shard can hold within the
// surrounding cluster metadata service.
type ShardRole int

const (
	RolePrimary ShardRole = iota
	RoleReplica
)

// ShardInfo is the descriptor of a shard. Version increments on every
// accepted mutation and is the CAS token callers supply on every
// create_table/drop_table call.
type ShardInfo struct {
	ID      cmn.ShardID `json:"id"`
	Role    ShardRole   `json:"role"`
	Version uint64      `json:"version"`
}

// TableInfo is the descriptor of a table in a shard. Schema is immutable
// for the table's lifetime; schema evolution and DDL choreography belong to
// the surrounding system.
type TableInfo struct {
	ID         uint64 `json:"id"`
	SchemaName string `json:"schema_name"`
	Name       string `json:"name"`
	Schema     Schema `json:"schema"`
}

// UpdatedTableInfo is the request shape the shard layer consumes for
// create_table/drop_table, delivered by the external metadata service.
type UpdatedTableInfo struct {
	PrevVersion uint64
	ShardInfo   ShardInfo
	TableInfo   TableInfo
}
