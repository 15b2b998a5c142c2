package shard

import (
	"sync"

	"github.com/outpostdb/mergestore/cmn"
)

// ShardSet maps ShardId to Shard handles with concurrent multi-reader/
// single-writer discipline on the map itself. The map never polices shard
// lifecycle ordering — inserting over an open shard is the caller's
// mistake, not something ShardSet detects.
type ShardSet struct {
	mu     sync.RWMutex
	shards map[cmn.ShardID]*Shard
}

func NewShardSet() *ShardSet {
	return &ShardSet{shards: make(map[cmn.ShardID]*Shard)}
}

// AllShards returns a snapshot read; order is unspecified.
func (s *ShardSet) AllShards() []*Shard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Shard, 0, len(s.shards))
	for _, sh := range s.shards {
		out = append(out, sh)
	}
	return out
}

// Get is a read-only lookup; a miss is ok=false, not an error.
func (s *ShardSet) Get(id cmn.ShardID) (*Shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[id]
	return sh, ok
}

// Insert overwrites any existing entry; last-writer wins.
func (s *ShardSet) Insert(id cmn.ShardID, sh *Shard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[id] = sh
}

// Remove is atomic; returns the removed handle if present.
func (s *ShardSet) Remove(id cmn.ShardID) (*Shard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[id]
	if ok {
		delete(s.shards, id)
	}
	return sh, ok
}

// Len is the current shard count, used by the surrounding metadata-sync
// loop to detect membership drift.
func (s *ShardSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Range iterates shards in unspecified order, stopping early if fn returns
// false.
func (s *ShardSet) Range(fn func(cmn.ShardID, *Shard) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, sh := range s.shards {
		if !fn(id, sh) {
			return
		}
	}
}
