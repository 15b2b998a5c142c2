// Package prob implements a dynamically growing probabilistic membership
// filter. The segment writer uses one per bloom-enabled column: lookups
// may return false positives but never false negatives, so a negative
// lookup safely skips a row group or segment.
package prob

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

const filterInitSize = 1 << 16

// Filter is a chain of cuckoo filters: once the newest one is half full,
// another (twice the size) is linked in front. Lookup consults the chain
// newest-first.
type Filter struct {
	mu      sync.RWMutex
	filters []*cuckoo.Filter
	size    uint
}

func NewFilter(initSize uint) *Filter {
	if initSize == 0 {
		initSize = filterInitSize
	}
	return &Filter{
		filters: []*cuckoo.Filter{cuckoo.NewFilter(initSize)},
		size:    initSize,
	}
}

func NewDefaultFilter() *Filter { return NewFilter(filterInitSize) }

// Insert adds key to the newest filter, growing the chain before that
// filter passes half load: a cuckoo insert that exhausts its eviction loop
// drops an already stored entry, so the chain never lets one fill up.
func (f *Filter) Insert(key []byte) {
	f.mu.Lock()
	last := f.filters[len(f.filters)-1]
	if last.Count() >= f.size/2 {
		f.size *= 2
		last = cuckoo.NewFilter(f.size)
		f.filters = append(f.filters, last)
	}
	if !last.Insert(key) {
		f.size *= 2
		grown := cuckoo.NewFilter(f.size)
		grown.Insert(key)
		f.filters = append(f.filters, grown)
	}
	f.mu.Unlock()
}

// Lookup reports whether key may have been inserted. False positives are
// possible, false negatives are not.
func (f *Filter) Lookup(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := len(f.filters) - 1; i >= 0; i-- {
		if f.filters[i].Lookup(key) {
			return true
		}
	}
	return false
}

// Delete removes one occurrence of key, scanning the chain newest-first.
func (f *Filter) Delete(key []byte) {
	f.mu.Lock()
	for i := len(f.filters) - 1; i >= 0; i-- {
		if f.filters[i].Delete(key) {
			break
		}
	}
	f.mu.Unlock()
}

// Encode serializes the chain for embedding into a segment footer; the
// chain is flattened into per-filter byte blocks.
func (f *Filter) Encode() [][]byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([][]byte, len(f.filters))
	for i, cf := range f.filters {
		out[i] = cf.Encode()
	}
	return out
}

// Decode reconstructs a Filter from Encode's output.
func Decode(blocks [][]byte) (*Filter, error) {
	if len(blocks) == 0 {
		return NewDefaultFilter(), nil
	}
	f := &Filter{filters: make([]*cuckoo.Filter, 0, len(blocks))}
	for _, b := range blocks {
		cf, err := cuckoo.Decode(b)
		if err != nil {
			return nil, err
		}
		f.filters = append(f.filters, cf)
	}
	f.size = uint(f.filters[len(f.filters)-1].Count())
	if f.size < filterInitSize {
		f.size = filterInitSize
	}
	return f, nil
}

// Reset drops all entries, keeping the initial capacity.
func (f *Filter) Reset() {
	f.mu.Lock()
	f.filters = []*cuckoo.Filter{cuckoo.NewFilter(filterInitSize)}
	f.size = filterInitSize
	f.mu.Unlock()
}
