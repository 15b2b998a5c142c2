// Package manifest maintains the durable index of live segment files: an
// object-store snapshot plus a delta log, mirrored in memory behind a
// buntdb spatial index so time-range overlap queries never scan the whole
// file set.
package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/cos"
	"github.com/outpostdb/mergestore/cmn/fname"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/objstore"
	"github.com/outpostdb/mergestore/stats"
)

// snapshotEvery folds the delta log into a fresh snapshot once this many
// deltas have accumulated since the last fold.
const snapshotEvery = 64

const rangeIndex = "trange"

// Manifest is the source of truth for segment membership. Mutations are
// durably appended (fail-closed) before they become visible to FindSSTs;
// the object store may hold orphan files the manifest never references.
type Manifest struct {
	store objstore.Store
	root  string

	mu         sync.Mutex // serializes mutations and snapshot folds
	files      map[meta.FileId]meta.FileMeta
	idx        *buntdb.DB
	deltaSeq   uint64
	deltaKeys  []string // delta object keys replayed or written since last fold
	nextFileID atomic.Uint64
}

// Open loads the manifest rooted at {root}/manifest/: the snapshot first,
// then any newer deltas in sequence order. A missing snapshot means a
// brand-new engine root.
func Open(ctx context.Context, store objstore.Store, root string) (*Manifest, error) {
	idx, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, &cmn.ErrManifestIO{Err: err}
	}
	if err := idx.CreateSpatialIndex(rangeIndex, "file:*", buntdb.IndexRect); err != nil {
		return nil, &cmn.ErrManifestIO{Err: err}
	}
	m := &Manifest{
		store: store,
		root:  root,
		files: make(map[meta.FileId]meta.FileMeta),
		idx:   idx,
	}
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) snapshotKey() string {
	return path.Join(m.root, fname.ManifestDir, fname.ManifestSnapshot)
}

func (m *Manifest) deltaKey(seq uint64) string {
	name := fmt.Sprintf("%016x-%s%s", seq, cos.GenShortID(), fname.ManifestDeltaExt)
	return path.Join(m.root, fname.ManifestDir, name)
}

func (m *Manifest) load(ctx context.Context) error {
	rc, err := m.store.Get(ctx, m.snapshotKey())
	if err == nil {
		gz, gerr := gzip.NewReader(rc)
		if gerr != nil {
			rc.Close()
			return &cmn.ErrManifestIO{Err: gerr}
		}
		raw, rerr := io.ReadAll(gz)
		rc.Close()
		if rerr != nil {
			return &cmn.ErrManifestIO{Err: rerr}
		}
		files, derr := decodeSnapshot(raw)
		if derr != nil {
			return derr
		}
		for _, fm := range files {
			m.applyAdd(fm)
		}
	}

	prefix := path.Join(m.root, fname.ManifestDir) + "/"
	objs, err := m.store.List(ctx, prefix)
	if err != nil {
		return &cmn.ErrManifestIO{Err: err}
	}
	type deltaObj struct {
		seq uint64
		key string
	}
	var deltas []deltaObj
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, prefix)
		if !strings.HasSuffix(name, fname.ManifestDeltaExt) {
			continue
		}
		var seq uint64
		if _, err := fmt.Sscanf(name, "%016x-", &seq); err != nil {
			nlog.Warningf("manifest: skipping unparsable delta %q", name)
			continue
		}
		deltas = append(deltas, deltaObj{seq: seq, key: o.Key})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].seq < deltas[j].seq })

	for _, d := range deltas {
		rc, err := m.store.Get(ctx, d.key)
		if err != nil {
			return &cmn.ErrManifestIO{Err: err}
		}
		raw, rerr := io.ReadAll(rc)
		rc.Close()
		if rerr != nil {
			return &cmn.ErrManifestIO{Err: rerr}
		}
		dec, derr := decodeDelta(raw)
		if derr != nil {
			return derr
		}
		m.applyDelta(dec)
		if dec.Seq >= m.deltaSeq {
			m.deltaSeq = dec.Seq + 1
		}
		m.deltaKeys = append(m.deltaKeys, d.key)
	}

	var maxID meta.FileId
	for id := range m.files {
		if id > maxID {
			maxID = id
		}
	}
	m.nextFileID.Store(maxID)
	return nil
}

// AllocFileID mints the next monotonic FileId. Collision-free across
// concurrent writers within one engine instance; monotonic across restart
// because Open seeds the counter from the loaded manifest.
func (m *Manifest) AllocFileID() meta.FileId {
	return m.nextFileID.Add(1)
}

// AddFile durably appends fm's membership; it becomes visible to FindSSTs
// only after the delta object is safely in the store. On error the segment
// stays an orphan and the caller must fail the write.
func (m *Manifest) AddFile(ctx context.Context, fm meta.FileMeta) error {
	return m.Swap(ctx, []meta.FileMeta{fm}, nil)
}

// RemoveFiles durably drops the given ids.
func (m *Manifest) RemoveFiles(ctx context.Context, ids []meta.FileId) error {
	return m.Swap(ctx, nil, ids)
}

// Swap atomically applies adds and removes in one durable delta: readers
// observe either the old set or the new set, never an intermediate one.
// The compactor relies on this to retire input segments and introduce
// their replacement in a single step.
func (m *Manifest) Swap(ctx context.Context, adds []meta.FileMeta, removes []meta.FileId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := delta{Seq: m.deltaSeq, Adds: adds, Removes: removes}
	key := m.deltaKey(d.Seq)
	if err := m.store.Put(ctx, key, bytes.NewReader(encodeDelta(d))); err != nil {
		return &cmn.ErrManifestIO{Err: err}
	}
	m.deltaSeq++
	m.deltaKeys = append(m.deltaKeys, key)
	m.applyDelta(d)
	stats.IncManifestDelta()

	if len(m.deltaKeys) >= snapshotEvery {
		if err := m.fold(ctx); err != nil {
			// the delta itself is durable; folding is an optimization
			nlog.Warningf("manifest: snapshot fold failed: %v", err)
		}
	}
	return nil
}

// applyDelta applies one mutation to the in-memory state. Caller holds
// m.mu (or is single-threaded during load).
func (m *Manifest) applyDelta(d delta) {
	for _, id := range d.Removes {
		m.applyRemove(id)
	}
	for _, fm := range d.Adds {
		m.applyAdd(fm)
	}
}

func (m *Manifest) applyAdd(fm meta.FileMeta) {
	m.files[fm.FileID] = fm
	err := m.idx.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(fileKey(fm.FileID), rect(fm.TimeRange), nil)
		return err
	})
	if err != nil {
		nlog.Errorf("manifest: index add %d: %v", fm.FileID, err)
	}
}

func (m *Manifest) applyRemove(id meta.FileId) {
	delete(m.files, id)
	err := m.idx.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(fileKey(id))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		nlog.Errorf("manifest: index remove %d: %v", id, err)
	}
}

// fold writes a fresh snapshot of the current file set and deletes the
// deltas it subsumes. Caller holds m.mu.
func (m *Manifest) fold(ctx context.Context) error {
	files := make([]meta.FileMeta, 0, len(m.files))
	for _, fm := range m.files {
		files = append(files, fm)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FileID < files[j].FileID })

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(encodeSnapshot(files)); err != nil {
		return &cmn.ErrManifestIO{Err: err}
	}
	if err := gz.Close(); err != nil {
		return &cmn.ErrManifestIO{Err: err}
	}
	if err := m.store.Put(ctx, m.snapshotKey(), &buf); err != nil {
		return &cmn.ErrManifestIO{Err: err}
	}
	folded := m.deltaKeys
	m.deltaKeys = nil
	for _, key := range folded {
		if err := m.store.Delete(ctx, key); err != nil {
			nlog.Warningf("manifest: delete folded delta %s: %v", key, err)
		}
	}
	nlog.Infof("manifest: folded %d deltas into snapshot (%d files)", len(folded), len(files))
	return nil
}

// FindSSTs returns every live segment whose time range overlaps rng
// (half-open), sorted ascending by range start so downstream merge work is
// deterministic.
func (m *Manifest) FindSSTs(rng meta.TimeRange) []meta.FileMeta {
	if rng.Start >= rng.End {
		return nil
	}
	// hold m.mu across the index query too, so a concurrent Swap's removes
	// and adds are observed together or not at all
	m.mu.Lock()
	var ids []meta.FileId
	_ = m.idx.View(func(tx *buntdb.Tx) error {
		return tx.Intersects(rangeIndex, rect(rng), func(key, _ string) bool {
			var id meta.FileId
			fmt.Sscanf(key, "file:%016x", &id)
			ids = append(ids, id)
			return true
		})
	})
	out := make([]meta.FileMeta, 0, len(ids))
	for _, id := range ids {
		if fm, ok := m.files[id]; ok && fm.TimeRange.Overlaps(rng) {
			out = append(out, fm)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeRange.Start != out[j].TimeRange.Start {
			return out[i].TimeRange.Start < out[j].TimeRange.Start
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}

// Files returns a snapshot of every live FileMeta, in FileID order.
func (m *Manifest) Files() []meta.FileMeta {
	m.mu.Lock()
	out := make([]meta.FileMeta, 0, len(m.files))
	for _, fm := range m.files {
		out = append(out, fm)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

// Close releases the in-memory index.
func (m *Manifest) Close() error {
	if err := m.idx.Close(); err != nil {
		return errors.Wrap(err, "manifest: close index")
	}
	return nil
}

func fileKey(id meta.FileId) string { return fmt.Sprintf("file:%016x", id) }

// rect renders a half-open time range as a closed 1-D buntdb rectangle:
// [start, end-1] inclusive, so Intersects matches exactly the half-open
// overlap rule on integer timestamps.
func rect(r meta.TimeRange) string {
	return fmt.Sprintf("[%d],[%d]", r.Start, r.End-1)
}
