// Package engine implements the time-merge storage engine: per table, one
// instance rooted at an object-store path, owning the writer pipeline, the
// manifest, the scanner, and the compactor. Writes sort and persist
// immutable columnar segments; scans merge overlapping segments back into
// one primary-key-ordered stream.
package engine

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/cos"
	"github.com/outpostdb/mergestore/cmn/debug"
	"github.com/outpostdb/mergestore/cmn/fname"
	"github.com/outpostdb/mergestore/cmn/mono"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/manifest"
	"github.com/outpostdb/mergestore/engine/segment"
	"github.com/outpostdb/mergestore/objstore"
	"github.com/outpostdb/mergestore/stats"
)

// Config carries the engine constructor parameters.
type Config struct {
	RootPath       string
	Store          objstore.Store
	Columns        []meta.Column
	NumPrimaryKey  int
	TimestampIndex int
	WriteOptions   segment.WriteOptions
}

// Engine is one table's (or tablet's) storage engine instance. Safe for
// concurrent use: writes target distinct FileIds, the manifest provides
// its own synchronization, and scans are read-only.
type Engine struct {
	root   string
	store  objstore.Store
	schema meta.Schema
	opts   segment.WriteOptions
	man    *manifest.Manifest
}

// New opens (or creates) an engine rooted at cfg.RootPath, loading the
// manifest and seeding the FileId counter from it.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	schema := meta.Schema{
		Columns:        cfg.Columns,
		NumPrimaryKey:  cfg.NumPrimaryKey,
		TimestampIndex: cfg.TimestampIndex,
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, errors.New("engine: object store is required")
	}
	opts := cfg.WriteOptions
	opts.Sanitize()
	man, err := manifest.Open(ctx, cfg.Store, cfg.RootPath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		root:   cfg.RootPath,
		store:  cfg.Store,
		schema: schema,
		opts:   opts,
		man:    man,
	}, nil
}

func (e *Engine) Schema() meta.Schema          { return e.schema }
func (e *Engine) Manifest() *manifest.Manifest { return e.man }

// Close releases the manifest's in-memory resources.
func (e *Engine) Close() error { return e.man.Close() }

func (e *Engine) dataKey(id meta.FileId) string {
	return path.Join(e.root, fname.DataDir, fmt.Sprintf("%020d", id))
}

// Write ingests one batch: schema check, time-range extraction, sort by
// primary key, segment encode + streaming upload, manifest registration.
// Fail-atomic at the manifest boundary: either the segment is durably
// registered or an error comes back (a crash in between leaves an orphan
// object the manifest never references).
func (e *Engine) Write(ctx context.Context, req WriteRequest) (meta.FileMeta, error) {
	started := mono.NanoTime()

	if !req.Batch.MatchesSchema(e.schema) {
		return meta.FileMeta{}, &cmn.ErrSchemaMismatch{Reason: "write batch schema differs from engine schema"}
	}
	rng, err := req.Batch.TimeRange()
	if err != nil {
		return meta.FileMeta{}, err
	}

	sorted := segment.Sort(req.Batch)
	debug.Assert(sorted.NumRows() == req.Batch.NumRows())

	fileID := e.man.AllocFileID()
	key := e.dataKey(fileID)

	numRows, checksum, err := e.uploadSegment(ctx, key, sorted)
	if err != nil {
		return meta.FileMeta{}, err
	}

	oi, err := e.store.Stat(ctx, key)
	if err != nil {
		return meta.FileMeta{}, &cmn.ErrStorageIO{Op: "stat", Err: err}
	}

	fm := meta.FileMeta{
		FileID:      fileID,
		TimeRange:   rng,
		NumRows:     numRows,
		ByteSize:    uint64(oi.Size),
		MaxSequence: fileID,
		Checksum:    checksum,
	}
	if err := e.man.AddFile(ctx, fm); err != nil {
		// the uploaded segment is now an orphan; GC reclaims it later
		nlog.Errorf("write: segment %d uploaded but not registered: %v", fileID, err)
		return meta.FileMeta{}, err
	}

	stats.IncWrite(fm.ByteSize, mono.NanoTime()-started)
	nlog.With("file_id", fileID).Infof("wrote segment: %d rows, %d bytes, range %s",
		fm.NumRows, fm.ByteSize, fm.TimeRange)
	return fm, nil
}

// uploadSegment encodes sorted into the segment format and streams it to
// the object store through a pipe, hashing the bytes on the way out.
func (e *Engine) uploadSegment(ctx context.Context, key string, sorted segment.RecordBatch) (numRows uint64, checksum string, err error) {
	pr, pw := io.Pipe()
	h := xxhash.NewS64(cos.MLCG32)

	encodeErr := make(chan error, 1)
	go func() {
		sw, werr := segment.NewWriter(io.MultiWriter(pw, h), e.schema, e.opts)
		if werr != nil {
			encodeErr <- werr
			pw.CloseWithError(werr)
			return
		}
		if werr = sw.Write(sorted); werr == nil {
			numRows, werr = sw.Close()
		}
		encodeErr <- werr
		pw.CloseWithError(werr)
	}()

	if perr := e.store.Put(ctx, key, pr); perr != nil {
		pr.CloseWithError(perr)
		<-encodeErr
		return 0, "", &cmn.ErrStorageIO{Op: "put", Err: perr}
	}
	if werr := <-encodeErr; werr != nil {
		return 0, "", werr
	}
	return numRows, fmt.Sprintf("%x", h.Sum64()), nil
}

// GC deletes data objects the manifest does not reference: orphans from
// crashed writes and retired compaction inputs. Keys still pending a
// manifest append are protected by the caller not running GC concurrently
// with writes it cares about.
func (e *Engine) GC(ctx context.Context) (removed int, err error) {
	prefix := path.Join(e.root, fname.DataDir) + "/"
	objs, err := e.store.List(ctx, prefix)
	if err != nil {
		return 0, &cmn.ErrStorageIO{Op: "list", Err: err}
	}
	live := make(map[string]struct{})
	for _, fm := range e.man.Files() {
		live[e.dataKey(fm.FileID)] = struct{}{}
	}
	for _, o := range objs {
		if _, ok := live[o.Key]; ok {
			continue
		}
		if derr := e.store.Delete(ctx, o.Key); derr != nil {
			nlog.Warningf("gc: delete %s: %v", o.Key, derr)
			continue
		}
		removed++
	}
	if removed > 0 {
		nlog.Infof("gc: removed %d orphan objects under %s", removed, prefix)
	}
	return removed, nil
}
