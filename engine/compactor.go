package engine

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/segment"
	"github.com/outpostdb/mergestore/stats"
)

// Compact rewrites the named segments into one larger sorted segment and
// swaps old for new in a single manifest mutation, so readers at every
// instant see either the old set or the new set. The retired objects stay
// behind as orphans for a later GC pass. Which segments to pick and when
// is the caller's policy; Compact only executes the rewrite.
func (e *Engine) Compact(ctx context.Context, req CompactRequest) (meta.FileMeta, error) {
	if len(req.FileIDs) == 0 {
		return meta.FileMeta{}, errors.New("compact: no input segments")
	}

	byID := make(map[meta.FileId]meta.FileMeta)
	for _, fm := range e.man.Files() {
		byID[fm.FileID] = fm
	}
	inputs := make([]meta.FileMeta, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		fm, ok := byID[id]
		if !ok {
			return meta.FileMeta{}, errors.Errorf("compact: file %d not in manifest", id)
		}
		inputs = append(inputs, fm)
	}

	// pull every input into memory; a compaction batch is bounded by the
	// caller's pick
	batches := make([]segment.RecordBatch, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanFetchParallel)
	for i, fm := range inputs {
		g.Go(func() error {
			rc, err := e.store.Get(gctx, e.dataKey(fm.FileID))
			if err != nil {
				return &cmn.ErrStorageIO{Op: "get", Err: err}
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return &cmn.ErrStorageIO{Op: "read", Err: err}
			}
			r, err := segment.NewReader(data)
			if err != nil {
				return err
			}
			b, err := r.ReadAll(nil)
			if err != nil {
				return err
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return meta.FileMeta{}, err
	}

	merged := concatBatches(e.schema, batches)
	if merged.NumRows() == 0 {
		return meta.FileMeta{}, errors.New("compact: inputs hold no rows")
	}
	sorted := segment.Sort(merged)

	rng := inputs[0].TimeRange
	var maxSeq meta.SeqNumber
	for _, fm := range inputs {
		rng = rng.Merge(fm.TimeRange)
		if fm.MaxSequence > maxSeq {
			maxSeq = fm.MaxSequence
		}
	}

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

	out := meta.FileMeta{
		FileID:      fileID,
		TimeRange:   rng,
		NumRows:     numRows,
		ByteSize:    uint64(oi.Size),
		MaxSequence: maxSeq,
		Checksum:    checksum,
	}
	if err := e.man.Swap(ctx, []meta.FileMeta{out}, req.FileIDs); err != nil {
		nlog.Errorf("compact: replacement %d uploaded but swap failed: %v", fileID, err)
		return meta.FileMeta{}, err
	}

	stats.IncCompact()
	nlog.With("file_id", fileID).Infof("compacted %d segments into one (%d rows)", len(inputs), numRows)
	return out, nil
}

func concatBatches(schema meta.Schema, batches []segment.RecordBatch) segment.RecordBatch {
	builder := newBatchBuilder(schema)
	for _, b := range batches {
		for i := 0; i < b.NumRows(); i++ {
			builder.appendRow(b, i)
		}
	}
	return builder.finish()
}
