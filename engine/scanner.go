package engine

import (
	"container/heap"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/mono"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/segment"
	"github.com/outpostdb/mergestore/stats"
)

const (
	scanBatchSize     = 1024
	scanFetchParallel = 8
)

type batchItem struct {
	batch segment.RecordBatch
	err   error
}

// BatchStream is the lazy result of a scan: batches arrive in primary-key
// order; errors arrive in-band and terminate the stream. Batches consumed
// before an error remain valid.
type BatchStream struct {
	ch     chan batchItem
	cancel context.CancelFunc
	done   bool
}

// Next returns the next batch. io.EOF signals normal end of stream.
func (s *BatchStream) Next(ctx context.Context) (segment.RecordBatch, error) {
	if s.done {
		return segment.RecordBatch{}, io.EOF
	}
	select {
	case <-ctx.Done():
		s.Close()
		return segment.RecordBatch{}, ctx.Err()
	case item, ok := <-s.ch:
		if !ok {
			s.done = true
			return segment.RecordBatch{}, io.EOF
		}
		if item.err != nil {
			s.done = true
			return segment.RecordBatch{}, item.err
		}
		return item.batch, nil
	}
}

// Close abandons the stream; safe to call at any point.
func (s *BatchStream) Close() { s.cancel() }

// Scan selects the manifest's segments overlapping req.Range, builds a
// sort-merge over them keyed by the write-time primary-key ordering,
// filters by the predicate conjunction, and streams the result. Rows
// emerge ascending by primary key (nulls-first), tie-broken by timestamp.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*BatchStream, error) {
	started := mono.NanoTime()

	if req.Range.Start >= req.Range.End {
		return nil, cmn.ErrEmptyTimeRange
	}
	if err := e.checkScanRequest(req); err != nil {
		return nil, err
	}
	ssts := e.man.FindSSTs(req.Range)
	stats.IncScan(len(ssts), mono.NanoTime()-started)
	nlog.Infof("scan %s: %d overlapping segments", req.Range, len(ssts))

	sctx, cancel := context.WithCancel(ctx)
	stream := &BatchStream{
		ch:     make(chan batchItem, 2),
		cancel: cancel,
	}
	go e.runScan(sctx, req, ssts, stream.ch)
	return stream, nil
}

func (e *Engine) checkScanRequest(req ScanRequest) error {
	colIdx := func(name string) int {
		for i, c := range e.schema.Columns {
			if c.Name == name {
				return i
			}
		}
		return -1
	}
	for _, p := range req.Predicates {
		if colIdx(p.Column) < 0 {
			return &cmn.ErrSchemaMismatch{Reason: "predicate column " + p.Column + " not in schema"}
		}
	}
	for _, pi := range req.Projections {
		if pi < 0 || pi >= len(e.schema.Columns) {
			return &cmn.ErrSchemaMismatch{Reason: "projection index out of range"}
		}
	}
	return nil
}

func (e *Engine) runScan(ctx context.Context, req ScanRequest, ssts []meta.FileMeta, out chan<- batchItem) {
	defer close(out)

	inputs := make([]segment.RecordBatch, len(ssts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanFetchParallel)
	for i, fm := range ssts {
		g.Go(func() error {
			b, err := e.fetchSegment(gctx, fm, req.Predicates)
			if err != nil {
				return err
			}
			inputs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		select {
		case out <- batchItem{err: err}:
		case <-ctx.Done():
		}
		return
	}

	e.mergeInputs(ctx, inputs, req.Projections, out)
}

// fetchSegment downloads and decodes one segment, applying the bloom
// pre-filter (a definitive miss on any equality predicate skips the whole
// segment) and the row-level predicate conjunction.
func (e *Engine) fetchSegment(ctx context.Context, fm meta.FileMeta, preds []Predicate) (segment.RecordBatch, error) {
	rc, err := e.store.Get(ctx, e.dataKey(fm.FileID))
	if err != nil {
		return segment.RecordBatch{}, &cmn.ErrStorageIO{Op: "get", Err: err}
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return segment.RecordBatch{}, &cmn.ErrStorageIO{Op: "read", Err: err}
	}
	r, err := segment.NewReader(data)
	if err != nil {
		return segment.RecordBatch{}, err
	}

	for _, p := range preds {
		if p.Op != OpEq {
			continue
		}
		ci := e.columnIndex(p.Column)
		if !r.MayContain(p.Column, e.schema.Columns[ci].Type, p.Value) {
			return segment.RecordBatch{Schema: e.schema, Columns: make([]segment.Column, len(e.schema.Columns))}, nil
		}
	}

	b, err := r.ReadAll(nil)
	if err != nil {
		return segment.RecordBatch{}, err
	}
	if len(preds) == 0 {
		return b, nil
	}
	return e.filterRows(b, preds), nil
}

func (e *Engine) columnIndex(name string) int {
	for i, c := range e.schema.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// filterRows keeps the rows satisfying every predicate. A null cell
// matches no operator.
func (e *Engine) filterRows(b segment.RecordBatch, preds []Predicate) segment.RecordBatch {
	n := b.NumRows()
	keep := make([]int, 0, n)
rows:
	for i := 0; i < n; i++ {
		for _, p := range preds {
			ci := e.columnIndex(p.Column)
			col := b.Columns[ci]
			if !col.IsValid(i) {
				continue rows
			}
			c := segment.CompareValues(col.Values[i], p.Value)
			ok := false
			switch p.Op {
			case OpEq:
				ok = c == 0
			case OpNe:
				ok = c != 0
			case OpLt:
				ok = c < 0
			case OpLe:
				ok = c <= 0
			case OpGt:
				ok = c > 0
			case OpGe:
				ok = c >= 0
			}
			if !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	if len(keep) == n {
		return b
	}
	return takeRows(b, keep)
}

func takeRows(b segment.RecordBatch, rows []int) segment.RecordBatch {
	out := segment.RecordBatch{Schema: b.Schema, Columns: make([]segment.Column, len(b.Columns))}
	for ci, c := range b.Columns {
		nc := segment.Column{Values: make([]any, len(rows))}
		if c.Valid != nil {
			nc.Valid = make([]bool, len(rows))
		}
		for oi, ri := range rows {
			nc.Values[oi] = c.Values[ri]
			if c.Valid != nil {
				nc.Valid[oi] = c.Valid[ri]
			}
		}
		out.Columns[ci] = nc
	}
	return out
}

// mergeCursor is one segment's position in the k-way merge.
type mergeCursor struct {
	batch segment.RecordBatch
	pos   int
	seq   int // input rank, breaks full-key ties so the merge stays stable
}

type mergeHeap struct {
	cursors []*mergeCursor
	numPK   int
	tsIdx   int
}

func (h *mergeHeap) Len() int { return len(h.cursors) }
func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	if c := segment.CompareKeys(a.batch, a.pos, b.batch, b.pos, h.numPK, h.tsIdx); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}
func (h *mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }
func (h *mergeHeap) Push(x any)    { h.cursors = append(h.cursors, x.(*mergeCursor)) }
func (h *mergeHeap) Pop() any {
	old := h.cursors
	n := len(old)
	x := old[n-1]
	h.cursors = old[:n-1]
	return x
}

func (e *Engine) mergeInputs(ctx context.Context, inputs []segment.RecordBatch, projections []int, out chan<- batchItem) {
	h := &mergeHeap{numPK: e.schema.NumPrimaryKey, tsIdx: e.schema.TimestampIndex}
	for i, b := range inputs {
		if b.NumRows() == 0 {
			continue
		}
		h.cursors = append(h.cursors, &mergeCursor{batch: b, pos: 0, seq: i})
	}
	heap.Init(h)

	builder := newBatchBuilder(e.schema)
	flush := func() bool {
		if builder.numRows == 0 {
			return true
		}
		b := dedupStage(builder.finish())
		b = project(b, projections)
		select {
		case out <- batchItem{batch: b}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for h.Len() > 0 {
		cur := h.cursors[0]
		builder.appendRow(cur.batch, cur.pos)
		cur.pos++
		if cur.pos >= cur.batch.NumRows() {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
		if builder.numRows >= scanBatchSize {
			if !flush() {
				return
			}
		}
	}
	flush()
}

// dedupStage sits between the sort-merge and the output. Collapsing rows
// that share primary key + timestamp (keeping the highest sequence) is a
// planned refinement; until the policy is settled this stage passes
// batches through untouched.
func dedupStage(b segment.RecordBatch) segment.RecordBatch { return b }

// project narrows b to the given column indices; nil means all columns.
func project(b segment.RecordBatch, projections []int) segment.RecordBatch {
	if projections == nil {
		return b
	}
	out := segment.RecordBatch{
		Schema: meta.Schema{
			Columns: make([]meta.Column, len(projections)),
		},
		Columns: make([]segment.Column, len(projections)),
	}
	for oi, ci := range projections {
		out.Schema.Columns[oi] = b.Schema.Columns[ci]
		out.Columns[oi] = b.Columns[ci]
	}
	return out
}

// batchBuilder accumulates merged rows into an output batch.
type batchBuilder struct {
	schema  meta.Schema
	cols    []segment.Column
	numRows int
}

func newBatchBuilder(schema meta.Schema) *batchBuilder {
	return &batchBuilder{schema: schema, cols: make([]segment.Column, len(schema.Columns))}
}

func (bb *batchBuilder) appendRow(src segment.RecordBatch, row int) {
	for ci := range bb.cols {
		sc := src.Columns[ci]
		dc := &bb.cols[ci]
		dc.Values = append(dc.Values, sc.Values[row])
		valid := sc.IsValid(row)
		if !valid && dc.Valid == nil {
			dc.Valid = make([]bool, bb.numRows)
			for i := range dc.Valid {
				dc.Valid[i] = true
			}
		}
		if dc.Valid != nil {
			dc.Valid = append(dc.Valid, valid)
		}
	}
	bb.numRows++
}

func (bb *batchBuilder) finish() segment.RecordBatch {
	out := segment.RecordBatch{Schema: bb.schema, Columns: bb.cols}
	bb.cols = make([]segment.Column, len(bb.schema.Columns))
	bb.numRows = 0
	return out
}
