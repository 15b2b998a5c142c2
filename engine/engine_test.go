package engine_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine"
	"github.com/outpostdb/mergestore/engine/segment"
	"github.com/outpostdb/mergestore/objstore"
)

const engineRoot = "eng/metrics"

func metricColumns() []meta.Column {
	return []meta.Column{
		{Name: "series", Type: meta.ColString},
		{Name: "ts", Type: meta.ColInt64},
		{Name: "value", Type: meta.ColFloat64, Nullable: true},
	}
}

func metricSchema() meta.Schema {
	return meta.Schema{Columns: metricColumns(), NumPrimaryKey: 1, TimestampIndex: 1}
}

// batchOf builds a batch from parallel value slices.
func batchOf(series []string, ts []int64, values []float64) segment.RecordBatch {
	n := len(series)
	sc := segment.Column{Values: make([]any, n)}
	tc := segment.Column{Values: make([]any, n)}
	vc := segment.Column{Values: make([]any, n)}
	for i := 0; i < n; i++ {
		sc.Values[i] = series[i]
		tc.Values[i] = ts[i]
		vc.Values[i] = values[i]
	}
	return segment.RecordBatch{Schema: metricSchema(), Columns: []segment.Column{sc, tc, vc}}
}

// drain consumes a stream to completion, concatenating all batches.
func drain(ctx context.Context, s *engine.BatchStream) (rows [][]any, err error) {
	for {
		b, nerr := s.Next(ctx)
		if nerr == io.EOF {
			return rows, nil
		}
		if nerr != nil {
			return rows, nerr
		}
		for i := 0; i < b.NumRows(); i++ {
			row := make([]any, len(b.Columns))
			for ci := range b.Columns {
				row[ci] = b.Columns[ci].Values[i]
			}
			rows = append(rows, row)
		}
	}
}

var _ = Describe("Engine", func() {
	var (
		ctx   context.Context
		store *objstore.LocalStore
		eng   *engine.Engine
		dir   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		dir, err = os.MkdirTemp("", "engine-test-*")
		Expect(err).NotTo(HaveOccurred())
		store, err = objstore.NewLocalStore(dir)
		Expect(err).NotTo(HaveOccurred())
		eng, err = engine.New(ctx, engine.Config{
			RootPath:       engineRoot,
			Store:          store,
			Columns:        metricColumns(),
			NumPrimaryKey:  1,
			TimestampIndex: 1,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(eng.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Describe("Write", func() {
		It("sorts, uploads, and registers one segment per call", func() {
			fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"b", "a", "c"},
				[]int64{10, 20, 30},
				[]float64{1, 2, 3},
			)})
			Expect(err).NotTo(HaveOccurred())
			Expect(fm.FileID).To(Equal(meta.FileId(1)))
			Expect(fm.NumRows).To(Equal(uint64(3)))
			Expect(fm.ByteSize).To(BeNumerically(">", 0))
			Expect(fm.MaxSequence).To(Equal(fm.FileID))

			// the uploaded object is really there
			oi, err := store.Stat(ctx, path.Join(engineRoot, "data", "00000000000000000001"))
			Expect(err).NotTo(HaveOccurred())
			Expect(uint64(oi.Size)).To(Equal(fm.ByteSize))
		})

		It("records the tight [min, max+1) time range", func() {
			fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"a", "b", "c", "d"},
				[]int64{17, 3, 42, 8},
				[]float64{0, 0, 0, 0},
			)})
			Expect(err).NotTo(HaveOccurred())
			Expect(fm.TimeRange).To(Equal(meta.TimeRange{Start: 3, End: 43}))
		})

		It("rejects a batch whose schema differs", func() {
			b := batchOf([]string{"a"}, []int64{1}, []float64{1})
			b.Schema.Columns[2].Name = "val"
			_, err := eng.Write(ctx, engine.WriteRequest{Batch: b})
			var mismatch *cmn.ErrSchemaMismatch
			Expect(err).To(BeAssignableToTypeOf(mismatch))
		})

		It("rejects an empty batch", func() {
			_, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(nil, nil, nil)})
			Expect(err).To(MatchError(cmn.ErrEmptyTimeRange))
		})

		It("allocates distinct FileIds to parallel writes", func() {
			const n = 8
			type result struct {
				fm  meta.FileMeta
				err error
			}
			results := make(chan result, n)
			for i := 0; i < n; i++ {
				go func() {
					fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
						[]string{"x"}, []int64{1}, []float64{1},
					)})
					results <- result{fm, err}
				}()
			}
			seen := map[meta.FileId]bool{}
			for i := 0; i < n; i++ {
				r := <-results
				Expect(r.err).NotTo(HaveOccurred())
				Expect(seen[r.fm.FileID]).To(BeFalse())
				seen[r.fm.FileID] = true
			}
		})
	})

	Describe("Scan", func() {
		writeRange := func(series string, from, to int64) meta.FileMeta {
			n := int(to - from)
			ts := make([]int64, n)
			names := make([]string, n)
			vals := make([]float64, n)
			for i := 0; i < n; i++ {
				ts[i] = from + int64(i)
				names[i] = series
				vals[i] = float64(i)
			}
			fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(names, ts, vals)})
			Expect(err).NotTo(HaveOccurred())
			return fm
		}

		It("selects exactly the segments overlapping the query range", func() {
			writeRange("s1", 0, 10)
			writeRange("s2", 5, 15)
			writeRange("s3", 20, 25)

			stream, err := eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 7, End: 22}})
			Expect(err).NotTo(HaveOccurred())
			rows, err := drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(10 + 10 + 5))

			stream, err = eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 25, End: 30}})
			Expect(err).NotTo(HaveOccurred())
			rows, err = drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())

			stream, err = eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 20, End: 25}})
			Expect(err).NotTo(HaveOccurred())
			rows, err = drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))
		})

		It("merges overlapping segments into primary-key order", func() {
			// interleaved keys across three out-of-order writes
			_, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"m", "c", "x"}, []int64{1, 2, 3}, []float64{1, 2, 3})})
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"a", "z", "m"}, []int64{4, 5, 6}, []float64{4, 5, 6})})
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"b", "m", "d"}, []int64{7, 0, 8}, []float64{7, 8, 9})})
			Expect(err).NotTo(HaveOccurred())

			stream, err := eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 0, End: 100}})
			Expect(err).NotTo(HaveOccurred())
			rows, err := drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(9))

			keys := make([]string, len(rows))
			for i, r := range rows {
				keys[i] = r[0].(string)
			}
			Expect(keys).To(Equal([]string{"a", "b", "c", "d", "m", "m", "m", "x", "z"}))

			// equal keys emerge in ascending timestamp order
			Expect(rows[4][1]).To(Equal(int64(0)))
			Expect(rows[5][1]).To(Equal(int64(1)))
			Expect(rows[6][1]).To(Equal(int64(6)))
		})

		It("applies the predicate conjunction", func() {
			writeRange("s1", 0, 10)
			writeRange("s2", 0, 10)

			stream, err := eng.Scan(ctx, engine.ScanRequest{
				Range: meta.TimeRange{Start: 0, End: 10},
				Predicates: []engine.Predicate{
					{Column: "series", Op: engine.OpEq, Value: "s1"},
					{Column: "ts", Op: engine.OpGe, Value: int64(5)},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			rows, err := drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))
			for _, r := range rows {
				Expect(r[0]).To(Equal("s1"))
				Expect(r[1].(int64)).To(BeNumerically(">=", 5))
			}
		})

		It("rejects a predicate over an unknown column", func() {
			_, err := eng.Scan(ctx, engine.ScanRequest{
				Range:      meta.TimeRange{Start: 0, End: 10},
				Predicates: []engine.Predicate{{Column: "nope", Op: engine.OpEq, Value: 1}},
			})
			var mismatch *cmn.ErrSchemaMismatch
			Expect(err).To(BeAssignableToTypeOf(mismatch))
		})

		It("applies the projection", func() {
			writeRange("s1", 0, 5)
			stream, err := eng.Scan(ctx, engine.ScanRequest{
				Range:       meta.TimeRange{Start: 0, End: 5},
				Projections: []int{1, 2},
			})
			Expect(err).NotTo(HaveOccurred())
			b, err := stream.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Schema.Columns).To(HaveLen(2))
			Expect(b.Schema.Columns[0].Name).To(Equal("ts"))
			Expect(b.Schema.Columns[1].Name).To(Equal("value"))
			Expect(b.NumRows()).To(Equal(5))
		})

		It("rejects an empty query range", func() {
			_, err := eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 5, End: 5}})
			Expect(err).To(MatchError(cmn.ErrEmptyTimeRange))
		})

		It("never reports an orphan object the manifest does not reference", func() {
			writeRange("s1", 0, 10)
			// simulate a write cancelled between upload and manifest append
			orphanKey := path.Join(engineRoot, "data", "00000000000000000099")
			Expect(store.Put(ctx, orphanKey, bytes.NewReader([]byte("partial")))).To(Succeed())

			stream, err := eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 0, End: 1000}})
			Expect(err).NotTo(HaveOccurred())
			rows, err := drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(10))

			// a later retry proceeds with a fresh FileId
			fm := writeRange("s1", 10, 20)
			Expect(fm.FileID).To(Equal(meta.FileId(2)))
		})
	})

	Describe("Compact", func() {
		It("rewrites inputs into one segment and swaps atomically", func() {
			fm1, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"b", "a"}, []int64{1, 2}, []float64{1, 2})})
			Expect(err).NotTo(HaveOccurred())
			fm2, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"d", "c"}, []int64{3, 4}, []float64{3, 4})})
			Expect(err).NotTo(HaveOccurred())

			out, err := eng.Compact(ctx, engine.CompactRequest{FileIDs: []meta.FileId{fm1.FileID, fm2.FileID}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.NumRows).To(Equal(uint64(4)))
			Expect(out.TimeRange).To(Equal(meta.TimeRange{Start: 1, End: 5}))
			Expect(out.MaxSequence).To(Equal(fm2.MaxSequence))

			files := eng.Manifest().Files()
			Expect(files).To(HaveLen(1))
			Expect(files[0].FileID).To(Equal(out.FileID))

			stream, err := eng.Scan(ctx, engine.ScanRequest{Range: meta.TimeRange{Start: 0, End: 10}})
			Expect(err).NotTo(HaveOccurred())
			rows, err := drain(ctx, stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(4))
			Expect(rows[0][0]).To(Equal("a"))
			Expect(rows[3][0]).To(Equal("d"))
		})

		It("fails on unknown input ids", func() {
			_, err := eng.Compact(ctx, engine.CompactRequest{FileIDs: []meta.FileId{123}})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GC", func() {
		It("removes orphans and keeps live segments", func() {
			fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
				[]string{"a"}, []int64{1}, []float64{1})})
			Expect(err).NotTo(HaveOccurred())

			orphanKey := path.Join(engineRoot, "data", "00000000000000000099")
			Expect(store.Put(ctx, orphanKey, bytes.NewReader([]byte("junk")))).To(Succeed())

			removed, err := eng.GC(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			_, err = store.Stat(ctx, orphanKey)
			Expect(err).To(HaveOccurred())
			_, err = store.Stat(ctx, path.Join(engineRoot, "data", "00000000000000000001"))
			Expect(err).NotTo(HaveOccurred())
			_ = fm
		})
	})

	It("restores the FileId counter across restarts", func() {
		_, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
			[]string{"a"}, []int64{1}, []float64{1})})
		Expect(err).NotTo(HaveOccurred())
		Expect(eng.Close()).To(Succeed())

		eng, err = engine.New(ctx, engine.Config{
			RootPath:       engineRoot,
			Store:          store,
			Columns:        metricColumns(),
			NumPrimaryKey:  1,
			TimestampIndex: 1,
		})
		Expect(err).NotTo(HaveOccurred())
		fm, err := eng.Write(ctx, engine.WriteRequest{Batch: batchOf(
			[]string{"b"}, []int64{2}, []float64{2})})
		Expect(err).NotTo(HaveOccurred())
		Expect(fm.FileID).To(Equal(meta.FileId(2)))
	})
})
