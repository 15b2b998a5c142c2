package segment_test

import (
	"bytes"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/segment"
)

func metricSchema() meta.Schema {
	return meta.Schema{
		Columns: []meta.Column{
			{Name: "series", Type: meta.ColString},
			{Name: "ts", Type: meta.ColInt64},
			{Name: "value", Type: meta.ColFloat64, Nullable: true},
		},
		NumPrimaryKey:  1,
		TimestampIndex: 1,
	}
}

func metricBatch(n int) segment.RecordBatch {
	series := segment.Column{Values: make([]any, n)}
	ts := segment.Column{Values: make([]any, n)}
	value := segment.Column{Values: make([]any, n), Valid: make([]bool, n)}
	for i := 0; i < n; i++ {
		series.Values[i] = fmt.Sprintf("host-%03d", i%7)
		ts.Values[i] = int64(1000 + i)
		value.Values[i] = float64(i) * 1.5
		value.Valid[i] = i%11 != 0
	}
	return segment.RecordBatch{Schema: metricSchema(), Columns: []segment.Column{series, ts, value}}
}

func encode(b segment.RecordBatch, opts segment.WriteOptions) []byte {
	var buf bytes.Buffer
	w, err := segment.NewWriter(&buf, b.Schema, opts)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.Write(b)).To(Succeed())
	n, err := w.Close()
	Expect(err).NotTo(HaveOccurred())
	Expect(n).To(Equal(uint64(b.NumRows())))
	return buf.Bytes()
}

func expectEqualBatches(got, want segment.RecordBatch) {
	Expect(got.NumRows()).To(Equal(want.NumRows()))
	for ci := range want.Columns {
		for i := 0; i < want.NumRows(); i++ {
			Expect(got.Columns[ci].IsValid(i)).To(Equal(want.Columns[ci].IsValid(i)),
				"null mismatch col %d row %d", ci, i)
			if want.Columns[ci].IsValid(i) {
				Expect(got.Columns[ci].Values[i]).To(Equal(want.Columns[ci].Values[i]),
					"value mismatch col %d row %d", ci, i)
			}
		}
	}
}

var _ = Describe("segment Writer/Reader", func() {
	It("round-trips a batch with the default options", func() {
		b := metricBatch(100)
		r, err := segment.NewReader(encode(b, segment.DefaultWriteOptions()))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.NumRows()).To(Equal(100))
		got, err := r.ReadAll(nil)
		Expect(err).NotTo(HaveOccurred())
		expectEqualBatches(got, b)
	})

	It("cuts row groups at MaxRowGroupSize and records per-group time ranges", func() {
		opts := segment.DefaultWriteOptions()
		opts.MaxRowGroupSize = 32
		opts.WriteBatchSize = 10
		b := metricBatch(100)
		r, err := segment.NewReader(encode(b, opts))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.NumRowGroups()).To(Equal(4)) // 32+32+32+4
		Expect(r.RowGroupTimeRange(0)).To(Equal(meta.TimeRange{Start: 1000, End: 1032}))
		Expect(r.RowGroupTimeRange(3)).To(Equal(meta.TimeRange{Start: 1096, End: 1100}))
	})

	It("records the sorting-columns descriptor when enabled", func() {
		b := metricBatch(10)
		r, err := segment.NewReader(encode(b, segment.DefaultWriteOptions()))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.SortingColumns()).To(Equal([]int{0, 1}))

		opts := segment.DefaultWriteOptions()
		opts.EnableSortingColumns = false
		r2, err := segment.NewReader(encode(b, opts))
		Expect(err).NotTo(HaveOccurred())
		Expect(r2.SortingColumns()).To(BeEmpty())
	})

	It("round-trips under every compression codec", func() {
		b := metricBatch(64)
		for _, comp := range []segment.Compression{segment.CompNone, segment.CompZstd, segment.CompLZ4} {
			opts := segment.DefaultWriteOptions()
			opts.Compression = comp
			r, err := segment.NewReader(encode(b, opts))
			Expect(err).NotTo(HaveOccurred(), "codec %s", comp)
			got, err := r.ReadAll(nil)
			Expect(err).NotTo(HaveOccurred(), "codec %s", comp)
			expectEqualBatches(got, b)
		}
	})

	It("round-trips dictionary-encoded string columns", func() {
		opts := segment.DefaultWriteOptions()
		opts.EnableDict = true
		b := metricBatch(200) // 7 distinct series values
		r, err := segment.NewReader(encode(b, opts))
		Expect(err).NotTo(HaveOccurred())
		got, err := r.ReadAll(nil)
		Expect(err).NotTo(HaveOccurred())
		expectEqualBatches(got, b)
	})

	It("honors per-column option overrides", func() {
		lz4 := segment.CompLZ4
		dict := true
		opts := segment.DefaultWriteOptions()
		opts.ColumnOptions = map[string]segment.ColumnOptions{
			"series": {EnableDict: &dict, Compression: &lz4},
		}
		b := metricBatch(50)
		r, err := segment.NewReader(encode(b, opts))
		Expect(err).NotTo(HaveOccurred())
		got, err := r.ReadAll(nil)
		Expect(err).NotTo(HaveOccurred())
		expectEqualBatches(got, b)
	})

	It("answers bloom-filter membership with no false negatives", func() {
		opts := segment.DefaultWriteOptions()
		opts.EnableBloomFilter = true
		b := metricBatch(100)
		r, err := segment.NewReader(encode(b, opts))
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 7; i++ {
			Expect(r.MayContain("series", meta.ColString, fmt.Sprintf("host-%03d", i))).To(BeTrue())
		}
		Expect(r.MayContain("series", meta.ColString, "host-999")).To(BeFalse())
	})

	It("reports MayContain=true for columns without a filter", func() {
		b := metricBatch(10)
		r, err := segment.NewReader(encode(b, segment.DefaultWriteOptions()))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.MayContain("series", meta.ColString, "anything")).To(BeTrue())
	})

	It("materializes only the requested columns", func() {
		b := metricBatch(20)
		r, err := segment.NewReader(encode(b, segment.DefaultWriteOptions()))
		Expect(err).NotTo(HaveOccurred())
		got, err := r.ReadAll([]int{1})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Columns[1].Len()).To(Equal(20))
		Expect(got.Columns[0].Len()).To(BeZero())
	})

	It("rejects trailing garbage and truncated files", func() {
		b := metricBatch(10)
		data := encode(b, segment.DefaultWriteOptions())
		_, err := segment.NewReader(data[:8])
		Expect(err).To(HaveOccurred())
		_, err = segment.NewReader(append(data, 0xff))
		Expect(err).To(HaveOccurred())
	})
})
