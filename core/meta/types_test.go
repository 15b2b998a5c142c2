package meta_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
)

var _ = Describe("TimeRange", func() {
	It("applies the half-open overlap rule", func() {
		a := meta.TimeRange{Start: 0, End: 10}
		Expect(a.Overlaps(meta.TimeRange{Start: 5, End: 15})).To(BeTrue())
		Expect(a.Overlaps(meta.TimeRange{Start: 10, End: 20})).To(BeFalse())
		Expect(a.Overlaps(meta.TimeRange{Start: 9, End: 10})).To(BeTrue())
		Expect(a.Overlaps(meta.TimeRange{Start: -5, End: 0})).To(BeFalse())
		Expect(a.Overlaps(meta.TimeRange{Start: -5, End: 1})).To(BeTrue())
	})

	It("merges to the smallest covering range", func() {
		a := meta.TimeRange{Start: 5, End: 10}
		Expect(a.Merge(meta.TimeRange{Start: 0, End: 7})).To(Equal(meta.TimeRange{Start: 0, End: 10}))
		Expect(a.Merge(meta.TimeRange{Start: 20, End: 30})).To(Equal(meta.TimeRange{Start: 5, End: 30}))
	})
})

var _ = Describe("Schema", func() {
	cols := []meta.Column{
		{Name: "k", Type: meta.ColString},
		{Name: "ts", Type: meta.ColInt64},
		{Name: "v", Type: meta.ColFloat64},
	}

	It("treats name, type, and order as identity", func() {
		s := meta.Schema{Columns: cols, NumPrimaryKey: 1, TimestampIndex: 1}
		same := meta.Schema{Columns: append([]meta.Column(nil), cols...), NumPrimaryKey: 1, TimestampIndex: 1}
		Expect(s.Equal(same)).To(BeTrue())

		renamed := meta.Schema{Columns: []meta.Column{
			{Name: "key", Type: meta.ColString}, cols[1], cols[2],
		}, NumPrimaryKey: 1, TimestampIndex: 1}
		Expect(s.Equal(renamed)).To(BeFalse())

		reordered := meta.Schema{Columns: []meta.Column{cols[1], cols[0], cols[2]}, NumPrimaryKey: 1, TimestampIndex: 1}
		Expect(s.Equal(reordered)).To(BeFalse())
	})

	It("rejects an empty schema", func() {
		s := meta.Schema{NumPrimaryKey: 1}
		Expect(s.Validate()).To(MatchError(cmn.ErrEmptySchema))
	})

	It("rejects out-of-range key and timestamp indices", func() {
		s := meta.Schema{Columns: cols, NumPrimaryKey: 0, TimestampIndex: 1}
		Expect(s.Validate()).To(HaveOccurred())
		s = meta.Schema{Columns: cols, NumPrimaryKey: 4, TimestampIndex: 1}
		Expect(s.Validate()).To(HaveOccurred())
		s = meta.Schema{Columns: cols, NumPrimaryKey: 1, TimestampIndex: 3}
		Expect(s.Validate()).To(HaveOccurred())
	})
})
