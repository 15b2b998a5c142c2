package segment_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/outpostdb/mergestore/core/meta"
	"github.com/outpostdb/mergestore/engine/segment"
)

func u8Schema(numPK, tsIdx int) meta.Schema {
	return meta.Schema{
		Columns: []meta.Column{
			{Name: "a", Type: meta.ColUint8},
			{Name: "b", Type: meta.ColUint8},
			{Name: "c", Type: meta.ColUint8},
			{Name: "d", Type: meta.ColUint8},
		},
		NumPrimaryKey:  numPK,
		TimestampIndex: tsIdx,
	}
}

func u8Col(vals ...uint8) segment.Column {
	c := segment.Column{Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

func u8Vals(c segment.Column) []uint8 {
	out := make([]uint8, c.Len())
	for i := range out {
		out[i] = c.Values[i].(uint8)
	}
	return out
}

var _ = Describe("Sort", func() {
	It("reorders all columns by the primary key, tie-broken by timestamp", func() {
		b := segment.RecordBatch{
			Schema: u8Schema(1, 1),
			Columns: []segment.Column{
				u8Col(2, 1, 3, 4, 8, 6, 5, 7),
				u8Col(1, 3, 4, 8, 2, 6, 5, 7),
				u8Col(8, 6, 2, 4, 3, 1, 5, 7),
				u8Col(2, 7, 4, 6, 1, 3, 5, 8),
			},
		}
		sorted := segment.Sort(b)
		Expect(u8Vals(sorted.Columns[0])).To(Equal([]uint8{1, 2, 3, 4, 5, 6, 7, 8}))
		Expect(u8Vals(sorted.Columns[1])).To(Equal([]uint8{3, 1, 4, 8, 5, 6, 7, 2}))
		Expect(u8Vals(sorted.Columns[2])).To(Equal([]uint8{6, 8, 2, 4, 5, 1, 7, 3}))
		Expect(u8Vals(sorted.Columns[3])).To(Equal([]uint8{7, 2, 4, 6, 5, 3, 8, 1}))
	})

	It("leaves the input batch untouched", func() {
		b := segment.RecordBatch{
			Schema:  u8Schema(1, 1),
			Columns: []segment.Column{u8Col(3, 1, 2), u8Col(0, 0, 0), u8Col(0, 0, 0), u8Col(0, 0, 0)},
		}
		_ = segment.Sort(b)
		Expect(u8Vals(b.Columns[0])).To(Equal([]uint8{3, 1, 2}))
	})

	It("sorts nulls before any value", func() {
		b := segment.RecordBatch{
			Schema: u8Schema(1, 1),
			Columns: []segment.Column{
				{Values: []any{uint8(2), uint8(0), uint8(1)}, Valid: []bool{true, false, true}},
				u8Col(10, 20, 30),
				u8Col(0, 0, 0),
				u8Col(0, 0, 0),
			},
		}
		sorted := segment.Sort(b)
		Expect(sorted.Columns[0].IsValid(0)).To(BeFalse())
		Expect(sorted.Columns[1].Values[0]).To(Equal(uint8(20)))
		Expect(sorted.Columns[0].Values[1]).To(Equal(uint8(1)))
		Expect(sorted.Columns[0].Values[2]).To(Equal(uint8(2)))
	})

	It("breaks equal-key ties by ascending timestamp", func() {
		b := segment.RecordBatch{
			Schema: u8Schema(1, 1),
			Columns: []segment.Column{
				u8Col(5, 5, 5),
				u8Col(30, 10, 20),
				u8Col(1, 2, 3),
				u8Col(0, 0, 0),
			},
		}
		sorted := segment.Sort(b)
		Expect(u8Vals(sorted.Columns[1])).To(Equal([]uint8{10, 20, 30}))
		Expect(u8Vals(sorted.Columns[2])).To(Equal([]uint8{2, 3, 1}))
	})

	It("produces a non-decreasing key sequence on random batches", func() {
		rng := rand.New(rand.NewSource(42))
		for trial := 0; trial < 20; trial++ {
			numPK := 1 + rng.Intn(2)
			n := 1 + rng.Intn(200)
			b := segment.RecordBatch{
				Schema:  u8Schema(numPK, 2),
				Columns: make([]segment.Column, 4),
			}
			for ci := range b.Columns {
				col := segment.Column{Values: make([]any, n), Valid: make([]bool, n)}
				for i := 0; i < n; i++ {
					col.Values[i] = uint8(rng.Intn(16))
					col.Valid[i] = rng.Intn(10) != 0
				}
				b.Columns[ci] = col
			}
			sorted := segment.Sort(b)
			for i := 1; i < n; i++ {
				Expect(segment.CompareKeys(sorted, i-1, sorted, i, numPK, 2)).To(BeNumerically("<=", 0),
					"row %d out of order (trial %d)", i, trial)
			}
		}
	})
})
