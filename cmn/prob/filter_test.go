package prob_test

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/outpostdb/mergestore/cmn/prob"
)

var _ = Describe("Filter", func() {
	It("never reports a false negative", func() {
		f := prob.NewFilter(64)
		keys := make([][]byte, 1000)
		for i := range keys {
			keys[i] = []byte(fmt.Sprintf("key-%d", i))
			f.Insert(keys[i])
		}
		for _, k := range keys {
			Expect(f.Lookup(k)).To(BeTrue())
		}
	})

	It("grows past the initial capacity without dropping entries", func() {
		f := prob.NewFilter(8)
		for i := 0; i < 500; i++ {
			f.Insert([]byte(fmt.Sprintf("grow-%d", i)))
		}
		for i := 0; i < 500; i++ {
			Expect(f.Lookup([]byte(fmt.Sprintf("grow-%d", i)))).To(BeTrue())
		}
	})

	It("round-trips through Encode/Decode", func() {
		f := prob.NewFilter(64)
		for i := 0; i < 200; i++ {
			f.Insert([]byte(fmt.Sprintf("enc-%d", i)))
		}
		decoded, err := prob.Decode(f.Encode())
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 200; i++ {
			Expect(decoded.Lookup([]byte(fmt.Sprintf("enc-%d", i)))).To(BeTrue())
		}
	})

	It("forgets everything on Reset", func() {
		f := prob.NewDefaultFilter()
		f.Insert([]byte("gone"))
		f.Reset()
		Expect(f.Lookup([]byte("gone"))).To(BeFalse())
	})
})
