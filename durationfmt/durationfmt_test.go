package durationfmt_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/codspeed-runner/durationfmt"
)

var _ = Describe("Parse", func() {
	DescribeTable("accepted formats",
		func(input string, want time.Duration) {
			got, err := durationfmt.Parse(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("plain seconds", "1", time.Second),
		Entry("float seconds", "1.5", 1500*time.Millisecond),
		Entry("milliseconds", "500ms", 500*time.Millisecond),
		Entry("seconds suffix", "1.5s", 1500*time.Millisecond),
		Entry("minutes", "2m", 2*time.Minute),
		Entry("hours", "1h", time.Hour),
		Entry("whitespace padded", "  1s  ", time.Second),
	)

	It("is idempotent across equivalent spellings", func() {
		a, err := durationfmt.Parse("1.5s")
		Expect(err).NotTo(HaveOccurred())
		b, err := durationfmt.Parse("1500ms")
		Expect(err).NotTo(HaveOccurred())
		c, err := durationfmt.Parse("1.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
		Expect(b).To(Equal(c))
	})

	It("rejects invalid input", func() {
		_, err := durationfmt.Parse("not-a-duration")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("format expected"))
	})

	It("rejects empty input", func() {
		_, err := durationfmt.Parse("   ")
		Expect(err).To(HaveOccurred())
	})
})
