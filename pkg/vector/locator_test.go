package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quorralabs/quorra/pkg/vector"
)

var _ = Describe("SourceLocator", func() {
	It("renders document and page", func() {
		l := vector.SourceLocator{Document: "algorithms.pdf", Page: 12}
		Expect(l.String()).To(Equal("algorithms.pdf p.12"))
	})

	It("renders document alone when the page is unknown", func() {
		l := vector.SourceLocator{Document: "notes.md"}
		Expect(l.String()).To(Equal("notes.md"))
	})
})
