package inmemory

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quorralabs/quorra/pkg/vector"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = NewDriver()
	})

	seed := func() {
		err := driver.Add(ctx, []vector.Chunk{
			{ID: "bst_def", Text: "a binary search tree is...", Embedding: []float32{1, 0, 0}},
			{ID: "bst_ops", Text: "insertion and deletion...", Embedding: []float32{0.9, 0.1, 0}},
			{ID: "hash", Text: "a hash table maps keys...", Embedding: []float32{0, 1, 0}},
		})
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Query", func() {
		It("ranks results by cosine similarity, descending", func() {
			seed()

			results, err := driver.Query(ctx, []float32{1, 0, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("bst_def"))
			Expect(results[1].ID).To(Equal("bst_ops"))
			for i := 1; i < len(results); i++ {
				Expect(results[i].Score).To(BeNumerically("<=", results[i-1].Score))
			}
		})

		It("limits results to topK", func() {
			seed()

			results, err := driver.Query(ctx, []float32{1, 0, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("returns fewer results when the index holds fewer chunks", func() {
			seed()

			results, err := driver.Query(ctx, []float32{1, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
		})

		It("breaks score ties by ascending chunk id", func() {
			err := driver.Add(ctx, []vector.Chunk{
				{ID: "b", Embedding: []float32{1, 0}},
				{ID: "a", Embedding: []float32{1, 0}},
				{ID: "c", Embedding: []float32{1, 0}},
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := driver.Query(ctx, []float32{1, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[1].ID).To(Equal("b"))
			Expect(results[2].ID).To(Equal("c"))
		})

		It("returns an empty result set for an empty index", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Add", func() {
		It("updates chunks with an existing id", func() {
			seed()

			err := driver.Add(ctx, []vector.Chunk{
				{ID: "bst_def", Text: "updated", Embedding: []float32{0, 0, 1}},
			})
			Expect(err).NotTo(HaveOccurred())

			results, err := driver.Query(ctx, []float32{0, 0, 1}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("bst_def"))
			Expect(results[0].Text).To(Equal("updated"))
		})
	})

	Describe("interface compliance", func() {
		It("satisfies vector.Driver", func() {
			var _ vector.Driver = NewDriver()
		})
	})
})
