package retrieval_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/retrieval"
	"github.com/quorralabs/quorra/pkg/vector"
)

type stubEmbedder struct {
	embedding []float32
	err       error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

func (s *stubEmbedder) Close() error { return nil }

// flakyDriver fails the first failures calls to Query, then succeeds.
type flakyDriver struct {
	failures int
	calls    int
	results  []vector.QueryResult
}

func (f *flakyDriver) Add(ctx context.Context, chunks []vector.Chunk) error { return nil }

func (f *flakyDriver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *flakyDriver) Close() error { return nil }

var _ = Describe("Client", func() {
	var (
		embedder *stubEmbedder
		cfg      retrieval.Config
	)

	BeforeEach(func() {
		embedder = &stubEmbedder{embedding: []float32{0.1, 0.2, 0.3}}
		cfg = retrieval.Config{
			TopK:        3,
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
		}
	})

	Describe("Retrieve", func() {
		It("returns results from a healthy index", func() {
			driver := &flakyDriver{results: []vector.QueryResult{
				{Chunk: vector.Chunk{ID: "a", Text: "first"}, Score: 0.9},
				{Chunk: vector.Chunk{ID: "b", Text: "second"}, Score: 0.5},
			}}

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			results, err := client.Retrieve(context.Background(), "what is quorra?", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("a"))
			Expect(driver.calls).To(Equal(1))
		})

		It("retries transient failures and recovers", func() {
			driver := &flakyDriver{
				failures: 2,
				results: []vector.QueryResult{
					{Chunk: vector.Chunk{ID: "a"}, Score: 0.9},
				},
			}

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			results, err := client.Retrieve(context.Background(), "query", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(driver.calls).To(Equal(3))
		})

		It("returns ErrUnavailable once attempts are exhausted", func() {
			driver := &flakyDriver{failures: 10}

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			_, err := client.Retrieve(context.Background(), "query", 1)
			Expect(err).To(MatchError(retrieval.ErrUnavailable))
			Expect(driver.calls).To(Equal(3))
		})

		It("wraps embedding failures as ErrUnavailable without querying", func() {
			embedder.err = errors.New("embedding service down")
			driver := &flakyDriver{}

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			_, err := client.Retrieve(context.Background(), "query", 1)
			Expect(err).To(MatchError(retrieval.ErrUnavailable))
			Expect(driver.calls).To(Equal(0))
		})

		It("orders equal scores by ascending chunk id", func() {
			driver := &flakyDriver{results: []vector.QueryResult{
				{Chunk: vector.Chunk{ID: "c"}, Score: 0.5},
				{Chunk: vector.Chunk{ID: "a"}, Score: 0.5},
				{Chunk: vector.Chunk{ID: "b"}, Score: 0.5},
			}}

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			results, err := client.Retrieve(context.Background(), "query", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[1].ID).To(Equal("b"))
			Expect(results[2].ID).To(Equal("c"))
		})

		It("stops retrying when the context is cancelled", func() {
			driver := &flakyDriver{failures: 10}
			cfg.Backoff = 50 * time.Millisecond

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			_, err := client.Retrieve(ctx, "query", 1)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(driver.calls).To(BeNumerically("<", 3))
		})

		It("falls back to the configured topK when none is given", func() {
			driver := &flakyDriver{results: []vector.QueryResult{
				{Chunk: vector.Chunk{ID: "a"}, Score: 0.9},
				{Chunk: vector.Chunk{ID: "b"}, Score: 0.8},
				{Chunk: vector.Chunk{ID: "c"}, Score: 0.7},
				{Chunk: vector.Chunk{ID: "d"}, Score: 0.6},
			}}
			cfg.TopK = 2

			client := retrieval.NewClient(embedder, driver, cfg, zap.NewNop())

			results, err := client.Retrieve(context.Background(), "query", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})
	})
})
