package generation_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/generation"
)

// scriptedGenerator returns its errs in order, then succeeds.
type scriptedGenerator struct {
	errs  []error
	calls int
	slow  time.Duration
}

func (s *scriptedGenerator) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	s.calls++
	if s.slow > 0 {
		select {
		case <-time.After(s.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &generation.Response{Text: "completion", Model: "test-model"}, nil
}

var _ = Describe("Client", func() {
	var cfg generation.Config

	BeforeEach(func() {
		cfg = generation.Config{
			MaxAttempts:    3,
			Backoff:        time.Millisecond,
			AttemptTimeout: time.Second,
		}
	})

	It("returns the completion on first success", func() {
		gen := &scriptedGenerator{}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		resp, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("completion"))
		Expect(gen.calls).To(Equal(1))
	})

	It("retries transient failures", func() {
		gen := &scriptedGenerator{errs: []error{
			&generation.RetryableError{Err: errors.New("connection reset")},
			&generation.RetryableError{Err: errors.New("rate limited")},
		}}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		resp, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("completion"))
		Expect(gen.calls).To(Equal(3))
	})

	It("does not retry a non-retryable failure", func() {
		gen := &scriptedGenerator{errs: []error{
			errors.New("malformed request"),
		}}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		_, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).To(MatchError(generation.ErrGeneration))
		Expect(gen.calls).To(Equal(1))
	})

	It("surfaces ErrGeneration with the throttle signal after exhaustion", func() {
		throttle := &generation.RetryableError{Err: errors.New("rate limited"), RetryAfter: time.Millisecond}
		gen := &scriptedGenerator{errs: []error{throttle, throttle, throttle, throttle}}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		_, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).To(MatchError(generation.ErrGeneration))
		Expect(gen.calls).To(Equal(3))

		var retryable *generation.RetryableError
		Expect(errors.As(err, &retryable)).To(BeTrue())
		Expect(retryable.RetryAfter).To(Equal(time.Millisecond))
	})

	It("treats a per-attempt timeout as retryable", func() {
		gen := &scriptedGenerator{slow: 50 * time.Millisecond}
		cfg.AttemptTimeout = 5 * time.Millisecond
		cfg.MaxAttempts = 2
		client := generation.NewClient(gen, cfg, zap.NewNop())

		_, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).To(MatchError(generation.ErrGeneration))
		Expect(gen.calls).To(Equal(2))
	})

	It("stops when the caller's context is cancelled", func() {
		gen := &scriptedGenerator{slow: 100 * time.Millisecond}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := client.Generate(ctx, &generation.Request{Prompt: "hi"})
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(gen.calls).To(Equal(1))
	})

	It("waits at least the provider-requested retry delay", func() {
		gen := &scriptedGenerator{errs: []error{
			&generation.RetryableError{Err: errors.New("rate limited"), RetryAfter: 30 * time.Millisecond},
		}}
		client := generation.NewClient(gen, cfg, zap.NewNop())

		start := time.Now()
		_, err := client.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(time.Since(start)).To(BeNumerically(">=", 30*time.Millisecond))
	})
})
