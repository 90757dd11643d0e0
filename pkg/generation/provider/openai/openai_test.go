package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quorralabs/quorra/pkg/generation"
	"github.com/quorralabs/quorra/pkg/generation/provider/openai"
)

var _ = Describe("Generator", func() {
	It("requires an api key", func() {
		_, err := openai.New(openai.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("sends system and user messages and returns the first choice", func() {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			json.NewEncoder(w).Encode(map[string]any{
				"model": "gpt-4o-mini",
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": "hello"}},
				},
				"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 2},
			})
		}))
		defer server.Close()

		gen, err := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())

		resp, err := gen.Generate(context.Background(), &generation.Request{
			System: "be helpful",
			Prompt: "hi",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("hello"))
		Expect(resp.PromptTokens).To(Equal(10))

		messages := got["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		Expect(messages[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(messages[1].(map[string]any)["role"]).To(Equal("user"))
	})

	It("propagates Retry-After on rate limiting", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		gen, err := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())

		_, err = gen.Generate(context.Background(), &generation.Request{Prompt: "hi"})
		var retryable *generation.RetryableError
		Expect(errors.As(err, &retryable)).To(BeTrue())
		Expect(retryable.RetryAfter).To(Equal(7 * time.Second))
	})
})
