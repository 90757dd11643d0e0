package prompt_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/conversation"
	"github.com/quorralabs/quorra/pkg/prompt"
	"github.com/quorralabs/quorra/pkg/vector"
)

func turn(role conversation.Role, content string) conversation.Turn {
	return conversation.Turn{Role: role, Content: content}
}

func chunk(id, text string, tokens int, score float32) vector.QueryResult {
	return vector.QueryResult{
		Chunk: vector.Chunk{
			ID:         id,
			Text:       text,
			TokenCount: tokens,
			Source:     vector.SourceLocator{Document: "doc.pdf", Page: 1},
		},
		Score: score,
	}
}

var _ = Describe("EstimateTokens", func() {
	It("rounds up at one token per four bytes", func() {
		Expect(prompt.EstimateTokens("")).To(Equal(0))
		Expect(prompt.EstimateTokens("abc")).To(Equal(1))
		Expect(prompt.EstimateTokens("abcd")).To(Equal(1))
		Expect(prompt.EstimateTokens("abcde")).To(Equal(2))
	})
})

var _ = Describe("Trim", func() {
	It("keeps the newest turns that fit the budget, in chronological order", func() {
		turns := []conversation.Turn{
			turn(conversation.RoleUser, strings.Repeat("a", 40)),      // 10 tokens
			turn(conversation.RoleAssistant, strings.Repeat("b", 40)), // 10 tokens
			turn(conversation.RoleUser, strings.Repeat("c", 40)),      // 10 tokens
		}

		trimmed := prompt.Trim(turns, 20)
		Expect(trimmed).To(HaveLen(2))
		Expect(trimmed[0].Content).To(Equal(strings.Repeat("b", 40)))
		Expect(trimmed[1].Content).To(Equal(strings.Repeat("c", 40)))
	})

	It("never exceeds the budget", func() {
		turns := make([]conversation.Turn, 25)
		for i := range turns {
			turns[i] = turn(conversation.RoleUser, strings.Repeat("x", 4*(i+1)))
		}

		for budget := 0; budget <= 400; budget += 7 {
			trimmed := prompt.Trim(turns, budget)
			total := 0
			for _, t := range trimmed {
				total += prompt.TurnTokens(t)
			}
			Expect(total).To(BeNumerically("<=", budget))
		}
	})

	It("returns empty when even the newest turn exceeds the budget", func() {
		turns := []conversation.Turn{
			turn(conversation.RoleUser, strings.Repeat("a", 400)),
		}

		Expect(prompt.Trim(turns, 10)).To(BeEmpty())
	})

	It("selects exactly the most recent turns that fit from a long history", func() {
		turns := make([]conversation.Turn, 40)
		for i := range turns {
			turns[i] = turn(conversation.RoleUser, fmt.Sprintf("turn %02d %s", i, strings.Repeat("x", 30)))
		}
		perTurn := prompt.TurnTokens(turns[0])

		trimmed := prompt.Trim(turns, perTurn*3)
		Expect(trimmed).To(HaveLen(3))
		Expect(trimmed[0].Content).To(ContainSubstring("turn 37"))
		Expect(trimmed[1].Content).To(ContainSubstring("turn 38"))
		Expect(trimmed[2].Content).To(ContainSubstring("turn 39"))
	})
})

var _ = Describe("Assembler", func() {
	newAssembler := func(budget, floor int) *prompt.Assembler {
		return prompt.NewAssembler(prompt.Config{TotalBudget: budget, ChunkFloor: floor}, zap.NewNop())
	}

	It("includes all chunks and history when everything fits", func() {
		assembler := newAssembler(1000, 1)
		chunks := []vector.QueryResult{
			chunk("bst_def", "A binary search tree is an ordered tree.", 10, 0.91),
			chunk("bst_ops", "Operations run in O(log n) on average.", 10, 0.77),
		}
		history := []conversation.Turn{
			turn(conversation.RoleUser, "hello"),
			turn(conversation.RoleAssistant, "hi there"),
		}

		ctx, err := assembler.Assemble("What is a binary search tree?", "You are helpful.", chunks, history)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.ChunkCount).To(Equal(2))
		Expect(ctx.HistoryCount).To(Equal(2))
		Expect(ctx.System).To(Equal("You are helpful."))
		Expect(ctx.Locators).To(HaveLen(2))
		Expect(ctx.Prompt).To(ContainSubstring("ordered tree"))
		Expect(ctx.Prompt).To(ContainSubstring("user: hello"))
		Expect(ctx.Prompt).To(HaveSuffix("Question: What is a binary search tree?"))
	})

	It("orders chunks before history before the query in the payload", func() {
		assembler := newAssembler(1000, 1)
		chunks := []vector.QueryResult{chunk("a", "grounding fact", 5, 0.9)}
		history := []conversation.Turn{turn(conversation.RoleUser, "earlier question")}

		ctx, err := assembler.Assemble("the query", "", chunks, history)
		Expect(err).NotTo(HaveOccurred())

		chunkAt := strings.Index(ctx.Prompt, "grounding fact")
		historyAt := strings.Index(ctx.Prompt, "earlier question")
		queryAt := strings.Index(ctx.Prompt, "the query")
		Expect(chunkAt).To(BeNumerically("<", historyAt))
		Expect(historyAt).To(BeNumerically("<", queryAt))
	})

	It("rejects a query that alone exceeds the budget", func() {
		assembler := newAssembler(10, 1)

		_, err := assembler.Assemble(strings.Repeat("q", 100), "", nil, nil)
		Expect(err).To(MatchError(prompt.ErrBudgetExceeded))
	})

	It("drops chunks lowest-score-first when over budget", func() {
		// query = 10 tokens, budget 40: room for 30 chunk tokens.
		assembler := newAssembler(40, 1)
		chunks := []vector.QueryResult{
			chunk("best", "x", 20, 0.9),
			chunk("mid", "y", 10, 0.7),
			chunk("worst", "z", 10, 0.5),
		}

		ctx, err := assembler.Assemble(strings.Repeat("q", 40), "", chunks, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.ChunkCount).To(Equal(2))
		Expect(ctx.Prompt).NotTo(ContainSubstring("z"))
		Expect(ctx.Prompt).To(ContainSubstring("x"))
		Expect(ctx.Prompt).To(ContainSubstring("y"))
	})

	It("starves history before dropping chunks that fit", func() {
		// query 10 + chunks 30 = budget exactly; nothing left for history.
		assembler := newAssembler(40, 1)
		chunks := []vector.QueryResult{
			chunk("a", "keep me", 30, 0.9),
		}
		history := []conversation.Turn{
			turn(conversation.RoleUser, strings.Repeat("h", 40)),
		}

		ctx, err := assembler.Assemble(strings.Repeat("q", 40), "", chunks, history)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.ChunkCount).To(Equal(1))
		Expect(ctx.HistoryCount).To(Equal(0))
	})

	It("drops history oldest-first under a tight budget", func() {
		// query 10 + chunk 10 leaves 20 tokens: two of the three turns.
		assembler := newAssembler(40, 1)
		chunks := []vector.QueryResult{chunk("a", "fact", 10, 0.9)}
		history := []conversation.Turn{
			turn(conversation.RoleUser, strings.Repeat("1", 40)),
			turn(conversation.RoleAssistant, strings.Repeat("2", 40)),
			turn(conversation.RoleUser, strings.Repeat("3", 40)),
		}

		ctx, err := assembler.Assemble(strings.Repeat("q", 40), "", chunks, history)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.HistoryCount).To(Equal(2))
		Expect(ctx.Prompt).NotTo(ContainSubstring(strings.Repeat("1", 40)))
		Expect(ctx.Prompt).To(ContainSubstring(strings.Repeat("2", 40)))
		Expect(ctx.Prompt).To(ContainSubstring(strings.Repeat("3", 40)))
	})

	It("honors the chunk floor alongside a trimmed long history", func() {
		assembler := newAssembler(100, 1)
		chunks := []vector.QueryResult{chunk("bst_def", "definition", 30, 0.91)}

		history := make([]conversation.Turn, 40)
		for i := range history {
			history[i] = turn(conversation.RoleUser, fmt.Sprintf("turn %02d %s", i, strings.Repeat("x", 69)))
		}
		// query 10 + chunk 30 leaves 60 tokens; each turn is 20: exactly 3 fit.

		ctx, err := assembler.Assemble(strings.Repeat("q", 40), "", chunks, history)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.ChunkCount).To(Equal(1))
		Expect(ctx.HistoryCount).To(Equal(3))
		Expect(ctx.Prompt).To(ContainSubstring("turn 37"))
		Expect(ctx.Prompt).To(ContainSubstring("turn 38"))
		Expect(ctx.Prompt).To(ContainSubstring("turn 39"))
		Expect(ctx.Prompt).NotTo(ContainSubstring("turn 36"))
	})

	It("never exceeds the total budget across varied inputs", func() {
		for budget := 20; budget <= 200; budget += 15 {
			assembler := newAssembler(budget, 2)
			chunks := []vector.QueryResult{
				chunk("a", strings.Repeat("a", 80), 0, 0.9),
				chunk("b", strings.Repeat("b", 60), 0, 0.8),
				chunk("c", strings.Repeat("c", 40), 0, 0.7),
			}
			history := []conversation.Turn{
				turn(conversation.RoleUser, strings.Repeat("h", 100)),
				turn(conversation.RoleAssistant, strings.Repeat("i", 100)),
			}

			ctx, err := assembler.Assemble(strings.Repeat("q", 20), "", chunks, history)
			Expect(err).NotTo(HaveOccurred())
			Expect(ctx.TokenCount).To(BeNumerically("<=", budget))
		}
	})

	It("assembles a query-only context when there are no chunks and no history", func() {
		assembler := newAssembler(100, 1)

		ctx, err := assembler.Assemble("lonely question", "", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.ChunkCount).To(Equal(0))
		Expect(ctx.HistoryCount).To(Equal(0))
		Expect(ctx.Locators).To(BeEmpty())
		Expect(ctx.Prompt).To(Equal("Question: lonely question"))
	})
})
