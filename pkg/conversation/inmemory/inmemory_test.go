package inmemory

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quorralabs/quorra/pkg/conversation"
)

func newTurn(convID, messageID string, role conversation.Role, content string) *conversation.Turn {
	return &conversation.Turn{
		ConversationID: convID,
		MessageID:      messageID,
		Role:           role,
		Content:        content,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = NewStore()
	})

	Describe("Append", func() {
		It("assigns strictly increasing sequence numbers", func() {
			for i := range 5 {
				turn := newTurn("c1", fmt.Sprintf("m%d", i), conversation.RoleUser, "hello")
				inserted, err := store.Append(ctx, turn)
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeTrue())
				Expect(turn.Seq).To(Equal(int64(i + 1)))
			}
		})

		It("is idempotent on message id", func() {
			first := newTurn("c1", "m1", conversation.RoleUser, "hello")
			inserted, err := store.Append(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			dup := newTurn("c1", "m1", conversation.RoleUser, "hello")
			inserted, err = store.Append(ctx, dup)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			turns, err := store.Fetch(ctx, "c1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})

		It("rejects nil turns", func() {
			_, err := store.Append(ctx, nil)
			Expect(err).To(MatchError(conversation.ErrNilTurn))
		})

		It("rejects turns with unknown roles", func() {
			turn := newTurn("c1", "m1", conversation.Role("narrator"), "hello")
			_, err := store.Append(ctx, turn)
			Expect(err).To(MatchError(conversation.ErrInvalidTurn))
		})

		It("sets CreatedAt when unset", func() {
			turn := newTurn("c1", "m1", conversation.RoleUser, "hello")
			_, err := store.Append(ctx, turn)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.CreatedAt).NotTo(BeZero())
		})
	})

	Describe("Fetch", func() {
		BeforeEach(func() {
			for i := range 10 {
				turn := newTurn("c1", fmt.Sprintf("m%d", i), conversation.RoleUser, fmt.Sprintf("turn %d", i))
				_, err := store.Append(ctx, turn)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns all turns in sequence order without a limit", func() {
			turns, err := store.Fetch(ctx, "c1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(10))
			for i := 1; i < len(turns); i++ {
				Expect(turns[i].Seq).To(BeNumerically(">", turns[i-1].Seq))
			}
		})

		It("returns the most recent window in chronological order", func() {
			turns, err := store.Fetch(ctx, "c1", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Content).To(Equal("turn 7"))
			Expect(turns[1].Content).To(Equal("turn 8"))
			Expect(turns[2].Content).To(Equal("turn 9"))
		})

		It("returns an empty slice for an unknown conversation", func() {
			turns, err := store.Fetch(ctx, "nope", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("returns a copy so callers cannot mutate internal state", func() {
			turns, err := store.Fetch(ctx, "c1", 1)
			Expect(err).NotTo(HaveOccurred())
			turns[0].Content = "mutated"

			again, err := store.Fetch(ctx, "c1", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(again[0].Content).To(Equal("turn 9"))
		})
	})

	Describe("session mapping", func() {
		It("binds an identity once and keeps the first winner", func() {
			winner, err := store.Bind(ctx, "telegram:42", "conv-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(winner).To(Equal("conv-a"))

			winner, err = store.Bind(ctx, "telegram:42", "conv-b")
			Expect(err).NotTo(HaveOccurred())
			Expect(winner).To(Equal("conv-a"))
		})

		It("looks up bound identities", func() {
			_, err := store.Bind(ctx, "telegram:42", "conv-a")
			Expect(err).NotTo(HaveOccurred())

			id, ok, err := store.Lookup(ctx, "telegram:42")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("conv-a"))
		})

		It("reports unknown identities", func() {
			_, ok, err := store.Lookup(ctx, "unknown")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Close", func() {
		It("is a no-op and returns nil", func() {
			Expect(store.Close()).To(Succeed())
		})
	})
})
