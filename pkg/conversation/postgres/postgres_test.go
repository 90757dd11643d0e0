package postgres_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/quorralabs/quorra/pkg/conversation"
	"github.com/quorralabs/quorra/pkg/conversation/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("QUORRA_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("QUORRA_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func testTurn(conversationID, role, content string) *conversation.Turn {
	return &conversation.Turn{
		ConversationID: conversationID,
		MessageID:      uuid.NewString(),
		Role:           conversation.Role(role),
		Content:        content,
	}
}

var _ = Describe("Store", func() {
	var (
		store *postgres.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		store, err = postgres.NewStore(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	Describe("Append", func() {
		It("assigns increasing sequence numbers within a conversation", func() {
			convID := uuid.NewString()

			first := testTurn(convID, "user", "first")
			appended, err := store.Append(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(appended).To(BeTrue())

			second := testTurn(convID, "assistant", "second")
			appended, err = store.Append(ctx, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(appended).To(BeTrue())

			Expect(second.Seq).To(BeNumerically(">", first.Seq))
		})

		It("treats a duplicate message id as a no-op", func() {
			convID := uuid.NewString()
			turn := testTurn(convID, "user", "hello")

			appended, err := store.Append(ctx, turn)
			Expect(err).NotTo(HaveOccurred())
			Expect(appended).To(BeTrue())

			retry := &conversation.Turn{
				ConversationID: convID,
				MessageID:      turn.MessageID,
				Role:           conversation.RoleUser,
				Content:        "hello",
			}
			appended, err = store.Append(ctx, retry)
			Expect(err).NotTo(HaveOccurred())
			Expect(appended).To(BeFalse())

			turns, err := store.Fetch(ctx, convID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})

		It("rejects turns with missing fields", func() {
			_, err := store.Append(ctx, &conversation.Turn{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Fetch", func() {
		It("returns the most recent turns in chronological order", func() {
			convID := uuid.NewString()
			for i := 0; i < 5; i++ {
				turn := testTurn(convID, "user", fmt.Sprintf("message %d", i))
				_, err := store.Append(ctx, turn)
				Expect(err).NotTo(HaveOccurred())
			}

			turns, err := store.Fetch(ctx, convID, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Content).To(Equal("message 2"))
			Expect(turns[2].Content).To(Equal("message 4"))
			Expect(turns[0].Seq).To(BeNumerically("<", turns[1].Seq))
		})

		It("returns an empty slice for an unknown conversation", func() {
			turns, err := store.Fetch(ctx, uuid.NewString(), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("Lookup and Bind", func() {
		It("returns not found for an unknown identity", func() {
			_, found, err := store.Lookup(ctx, uuid.NewString())
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
		})

		It("binds an identity and looks it up", func() {
			externalID := uuid.NewString()
			convID := uuid.NewString()

			winner, err := store.Bind(ctx, externalID, convID)
			Expect(err).NotTo(HaveOccurred())
			Expect(winner).To(Equal(convID))

			got, found, err := store.Lookup(ctx, externalID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(got).To(Equal(convID))
		})

		It("keeps the first binding when two conversations race", func() {
			externalID := uuid.NewString()
			first := uuid.NewString()
			second := uuid.NewString()

			winner, err := store.Bind(ctx, externalID, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(winner).To(Equal(first))

			winner, err = store.Bind(ctx, externalID, second)
			Expect(err).NotTo(HaveOccurred())
			Expect(winner).To(Equal(first))
		})
	})
})
