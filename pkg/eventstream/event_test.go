package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quorralabs/quorra/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals AnswerProducedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.AnswerProducedEvent{
			SchemaVersion:      eventstream.SchemaVersionV1,
			EventType:          eventstream.EventTypeAnswerProduced,
			EventID:            "evt_123",
			EmittedAt:          now,
			ConversationID:     "conv_1",
			UserMessageID:      "msg_user",
			AssistantMessageID: "msg_assistant",
			Model:              "llama3.2",
			Degraded:           false,
			Sources:            []string{"handbook.pdf p.12"},
			ContextTokens:      512,
			DurationMs:         1800,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("conversation_id"))
		Expect(got).To(HaveKey("user_message_id"))
		Expect(got).To(HaveKey("assistant_message_id"))
		Expect(got).To(HaveKey("degraded"))
		Expect(got).To(HaveKey("sources"))
	})

	It("omits sources when empty", func() {
		payload, err := json.Marshal(eventstream.AnswerProducedEvent{})
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).NotTo(HaveKey("sources"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeAnswerProduced).To(Equal("quorra.answer.produced"))
	})

	It("provides ErrNilAnswerEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilAnswerEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilAnswerEvent).To(MatchError("nil answer event"))
	})
})
