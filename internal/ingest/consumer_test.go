package ingest_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"callyard.app/switchboard/internal/ingest"
	"callyard.app/switchboard/internal/model"
)

var _ = Describe("ParseMessage", func() {
	It("parses a fully populated message", func() {
		msg, err := ingest.ParseMessage(redis.XMessage{
			ID: "1700000000000-0",
			Values: map[string]any{
				"kind":     "call_ended",
				"payload":  `{"id":"call-1"}`,
				"attempt":  "3",
				"trace_id": "abc123",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1700000000000-0"))
		Expect(msg.Kind).To(Equal(model.KindCallEnded))
		Expect(msg.Payload).To(Equal([]byte(`{"id":"call-1"}`)))
		Expect(msg.Attempt).To(Equal(3))
		Expect(msg.TraceID).To(Equal("abc123"))
	})

	It("defaults the attempt to 1", func() {
		msg, err := ingest.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"kind":    "call_started",
				"payload": `{"id":"call-1"}`,
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.TraceID).To(BeEmpty())
	})

	DescribeTable("rejects malformed messages",
		func(values map[string]any, want string) {
			_, err := ingest.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(MatchError(ContainSubstring(want)))
		},
		Entry("missing kind",
			map[string]any{"payload": "{}"}, "missing kind"),
		Entry("unknown kind",
			map[string]any{"kind": "call_parked", "payload": "{}"}, `unknown kind "call_parked"`),
		Entry("missing payload",
			map[string]any{"kind": "call_ended"}, "missing payload"),
		Entry("non-numeric attempt",
			map[string]any{"kind": "call_ended", "payload": "{}", "attempt": "soon"}, "parsing attempt"),
	)

	It("accepts every event kind", func() {
		for _, kind := range []string{"call_started", "call_ended", "recording_available"} {
			_, err := ingest.ParseMessage(redis.XMessage{
				ID:     "1-0",
				Values: map[string]any{"kind": kind, "payload": "{}"},
			})
			Expect(err).NotTo(HaveOccurred(), "kind %s", kind)
		}
	})
})
