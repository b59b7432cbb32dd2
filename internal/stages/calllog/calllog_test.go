package calllog_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/disposition"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/stages/calllog"
	"callyard.app/switchboard/internal/store"
)

type fakeStore struct {
	records map[string]*model.Record
	saved   []*model.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*model.Record)}
}

func (f *fakeStore) Get(_ context.Context, id string) (*model.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) Save(_ context.Context, rec *model.Record) error {
	f.records[rec.UUID] = rec
	f.saved = append(f.saved, rec)
	return nil
}

func baseRecord() *model.Record {
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	rec := model.NewRecord("conv-1")
	customer := rec.EnsureCustomer("4155550199")
	agent := rec.EnsureAgent("107", "4155550100", "jane.doe@example.com", "Jane Doe")
	rec.AddLeg(model.Leg{
		Start:         base,
		End:           base.Add(90 * time.Second),
		Duration:      90,
		Direction:     model.DirectionIn,
		Disposition:   disposition.Answered,
		CustomerParty: customer,
		AgentParty:    agent,
		CallID:        "call-1",
	})
	rec.Attachments = append(rec.Attachments, model.Attachment{
		Kind:   model.AttachmentTelephony,
		Source: "softphone",
		CallID: "call-1",
		Event: &model.CallEvent{
			CallID:    "call-1",
			Direction: model.DirectionIn,
			StartedAt: "2025-06-02T14:00:00.000Z",
		},
		Dealer: &model.Dealer{ID: "dealer-7", Name: "Downtown Motors", OutboundPhoneNumber: "4155550100"},
	})
	return rec
}

var _ = Describe("Stage", func() {
	var (
		ctx   context.Context
		st    *fakeStore
		stage *calllog.Stage
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newFakeStore()
		stage = calllog.New(st)
	})

	It("subscribes to the well-known ingress by default", func() {
		Expect(stage.DefaultOptions().IngressTopics).To(Equal([]string{chain.DefaultIngressTopic}))
	})

	It("attaches a call_log projection and forwards", func() {
		st.records["conv-1"] = baseRecord()

		forward, err := stage.Process(ctx, "conv-1", chain.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(forward).To(BeTrue())

		att := st.records["conv-1"].AttachmentByKind(model.AttachmentCallLog)
		Expect(att).NotTo(BeNil())

		var p calllog.Projection
		Expect(json.Unmarshal(att.Body, &p)).To(Succeed())
		Expect(p.ID).To(Equal("conv-1"))
		Expect(p.Disposition).To(Equal(disposition.Answered))
		Expect(p.CustomerNumber).To(Equal("+1 415-555-0199"))
		Expect(p.Extension).To(Equal("107"))
		Expect(p.AgentName).To(Equal("Jane Doe"))
		Expect(p.Direction).To(Equal("in"))
		Expect(p.DealerName).To(Equal("Downtown Motors"))
		Expect(p.Duration).To(Equal(90))
		Expect(p.Legs).To(HaveLen(1))
		Expect(p.Legs[0].Disposition).To(Equal(disposition.Answered))
	})

	It("replaces a stale projection instead of stacking a second one", func() {
		rec := baseRecord()
		st.records["conv-1"] = rec

		_, err := stage.Process(ctx, "conv-1", chain.Options{})
		Expect(err).NotTo(HaveOccurred())
		_, err = stage.Process(ctx, "conv-1", chain.Options{})
		Expect(err).NotTo(HaveOccurred())

		count := 0
		for _, att := range rec.Attachments {
			if att.Kind == model.AttachmentCallLog {
				count++
			}
		}
		Expect(count).To(Equal(1))
	})

	It("fails on a conversation with no legs", func() {
		st.records["conv-1"] = model.NewRecord("conv-1")
		_, err := stage.Process(ctx, "conv-1", chain.Options{})
		Expect(err).To(MatchError(ContainSubstring("no legs")))
	})

	It("fails on a missing conversation", func() {
		_, err := stage.Process(ctx, "missing", chain.Options{})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Project", func() {
	It("reports the lead id from the lead attachment", func() {
		rec := baseRecord()
		rec.Attachments = append(rec.Attachments, model.Attachment{
			Kind: model.AttachmentLead,
			Body: json.RawMessage(`{"id": 42118, "phone": "+1 415-555-0199"}`),
		})

		p, err := calllog.Project(rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.LeadID).To(Equal(int64(42118)))
	})

	It("reports the dealer outbound number only for outbound calls", func() {
		rec := baseRecord()
		att := rec.AttachmentByKind(model.AttachmentTelephony)
		att.Event.Direction = model.DirectionOut
		rec.Legs[0].Direction = model.DirectionOut

		p, err := calllog.Project(rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.DealerNumber).To(Equal("+1 415-555-0100"))

		att.Event.Direction = model.DirectionIn
		p, err = calllog.Project(rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.DealerNumber).To(BeEmpty())
	})

	It("uses the main leg's agent for a transferred conversation", func() {
		base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
		rec := baseRecord()
		second := rec.EnsureAgent("212", "", "sam.lee@example.com", "Sam Lee")
		rec.AddLeg(model.Leg{
			Start:         base.Add(2 * time.Minute),
			End:           base.Add(2*time.Minute + 20*time.Second),
			Duration:      20,
			Direction:     model.DirectionIn,
			Disposition:   disposition.Missed,
			CustomerParty: 0,
			AgentParty:    second,
			CallID:        "call-2",
		})

		p, err := calllog.Project(rec)
		Expect(err).NotTo(HaveOccurred())
		// First leg becomes the internal transfer and stays the main leg.
		Expect(p.Disposition).To(Equal(disposition.LostInternalTransfer))
		Expect(p.Extension).To(Equal("107"))
		Expect(p.Duration).To(Equal(110))
		Expect(p.Legs).To(HaveLen(2))
		Expect(p.Legs[0].Disposition).To(Equal(disposition.InternalTransfer))
		Expect(p.Legs[1].AgentName).To(Equal("Sam Lee"))
	})
})
