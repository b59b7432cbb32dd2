package correlate_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/correlate"
	"callyard.app/switchboard/internal/model"
)

var _ = Describe("Key", func() {
	It("is stable across number formatting", func() {
		a := correlate.Key("4155550100", "(415) 555-0199", model.DirectionIn)
		b := correlate.Key("+1 415-555-0100", "14155550199", model.DirectionIn)
		Expect(a).To(Equal(b))
	})

	It("distinguishes direction", func() {
		in := correlate.Key("4155550100", "4155550199", model.DirectionIn)
		out := correlate.Key("4155550100", "4155550199", model.DirectionOut)
		Expect(in).NotTo(Equal(out))
	})
})

var _ = Describe("Correlator", func() {
	var (
		keys       *fakeKeyStore
		correlator *correlate.Correlator
		ctx        context.Context
	)

	inbound := model.CallEvent{
		CallID:         "c-1",
		Direction:      model.DirectionIn,
		CustomerNumber: "4155550199",
		DealerNumber:   "4155550100",
	}
	outbound := model.CallEvent{
		CallID:         "c-2",
		Direction:      model.DirectionOut,
		CustomerNumber: "4155550199",
		DealerNumber:   "4155550100",
	}

	BeforeEach(func() {
		ctx = context.Background()
		keys = newFakeKeyStore()
		correlator = correlate.NewCorrelator(keys, 60*time.Second)
	})

	It("mints a new conversation on a miss and seeds the key for inbound", func() {
		id, isNew, err := correlator.ResolveConversation(ctx, inbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())
		Expect(id).NotTo(BeEmpty())

		key := correlate.Key(inbound.DealerNumber, inbound.CustomerNumber, inbound.Direction)
		Expect(keys.values).To(HaveKeyWithValue(key, id))
	})

	It("resolves both leg signals of one call to the same conversation", func() {
		first, isNew, err := correlator.ResolveConversation(ctx, inbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		second, isNew, err := correlator.ResolveConversation(ctx, inbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeFalse())
		Expect(second).To(Equal(first))
	})

	It("does not seed a key for an unmatched outbound leg", func() {
		_, isNew, err := correlator.ResolveConversation(ctx, outbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())
		Expect(keys.values).To(BeEmpty())
	})

	It("gives each unmatched outbound leg its own conversation", func() {
		first, _, err := correlator.ResolveConversation(ctx, outbound)
		Expect(err).NotTo(HaveOccurred())
		second, _, err := correlator.ResolveConversation(ctx, outbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).NotTo(Equal(first))
	})

	It("attaches an outbound leg to a conversation seeded by the inbound leg", func() {
		key := correlate.Key(outbound.DealerNumber, outbound.CustomerNumber, outbound.Direction)
		Expect(keys.Set(ctx, key, "existing-conversation", time.Minute)).To(Succeed())

		id, isNew, err := correlator.ResolveConversation(ctx, outbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeFalse())
		Expect(id).To(Equal("existing-conversation"))
	})

	It("slides the key TTL on every hit", func() {
		_, _, err := correlator.ResolveConversation(ctx, inbound)
		Expect(err).NotTo(HaveOccurred())

		key := correlate.Key(inbound.DealerNumber, inbound.CustomerNumber, inbound.Direction)
		keys.ttls[key] = time.Second // pretend most of the window elapsed

		_, _, err = correlator.ResolveConversation(ctx, inbound)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys.ttls[key]).To(Equal(60 * time.Second))
	})

	It("surfaces store failures instead of minting conversations", func() {
		keys.getErr = errors.New("redis down")
		_, _, err := correlator.ResolveConversation(ctx, inbound)
		Expect(err).To(HaveOccurred())
	})

	Describe("MarkActive", func() {
		It("clears the TTL on a present key", func() {
			_, _, err := correlator.ResolveConversation(ctx, inbound)
			Expect(err).NotTo(HaveOccurred())

			Expect(correlator.MarkActive(ctx, inbound)).To(Succeed())

			key := correlate.Key(inbound.DealerNumber, inbound.CustomerNumber, inbound.Direction)
			Expect(keys.persisted[key]).To(BeTrue())
		})

		It("treats a missing key as a no-op", func() {
			Expect(correlator.MarkActive(ctx, inbound)).To(Succeed())
			Expect(keys.persisted).To(BeEmpty())
		})
	})
})
