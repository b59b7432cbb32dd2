package chain_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/bus"
	"callyard.app/switchboard/internal/chain"
)

// recordingStage counts invocations and lets tests script forwarding and
// failure behavior per conversation id.
type recordingStage struct {
	name      string
	mu        sync.Mutex
	seen      []string
	forwardFn func(conversationID string) (bool, error)
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) DefaultOptions() chain.Options {
	return chain.Options{IngressTopics: []string{chain.DefaultIngressTopic}}
}

func (s *recordingStage) Process(_ context.Context, conversationID string, _ chain.Options) (bool, error) {
	s.mu.Lock()
	s.seen = append(s.seen, conversationID)
	s.mu.Unlock()
	if s.forwardFn != nil {
		return s.forwardFn(conversationID)
	}
	return true, nil
}

func (s *recordingStage) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

var _ = Describe("Assembler", func() {
	var (
		b        *bus.MemoryBus
		registry *chain.Registry
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		b = bus.NewMemory()
		registry = chain.NewRegistry()
	})

	It("fails on an unknown stage name", func() {
		_, err := chain.NewAssembler(b, registry).Build(ctx, []string{"nonexistent"})
		Expect(err).To(MatchError(ContainSubstring(`unknown stage "nonexistent"`)))
	})

	It("fails on an empty stage list", func() {
		_, err := chain.NewAssembler(b, registry).Build(ctx, nil)
		Expect(err).To(HaveOccurred())
	})

	It("delivers a published conversation through every stage exactly once", func() {
		a := &recordingStage{name: "a"}
		bStage := &recordingStage{name: "b"}
		c := &recordingStage{name: "c"}
		registry.Register(a)
		registry.Register(bStage)
		registry.Register(c)

		built, err := chain.NewAssembler(b, registry).Build(ctx, []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		defer built.Stop()

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "conv-1")).To(Succeed())

		Eventually(c.calls).Should(Equal([]string{"conv-1"}))
		Consistently(c.calls, 100*time.Millisecond).Should(HaveLen(1))
		Expect(a.calls()).To(Equal([]string{"conv-1"}))
		Expect(bStage.calls()).To(Equal([]string{"conv-1"}))
	})

	It("stops propagation when a stage declines to forward", func() {
		a := &recordingStage{name: "a"}
		filter := &recordingStage{name: "filter", forwardFn: func(string) (bool, error) {
			return false, nil
		}}
		c := &recordingStage{name: "c"}
		registry.Register(a)
		registry.Register(filter)
		registry.Register(c)

		built, err := chain.NewAssembler(b, registry).Build(ctx, []string{"a", "filter", "c"})
		Expect(err).NotTo(HaveOccurred())
		defer built.Stop()

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "conv-1")).To(Succeed())

		Eventually(filter.calls).Should(HaveLen(1))
		Consistently(c.calls, 100*time.Millisecond).Should(BeEmpty())
	})

	It("keeps a stage alive after a processing error", func() {
		flaky := &recordingStage{name: "flaky", forwardFn: func(id string) (bool, error) {
			if id == "bad" {
				return false, errors.New("boom")
			}
			return true, nil
		}}
		sink := &recordingStage{name: "sink"}
		registry.Register(flaky)
		registry.Register(sink)

		built, err := chain.NewAssembler(b, registry).Build(ctx, []string{"flaky", "sink"})
		Expect(err).NotTo(HaveOccurred())
		defer built.Stop()

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "bad")).To(Succeed())
		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "good")).To(Succeed())

		Eventually(flaky.calls).Should(Equal([]string{"bad", "good"}))
		Eventually(sink.calls).Should(Equal([]string{"good"}))
	})

	It("keeps a stage alive after a panic", func() {
		panicky := &recordingStage{name: "panicky", forwardFn: func(id string) (bool, error) {
			if id == "bad" {
				panic("stage exploded")
			}
			return true, nil
		}}
		sink := &recordingStage{name: "sink"}
		registry.Register(panicky)
		registry.Register(sink)

		built, err := chain.NewAssembler(b, registry).Build(ctx, []string{"panicky", "sink"})
		Expect(err).NotTo(HaveOccurred())
		defer built.Stop()

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "bad")).To(Succeed())
		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "good")).To(Succeed())

		Eventually(sink.calls).Should(Equal([]string{"good"}))
	})

	It("isolates two chains built from the same stage names", func() {
		first := &recordingStage{name: "first"}
		second := &recordingStage{name: "second"}
		registry.Register(first)
		registry.Register(second)

		one, err := chain.NewAssembler(b, registry).Build(ctx, []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		defer one.Stop()
		two, err := chain.NewAssembler(b, registry).Build(ctx, []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		defer two.Stop()

		Expect(one.ID).NotTo(Equal(two.ID))

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "conv-1")).To(Succeed())

		// Both chains share the well-known ingress, so the first stage runs
		// once per chain; the chain-scoped topics must not cross-deliver.
		Eventually(first.calls).Should(HaveLen(2))
		Eventually(second.calls).Should(HaveLen(2))
		Consistently(second.calls, 100*time.Millisecond).Should(HaveLen(2))
	})

	It("tears down its subscriptions on Stop", func() {
		s := &recordingStage{name: "solo"}
		registry.Register(s)

		built, err := chain.NewAssembler(b, registry).Build(ctx, []string{"solo"})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "conv-1")).To(Succeed())
		Eventually(s.calls).Should(HaveLen(1))

		built.Stop()

		Expect(b.Publish(ctx, chain.DefaultIngressTopic, "conv-2")).To(Succeed())
		Consistently(s.calls, 100*time.Millisecond).Should(HaveLen(1))
	})
})
