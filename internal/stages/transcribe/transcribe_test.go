package transcribe_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/stages/transcribe"
	"callyard.app/switchboard/internal/store"
)

type fakeStore struct {
	records map[string]*model.Record
	saves   int
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
	f.saves++
	return nil
}

type fakeTranscriber struct {
	err   error
	calls []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioURL, _ string) (string, error) {
	f.calls = append(f.calls, audioURL)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("transcript of %s", audioURL), nil
}

func recordedLeg(callID string, duration int) model.Leg {
	return model.Leg{
		CallID:   callID,
		Duration: duration,
		URL:      "https://media.example.com/" + callID + ".wav",
		Filename: callID + ".wav",
	}
}

var _ = Describe("Stage", func() {
	var (
		ctx   context.Context
		st    *fakeStore
		tr    *fakeTranscriber
		stage *transcribe.Stage
		opts  chain.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newFakeStore()
		tr = &fakeTranscriber{}
		stage = transcribe.New(st, tr, "openai")
		opts = stage.DefaultOptions()
	})

	It("transcribes recorded legs and saves the analyses", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 90))
		rec.AddLeg(recordedLeg("call-2", 45))
		st.records["conv-1"] = rec

		forward, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(forward).To(BeTrue())
		Expect(st.saves).To(Equal(1))

		first := rec.AnalysisFor(model.AnalysisTranscript, 0)
		Expect(first).NotTo(BeNil())
		Expect(first.Vendor).To(Equal("openai"))
		Expect(first.Body).To(Equal("transcript of https://media.example.com/call-1.wav"))
		Expect(rec.AnalysisFor(model.AnalysisTranscript, 1)).NotTo(BeNil())
	})

	It("skips legs without a recording", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(model.Leg{CallID: "call-1", Duration: 90})
		st.records["conv-1"] = rec

		forward, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(forward).To(BeTrue())
		Expect(tr.calls).To(BeEmpty())
		Expect(st.saves).To(BeZero())
	})

	It("skips legs shorter than the minimum duration", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 4))
		st.records["conv-1"] = rec

		_, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr.calls).To(BeEmpty())
	})

	It("honors a raised minimum duration", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 20))
		st.records["conv-1"] = rec

		opts.Settings["min_duration_seconds"] = "30"
		_, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr.calls).To(BeEmpty())
	})

	It("does not transcribe the same leg twice", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 90))
		rec.Analyses = append(rec.Analyses, model.Analysis{
			Type: model.AnalysisTranscript,
			Leg:  0,
			Body: "already here",
		})
		st.records["conv-1"] = rec

		forward, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(forward).To(BeTrue())
		Expect(tr.calls).To(BeEmpty())
		Expect(rec.Analyses).To(HaveLen(1))
	})

	It("is a pass-through when disabled", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 90))
		st.records["conv-1"] = rec

		opts.Settings["enabled"] = "false"
		forward, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(forward).To(BeTrue())
		Expect(tr.calls).To(BeEmpty())
	})

	It("fails the message when the provider errors", func() {
		rec := model.NewRecord("conv-1")
		rec.AddLeg(recordedLeg("call-1", 90))
		st.records["conv-1"] = rec

		tr.err = errors.New("rate limited")
		_, err := stage.Process(ctx, "conv-1", opts)
		Expect(err).To(HaveOccurred())
		Expect(st.saves).To(BeZero())
	})
})
