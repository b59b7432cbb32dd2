// Package summary generates a short natural-language summary for each
// transcribed leg.
package summary

import (
	"context"
	"fmt"
	"log/slog"

	"callyard.app/switchboard/internal/ai"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/model"
)

// Store is the conversation persistence surface this stage needs.
type Store interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Save(ctx context.Context, rec *model.Record) error
}

// Stage summarizes transcripts.
type Stage struct {
	conversations Store
	summarizer    ai.Summarizer
	vendor        string
}

func New(conversations Store, summarizer ai.Summarizer, vendor string) *Stage {
	return &Stage{conversations: conversations, summarizer: summarizer, vendor: vendor}
}

func (s *Stage) Name() string { return "summary" }

func (s *Stage) DefaultOptions() chain.Options {
	return chain.Options{
		IngressTopics: []string{chain.DefaultIngressTopic},
	}
}

// Process summarizes every leg that has a transcript and no summary yet.
func (s *Stage) Process(ctx context.Context, conversationID string, _ chain.Options) (bool, error) {
	rec, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("summary load: %w", err)
	}

	summarized := 0
	for i := range rec.Legs {
		transcript := rec.AnalysisFor(model.AnalysisTranscript, i)
		if transcript == nil || transcript.Body == "" {
			continue
		}
		if rec.AnalysisFor(model.AnalysisSummary, i) != nil {
			continue
		}

		text, err := s.summarizer.Summarize(ctx, transcript.Body)
		if err != nil {
			return false, fmt.Errorf("summarize leg %d of %s: %w", i, conversationID, err)
		}

		rec.Analyses = append(rec.Analyses, model.Analysis{
			Type:   model.AnalysisSummary,
			Leg:    i,
			Vendor: s.vendor,
			Body:   text,
		})
		summarized++
	}

	if summarized == 0 {
		return true, nil
	}

	if err := s.conversations.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("summary save: %w", err)
	}

	slog.InfoContext(ctx, "legs summarized", "count", summarized)
	return true, nil
}
