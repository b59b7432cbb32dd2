// Package transcribe produces transcripts for recorded legs that do not have
// one yet.
package transcribe

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

// Stage transcribes recorded legs.
type Stage struct {
	conversations Store
	transcriber   ai.Transcriber
	vendor        string
}

func New(conversations Store, transcriber ai.Transcriber, vendor string) *Stage {
	return &Stage{conversations: conversations, transcriber: transcriber, vendor: vendor}
}

func (s *Stage) Name() string { return "transcribe" }

func (s *Stage) DefaultOptions() chain.Options {
	return chain.Options{
		IngressTopics: []string{chain.DefaultIngressTopic},
		Settings: map[string]string{
			"enabled":              "true",
			"min_duration_seconds": "10",
		},
	}
}

// Process transcribes every leg that has a recording URL and no transcript.
// Legs shorter than min_duration_seconds are skipped, the provider returns
// noise for them.
func (s *Stage) Process(ctx context.Context, conversationID string, opts chain.Options) (bool, error) {
	if !opts.BoolSetting("enabled", true) {
		return true, nil
	}
	minDuration := opts.IntSetting("min_duration_seconds", 10)

	rec, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("transcribe load: %w", err)
	}

	transcribed := 0
	for i, leg := range rec.Legs {
		if leg.URL == "" {
			continue
		}
		if leg.Duration < minDuration {
			slog.DebugContext(ctx, "leg too short to transcribe", "leg", i, "duration", leg.Duration)
			continue
		}
		if rec.AnalysisFor(model.AnalysisTranscript, i) != nil {
			continue
		}

		text, err := s.transcriber.Transcribe(ctx, leg.URL, leg.Filename)
		if err != nil {
			return false, fmt.Errorf("transcribe leg %d of %s: %w", i, conversationID, err)
		}

		rec.Analyses = append(rec.Analyses, model.Analysis{
			Type:   model.AnalysisTranscript,
			Leg:    i,
			Vendor: s.vendor,
			Body:   text,
		})
		transcribed++
	}

	if transcribed == 0 {
		return true, nil
	}

	if err := s.conversations.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("transcribe save: %w", err)
	}

	slog.InfoContext(ctx, "legs transcribed", "count", transcribed)
	return true, nil
}
