// Package ai wraps the model-provider clients used by the transcription and
// summarization stages.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"callyard.app/switchboard/core/config"
)

// Transcriber converts a recorded leg into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, filename string) (string, error)
}

// Summarizer condenses a transcript into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

const summaryPrompt = "Summarize this transcript in a few sentences, identify " +
	"the purpose of the call and whether it was accomplished."

// OpenAIClient implements Transcriber and Summarizer against the OpenAI API.
type OpenAIClient struct {
	client          openai.Client
	model           string
	transcribeModel string
	http            *http.Client
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}

	return &OpenAIClient{
		client:          openai.NewClient(opts...),
		model:           model,
		transcribeModel: transcribeModel,
		http:            &http.Client{Timeout: 2 * time.Minute},
	}
}

// Transcribe downloads the recording and runs it through the transcription
// model.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioURL, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("recording request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("recording download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recording download: status %d", resp.StatusCode)
	}

	start := time.Now()
	transcription, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: c.transcribeModel,
		File:  openai.File(resp.Body, filename, "audio/x-wav"),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	slog.DebugContext(ctx, "transcription completed",
		"model", c.transcribeModel,
		"duration_ms", time.Since(start).Milliseconds())

	return transcription.Text, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, transcript string) (string, error) {
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summaryPrompt),
			openai.UserMessage(transcript),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	slog.DebugContext(ctx, "summary completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// Vendor names the provider recorded on generated analyses.
func (c *OpenAIClient) Vendor() string { return "openai" }
