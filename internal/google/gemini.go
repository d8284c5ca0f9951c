package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genai"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
)

// ErrEmptyResponse is returned when Gemini produced no text, usually because the prompt was blocked.
var ErrEmptyResponse = errors.New("gemini returned no text")

// contentGenerator is the part of *genai.Models Gemini calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates replies with a Gemini model.
type Gemini struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	retry   retryPolicy
}

func newGemini(models contentGenerator, model string, timeout time.Duration, retry retryPolicy) *Gemini {
	return &Gemini{models: models, model: model, timeout: timeout, retry: retry}
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate returns the model's reply to turns under the given system instruction.
func (g *Gemini) Generate(ctx context.Context, systemInstruction string, turns []conversation.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(t.Role)))
	}
	var cfg *genai.GenerateContentConfig
	if systemInstruction != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(systemInstruction, "")}
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	err := gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		var err error
		resp, err = g.models.GenerateContent(ctx, g.model, contents, cfg)
		return err
	}, g.retry.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if text := resp.Text(); text != "" {
		return text, nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		return "", fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, resp.Candidates[0].FinishReason)
	}
	return "", ErrEmptyResponse
}
