// Package google implements the Gemini, Speech-to-Text and Text-to-Speech
// clients the assistant uses, on Google's Go SDKs.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/alfredchat/alfred/internal/config"
)

// Clients groups the three providers.
type Clients struct {
	Gemini *Gemini
	Speech *Speech
	Voice  *Voice

	speech *speech.Client
	voice  *texttospeech.Client
}

// NewClients creates all providers. An API key selects the Gemini API and
// keys the speech clients; otherwise Gemini runs on Vertex AI and every
// client uses Application Default Credentials.
func NewClients(ctx context.Context, cfg config.GoogleConfig) (*Clients, error) {
	policy := newRetryPolicy(cfg.MaxRetries)

	gc, err := genai.NewClient(ctx, genaiConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	sc, err := speech.NewClient(ctx, clientOptions(cfg, cfg.SpeechEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	vc, err := texttospeech.NewClient(ctx, clientOptions(cfg, cfg.VoiceEndpoint)...)
	if err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("text-to-speech client: %w", err)
	}

	return &Clients{
		Gemini: newGemini(gc.Models, cfg.GeminiModel, cfg.Timeout, policy),
		Speech: newSpeech(sc, cfg.Timeout, policy),
		Voice:  newVoice(vc, cfg.Timeout, policy),
		speech: sc,
		voice:  vc,
	}, nil
}

// Close releases the gRPC connections.
func (c *Clients) Close() error {
	return errors.Join(c.speech.Close(), c.voice.Close())
}

func genaiConfig(cfg config.GoogleConfig) *genai.ClientConfig {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.GeminiURL},
	}
	if cfg.APIKey != "" {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	} else {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	}
	return cc
}

func clientOptions(cfg config.GoogleConfig, endpoint string) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// withTimeout bounds one provider call, retries included.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
