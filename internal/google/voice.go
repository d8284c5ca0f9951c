package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
)

const (
	voiceLanguage = "en-US"
	voiceName     = "en-US-Standard-J"
)

type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// Voice speaks replies with Text-to-Speech.
type Voice struct {
	client  synthesizer
	timeout time.Duration
	retry   retryPolicy
}

func newVoice(client synthesizer, timeout time.Duration, retry retryPolicy) *Voice {
	return &Voice{client: client, timeout: timeout, retry: retry}
}

// Synthesize returns MP3 audio speaking text.
func (v *Voice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voiceLanguage,
			Name:         voiceName,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
		},
		AudioConfig: &texttospeechpb.AudioConfig{AudioEncoding: texttospeechpb.AudioEncoding_MP3},
	}

	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.SynthesizeSpeech(ctx, req, v.retry.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("text synthesize: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, errors.New("text synthesize: empty audio content")
	}
	return resp.GetAudioContent(), nil
}
