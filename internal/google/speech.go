package google

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
)

// ErrNoSpeech is returned when the recognizer found nothing to transcribe.
var ErrNoSpeech = conversation.ErrNoSpeech

// Browser recorders produce Opus in a WebM container at 48 kHz.
const (
	speechSampleRate = 48000
	speechLanguage   = "en-US"
)

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// Speech transcribes recorded audio with Speech-to-Text.
type Speech struct {
	client  recognizer
	timeout time.Duration
	retry   retryPolicy
}

func newSpeech(client recognizer, timeout time.Duration, retry retryPolicy) *Speech {
	return &Speech{client: client, timeout: timeout, retry: retry}
}

// Transcribe returns the top transcript for the recorded audio.
func (s *Speech) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_WEBM_OPUS,
			SampleRateHertz: speechSampleRate,
			LanguageCode:    speechLanguage,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Recognize(ctx, req, s.retry.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	results := resp.GetResults()
	if len(results) == 0 || len(results[0].GetAlternatives()) == 0 {
		return "", ErrNoSpeech
	}
	return results[0].GetAlternatives()[0].GetTranscript(), nil
}
