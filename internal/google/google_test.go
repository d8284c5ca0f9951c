package google

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/config"
)

func fastRetry(max int) retryPolicy {
	p := newRetryPolicy(max)
	p.backoff = gax.Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	return p
}

type capture struct {
	path  string
	key   string
	body  []byte
	calls atomic.Int32
}

// newServer answers with the statuses in order, then repeats the last one.
func newServer(t *testing.T, response string, statuses ...int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(c.calls.Add(1))
		c.path = r.URL.Path
		c.key = r.Header.Get("x-goog-api-key")
		c.body, _ = io.ReadAll(r.Body)

		code := http.StatusOK
		if len(statuses) > 0 {
			code = statuses[len(statuses)-1]
			if n <= len(statuses) {
				code = statuses[n-1]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(response))
			return
		}
		_, _ = w.Write([]byte(`{"error": {"code": ` + strconv.Itoa(code) + `, "message": "failed"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newTestGemini(t *testing.T, baseURL string, retry retryPolicy) *Gemini {
	t.Helper()
	cc := genaiConfig(config.GoogleConfig{APIKey: "test-key", GeminiURL: baseURL})
	client, err := genai.NewClient(context.Background(), cc)
	require.NoError(t, err)
	return newGemini(client.Models, "gemini-2.5-flash-lite", 5*time.Second, retry)
}

func TestGemini_Generate(t *testing.T) {
	srv, c := newServer(t, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "Good evening, "}, {"text": "sir."}]}, "finishReason": "STOP"}]
	}`)

	g := newTestGemini(t, srv.URL, fastRetry(0))
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Text: "hello"},
		{Role: conversation.RoleModel, Text: "hi"},
		{Role: conversation.RoleUser, Text: "how are you"},
	}
	reply, err := g.Generate(context.Background(), "You are Alfred.", turns)
	require.NoError(t, err)
	assert.Equal(t, "Good evening, sir.", reply)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash-lite:generateContent", c.path)
	assert.Equal(t, "test-key", c.key)
	req := gjson.ParseBytes(c.body)
	assert.Equal(t, "You are Alfred.", req.Get("systemInstruction.parts.0.text").String())
	assert.Equal(t, int64(3), req.Get("contents.#").Int())
	assert.Equal(t, "model", req.Get("contents.1.role").String())
	assert.Equal(t, "how are you", req.Get("contents.2.parts.0.text").String())
}

func TestGemini_Blocked(t *testing.T) {
	srv, _ := newServer(t, `{"promptFeedback": {"blockReason": "SAFETY"}}`)

	g := newTestGemini(t, srv.URL, fastRetry(0))
	_, err := g.Generate(context.Background(), "", []conversation.Turn{{Role: conversation.RoleUser, Text: "x"}})
	require.ErrorIs(t, err, ErrEmptyResponse)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGemini_RetriesTransientErrors(t *testing.T) {
	srv, c := newServer(t, `{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`,
		http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK)

	g := newTestGemini(t, srv.URL, fastRetry(2))
	reply, err := g.Generate(context.Background(), "", []conversation.Turn{{Role: conversation.RoleUser, Text: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(3), c.calls.Load())
}

func TestGemini_DoesNotRetryAuthFailures(t *testing.T) {
	srv, c := newServer(t, "", http.StatusUnauthorized)

	g := newTestGemini(t, srv.URL, fastRetry(3))
	_, err := g.Generate(context.Background(), "", []conversation.Turn{{Role: conversation.RoleUser, Text: "x"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), c.calls.Load())
}

type fakeRecognizer struct {
	errs []error
	resp *speechpb.RecognizeResponse
	reqs []*speechpb.RecognizeRequest
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	var resp *speechpb.RecognizeResponse
	err := gax.Invoke(ctx, func(context.Context, gax.CallSettings) error {
		f.reqs = append(f.reqs, req)
		if len(f.errs) > 0 {
			err := f.errs[0]
			f.errs = f.errs[1:]
			return err
		}
		resp = f.resp
		return nil
	}, opts...)
	return resp, err
}

func TestSpeech_Transcribe(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "what time is it", Confidence: 0.93}}},
	}}}

	s := newSpeech(fake, time.Second, fastRetry(0))
	text, err := s.Transcribe(context.Background(), []byte("webm-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "what time is it", text)

	require.Len(t, fake.reqs, 1)
	cfg := fake.reqs[0].GetConfig()
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, cfg.GetEncoding())
	assert.Equal(t, int32(48000), cfg.GetSampleRateHertz())
	assert.Equal(t, "en-US", cfg.GetLanguageCode())
	assert.Equal(t, []byte("webm-bytes"), fake.reqs[0].GetAudio().GetContent())
}

func TestSpeech_NoResults(t *testing.T) {
	s := newSpeech(&fakeRecognizer{resp: &speechpb.RecognizeResponse{}}, time.Second, fastRetry(0))
	_, err := s.Transcribe(context.Background(), []byte("silence"))
	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestSpeech_RetryPolicy(t *testing.T) {
	fake := &fakeRecognizer{
		errs: []error{status.Error(codes.Unavailable, "try again")},
		resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello"}}},
		}},
	}
	s := newSpeech(fake, time.Second, fastRetry(2))
	text, err := s.Transcribe(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Len(t, fake.reqs, 2)

	fake = &fakeRecognizer{errs: []error{status.Error(codes.Unauthenticated, "bad key")}}
	s = newSpeech(fake, time.Second, fastRetry(2))
	_, err = s.Transcribe(context.Background(), []byte("a"))
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Len(t, fake.reqs, 1)
}

type fakeSynthesizer struct {
	resp *texttospeechpb.SynthesizeSpeechResponse
	req  *texttospeechpb.SynthesizeSpeechRequest
}

func (f *fakeSynthesizer) SynthesizeSpeech(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest, _ ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.req = req
	return f.resp, nil
}

func TestVoice_Synthesize(t *testing.T) {
	audio := []byte{0xff, 0xfb, 0x90, 0x00}
	fake := &fakeSynthesizer{resp: &texttospeechpb.SynthesizeSpeechResponse{AudioContent: audio}}

	v := newVoice(fake, time.Second, fastRetry(0))
	got, err := v.Synthesize(context.Background(), "Right away, sir.")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	assert.Equal(t, "Right away, sir.", fake.req.GetInput().GetText())
	assert.Equal(t, "en-US-Standard-J", fake.req.GetVoice().GetName())
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_FEMALE, fake.req.GetVoice().GetSsmlGender())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, fake.req.GetAudioConfig().GetAudioEncoding())
}

func TestVoice_EmptyAudio(t *testing.T) {
	v := newVoice(&fakeSynthesizer{resp: &texttospeechpb.SynthesizeSpeechResponse{}}, time.Second, fastRetry(0))
	_, err := v.Synthesize(context.Background(), "x")
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(status.Error(codes.Unavailable, "")))
	assert.True(t, retryable(genai.APIError{Code: http.StatusServiceUnavailable}))
	assert.False(t, retryable(status.Error(codes.Unauthenticated, "")))
	assert.False(t, retryable(genai.APIError{Code: http.StatusUnauthorized}))
	assert.False(t, retryable(context.DeadlineExceeded))
}

func TestGenaiConfig(t *testing.T) {
	cc := genaiConfig(config.GoogleConfig{APIKey: "k"})
	assert.Equal(t, genai.BackendGeminiAPI, cc.Backend)
	assert.Empty(t, cc.Project)

	cc = genaiConfig(config.GoogleConfig{Project: "p", Location: "us-central1"})
	assert.Equal(t, genai.BackendVertexAI, cc.Backend)
	assert.Equal(t, "p", cc.Project)
	assert.Empty(t, cc.APIKey)
}
