// Package testutil provides common testing utilities and fake AI providers.
package testutil

import (
	"context"
	"sync"

	"github.com/alfredchat/alfred/internal/app/domain/conversation"
)

// GenerateCall records one call to FakeGenerator.
type GenerateCall struct {
	SystemInstruction string
	Turns             []conversation.Turn
}

// FakeGenerator is a test implementation of the language model client.
type FakeGenerator struct {
	mu    sync.Mutex
	Reply string
	Err   error
	calls []GenerateCall
}

// NewFakeGenerator creates a generator that always answers reply.
func NewFakeGenerator(reply string) *FakeGenerator {
	return &FakeGenerator{Reply: reply}
}

func (f *FakeGenerator) Generate(_ context.Context, systemInstruction string, turns []conversation.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, GenerateCall{
		SystemInstruction: systemInstruction,
		Turns:             append([]conversation.Turn(nil), turns...),
	})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

// Calls returns a copy of the recorded calls.
func (f *FakeGenerator) Calls() []GenerateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateCall(nil), f.calls...)
}

// LastCall returns the most recent call, or the zero value.
func (f *FakeGenerator) LastCall() GenerateCall {
	calls := f.Calls()
	if len(calls) == 0 {
		return GenerateCall{}
	}
	return calls[len(calls)-1]
}

// FakeTranscriber returns a fixed transcript.
type FakeTranscriber struct {
	mu         sync.Mutex
	Transcript string
	Err        error
	received   [][]byte
}

func (f *FakeTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, append([]byte(nil), audio...))
	if f.Err != nil {
		return "", f.Err
	}
	return f.Transcript, nil
}

// Received returns the audio payloads seen so far.
func (f *FakeTranscriber) Received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

// FakeSynthesizer returns fixed audio bytes.
type FakeSynthesizer struct {
	mu    sync.Mutex
	Audio []byte
	Err   error
	texts []string
}

func (f *FakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Audio, nil
}

// Texts returns the texts synthesized so far.
func (f *FakeSynthesizer) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}
