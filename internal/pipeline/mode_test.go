package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSelectMode(t *testing.T) {
	cases := []struct {
		llm, tts bool
		want     Mode
	}{
		{true, true, ModeFullStreaming},
		{true, false, ModeSentenceChunk},
		{false, true, ModeSentenceChunk},
		{false, false, ModeSentenceChunk},
	}
	for _, c := range cases {
		if got := SelectMode(c.llm, c.tts); got != c.want {
			t.Fatalf("SelectMode(%v, %v) = %s, want %s", c.llm, c.tts, got, c.want)
		}
	}
}

func TestSelector_BothAvailable(t *testing.T) {
	s := NewSelector(&mockLLM{}, &mockTTS{}, time.Second)
	if got := s.Select(context.Background()); got != ModeFullStreaming {
		t.Fatalf("expected full streaming, got %s", got)
	}
}

func TestSelector_ProbeFailure(t *testing.T) {
	s := NewSelector(&mockLLM{}, &mockTTS{probeErr: errors.New("websocket refused")}, time.Second)
	if got := s.Select(context.Background()); got != ModeSentenceChunk {
		t.Fatalf("expected sentence chunk, got %s", got)
	}
}

func TestSelector_ProbeTimeout(t *testing.T) {
	s := NewSelector(&mockLLM{block: true}, &mockTTS{}, 50*time.Millisecond)
	start := time.Now()
	if got := s.Select(context.Background()); got != ModeSentenceChunk {
		t.Fatalf("expected sentence chunk, got %s", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("selection must be bounded by the probe timeout, took %s", elapsed)
	}
}
