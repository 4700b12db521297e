package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/foxseedlab/voicelink/internal/tts"
)

type Mode int

const (
	ModeSentenceChunk Mode = iota + 1
	ModeFullStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeFullStreaming:
		return "full_streaming"
	case ModeSentenceChunk:
		return "sentence_chunk"
	default:
		return "unselected"
	}
}

// SelectMode picks full streaming only when both backends can stream.
func SelectMode(llmOK, ttsOK bool) Mode {
	if llmOK && ttsOK {
		return ModeFullStreaming
	}
	return ModeSentenceChunk
}

// Selector probes both backends once per call.
type Selector struct {
	llm     llm.Streamer
	tts     tts.Synthesizer
	timeout time.Duration
}

func NewSelector(l llm.Streamer, t tts.Synthesizer, probeTimeout time.Duration) *Selector {
	return &Selector{llm: l, tts: t, timeout: probeTimeout}
}

// Select runs both probes concurrently. A failed or slow probe counts as
// unavailable and only shows up in the logs.
func (s *Selector) Select(ctx context.Context) Mode {
	var llmOK, ttsOK bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		llmOK = s.probe(ctx, "llm", s.llm.Probe)
	}()
	go func() {
		defer wg.Done()
		ttsOK = s.probe(ctx, "tts", s.tts.Probe)
	}()
	wg.Wait()
	return SelectMode(llmOK, ttsOK)
}

func (s *Selector) probe(ctx context.Context, name string, fn func(context.Context) error) bool {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(pctx) }()
	select {
	case err := <-done:
		if err != nil {
			slog.Warn("streaming probe failed", "backend", name, "error", err)
			return false
		}
		return true
	case <-pctx.Done():
		slog.Warn("streaming probe timed out", "backend", name, "timeout_ms", s.timeout.Milliseconds())
		return false
	}
}
