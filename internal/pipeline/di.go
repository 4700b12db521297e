package pipeline

import (
	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/facts"
	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/foxseedlab/voicelink/internal/timing"
	"github.com/foxseedlab/voicelink/internal/transcriber"
	"github.com/foxseedlab/voicelink/internal/tts"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		l := do.MustInvoke[llm.Streamer](i)
		t := do.MustInvoke[tts.Synthesizer](i)
		engine := NewEngine(stt, l, t, facts.NewStore(nil), timing.NewRecorder(), SystemClock(), EngineConfig{
			BackendTimeout:        cfg.BackendTimeout,
			PlaybackStartBytes:    cfg.PlaybackStartBytes,
			HistoryTurns:          cfg.HistoryTurns,
			FullStreamingTargetMs: int64(cfg.FullStreamingTargetMs),
			SentenceChunkTargetMs: int64(cfg.SentenceChunkTargetMs),
		})
		if err := engine.Validate(); err != nil {
			return nil, err
		}
		return engine, nil
	})
	do.Provide(injector, func(i do.Injector) (*Selector, error) {
		cfg := do.MustInvoke[*config.Config](i)
		l := do.MustInvoke[llm.Streamer](i)
		t := do.MustInvoke[tts.Synthesizer](i)
		return NewSelector(l, t, cfg.ProbeTimeout), nil
	})
}
