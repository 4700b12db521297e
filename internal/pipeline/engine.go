package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/facts"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/foxseedlab/voicelink/internal/timing"
	"github.com/foxseedlab/voicelink/internal/transcriber"
	"github.com/foxseedlab/voicelink/internal/tts"
	"github.com/google/uuid"
)

type EngineConfig struct {
	BackendTimeout        time.Duration
	PlaybackStartBytes    int
	HistoryTurns          int
	FullStreamingTargetMs int64
	SentenceChunkTargetMs int64
}

// Engine holds the backends shared by every call.
type Engine struct {
	stt      transcriber.Transcriber
	llm      llm.Streamer
	tts      tts.Synthesizer
	facts    *facts.Store
	recorder *timing.Recorder
	clock    Clock
	cfg      EngineConfig
}

func NewEngine(stt transcriber.Transcriber, l llm.Streamer, t tts.Synthesizer, store *facts.Store, rec *timing.Recorder, clock Clock, cfg EngineConfig) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{stt: stt, llm: l, tts: t, facts: store, recorder: rec, clock: clock, cfg: cfg}
}

// Validate reports a missing backend as a configuration error.
func (e *Engine) Validate() error {
	switch {
	case e.stt == nil:
		return fault.Configuration("speech-to-text backend is not configured")
	case e.llm == nil:
		return fault.Configuration("language model backend is not configured")
	case e.tts == nil:
		return fault.Configuration("speech synthesis backend is not configured")
	case e.facts == nil || e.recorder == nil:
		return fault.Configuration("session stores are not configured")
	}
	return nil
}

func (e *Engine) Clock() Clock { return e.clock }

func (e *Engine) Facts() *facts.Store { return e.facts }

func (e *Engine) Recorder() *timing.Recorder { return e.recorder }

func (e *Engine) targetMs(mode Mode) int64 {
	if mode == ModeFullStreaming {
		return e.cfg.FullStreamingTargetMs
	}
	return e.cfg.SentenceChunkTargetMs
}

// NewCall prepares the per-call pipeline. The mode is fixed for the life of
// the call.
func (e *Engine) NewCall(callID string, mode Mode, out Outbound) *Call {
	e.recorder.SetTarget(callID, e.targetMs(mode))
	return &Call{
		engine:  e,
		id:      callID,
		out:     out,
		history: conversation.NewHistory(e.cfg.HistoryTurns),
		strategy: NewStrategy(mode, Deps{
			LLM:                e.llm,
			TTS:                e.tts,
			Clock:              e.clock,
			BackendTimeout:     e.cfg.BackendTimeout,
			PlaybackStartBytes: e.cfg.PlaybackStartBytes,
		}),
	}
}

// Exchange is what was said in one turn. Reply is empty when the caller heard
// the fallback line or nothing at all.
type Exchange struct {
	Utterance string
	Reply     string
	SpokenAt  time.Time
}

// Call is the pipeline state of one live call. Its methods are called from a
// single turn worker.
type Call struct {
	engine   *Engine
	id       string
	out      Outbound
	seq      Sequence
	history  *conversation.History
	strategy Strategy
	replies  int
}

func (c *Call) Mode() Mode { return c.strategy.Mode() }

func (c *Call) History() []conversation.Turn { return c.history.Turns() }

func (c *Call) Replies() int { return c.replies }

// HandleSegment turns one utterance into a spoken reply. Backend failures are
// absorbed here and the caller hears the fallback line. Cancellation, policy
// violations and outbound write failures are returned.
func (c *Call) HandleSegment(ctx context.Context, segment []byte, endOfUtterance time.Time) (Exchange, error) {
	turnTiming := timing.NewTurn()
	hyps, err := c.recognize(ctx, segment)
	if err != nil {
		if ctx.Err() != nil || fault.IsPolicy(err) {
			return Exchange{}, err
		}
		slog.Warn("speech recognition failed", "call_id", c.id, "error", err)
		return Exchange{}, c.speakFallback(ctx)
	}
	turnTiming.Mark(timing.StageSpeechToText, c.engine.clock.Now().Sub(endOfUtterance).Milliseconds())

	text := strings.TrimSpace(transcriber.SelectBestHypothesis(hyps))
	if text == "" {
		slog.Debug("no speech recognized in segment", "call_id", c.id, "bytes", len(segment))
		return Exchange{}, nil
	}
	slog.Info("caller utterance recognized", "call_id", c.id, "alternatives", len(hyps))

	f := c.engine.facts.ExtractAndMerge(c.id, text)
	reply, err := c.respond(ctx, Turn{
		CallID:         c.id,
		Context:        conversation.BuildContext(f, c.history, text),
		EndOfUtterance: endOfUtterance,
		Out:            c.out,
		Seq:            &c.seq,
		Timing:         turnTiming,
	})
	c.engine.recorder.Commit(c.id, turnTiming)
	c.history.Add(conversation.RoleCaller, text)
	c.history.Add(conversation.RoleAssistant, reply.Text)
	return Exchange{Utterance: text, Reply: reply.Text, SpokenAt: endOfUtterance}, err
}

func (c *Call) recognize(ctx context.Context, segment []byte) ([]transcriber.Hypothesis, error) {
	var hyps []transcriber.Hypothesis
	err := withRetry(ctx, "stt", func(ctx context.Context) error {
		sctx, cancel := withBackendTimeout(ctx, c.engine.cfg.BackendTimeout)
		defer cancel()
		var err error
		hyps, err = c.engine.stt.Recognize(sctx, segment)
		return transientUnlessClassified("stt", err)
	})
	return hyps, err
}

func (c *Call) respond(ctx context.Context, turn Turn) (Reply, error) {
	log := slog.With("call_id", c.id, "reply_id", uuid.NewString(), "mode", c.strategy.Mode().String())

	reply, err := c.strategy.Respond(ctx, turn)
	if err != nil && reply.Emitted == 0 && fault.IsTransient(err) && ctx.Err() == nil {
		log.Warn("reply failed before any audio; retrying once", "error", err)
		reply, err = c.strategy.Respond(ctx, turn)
	}
	switch {
	case err == nil:
	case ctx.Err() != nil || fault.IsPolicy(err):
		return reply, err
	case reply.Emitted > 0:
		log.Warn("reply interrupted after audio started", "error", err)
	default:
		log.Warn("reply failed; speaking fallback", "error", err)
		return Reply{}, c.speakFallback(ctx)
	}
	if reply.Emitted == 0 {
		log.Info("model produced no audible reply")
		return reply, nil
	}
	log.Info("reply played", "bytes", reply.Emitted, "chars", len(reply.Text))
	return reply, c.mark()
}

// speakFallback asks the caller to repeat. If even that cannot be
// synthesized the turn is dropped silently.
func (c *Call) speakFallback(ctx context.Context) error {
	var audio []byte
	err := withRetry(ctx, "tts", func(ctx context.Context) error {
		uctx, cancel := withBackendTimeout(ctx, c.engine.cfg.BackendTimeout)
		defer cancel()
		var err error
		audio, err = c.engine.tts.SynthesizeUnit(uctx, FallbackUtterance)
		return transientUnlessClassified("tts", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("failed to synthesize fallback utterance", "call_id", c.id, "error", err)
		return nil
	}
	player := NewScheduler(c.out, &c.seq, 0, nil)
	if err := player.Push(audio); err != nil {
		return fmt.Errorf("play fallback: %w", err)
	}
	return c.mark()
}

func (c *Call) mark() error {
	c.replies++
	if err := c.out.SendMark(fmt.Sprintf("reply-%d", c.replies)); err != nil {
		return fmt.Errorf("send reply mark: %w", err)
	}
	return nil
}
