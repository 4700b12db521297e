package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/foxseedlab/voicelink/internal/timing"
	"github.com/foxseedlab/voicelink/internal/tts"
	"golang.org/x/sync/errgroup"
)

// Turn is one caller utterance waiting for a spoken reply.
type Turn struct {
	CallID         string
	Context        conversation.Context
	EndOfUtterance time.Time
	Out            Outbound
	Seq            *Sequence
	Timing         *timing.Turn
}

// Strategy produces and plays one reply and returns the text that was spoken.
type Strategy interface {
	Mode() Mode
	Respond(ctx context.Context, turn Turn) (Reply, error)
}

type Reply struct {
	Text    string
	Emitted int
}

type Deps struct {
	LLM                llm.Streamer
	TTS                tts.Synthesizer
	Clock              Clock
	BackendTimeout     time.Duration
	PlaybackStartBytes int
}

func NewStrategy(mode Mode, d Deps) Strategy {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if mode == ModeFullStreaming {
		return &FullStreaming{deps: d}
	}
	return &SentenceChunk{deps: d}
}

// stageTimer records firstToken once per reply.
type stageTimer struct {
	deps  Deps
	turn  Turn
	once  sync.Once
	first chan struct{}
}

func newStageTimer(d Deps, t Turn) *stageTimer {
	return &stageTimer{deps: d, turn: t, first: make(chan struct{})}
}

func (s *stageTimer) since() int64 {
	return s.deps.Clock.Now().Sub(s.turn.EndOfUtterance).Milliseconds()
}

func (s *stageTimer) firstToken() {
	s.once.Do(func() {
		s.turn.Timing.Mark(timing.StageFirstToken, s.since())
		close(s.first)
	})
}

func (s *stageTimer) firstAudio() {
	s.turn.Timing.Mark(timing.StageFirstAudio, s.since())
}

// watchFirstFragment cancels the reply when the model has not produced its
// first fragment within the backend timeout.
func (s *stageTimer) watchFirstFragment(ctx context.Context, cancel context.CancelCauseFunc) {
	if s.deps.BackendTimeout <= 0 {
		return
	}
	t := time.NewTimer(s.deps.BackendTimeout)
	defer t.Stop()
	select {
	case <-s.first:
	case <-ctx.Done():
	case <-t.C:
		cancel(fault.Transient("llm", errors.New("no fragment before backend timeout")))
	}
}

// replyContext bounds a whole streamed reply at four backend timeouts.
func replyContext(ctx context.Context, d Deps) (context.Context, context.CancelCauseFunc, func()) {
	cctx, cancelCause := context.WithCancelCause(ctx)
	if d.BackendTimeout <= 0 {
		return cctx, cancelCause, func() { cancelCause(nil) }
	}
	tctx, cancel := context.WithTimeout(cctx, 4*d.BackendTimeout)
	return tctx, cancelCause, func() {
		cancel()
		cancelCause(nil)
	}
}

// readFragments pulls the model stream until it ends and hands every
// non-empty fragment to emit.
func readFragments(ctx context.Context, stream llm.FragmentStream, timer *stageTimer, emit func(string) error) (string, error) {
	var text strings.Builder
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), nil
		}
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && fault.IsTransient(cause) {
				return text.String(), cause
			}
			return text.String(), transientUnlessClassified("llm", err)
		}
		if frag == "" {
			continue
		}
		timer.firstToken()
		text.WriteString(frag)
		if err := emit(frag); err != nil {
			return text.String(), err
		}
	}
}

func transientUnlessClassified(stage string, err error) error {
	if _, ok := fault.KindOf(err); ok || errors.Is(err, context.Canceled) {
		return err
	}
	return fault.Transient(stage, err)
}

// FullStreaming forwards every model fragment to an open synthesis stream and
// plays audio as soon as the start threshold is reached.
type FullStreaming struct {
	deps Deps
}

func (s *FullStreaming) Mode() Mode { return ModeFullStreaming }

func (s *FullStreaming) Respond(ctx context.Context, turn Turn) (Reply, error) {
	rctx, cancelCause, release := replyContext(ctx, s.deps)
	defer release()

	timer := newStageTimer(s.deps, turn)
	player := NewScheduler(turn.Out, turn.Seq, s.deps.PlaybackStartBytes, timer.firstAudio)

	g, gctx := errgroup.WithContext(rctx)
	synth, err := s.deps.TTS.OpenStream(gctx)
	if err != nil {
		return Reply{}, transientUnlessClassified("tts", fmt.Errorf("open synthesis stream: %w", err))
	}
	defer synth.Close()
	stream, err := s.deps.LLM.Stream(gctx, turn.Context)
	if err != nil {
		return Reply{}, transientUnlessClassified("llm", fmt.Errorf("open model stream: %w", err))
	}
	defer stream.Close()
	go timer.watchFirstFragment(gctx, cancelCause)

	var text string
	g.Go(func() error {
		var err error
		text, err = readFragments(gctx, stream, timer, func(frag string) error {
			return transientUnlessClassified("tts", synth.Append(frag))
		})
		if err != nil {
			return err
		}
		return transientUnlessClassified("tts", synth.Finish())
	})
	g.Go(func() error {
		audio := synth.Audio()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case chunk, ok := <-audio:
				if !ok {
					if err := synth.Err(); err != nil {
						return transientUnlessClassified("tts", err)
					}
					return player.Finish()
				}
				if err := player.Push(chunk); err != nil {
					return err
				}
			}
		}
	})
	err = g.Wait()
	return Reply{Text: text, Emitted: player.Emitted()}, err
}

// SentenceChunk synthesizes each completed sentence as its own unit, in order.
type SentenceChunk struct {
	deps Deps
}

func (s *SentenceChunk) Mode() Mode { return ModeSentenceChunk }

func (s *SentenceChunk) Respond(ctx context.Context, turn Turn) (Reply, error) {
	rctx, cancelCause, release := replyContext(ctx, s.deps)
	defer release()

	timer := newStageTimer(s.deps, turn)
	player := NewScheduler(turn.Out, turn.Seq, 0, timer.firstAudio)

	g, gctx := errgroup.WithContext(rctx)
	stream, err := s.deps.LLM.Stream(gctx, turn.Context)
	if err != nil {
		err = transientUnlessClassified("llm", fmt.Errorf("open model stream: %w", err))
		if !fault.IsTransient(err) {
			return Reply{}, err
		}
		return s.respondWhole(rctx, turn, timer, player, err)
	}
	defer stream.Close()
	go timer.watchFirstFragment(gctx, cancelCause)

	units := make(chan string, 8)
	var text string
	g.Go(func() error {
		defer close(units)
		buf := NewSentenceBuffer()
		send := func(unit string) error {
			select {
			case units <- unit:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		var err error
		text, err = readFragments(gctx, stream, timer, func(frag string) error {
			for _, sentence := range buf.Add(frag) {
				if err := send(sentence); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if rest := buf.Flush(); rest != "" {
			return send(rest)
		}
		return nil
	})
	g.Go(func() error {
		for unit := range units {
			audio, err := s.synthesize(gctx, unit)
			if err != nil {
				return err
			}
			if err := player.Push(audio); err != nil {
				return err
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return player.Finish()
	})
	err = g.Wait()
	return Reply{Text: text, Emitted: player.Emitted()}, err
}

// respondWhole asks the model for the complete reply when it will not stream,
// then plays it sentence by sentence. An empty reply leaves streamErr standing.
func (s *SentenceChunk) respondWhole(ctx context.Context, turn Turn, timer *stageTimer, player *Scheduler, streamErr error) (Reply, error) {
	slog.Warn("model stream unavailable; requesting whole reply", "call_id", turn.CallID, "error", streamErr)
	cctx, cancel := withBackendTimeout(ctx, s.deps.BackendTimeout)
	text, err := s.deps.LLM.Complete(cctx, turn.Context)
	cancel()
	if err != nil {
		return Reply{}, transientUnlessClassified("llm", fmt.Errorf("complete reply: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return Reply{}, streamErr
	}
	timer.firstToken()

	buf := NewSentenceBuffer()
	units := buf.Add(text)
	if rest := buf.Flush(); rest != "" {
		units = append(units, rest)
	}
	for _, unit := range units {
		audio, err := s.synthesize(ctx, unit)
		if err != nil {
			return Reply{Text: text, Emitted: player.Emitted()}, err
		}
		if err := player.Push(audio); err != nil {
			return Reply{Text: text, Emitted: player.Emitted()}, err
		}
	}
	err = player.Finish()
	return Reply{Text: text, Emitted: player.Emitted()}, err
}

func (s *SentenceChunk) synthesize(ctx context.Context, unit string) ([]byte, error) {
	var audio []byte
	err := withRetry(ctx, "tts", func(ctx context.Context) error {
		uctx, cancel := withBackendTimeout(ctx, s.deps.BackendTimeout)
		defer cancel()
		var err error
		audio, err = s.deps.TTS.SynthesizeUnit(uctx, unit)
		return transientUnlessClassified("tts", err)
	})
	return audio, err
}

func withBackendTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
