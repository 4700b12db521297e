package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/facts"
	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/foxseedlab/voicelink/internal/media"
	"github.com/foxseedlab/voicelink/internal/timing"
	"github.com/foxseedlab/voicelink/internal/transcriber"
	"github.com/foxseedlab/voicelink/internal/tts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sttResult struct {
	delay time.Duration
	hyps  []transcriber.Hypothesis
	err   error
}

type mockSTT struct {
	mu     sync.Mutex
	clock  *fakeClock
	delay  time.Duration
	hyps   []transcriber.Hypothesis
	errs   []error
	script []sttResult
	calls  int
}

func (m *mockSTT) Recognize(_ context.Context, _ []byte) ([]transcriber.Hypothesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= len(m.script) {
		r := m.script[m.calls-1]
		if m.clock != nil {
			m.clock.Advance(r.delay)
		}
		return r.hyps, r.err
	}
	if m.clock != nil {
		m.clock.Advance(m.delay)
	}
	if m.calls <= len(m.errs) && m.errs[m.calls-1] != nil {
		return nil, m.errs[m.calls-1]
	}
	return m.hyps, nil
}

func (m *mockSTT) Close() error { return nil }

type step struct {
	text    string
	advance time.Duration
}

type mockLLM struct {
	mu       sync.Mutex
	clock    *fakeClock
	steps    []step
	openErrs []error
	recvErr  error
	opens    int
	contexts []conversation.Context
	probeErr error
	block    bool

	complete    string
	completeErr error
	completes   int
}

func (m *mockLLM) Stream(ctx context.Context, c conversation.Context) (llm.FragmentStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.contexts = append(m.contexts, c)
	if m.opens <= len(m.openErrs) && m.openErrs[m.opens-1] != nil {
		return nil, m.openErrs[m.opens-1]
	}
	return &mockFragments{ctx: ctx, clock: m.clock, steps: append([]step(nil), m.steps...), err: m.recvErr}, nil
}

func (m *mockLLM) Complete(context.Context, conversation.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
	return m.complete, m.completeErr
}

func (m *mockLLM) Probe(ctx context.Context) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.probeErr
}

func (m *mockLLM) Backend() string { return "mock:model" }

type mockFragments struct {
	ctx   context.Context
	clock *fakeClock
	steps []step
	err   error
}

func (s *mockFragments) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.steps) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if s.clock != nil {
		s.clock.Advance(st.advance)
	}
	return st.text, nil
}

func (s *mockFragments) Close() error { return nil }

type mockTTS struct {
	mu           sync.Mutex
	clock        *fakeClock
	firstDelay   time.Duration
	advanced     bool
	appended     []string
	units        []string
	unitErrs     []error
	unitCalls    int
	openErr      error
	probeErr     error
	streamErr    error
	streamsOpen  int
	failFallback bool
}

func (m *mockTTS) advanceOnce() {
	if m.clock != nil && !m.advanced {
		m.clock.Advance(m.firstDelay)
		m.advanced = true
	}
}

func (m *mockTTS) OpenStream(context.Context) (tts.TokenStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.streamsOpen++
	return &mockTokenStream{tts: m, audio: make(chan []byte, 64)}, nil
}

func (m *mockTTS) SynthesizeUnit(_ context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitCalls++
	if m.unitCalls <= len(m.unitErrs) && m.unitErrs[m.unitCalls-1] != nil {
		return nil, m.unitErrs[m.unitCalls-1]
	}
	if m.failFallback && text == FallbackUtterance {
		return nil, io.ErrUnexpectedEOF
	}
	m.advanceOnce()
	m.units = append(m.units, text)
	return []byte(text), nil
}

func (m *mockTTS) Probe(context.Context) error { return m.probeErr }

type mockTokenStream struct {
	tts   *mockTTS
	audio chan []byte
	once  sync.Once
}

func (s *mockTokenStream) Append(text string) error {
	s.tts.mu.Lock()
	s.tts.advanceOnce()
	s.tts.appended = append(s.tts.appended, text)
	s.tts.mu.Unlock()
	s.audio <- []byte(text)
	return nil
}

func (s *mockTokenStream) Finish() error {
	s.once.Do(func() { close(s.audio) })
	return nil
}

func (s *mockTokenStream) Audio() <-chan []byte { return s.audio }

func (s *mockTokenStream) Err() error { return s.tts.streamErr }

func (s *mockTokenStream) Close() error {
	s.once.Do(func() { close(s.audio) })
	return nil
}

type recordingOutbound struct {
	mu     sync.Mutex
	frames []media.Frame
	marks  []string
	err    error
}

func (o *recordingOutbound) SendMedia(f media.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.frames = append(o.frames, f)
	return nil
}

func (o *recordingOutbound) SendMark(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.marks = append(o.marks, name)
	return nil
}

func (o *recordingOutbound) played() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var s string
	for _, f := range o.frames {
		s += string(f.Payload)
	}
	return s
}

func newTestEngine(stt *mockSTT, l *mockLLM, t *mockTTS, clock Clock) *Engine {
	return NewEngine(stt, l, t, facts.NewStore(nil), timing.NewRecorder(), clock, EngineConfig{
		BackendTimeout:        5 * time.Second,
		PlaybackStartBytes:    1,
		HistoryTurns:          10,
		FullStreamingTargetMs: 1000,
		SentenceChunkTargetMs: 1500,
	})
}
