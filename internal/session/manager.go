package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/fault"
	"github.com/foxseedlab/voicelink/internal/media"
	"github.com/foxseedlab/voicelink/internal/pipeline"
	"github.com/foxseedlab/voicelink/internal/repository"
	"github.com/foxseedlab/voicelink/internal/vad"
	"github.com/foxseedlab/voicelink/internal/webhook"
)

const (
	persistTimeout      = 5 * time.Second
	segmentBacklog      = 4
	minReaperInterval   = 10 * time.Millisecond
	defaultInactivity   = 60 * time.Second
	snapshotTimeLayout  = time.RFC3339
	unknownCallerString = "unknown"
)

// ModeSelector decides a call's pipeline mode once, before it goes active.
type ModeSelector interface {
	Select(ctx context.Context) pipeline.Mode
}

// Manager owns every live call. Calls are keyed by call id; each one runs its
// own task goroutine and turn worker.
type Manager struct {
	cfg      *config.Config
	repo     repository.Repository
	webhook  webhook.Sender
	engine   *pipeline.Engine
	selector ModeSelector
	loc      *time.Location

	mu       sync.Mutex
	sessions map[string]*streamSession
	wg       sync.WaitGroup
	fatal    chan error

	reaperOnce sync.Once
	reaperStop chan struct{}
	closeOnce  sync.Once
}

type segment struct {
	audio          []byte
	endOfUtterance time.Time
}

type streamSession struct {
	callID    string
	streamSID string
	caller    string
	createdAt time.Time

	queue    *eventQueue
	segments chan segment
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	// Set before the task goroutine starts and read-only afterwards.
	call *pipeline.Call

	// Owned by the task goroutine.
	detector *vad.Detector

	// Owned by the turn worker until done is closed.
	repoCall  *repository.Call
	exchanges []pipeline.Exchange
	turnIndex int

	mu            sync.Mutex
	state         State
	mode          pipeline.Mode
	lastActivity  time.Time
	stopRequested bool
	stopReason    string
}

func (s *streamSession) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func NewManager(cfg *config.Config, repo repository.Repository, wh webhook.Sender, engine *pipeline.Engine, selector ModeSelector) *Manager {
	loc, err := time.LoadLocation(cfg.SummaryTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &Manager{
		cfg:        cfg,
		repo:       repo,
		webhook:    wh,
		engine:     engine,
		selector:   selector,
		loc:        loc,
		sessions:   make(map[string]*streamSession),
		fatal:      make(chan error, 1),
		reaperStop: make(chan struct{}),
	}
}

// Fatal delivers policy violations. The process is expected to exit when one
// arrives.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

func (m *Manager) reportFatal(err error) {
	select {
	case m.fatal <- err:
	default:
	}
}

func (m *Manager) validate(out pipeline.Outbound) error {
	switch {
	case m.engine == nil:
		return fault.Configuration("pipeline engine is not configured")
	case m.selector == nil:
		return fault.Configuration("mode selector is not configured")
	case m.repo == nil:
		return fault.Configuration("call repository is not configured")
	case m.webhook == nil:
		return fault.Configuration("call summary sender is not configured")
	case out == nil:
		return fault.Configuration("outbound media stream is missing")
	}
	return m.engine.Validate()
}

// Start creates a session for a new call, selects its mode and makes it
// active. Only mode selection runs before it returns; the call record is
// written by the session's own worker. A start for a call id that is already
// live returns the existing call's handle.
func (m *Manager) Start(ctx context.Context, start media.StartEvent, out pipeline.Outbound) (Handle, error) {
	if err := m.validate(out); err != nil {
		slog.Error("cannot start call session", "call_id", start.CallID, "error", err)
		return nil, err
	}
	if start.CallID == "" {
		return nil, fault.Protocol("start event without call id")
	}
	m.reaperOnce.Do(func() { go m.reapInactive() })

	now := m.engine.Clock().Now()
	sctx, cancel := context.WithCancel(context.Background())
	s := &streamSession{
		callID:       start.CallID,
		streamSID:    start.StreamSID,
		caller:       start.Caller,
		createdAt:    now,
		queue:        newEventQueue(),
		segments:     make(chan segment, segmentBacklog),
		ctx:          sctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		detector:     vad.NewDetector(m.vadConfig()),
		state:        StateCreated,
		lastActivity: now,
	}
	handle := &callHandle{m: m, callID: start.CallID}

	m.mu.Lock()
	if _, exists := m.sessions[start.CallID]; exists {
		m.mu.Unlock()
		cancel()
		slog.Warn("duplicate start for live call ignored", "call_id", start.CallID, "stream_sid", start.StreamSID)
		return handle, nil
	}
	m.sessions[start.CallID] = s
	m.wg.Add(1)
	m.mu.Unlock()
	slog.Info("call session created", "call_id", s.callID, "stream_sid", s.streamSID, "caller", valueOr(s.caller, unknownCallerString))

	mode := m.selector.Select(ctx)
	s.call = m.engine.NewCall(s.callID, mode, out)
	s.mu.Lock()
	s.mode = mode
	if s.state == StateCreated {
		s.state = StateModeSelected
	}
	s.mu.Unlock()
	slog.Info("pipeline mode selected", "call_id", s.callID, "mode", mode.String())

	s.mu.Lock()
	if s.state == StateModeSelected {
		s.state = StateActive
	}
	state := s.state
	s.mu.Unlock()
	go m.run(s)
	slog.Info("call session started", "call_id", s.callID, "mode", mode.String(), "state", state.String())
	return handle, nil
}

// Dispatch hands an inbound event to its session without blocking. Events for
// unknown calls, or arriving after a stop, are dropped.
func (m *Manager) Dispatch(callID string, ev media.Event) {
	s := m.lookup(callID)
	if s == nil {
		slog.Debug("event for unknown call dropped", "call_id", callID, "event", ev.Kind.String())
		return
	}
	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		slog.Debug("event after stop dropped", "call_id", callID, "event", ev.Kind.String())
		return
	}
	s.lastActivity = m.engine.Clock().Now()
	s.mu.Unlock()

	if ev.Kind == media.EventStop {
		m.Stop(callID, stopReasonCallerHungUp)
		return
	}
	s.queue.push(ev)
}

// Stop begins draining a call: in-flight work is cancelled and everything the
// session holds is released before the summary is written. Stopping an unknown
// or already stopping call is a no-op.
func (m *Manager) Stop(callID, reason string) {
	s := m.lookup(callID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	s.stopReason = reason
	s.state = StateDraining
	s.mu.Unlock()

	slog.Info("stopping call session", "call_id", callID, "reason", reason)
	s.cancel()
	s.queue.push(media.Event{Kind: media.EventStop, CallID: callID})
}

func (m *Manager) lookup(callID string) *streamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// run is the session task. It drains the inbound queue in order and owns the
// voice-activity detector.
func (m *Manager) run(s *streamSession) {
	defer m.wg.Done()
	defer close(s.done)

	turnDone := make(chan struct{})
	go m.runTurnWorker(s, turnDone)

	for {
		ev := s.queue.pop()
		switch ev.Kind {
		case media.EventMedia:
			m.handleMedia(s, ev.Payload)
		case media.EventMark:
			slog.Debug("playback mark acknowledged", "call_id", s.callID, "mark", ev.MarkName)
		case media.EventStop:
			close(s.segments)
			<-turnDone
			m.closeSession(s)
			return
		}
	}
}

func (m *Manager) handleMedia(s *streamSession, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("media handling panicked", "call_id", s.callID, "panic", r)
			go m.Stop(s.callID, stopReasonUnknownError)
		}
	}()
	audio, cut := s.detector.Push(payload)
	if !cut {
		return
	}
	seg := segment{audio: audio, endOfUtterance: m.engine.Clock().Now()}
	select {
	case s.segments <- seg:
	case <-s.ctx.Done():
	}
}

// runTurnWorker handles one utterance at a time so facts and history are only
// ever touched from here.
func (m *Manager) runTurnWorker(s *streamSession, done chan<- struct{}) {
	defer close(done)
	m.createCallRecord(s)
	for seg := range s.segments {
		if s.ctx.Err() != nil {
			continue
		}
		m.handleSegment(s, seg)
	}
}

// createCallRecord runs on the turn worker so a slow database never holds up
// the transport; audio keeps queueing meanwhile.
func (m *Manager) createCallRecord(s *streamSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	created, err := m.repo.CreateCall(ctx, repository.CreateCallInput{
		CallSID:   s.callID,
		StreamSID: s.streamSID,
		Caller:    s.caller,
		Mode:      s.call.Mode().String(),
		StartedAt: s.createdAt,
	})
	if err != nil {
		slog.Error("failed to create call record", "call_id", s.callID, "error", err)
		return
	}
	s.repoCall = created
}

func (m *Manager) handleSegment(s *streamSession, seg segment) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn worker panicked", "call_id", s.callID, "panic", r)
			go m.Stop(s.callID, stopReasonUnknownError)
		}
	}()
	ex, err := s.call.HandleSegment(s.ctx, seg.audio, seg.endOfUtterance)
	switch {
	case err == nil:
	case fault.IsPolicy(err):
		slog.Error("policy violation; terminating", "call_id", s.callID, "error", err)
		m.reportFatal(err)
		go m.Stop(s.callID, stopReasonPolicy)
	case s.ctx.Err() != nil:
		slog.Info("turn cancelled by stop", "call_id", s.callID)
	default:
		slog.Error("turn failed", "call_id", s.callID, "error", err)
	}
	if ex.Utterance == "" {
		return
	}
	s.exchanges = append(s.exchanges, ex)
	m.persistExchange(s, ex)
}

func (m *Manager) persistExchange(s *streamSession, ex pipeline.Exchange) {
	if s.repoCall == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	turns := []struct{ role, text string }{{"caller", ex.Utterance}, {"agent", ex.Reply}}
	for _, t := range turns {
		if t.text == "" {
			continue
		}
		if err := m.repo.InsertTurn(ctx, repository.InsertTurnInput{
			CallID:    s.repoCall.ID,
			Role:      t.role,
			Content:   t.text,
			TurnIndex: s.turnIndex,
			SpokenAt:  ex.SpokenAt,
		}); err != nil {
			slog.Error("failed to insert call turn", "call_id", s.callID, "error", err)
			return
		}
		s.turnIndex++
	}
}

func (m *Manager) closeSession(s *streamSession) {
	s.mu.Lock()
	reason := s.stopReason
	s.state = StateClosed
	s.mu.Unlock()

	outcome := callOutcome{
		callID:     s.callID,
		streamSID:  s.streamSID,
		caller:     s.caller,
		mode:       s.mode,
		startedAt:  s.createdAt,
		endedAt:    m.engine.Clock().Now(),
		stopReason: reason,
		facts:      m.engine.Facts().Get(s.callID),
		priority:   m.engine.Facts().Priority(s.callID),
		timing:     m.engine.Recorder().Get(s.callID),
		exchanges:  s.exchanges,
	}
	m.engine.Facts().Delete(s.callID)
	m.engine.Recorder().Delete(s.callID)
	s.detector = nil
	slog.Info("call session closed", "call_id", s.callID, "reason", reason, "turns", len(s.exchanges))

	m.finalize(s, outcome)

	m.mu.Lock()
	if m.sessions[s.callID] == s {
		delete(m.sessions, s.callID)
	}
	m.mu.Unlock()
}

func (m *Manager) finalize(s *streamSession, o callOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	summary := buildCallSummary(o, m.loc)
	if s.repoCall != nil {
		if err := m.repo.CompleteCall(ctx, repository.CompleteCallInput{
			CallID:         s.repoCall.ID,
			EndedAt:        o.endedAt,
			StopReason:     o.stopReason,
			Priority:       summary.Priority,
			Facts:          summary.Facts,
			TimingsMs:      summary.TimingsMs,
			TargetMs:       summary.TargetMs,
			BudgetExceeded: summary.BudgetExceeded,
			TurnCount:      summary.TurnCount,
		}); err != nil {
			slog.Error("failed to complete call record", "call_id", s.callID, "error", err)
		}
	}
	if err := m.webhook.SendCallSummary(ctx, summary); err != nil {
		slog.Error("failed to send call summary", "call_id", s.callID, "error", err)
	}
}

func (m *Manager) inactivityTimeout() time.Duration {
	if m.cfg.InactivityTimeout > 0 {
		return m.cfg.InactivityTimeout
	}
	return defaultInactivity
}

func (m *Manager) reapInactive() {
	timeout := m.inactivityTimeout()
	interval := timeout / 4
	if interval < minReaperInterval {
		interval = minReaperInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.reaperStop:
			return
		case <-ticker.C:
			for _, callID := range m.idleCalls(timeout) {
				m.Stop(callID, stopReasonInactivity)
			}
		}
	}
}

func (m *Manager) idleCalls(timeout time.Duration) []string {
	now := m.engine.Clock().Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var idle []string
	for id, s := range m.sessions {
		s.mu.Lock()
		if !s.stopRequested && now.Sub(s.lastActivity) > timeout {
			idle = append(idle, id)
		}
		s.mu.Unlock()
	}
	return idle
}

// Shutdown stops every call and waits for their summaries to be written.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeOnce.Do(func() { close(m.reaperStop) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Stop(id, stopReasonServerClosed)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all call sessions closed", "count", len(ids))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for call sessions: %w", ctx.Err())
	}
}

// Snapshot is a point-in-time view of a live call.
type Snapshot struct {
	CallID       string            `json:"call_id"`
	StreamSID    string            `json:"stream_sid"`
	State        string            `json:"state"`
	Mode         string            `json:"mode"`
	StartedAt    string            `json:"started_at"`
	LastActivity string            `json:"last_activity"`
	Priority     string            `json:"priority"`
	Facts        map[string]string `json:"facts"`
	TimingsMs    map[string]int64  `json:"timings_ms"`
	TargetMs     int64             `json:"target_ms"`
}

func (m *Manager) Snapshot(callID string) (Snapshot, bool) {
	s := m.lookup(callID)
	if s == nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	state := s.state
	mode := s.mode
	last := s.lastActivity
	s.mu.Unlock()

	f := m.engine.Facts().Get(callID)
	rec := m.engine.Recorder().Get(callID)
	snap := Snapshot{
		CallID:       s.callID,
		StreamSID:    s.streamSID,
		State:        state.String(),
		Mode:         mode.String(),
		StartedAt:    s.createdAt.In(m.loc).Format(snapshotTimeLayout),
		LastActivity: last.In(m.loc).Format(snapshotTimeLayout),
		Priority:     string(m.engine.Facts().Priority(callID)),
		Facts:        f.Map(),
		TimingsMs:    make(map[string]int64, len(rec.Stages)),
		TargetMs:     rec.TargetMs,
	}
	for stage, ms := range rec.Stages {
		snap.TimingsMs[string(stage)] = ms
	}
	return snap, true
}

func (m *Manager) ActiveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) vadConfig() vad.Config {
	cfg := vad.DefaultConfig()
	if m.cfg.VADEnergyThreshold > 0 {
		cfg.EnergyThreshold = m.cfg.VADEnergyThreshold
	}
	if m.cfg.VADEndSilence > 0 {
		cfg.EndSilence = m.cfg.VADEndSilence
	}
	if m.cfg.VADMinSpeech > 0 {
		cfg.MinSpeech = m.cfg.VADMinSpeech
	}
	if m.cfg.VADMaxSegment > 0 {
		cfg.MaxSegment = m.cfg.VADMaxSegment
	}
	return cfg
}
