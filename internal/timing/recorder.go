package timing

import (
	"log/slog"
	"sync"
)

type Stage string

const (
	StageSpeechToText Stage = "speechToText"
	StageFirstToken   Stage = "firstToken"
	StageFirstAudio   Stage = "firstAudio"
)

// Record holds the latest latency per stage in milliseconds, all measured from
// the end of the caller's utterance.
type Record struct {
	Stages   map[Stage]int64
	TargetMs int64
}

func (r Record) Exceeded() bool {
	v, ok := r.Stages[StageFirstAudio]
	return ok && r.TargetMs > 0 && v > r.TargetMs
}

// Recorder is safe for concurrent use and never fails.
type Recorder struct {
	mu    sync.Mutex
	calls map[string]*Record
}

func NewRecorder() *Recorder {
	return &Recorder{calls: make(map[string]*Record)}
}

func (r *Recorder) get(callID string) *Record {
	rec, ok := r.calls[callID]
	if !ok {
		rec = &Record{Stages: make(map[Stage]int64, 3)}
		r.calls[callID] = rec
	}
	return rec
}

func (r *Recorder) SetTarget(callID string, ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(callID).TargetMs = ms
}

// Record stores ms for stage, replacing any earlier value. Exceeding the
// target on first audio is logged, not enforced.
func (r *Recorder) Record(callID string, stage Stage, ms int64) {
	r.mu.Lock()
	rec := r.get(callID)
	rec.Stages[stage] = ms
	target := rec.TargetMs
	r.mu.Unlock()

	logStage(callID, stage, ms, target)
}

// Commit replaces the call's stages with those of a finished turn. A turn
// that never reached first audio is discarded so the stored stages always
// describe one complete reply. It reports whether the turn was kept.
func (r *Recorder) Commit(callID string, t *Turn) bool {
	stages := t.stages()
	if _, ok := stages[StageFirstAudio]; !ok {
		return false
	}
	r.mu.Lock()
	rec := r.get(callID)
	for stage, ms := range stages {
		rec.Stages[stage] = ms
	}
	target := rec.TargetMs
	r.mu.Unlock()

	for _, stage := range []Stage{StageSpeechToText, StageFirstToken, StageFirstAudio} {
		if ms, ok := stages[stage]; ok {
			logStage(callID, stage, ms, target)
		}
	}
	return true
}

func logStage(callID string, stage Stage, ms, target int64) {
	slog.Debug("stage latency recorded", "call_id", callID, "stage", string(stage), "duration_ms", ms)
	if stage == StageFirstAudio && target > 0 && ms > target {
		slog.Warn("first audio latency over target", "call_id", callID, "duration_ms", ms, "target_ms", target)
	}
}

// Get returns a copy of the call's record, empty if nothing was recorded.
func (r *Recorder) Get(callID string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Record{Stages: make(map[Stage]int64, 3)}
	rec, ok := r.calls[callID]
	if !ok {
		return out
	}
	out.TargetMs = rec.TargetMs
	for k, v := range rec.Stages {
		out.Stages[k] = v
	}
	return out
}

func (r *Recorder) Exceeded(callID string) bool {
	return r.Get(callID).Exceeded()
}

func (r *Recorder) Delete(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, callID)
}
