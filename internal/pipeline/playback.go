package pipeline

import (
	"sync/atomic"

	"github.com/foxseedlab/voicelink/internal/media"
)

// Outbound is the caller-facing side of a call's media stream.
type Outbound interface {
	SendMedia(f media.Frame) error
	SendMark(name string) error
}

// Sequence numbers outbound frames for one call.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 { return s.n.Add(1) }

// Scheduler plays one reply. Audio is held until startBytes are buffered, or
// until the reply ends, and then written out in arrival order. A Scheduler is
// used by a single goroutine.
type Scheduler struct {
	out        Outbound
	seq        *Sequence
	startBytes int
	onFirst    func()

	pending [][]byte
	held    int
	started bool
	emitted int
}

func NewScheduler(out Outbound, seq *Sequence, startBytes int, onFirst func()) *Scheduler {
	return &Scheduler{out: out, seq: seq, startBytes: startBytes, onFirst: onFirst}
}

func (s *Scheduler) Push(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	s.pending = append(s.pending, audio)
	s.held += len(audio)
	if !s.started && s.held < s.startBytes {
		return nil
	}
	return s.drain()
}

// Finish writes whatever is still held.
func (s *Scheduler) Finish() error {
	return s.drain()
}

// Emitted is the number of audio bytes written so far.
func (s *Scheduler) Emitted() int {
	return s.emitted
}

func (s *Scheduler) drain() error {
	for len(s.pending) > 0 {
		chunk := s.pending[0]
		if err := s.out.SendMedia(media.Frame{Seq: s.seq.Next(), Payload: chunk}); err != nil {
			return err
		}
		s.pending = s.pending[1:]
		s.held -= len(chunk)
		s.emitted += len(chunk)
		if !s.started {
			s.started = true
			if s.onFirst != nil {
				s.onFirst()
			}
		}
	}
	return nil
}
