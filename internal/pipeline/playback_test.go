package pipeline

import (
	"errors"
	"testing"
)

func TestScheduler_HoldsUntilThreshold(t *testing.T) {
	out := &recordingOutbound{}
	var seq Sequence
	first := 0
	s := NewScheduler(out, &seq, 10, func() { first++ })

	if err := s.Push([]byte("abcd")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.frames) != 0 {
		t.Fatal("audio must be held below the start threshold")
	}
	if err := s.Push([]byte("efghij")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.frames) != 2 || first != 1 {
		t.Fatalf("expected held audio released, frames=%d first=%d", len(out.frames), first)
	}
	if err := s.Push([]byte("k")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.frames) != 3 || first != 1 {
		t.Fatalf("after start every chunk goes out, frames=%d first=%d", len(out.frames), first)
	}
	if out.played() != "abcdefghijk" || s.Emitted() != 11 {
		t.Fatalf("unexpected playback: %q emitted=%d", out.played(), s.Emitted())
	}
}

func TestScheduler_FinishReleasesShortReply(t *testing.T) {
	out := &recordingOutbound{}
	var seq Sequence
	s := NewScheduler(out, &seq, 1000, nil)
	_ = s.Push([]byte("hi"))
	if err := s.Finish(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.played() != "hi" {
		t.Fatalf("expected short reply played at finish, got %q", out.played())
	}
}

func TestScheduler_SequenceSpansReplies(t *testing.T) {
	out := &recordingOutbound{}
	var seq Sequence
	for i := 0; i < 2; i++ {
		s := NewScheduler(out, &seq, 0, nil)
		_ = s.Push([]byte("a"))
		_ = s.Push([]byte("b"))
	}
	for i, f := range out.frames {
		if f.Seq != uint64(i+1) {
			t.Fatalf("frame %d has seq %d", i, f.Seq)
		}
	}
}

func TestScheduler_OutboundError(t *testing.T) {
	out := &recordingOutbound{err: errors.New("closed")}
	var seq Sequence
	s := NewScheduler(out, &seq, 0, nil)
	if err := s.Push([]byte("a")); err == nil {
		t.Fatal("expected outbound error")
	}
	if s.Emitted() != 0 {
		t.Fatal("failed frame must not count as emitted")
	}
}
