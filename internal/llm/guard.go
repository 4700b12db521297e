package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/foxseedlab/voicelink/internal/conversation"
	"github.com/foxseedlab/voicelink/internal/fault"
)

var DefaultProhibitedMarkers = []string{"grok", "xai", "x.ai"}

// Guard rejects backends whose identity carries a prohibited marker.
type Guard struct {
	markers []string
}

func NewGuard(markers []string) *Guard {
	if len(markers) == 0 {
		markers = DefaultProhibitedMarkers
	}
	lower := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lower = append(lower, m)
		}
	}
	return &Guard{markers: lower}
}

func (g *Guard) Check(backend string) error {
	id := strings.ToLower(backend)
	for _, m := range g.markers {
		if strings.Contains(id, m) {
			slog.Error("prohibited language model backend detected", "backend", backend, "marker", m)
			return fault.Policy(backend)
		}
	}
	return nil
}

// GuardedStreamer re-checks the backend identity every time a reply is
// requested, so a backend swapped at runtime is still caught.
type GuardedStreamer struct {
	inner Streamer
	guard *Guard
}

// NewGuardedStreamer checks the backend once up front and fails with a policy
// violation if it is already prohibited.
func NewGuardedStreamer(inner Streamer, guard *Guard) (*GuardedStreamer, error) {
	if err := guard.Check(inner.Backend()); err != nil {
		return nil, err
	}
	return &GuardedStreamer{inner: inner, guard: guard}, nil
}

func (s *GuardedStreamer) Stream(ctx context.Context, c conversation.Context) (FragmentStream, error) {
	if err := s.guard.Check(s.inner.Backend()); err != nil {
		return nil, err
	}
	return s.inner.Stream(ctx, c)
}

func (s *GuardedStreamer) Complete(ctx context.Context, c conversation.Context) (string, error) {
	if err := s.guard.Check(s.inner.Backend()); err != nil {
		return "", err
	}
	return s.inner.Complete(ctx, c)
}

func (s *GuardedStreamer) Probe(ctx context.Context) error {
	if err := s.guard.Check(s.inner.Backend()); err != nil {
		return err
	}
	return s.inner.Probe(ctx)
}

func (s *GuardedStreamer) Backend() string {
	return s.inner.Backend()
}
