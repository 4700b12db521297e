package llm

import (
	"context"

	"github.com/foxseedlab/voicelink/internal/conversation"
)

// FragmentStream yields reply text in generation order. Recv returns io.EOF
// once the model has finished.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

type Streamer interface {
	Stream(ctx context.Context, c conversation.Context) (FragmentStream, error)
	Complete(ctx context.Context, c conversation.Context) (string, error)
	// Probe reports whether the backend can start a stream right now.
	Probe(ctx context.Context) error
	// Backend identifies the provider and model actually serving requests.
	Backend() string
}
