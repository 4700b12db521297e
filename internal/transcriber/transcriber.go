package transcriber

import "context"

// Hypothesis is one ranked candidate transcription of a speech segment.
// Index 0 of a result list is the recognizer's top choice.
type Hypothesis struct {
	Text       string
	Confidence float64
}

type Transcriber interface {
	// Recognize returns ranked hypotheses for one μ-law 8 kHz segment. An empty
	// list means no speech was recognized.
	Recognize(ctx context.Context, segment []byte) ([]Hypothesis, error)
	Close() error
}
