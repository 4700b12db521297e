package tts

import "context"

// TokenStream is an open incremental synthesis session. Text appended is
// synthesized as it arrives; audio comes back on Audio in playback order and
// the channel closes once synthesis of everything appended before Finish ends.
type TokenStream interface {
	Append(text string) error
	Finish() error
	Audio() <-chan []byte
	// Err reports why Audio closed early, or nil after a clean finish.
	Err() error
	Close() error
}

type Synthesizer interface {
	OpenStream(ctx context.Context) (TokenStream, error)
	// SynthesizeUnit renders one complete sentence and returns its audio.
	SynthesizeUnit(ctx context.Context, text string) ([]byte, error)
	Probe(ctx context.Context) error
}
