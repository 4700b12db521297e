package pipeline

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/voicelink/internal/fault"
)

const FallbackUtterance = "I'm sorry, I didn't quite catch that. Could you say that again?"

// withRetry runs fn and repeats it once if it failed transiently.
func withRetry(ctx context.Context, stage string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !fault.IsTransient(err) || ctx.Err() != nil {
		return err
	}
	slog.Warn("transient backend failure; retrying once", "stage", stage, "error", err)
	return fn(ctx)
}
