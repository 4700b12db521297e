package llm

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/llm"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (llm.Streamer, error) {
		c := do.MustInvoke[*config.Config](i)
		inner, err := newStreamer(c)
		if err != nil {
			return nil, err
		}
		guarded, err := llm.NewGuardedStreamer(inner, llm.NewGuard(c.ProhibitedBackends))
		if err != nil {
			return nil, err
		}
		slog.Info("language model configured", "backend", guarded.Backend())
		return guarded, nil
	})
}

func newStreamer(c *config.Config) (llm.Streamer, error) {
	switch c.LLMProvider {
	case config.LLMProviderGemini:
		g, err := NewGeminiStreamer(context.Background(), GeminiConfig{
			APIKey:       c.GeminiAPIKey,
			Model:        c.GeminiModel,
			SystemPrompt: c.SystemPrompt,
			MaxTokens:    c.LLMMaxTokens,
			Temperature:  c.LLMTemperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return NewOpenAIStreamer(OpenAIConfig{
			APIKey:       c.OpenAIAPIKey,
			BaseURL:      c.OpenAIBaseURL,
			Model:        c.OpenAIModel,
			SystemPrompt: c.SystemPrompt,
			MaxTokens:    c.LLMMaxTokens,
			Temperature:  c.LLMTemperature,
		}), nil
	}
}
