package tts

import (
	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/tts"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (tts.Synthesizer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewElevenLabsSynthesizer(ElevenLabsConfig{
			APIKey:       c.ElevenLabsAPIKey,
			VoiceID:      c.ElevenLabsVoiceID,
			Model:        c.ElevenLabsModel,
			OutputFormat: c.ElevenLabsOutputFormat,
		}), nil
	})
}
