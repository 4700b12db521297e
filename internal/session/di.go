package session

import (
	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/pipeline"
	"github.com/foxseedlab/voicelink/internal/repository"
	"github.com/foxseedlab/voicelink/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		engine := do.MustInvoke[*pipeline.Engine](i)
		selector := do.MustInvoke[*pipeline.Selector](i)
		return NewManager(cfg, repo, wh, engine, selector), nil
	})
}
