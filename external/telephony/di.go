package telephony

import (
	"github.com/foxseedlab/voicelink/internal/config"
	telephonypkg "github.com/foxseedlab/voicelink/internal/telephony"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (telephonypkg.Server, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewWebSocketServer(c.HTTPAddr), nil
	})
}
