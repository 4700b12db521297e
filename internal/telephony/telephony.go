package telephony

import (
	"context"

	"github.com/foxseedlab/voicelink/internal/media"
	"github.com/foxseedlab/voicelink/internal/pipeline"
	"github.com/foxseedlab/voicelink/internal/session"
)

// CallHandler starts calls for the transport. Everything after the start
// event goes through the returned handle, whose Dispatch must not block the
// transport's read loop.
type CallHandler interface {
	Start(ctx context.Context, start media.StartEvent, out pipeline.Outbound) (session.Handle, error)
}

type CallInspector interface {
	Snapshot(callID string) (session.Snapshot, bool)
	ActiveCalls() int
}

type Server interface {
	RegisterCallHandler(handler CallHandler)
	RegisterCallInspector(inspector CallInspector)
	Run() error
	Shutdown(ctx context.Context) error
}
