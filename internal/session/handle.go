package session

import "github.com/foxseedlab/voicelink/internal/media"

// Handle is the call-id-scoped view of one live call that the transport keeps
// after Start. The session behind it stays owned by the Manager, so a handle
// whose call has closed simply has no effect.
type Handle interface {
	CallID() string
	Dispatch(ev media.Event)
	Stop(reason string)
	Snapshot() (Snapshot, bool)
}

type callHandle struct {
	m      *Manager
	callID string
}

func (h *callHandle) CallID() string { return h.callID }

func (h *callHandle) Dispatch(ev media.Event) {
	ev.CallID = h.callID
	h.m.Dispatch(h.callID, ev)
}

func (h *callHandle) Stop(reason string) { h.m.Stop(h.callID, reason) }

func (h *callHandle) Snapshot() (Snapshot, bool) { return h.m.Snapshot(h.callID) }
