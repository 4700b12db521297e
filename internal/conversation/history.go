package conversation

import (
	"strings"
	"sync"
)

type Role string

const (
	RoleCaller    Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role
	Text string
}

const minTurnChars = 3

// History is the bounded per-call exchange window. Oldest turns are dropped
// first once the window is full.
type History struct {
	mu    sync.Mutex
	limit int
	turns []Turn
}

// NewHistory keeps at most exchanges caller/assistant pairs.
func NewHistory(exchanges int) *History {
	if exchanges < 1 {
		exchanges = 1
	}
	return &History{limit: exchanges * 2}
}

// Add records a turn. Turns with fewer than three non-space characters carry
// nothing worth remembering and are skipped.
func (h *History) Add(role Role, text string) {
	text = strings.TrimSpace(text)
	if len(strings.Join(strings.Fields(text), "")) < minTurnChars {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{Role: role, Text: text})
	if over := len(h.turns) - h.limit; over > 0 {
		h.turns = append(h.turns[:0], h.turns[over:]...)
	}
}

func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
