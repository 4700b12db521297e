package timing

import "sync"

// Turn gathers the stage latencies of a single reply until the recorder
// commits them. Marks may arrive from the model reader and the playback
// goroutine concurrently.
type Turn struct {
	mu    sync.Mutex
	marks map[Stage]int64
}

func NewTurn() *Turn {
	return &Turn{marks: make(map[Stage]int64, 3)}
}

// Mark sets the latency of stage for this turn. A retried reply marks again
// and the later value wins.
func (t *Turn) Mark(stage Stage, ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[stage] = ms
}

func (t *Turn) stages() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Stage]int64, len(t.marks))
	for k, v := range t.marks {
		out[k] = v
	}
	return out
}
