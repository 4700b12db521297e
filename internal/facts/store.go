package facts

import (
	"log/slog"
	"sync"
)

// Store keeps the facts of every live call, keyed by call id. Besides the
// write-once facts it tracks the most severe priority classified on any turn,
// which is what the call is labelled with.
type Store struct {
	mu         sync.Mutex
	extractors []Extractor
	calls      map[string]*Facts
	peaks      map[string]Priority
}

func NewStore(extractors []Extractor) *Store {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	return &Store{
		extractors: extractors,
		calls:      make(map[string]*Facts),
		peaks:      make(map[string]Priority),
	}
}

// ExtractAndMerge runs every extractor over utterance in order and merges the
// results. Applying the same utterance twice leaves the facts unchanged.
func (s *Store) ExtractAndMerge(callID, utterance string) Facts {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.calls[callID]
	if !ok {
		f = &Facts{}
		s.calls[callID] = f
	}
	for _, ex := range s.extractors {
		snapshot := *f
		value := ex.Extract(utterance, snapshot)
		if ex.Slot() == SlotPriority && value != "" {
			s.peaks[callID] = s.peaks[callID].higher(Priority(value))
		}
		if f.merge(ex.Slot(), value) {
			slog.Debug("session fact recorded", "call_id", callID, "slot", string(ex.Slot()))
		}
	}
	return *f
}

// Priority is the most severe classification seen on the call so far,
// STANDARD when nothing was classified. Clearing the priority slot does not
// lower it.
func (s *Store) Priority(callID string) Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peaks[callID]; ok && p != "" {
		return p
	}
	return PriorityStandard
}

// Clear empties one slot so a later utterance may fill it again.
func (s *Store) Clear(callID string, slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.calls[callID]; ok {
		f.set(slot, "")
	}
}

func (s *Store) Get(callID string) Facts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.calls[callID]; ok {
		return *f
	}
	return Facts{}
}

func (s *Store) Delete(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
	delete(s.peaks, callID)
}
