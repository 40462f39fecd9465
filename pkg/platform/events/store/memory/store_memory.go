package memory

import (
	"context"
	"sync"

	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/events"
)

// Store keeps the event stream in memory, append-only.
type Store struct {
	mu     sync.RWMutex
	stream []events.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = append(s.stream, event)
	return nil
}

func (s *Store) ListByInstance(_ context.Context, instanceID id.InstanceID) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, e := range s.stream {
		if e.InstanceID == instanceID {
			out = append(out, e)
		}
	}
	return out, nil
}
