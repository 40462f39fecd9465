package publisher

import (
	"context"
	"sync"

	"rentvault/pkg/platform/events"
)

// Memory collects emitted events in order. Tests assert against Events();
// single-binary deployments can pair it with the worker to feed a store.
type Memory struct {
	mu     sync.Mutex
	events []events.Event
	sink   chan<- events.Event
}

// NewMemory builds a collecting publisher. sink is optional; when set, every
// emitted event is also forwarded (used to feed the persistence worker).
func NewMemory(sink chan<- events.Event) *Memory {
	return &Memory{sink: sink}
}

func (p *Memory) Emit(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	if p.sink != nil {
		select {
		case p.sink <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Memory) Close() error { return nil }

// Events returns a copy of everything emitted so far.
func (p *Memory) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event{}, p.events...)
}

// ByKind filters emitted events.
func (p *Memory) ByKind(kind events.Kind) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
