package worker

import (
	"context"

	"rentvault/pkg/platform/events"
)

// Worker drains emitted events from a channel and persists them. It keeps
// background persistence testable without wiring a broker.
type Worker struct {
	store events.Store
	inbox <-chan events.Event
}

func New(store events.Store, inbox <-chan events.Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
