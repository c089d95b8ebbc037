package interfaces

import (
	"context"

	domain "course-enrollment/internal/domain/enrollment"
)

// EventSink receives domain events. Delivery is fire-and-forget: the engine
// never fails an operation because a sink rejected an event.
type EventSink interface {
	Deliver(ctx context.Context, event domain.Event) error
	Name() string
}

// EventDispatcher fans engine events out to the registered sinks from a
// background worker pool.
type EventDispatcher interface {
	Publish(ctx context.Context, event domain.Event)
	Register(sink EventSink)
	Start()
	Stop()
}
