package events

import (
	"context"
	"sync"
	"time"

	domain "course-enrollment/internal/domain/enrollment"
	interfaces "course-enrollment/internal/interfaces/infrastructure"
	"course-enrollment/pkg/logger"
)

const deliverTimeout = 5 * time.Second

var _ interfaces.EventDispatcher = (*Dispatcher)(nil)

// Dispatcher fans domain events out to registered sinks from a worker pool.
// Publish never blocks the caller: when the buffer is full the event is
// dropped with a warning, since notifications are advisory.
type Dispatcher struct {
	events  chan domain.Event
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	sinks   []interfaces.EventSink
	started bool
}

func NewDispatcher(bufferSize, workers int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		events:  make(chan domain.Event, bufferSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Dispatcher) Register(sink interfaces.EventSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

func (d *Dispatcher) Publish(_ context.Context, event domain.Event) {
	select {
	case d.events <- event:
	default:
		logger.Warn("event buffer full, dropping %s for student %s", event.Type, event.StudentID)
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	logger.Info("Starting %d event workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.started = true
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	logger.Info("Stopping event workers...")
	d.cancel()
	d.wg.Wait()
	logger.Info("Event workers stopped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case event := <-d.events:
			d.deliver(event)
		}
	}
}

func (d *Dispatcher) deliver(event domain.Event) {
	d.mu.RLock()
	sinks := make([]interfaces.EventSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, sink := range sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			logger.Warn("sink %s failed to deliver %s: %v", sink.Name(), event.Type, err)
		}
	}
}
