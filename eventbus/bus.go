package eventbus

import (
	"sync"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

// Handler consumes one published event. Handlers run on the bus drain
// goroutine and should be quick; slow consumers should hand off internally.
type Handler func(ev core.BusEvent)

// Options configures a Bus.
type Options struct {
	// QueueSize bounds the outbound event queue. When the queue is full the
	// oldest pending event is dropped to admit the new one.
	QueueSize int

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Bus is the in-process event channel. Publish never blocks the caller;
// dispatch happens on a dedicated goroutine so telemetry or forwarder
// latency cannot stall a basket run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[core.EventKind][]Handler
	queue    chan core.BusEvent
	closed   bool
	done     chan struct{}
	logger   logging.Logger
}

// New creates a Bus and starts its drain goroutine.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		QueueSize: 128,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Bus{
		handlers: make(map[core.EventKind][]Handler),
		queue:    make(chan core.BusEvent, opts.QueueSize),
		done:     make(chan struct{}),
		logger:   opts.Logger,
	}
	go b.drain()
	return b
}

func (b *Bus) drain() {
	defer close(b.done)
	for ev := range b.queue {
		b.dispatch(ev)
	}
}

func (b *Bus) dispatch(ev core.BusEvent) {
	b.mu.RLock()
	handlers := b.handlers[ev.Kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "kind", string(ev.Kind), "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

// Subscribe registers a handler for one event kind. There is no unsubscribe;
// subscriber sets are fixed for the life of the bus in practice.
func (b *Bus) Subscribe(kind core.EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every lifecycle event kind.
func (b *Bus) SubscribeAll(h Handler) {
	for _, kind := range []core.EventKind{core.EventAgentRecommendation, core.EventEscalation, core.EventDependencyUpdate} {
		b.Subscribe(kind, h)
	}
}

// Publish enqueues an event without blocking. When the queue is full the
// oldest pending event is discarded to make room. Publishing on a closed bus
// is a logged no-op.
func (b *Bus) Publish(ev core.BusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("publish on closed event bus", "kind", string(ev.Kind))
		return
	}

	select {
	case b.queue <- ev:
		return
	default:
	}

	// Queue full: drop the oldest pending event, then retry once.
	select {
	case dropped := <-b.queue:
		b.logger.Warn("event queue full, dropped oldest event", "kind", string(dropped.Kind), "id", dropped.ID)
	default:
	}
	select {
	case b.queue <- ev:
	default:
		b.logger.Warn("event queue full, dropped event", "kind", string(ev.Kind), "id", ev.ID)
	}
}

// Close stops accepting events and waits for queued events to be dispatched.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}
