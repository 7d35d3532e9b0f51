package wallet

import (
	"log/slog"
	"sync"

	"satspay/breez"
	"satspay/observability"
)

// Listener receives node events. Invocations are isolated: a panicking
// listener is logged and does not affect delivery to the others.
type Listener func(breez.Event)

// Dispatcher fans the single node event stream out to registered listeners.
// Events are queued and delivered from a dedicated goroutine so a slow
// listener can never block the node's own callback, and every listener sees
// every event exactly once in emission order.
type Dispatcher struct {
	log     *slog.Logger
	metrics *observability.EventMetrics

	mu        sync.Mutex
	listeners map[int64]Listener
	order     []int64
	nextID    int64
	queue     []breez.Event
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// NewDispatcher starts the dispatch loop.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:       log,
		metrics:   observability.Events(),
		listeners: make(map[int64]Listener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Subscribe registers a listener and returns its unsubscribe function.
// Removal is by identity and safe to call more than once.
func (d *Dispatcher) Subscribe(fn Listener) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = fn
	d.order = append(d.order, id)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// Publish enqueues an event for delivery. It never blocks; this is the
// single entry point invoked from the node callback.
func (d *Dispatcher) Publish(ev breez.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatch loop. Queued events are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.queue[0]
			d.queue = d.queue[1:]
			ids := make([]int64, len(d.order))
			copy(ids, d.order)
			d.mu.Unlock()

			d.metrics.RecordEvent(string(ev.Type))
			for _, id := range ids {
				d.mu.Lock()
				fn, ok := d.listeners[id]
				d.mu.Unlock()
				if !ok {
					continue
				}
				d.deliver(fn, ev)
			}
		}
	}
}

func (d *Dispatcher) deliver(fn Listener, ev breez.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event listener panicked", "event", string(ev.Type), "panic", r)
		}
	}()
	fn(ev)
}

// RequiresRefresh reports whether an event implies cached balance and
// payment history are stale. dataSynced counts only when it pulled records.
func RequiresRefresh(ev breez.Event) bool {
	switch ev.Type {
	case breez.EventPaymentSucceeded, breez.EventPaymentPending, breez.EventPaymentFailed,
		breez.EventSynced, breez.EventClaimedDeposits:
		return true
	case breez.EventDataSynced:
		return ev.DidPullNewRecords
	}
	return false
}
