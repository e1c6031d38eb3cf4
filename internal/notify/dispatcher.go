package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/metrics"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Event asks for the customer to be told about an order.
type Event struct {
	Type     string // orders.EventOrderConfirmed | orders.EventOrderStatusUpdated
	Order    orders.Order
	Previous orders.Status
	TraceID  string
}

// Publisher hands an event to the delivery side.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher runs notifications on its own worker pool. Notify never blocks
// the caller and never reports delivery failures back to it.
type Dispatcher struct {
	pub     Publisher
	queue   chan Event
	log     *zap.Logger
	metrics *metrics.Checkout
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type Options struct {
	Workers int
	Queue   int
	// Timeout bounds a single publish.
	Timeout time.Duration
	Metrics *metrics.Checkout
}

func NewDispatcher(pub Publisher, log *zap.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCheckout(nil)
	}
	d := &Dispatcher{
		pub:     pub,
		queue:   make(chan Event, opts.Queue),
		log:     log,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues ev. A full queue or closed dispatcher drops the event.
func (d *Dispatcher) Notify(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, ErrDispatcherClosed)
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.drop(ev, errors.New("queue full"))
	}
}

// Close stops intake and waits for queued events to be published, or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.publish(ev)
	}
}

func (d *Dispatcher) publish(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(ev, fmt.Errorf("publisher panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, ev); err != nil {
		d.fail(ev, err)
		return
	}
	d.metrics.Notifications.WithLabelValues(ev.Type, "sent").Inc()
}

func (d *Dispatcher) fail(ev Event, err error) {
	d.metrics.Notifications.WithLabelValues(ev.Type, "failed").Inc()
	d.log.Warn("notification failed",
		zap.String("event", ev.Type), zap.String("order_id", ev.Order.ID), zap.Error(err))
}

func (d *Dispatcher) drop(ev Event, err error) {
	d.metrics.Notifications.WithLabelValues(ev.Type, "dropped").Inc()
	d.log.Warn("notification dropped",
		zap.String("event", ev.Type), zap.String("order_id", ev.Order.ID), zap.Error(err))
}
