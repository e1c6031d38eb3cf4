package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
	panics bool
	block  chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	if p.block != nil {
		<-p.block
	}
	if p.panics {
		panic("boom")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func event(id string) Event {
	return Event{Type: orders.EventOrderConfirmed, Order: orders.Order{ID: id}}
}

func TestDispatcherPublishesAsync(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, zap.NewNop(), Options{Workers: 2, Queue: 8})

	d.Notify(event("o1"))
	d.Notify(event("o2"))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, pub.count())
}

func TestDispatcherSwallowsFailuresAndPanics(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(failing, zap.NewNop(), Options{})
	d.Notify(event("o1"))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, failing.count())

	panicking := &recordingPublisher{panics: true}
	d = NewDispatcher(panicking, zap.NewNop(), Options{})
	d.Notify(event("o1"))
	d.Notify(event("o2"))
	require.NoError(t, d.Close(context.Background()), "worker survives publisher panics")
}

func TestDispatcherNotifyNeverBlocks(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, zap.NewNop(), Options{Workers: 1, Queue: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(event("o"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled publisher")
	}

	close(pub.block)
	require.NoError(t, d.Close(context.Background()))
	assert.LessOrEqual(t, pub.count(), 2, "overflow is dropped")
}

func TestDispatcherAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, zap.NewNop(), Options{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(event("late"))
	assert.Equal(t, 0, pub.count())
}

func TestDispatcherCloseHonoursDeadline(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	defer close(pub.block)
	d := NewDispatcher(pub, zap.NewNop(), Options{Workers: 1})
	d.Notify(event("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}
