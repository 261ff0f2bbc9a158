// Package device provides notification sources for the MyoMod wearable:
// a synthetic simulator, an MQTT bridge fed by BLE gateways, and replay of
// recorded sessions. Every source hands out a Subscription.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ayusman/myomod/internal/telemetry"
)

// Notification is one raw characteristic notification.
type Notification struct {
	Kind       telemetry.Kind
	Data       []byte
	ReceivedAt time.Time
}

// Source produces notification subscriptions.
type Source interface {
	// Name identifies the source in logs and session records.
	Name() string
	Subscribe(ctx context.Context) (*Subscription, error)
}

// EmitFunc delivers one notification to the subscriber. It blocks until
// the subscriber takes the notification and returns false once the
// subscription is closing, after which the producer should stop.
type EmitFunc func(Notification) bool

// Subscription is the handle of a running notification stream.
//
// Notifications are delivered on C without buffering. Close stops the
// producer and waits for it; once Close returns no further notification is
// delivered and C is closed.
type Subscription struct {
	ch     chan Notification
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	err    error
}

// NewSubscription starts run on its own goroutine. run must return when ctx
// is cancelled; emit may also be called from other goroutines (transport
// callbacks) while run is active, and is a no-op after run returns.
func NewSubscription(ctx context.Context, run func(ctx context.Context, emit EmitFunc) error) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		ch:     make(chan Notification),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	emit := func(n Notification) bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return false
		}
		select {
		case s.ch <- n:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		err := run(ctx, emit)
		cancel()

		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.ch)
		s.mu.Unlock()

		close(s.done)
	}()

	return s
}

// C returns the notification channel. It is closed when the producer stops,
// either because Close was called or because the source ran out.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Done is closed once the producer has stopped and C is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the producer stopped with, if any. It is only
// meaningful after Done is closed.
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

// Close cancels the producer and waits for it to stop. It is safe to call
// more than once and from any goroutine.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return s.Err()
}
