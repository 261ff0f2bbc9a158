package device

import (
	"context"
	"time"
)

// ReplaySource re-emits recorded notifications with their original
// spacing scaled by Speed. Speed <= 0 replays as fast as the subscriber
// reads.
type ReplaySource struct {
	name   string
	frames []Notification
	speed  float64
	loop   bool
}

// NewReplaySource creates a replay of frames, which must be ordered by
// ReceivedAt.
func NewReplaySource(name string, frames []Notification, speed float64, loop bool) *ReplaySource {
	return &ReplaySource{name: name, frames: frames, speed: speed, loop: loop}
}

// Name implements Source.
func (r *ReplaySource) Name() string {
	return "replay:" + r.name
}

// Subscribe implements Source. The subscription ends after the last frame
// unless the replay loops.
func (r *ReplaySource) Subscribe(ctx context.Context) (*Subscription, error) {
	return NewSubscription(ctx, r.run), nil
}

func (r *ReplaySource) run(ctx context.Context, emit EmitFunc) error {
	if len(r.frames) == 0 {
		return nil
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		start := time.Now()
		origin := r.frames[0].ReceivedAt

		for _, f := range r.frames {
			if r.speed > 0 {
				due := start.Add(time.Duration(float64(f.ReceivedAt.Sub(origin)) / r.speed))
				if wait := time.Until(due); wait > 0 {
					timer.Reset(wait)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-timer.C:
					}
				}
			}

			n := f
			n.ReceivedAt = time.Now()
			if !emit(n) {
				return ctx.Err()
			}
		}

		if !r.loop {
			return nil
		}
	}
}
