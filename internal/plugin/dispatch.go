package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// DefaultMaxInFlight caps concurrent plugin runs when none is configured.
const DefaultMaxInFlight = 4

// ErrUnknownAction is returned when a binding names an action its plugin
// does not declare.
var ErrUnknownAction = errors.New("plugin does not declare action")

// ActionSource looks up the action bound to a gesture, returning nil when
// there is none. *store.ActionRepository implements it.
type ActionSource interface {
	GetByGestureID(gestureID string) (*store.Action, error)
}

// PoseSource yields the hand pose current at dispatch time.
type PoseSource interface {
	LatestHandPose() (telemetry.HandPose, bool)
}

// Dispatcher runs the action bound to a matched gesture.
type Dispatcher struct {
	actions ActionSource
	plugins *Manager
	exec    *Executor
	pose    PoseSource

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. pose may be nil.
func NewDispatcher(actions ActionSource, plugins *Manager, exec *Executor, pose PoseSource) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		actions: actions,
		plugins: plugins,
		exec:    exec,
		pose:    pose,
		slots:   make(chan struct{}, DefaultMaxInFlight),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run executes the action bound to gestureID and returns the plugin's
// response. It returns nil, nil when no enabled action is bound.
func (d *Dispatcher) Run(ctx context.Context, gestureID, gestureName string) (*Response, error) {
	action, err := d.actions.GetByGestureID(gestureID)
	if err != nil {
		return nil, fmt.Errorf("look up action for %s: %w", gestureName, err)
	}
	if action == nil || !action.Enabled {
		return nil, nil
	}

	p, err := d.plugins.Get(action.PluginName)
	if err != nil {
		return nil, fmt.Errorf("action %s: %s: %w", action.ID, action.PluginName, err)
	}
	if !p.Manifest.HasAction(action.ActionName) {
		return nil, fmt.Errorf("action %s: %w: %s/%s", action.ID, ErrUnknownAction, action.PluginName, action.ActionName)
	}

	req := &Request{
		Action:    action.ActionName,
		Gesture:   gestureName,
		GestureID: gestureID,
		Config:    action.Config,
	}
	if d.pose != nil {
		if hand, ok := d.pose.LatestHandPose(); ok {
			req.Hand = &hand
		}
	}

	return d.exec.Execute(ctx, p, req)
}

// Dispatch runs the bound action in the background. Its signature matches
// the gesture callbacks of the pipeline, so it never blocks: a match that
// arrives while every slot is busy is dropped.
func (d *Dispatcher) Dispatch(gestureID, gestureName string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.mu.Unlock()
		log.Printf("plugin: %d actions running, dropping %s", cap(d.slots), gestureName)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		resp, err := d.Run(d.ctx, gestureID, gestureName)
		switch {
		case err != nil:
			log.Printf("plugin: gesture %s: %v", gestureName, err)
		case resp == nil:
		case !resp.Success:
			log.Printf("plugin: gesture %s: action failed: %s", gestureName, resp.Error)
		default:
			log.Printf("plugin: gesture %s: action done", gestureName)
		}
	}()
}

// Close cancels running actions and waits for them to exit. Later
// dispatches are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// Wait blocks until every dispatched action has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
