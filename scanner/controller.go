package scanner

import (
	"sync"
	"sync/atomic"
)

// State of a pipeline run
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Controller is the pause/resume/stop handshake between a caller and one
// worker. The worker only observes it at checkpoint, between images.
type Controller struct {
	mu            sync.Mutex
	cond          *sync.Cond
	paused        bool
	stopped       atomic.Bool
	stopRequested atomic.Bool
}

// NewController returns a controller in the running state
func NewController() *Controller {
	c := &Controller{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Pause asks the worker to suspend before its next image
func (c *Controller) Pause() {
	if c.stopped.Load() {
		return
	}
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume wakes a paused worker
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Stop requests termination. Safe to call repeatedly and from any goroutine.
func (c *Controller) Stop() {
	c.stopRequested.Store(true)
	c.terminate()
}

// StopRequested reports whether Stop was called, as opposed to natural completion
func (c *Controller) StopRequested() bool {
	return c.stopRequested.Load()
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	if c.stopped.Load() {
		return StateStopped
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return StatePaused
	}
	return StateRunning
}

// checkpoint blocks while paused and reports whether the worker may continue
func (c *Controller) checkpoint() bool {
	if c.stopped.Load() {
		return false
	}
	c.mu.Lock()
	for c.paused && !c.stopped.Load() {
		c.cond.Wait()
	}
	c.mu.Unlock()
	return !c.stopped.Load()
}

// terminate moves to the terminal state and wakes any waiter
func (c *Controller) terminate() {
	c.stopped.Store(true)
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.cond.Broadcast()
}
