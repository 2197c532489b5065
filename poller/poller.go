// Package poller repeats an asynchronous probe on a fixed interval until the
// probe reports completion, fails, or the poller is stopped.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 3 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a running poller.
	ErrAlreadyStarted = errors.New("poller already started")
	// ErrStopped is returned by Start on a poller that has been stopped.
	ErrStopped = errors.New("poller stopped")
)

// Status is the lifecycle state of a Controller.
type Status int

const (
	Idle Status = iota
	Running
	Stopped
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Probe performs one check. It returns true to be scheduled again.
type Probe func(ctx context.Context) (bool, error)

// Controller runs a Probe on one goroutine. Probes never overlap and no
// probe starts after Stop returns.
type Controller struct {
	probe    Probe
	interval time.Duration

	mu       sync.Mutex
	status   Status
	ticks    int
	err      error
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// New creates an idle Controller.
func New(probe Probe, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		probe:    probe,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the first probe immediately and keeps polling in the background.
// Cancelling ctx ends the loop with ctx.Err().
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case Running:
		c.mu.Unlock()
		return ErrAlreadyStarted
	case Stopped:
		c.mu.Unlock()
		return ErrStopped
	}
	c.status = Running
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Stop ends polling. It is idempotent and may be called from inside the
// probe. A probe already in flight runs to completion.
func (c *Controller) Stop() {
	c.mu.Lock()
	prev := c.status
	c.status = Stopped
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
	// Never started, so no loop will close done.
	if prev == Idle {
		c.closeDone()
	}
}

// Done is closed once the loop has ended.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Wait blocks until the loop ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the probe error or context error that ended the loop.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Ticks returns how many times the probe has been invoked.
func (c *Controller) Ticks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func (c *Controller) run(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			c.finish(err)
			return
		}
		tick, ok := c.beginTick()
		if !ok {
			c.finish(nil)
			return
		}

		more, err := c.probe(ctx)
		if err != nil {
			log.Debug().Err(err).Int("tick", tick).Msg("Probe failed, stopping poller")
			c.finish(err)
			return
		}
		if !more {
			log.Debug().Int("tick", tick).Msg("Probe finished, stopping poller")
			c.finish(nil)
			return
		}

		if timer == nil {
			timer = time.NewTimer(c.interval)
		} else {
			timer.Reset(c.interval)
		}
		select {
		case <-ctx.Done():
			c.finish(ctx.Err())
			return
		case <-c.stopCh:
			c.finish(nil)
			return
		case <-timer.C:
		}
	}
}

// beginTick counts an invocation, unless the poller was stopped meanwhile.
func (c *Controller) beginTick() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Running {
		return c.ticks, false
	}
	c.ticks++
	return c.ticks, true
}

func (c *Controller) finish(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.status = Stopped
	c.mu.Unlock()
	c.closeDone()
}

func (c *Controller) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
