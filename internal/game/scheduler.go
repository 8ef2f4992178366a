package game

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Stepper advances a simulation by a fixed step and reports what happened.
type Stepper interface {
	Advance(dt float64) []Event
}

// RunSteps advances s n times synchronously and collects the events.
func RunSteps(s Stepper, n int) []Event {
	var events []Event
	for i := 0; i < n; i++ {
		events = append(events, s.Advance(TickDT)...)
	}
	return events
}

// FrameFunc receives the events accumulated since the previous frame. It runs
// on the runner goroutine, so it may read the simulation directly.
type FrameFunc func(events []Event)

var ErrRunnerStopped = errors.New("runner stopped")

// Runner drives a Stepper at a wall-clock rate. Every advance uses the fixed
// TickDT no matter how late the ticker fires. Commands submitted with Do run
// on the same goroutine between ticks, so the simulation has a single writer.
type Runner struct {
	stepper        Stepper
	tickHz         int
	broadcastEvery int
	onFrame        FrameFunc
	inbox          chan func()
	quit           chan struct{}
	done           chan struct{}
	stopOnce       sync.Once
}

// NewRunner creates a runner ticking at tickHz and calling onFrame at roughly
// broadcastHz.
func NewRunner(s Stepper, tickHz, broadcastHz int, onFrame FrameFunc) *Runner {
	if tickHz <= 0 {
		tickHz = 60
	}
	broadcastEvery := 1
	if broadcastHz > 0 && tickHz/broadcastHz > 1 {
		broadcastEvery = tickHz / broadcastHz
	}
	return &Runner{
		stepper:        s,
		tickHz:         tickHz,
		broadcastEvery: broadcastEvery,
		onFrame:        onFrame,
		inbox:          make(chan func(), 256),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(time.Second / time.Duration(r.tickHz))
	defer ticker.Stop()

	var (
		pending []Event
		ticks   int
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			pending = append(pending, r.stepper.Advance(TickDT)...)
			ticks++
			if ticks%r.broadcastEvery == 0 {
				if r.onFrame != nil {
					r.onFrame(pending)
				}
				pending = nil
			}
		}
	}
}

// Do runs fn on the runner goroutine and waits for it to finish.
func (r *Runner) Do(fn func()) error {
	finished := make(chan struct{})
	select {
	case r.inbox <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrRunnerStopped
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrRunnerStopped
	}
}

// Stop ends Run. It is safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
