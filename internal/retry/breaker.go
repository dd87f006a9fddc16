package retry

import (
	"fmt"
	"sync"
	"time"

	dserrors "deskshare/internal/errors"
)

// State is the position of a [Breaker].
type State int

const (
	// Closed passes every call through.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// Probing lets exactly one call through to test recovery.
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Breaker suspends calls to a collaborator that keeps failing, such as
// a screen grabber while the display is locked.  After Threshold
// consecutive counted failures it opens for Cooldown; the first call
// after that is a probe whose outcome closes or reopens it.
//
// The zero value is ready to use with a threshold of 5 and a one
// second cooldown.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	// Counts reports whether err is a failure of the collaborator.
	// Errors it rejects are returned to the caller without moving the
	// breaker.  Nil counts every error.
	Counts func(err error) bool

	// OnChange observes transitions.  It is called without the lock
	// held, after the transition is visible.
	OnChange func(from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	until    time.Time
}

// Do runs fn unless the breaker is open.  A rejected call returns an
// error wrapping [dserrors.ErrCircuitOpen] without running fn.
func (b *Breaker) Do(fn func() error) error {
	from, err := b.admit()
	if err != nil {
		return err
	}
	b.notify(from, b.State())

	err = fn()

	from, to := b.record(err)
	b.notify(from, to)
	return err
}

// State reports the current position, moving an expired Open breaker
// to Probing first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && !b.now().Before(b.until) {
		return Probing
	}
	return b.state
}

// Failures is the current run of consecutive counted failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.until = Closed, 0, time.Time{}
	b.mu.Unlock()
	b.notify(from, Closed)
}

func (b *Breaker) admit() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		now := b.now()
		if now.Before(b.until) {
			return Open, fmt.Errorf("%w: retry in %v",
				dserrors.ErrCircuitOpen, b.until.Sub(now).Round(time.Millisecond))
		}
		b.state = Probing
		return Open, nil
	case Probing:
		// A probe is already in flight.
		return Probing, fmt.Errorf("%w: probe in progress", dserrors.ErrCircuitOpen)
	}
	return b.state, nil
}

func (b *Breaker) record(err error) (from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from = b.state

	if err != nil && b.Counts != nil && !b.Counts(err) {
		// Not the collaborator's fault; the next call probes again.
		if b.state == Probing {
			b.state = Open
			return Probing, Probing
		}
		return from, from
	}

	if err == nil {
		b.state, b.failures = Closed, 0
		return from, Closed
	}

	b.failures++
	if b.state == Probing || b.failures >= b.threshold() {
		b.state = Open
		b.until = b.now().Add(b.cooldown())
	}
	return from, b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.OnChange != nil {
		b.OnChange(from, to)
	}
}

func (b *Breaker) threshold() int {
	if b.Threshold <= 0 {
		return 5
	}
	return b.Threshold
}

func (b *Breaker) cooldown() time.Duration {
	if b.Cooldown <= 0 {
		return time.Second
	}
	return b.Cooldown
}

func (b *Breaker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
