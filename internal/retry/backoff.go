// Package retry paces viewer reconnection and suspends a failing
// screen grabber.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError stops a [Backoff] loop.  Do returns the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth another attempt.  Permanent(nil) is
// nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, came from
// [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing pauses.
// Zero fields take the defaults shown in [DefaultBackoff].
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxAttempts bounds the tries, the first one included.  Zero
	// retries until the context ends.
	MaxAttempts int

	// Jitter spreads each pause by up to a quarter either way.
	Jitter bool

	// StableAfter starts the schedule over when a failed attempt had
	// lasted at least this long: a session that dropped after an hour
	// is a new outage, not the tenth failure of the old one.  Zero
	// disables it.
	StableAfter time.Duration

	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff starts at one second and doubles up to a minute, for
// ten attempts, with jitter.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// schedule is the mutable state of one Do call.
type schedule struct {
	b     *Backoff
	next  time.Duration
	spent int // attempts charged against MaxAttempts
}

func (b *Backoff) schedule() *schedule {
	s := &schedule{b: b}
	s.restart()
	return s
}

func (s *schedule) restart() {
	s.next = s.b.InitialDelay
	if s.next <= 0 {
		s.next = time.Second
	}
	s.spent = 0
}

// pause returns how long to wait after a failure and advances the
// schedule.  ok is false once the attempt budget is used up.
func (s *schedule) pause() (wait time.Duration, ok bool) {
	s.spent++
	if s.b.MaxAttempts > 0 && s.spent >= s.b.MaxAttempts {
		return 0, false
	}

	wait = s.next
	if s.b.Jitter {
		wait = addJitter(wait)
	}

	mult := s.b.Multiplier
	if mult <= 0 {
		mult = 2
	}
	ceiling := s.b.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	s.next = time.Duration(float64(s.next) * mult)
	if s.next > ceiling {
		s.next = ceiling
	}
	return wait, true
}

// Do calls fn until it returns nil, returns a [Permanent] error, runs
// out of attempts, or ctx ends.  fn receives the 1-based attempt
// number, which keeps counting across schedule restarts.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	s := b.schedule()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		started := time.Now()
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if b.StableAfter > 0 && time.Since(started) >= b.StableAfter {
			s.restart()
		}
		wait, ok := s.pause()
		if !ok {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func addJitter(d time.Duration) time.Duration {
	spread := int64(d) / 2
	if spread <= 0 {
		return d
	}
	j := d - time.Duration(spread/2) + time.Duration(rand.Int63n(spread+1))
	if j < time.Millisecond {
		j = time.Millisecond
	}
	return j
}
