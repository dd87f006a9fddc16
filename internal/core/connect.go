package core

import (
	"context"
	"errors"
	"time"

	"deskshare/config"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/input"
	"deskshare/internal/metrics"
	"deskshare/internal/retry"
	"deskshare/internal/session"
	"deskshare/internal/transport"
	"deskshare/util"
)

// stableSession is how long a session must have run for its loss to
// restart the reconnect budget.
const stableSession = 30 * time.Second

// ViewMode dials a host and joins its session.  With Reconnect set, a
// session lost to a transport failure, a heartbeat timeout or a busy
// host is redialled with exponential backoff.
type ViewMode struct {
	Dialer  transport.Dialer
	Address string
	Session session.ViewerOptions
	// NewSource, if set, builds the input source for each attempt and
	// overrides Session.Source.
	NewSource func() (input.Source, error)

	Reconnect bool
	// Backoff overrides the reconnect schedule.
	Backoff *retry.Backoff
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Run joins the host and returns when the session ends for good.  A
// host that closes the session with BYE, and cancellation of ctx, both
// end Run without error.
func (m *ViewMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	var err error
	if m.Reconnect {
		err = m.backoff().Do(ctx, func(attempt int) error {
			if attempt > 1 {
				m.Metrics.Reconnect()
			}
			err := m.join(ctx)
			if err != nil && !dserrors.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		})
	} else {
		err = m.join(ctx)
	}

	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case errors.Is(err, dserrors.ErrPeerClosed):
		m.Logger.Info("host ended the session")
		return nil
	}
	return err
}

func (m *ViewMode) join(ctx context.Context) error {
	opts := m.Session
	if m.NewSource != nil {
		src, err := m.NewSource()
		if err != nil {
			return err
		}
		opts.Source = src
	}

	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	return session.Join(ctx, conn, opts, m.Logger, m.Metrics)
}

func (m *ViewMode) backoff() *retry.Backoff {
	b := m.Backoff
	if b == nil {
		b = retry.DefaultBackoff()
		b.MaxAttempts = config.DefaultMaxReconnectAttempts
		b.MaxDelay = config.DefaultMaxReconnectBackoff
		b.StableAfter = stableSession
	}
	if b.OnRetry == nil {
		b.OnRetry = func(attempt int, err error, wait time.Duration) {
			m.Logger.Warn("attempt %d failed: %v; reconnecting in %s",
				attempt, err, wait.Round(time.Millisecond))
		}
	}
	return b
}
