package session

import (
	"context"
	"fmt"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/wire"
)

// heartbeat pings the peer every HeartbeatInterval and ends the
// session once nothing at all has been read for HeartbeatTimeout.
// Frame and input traffic count as liveness, so a busy session never
// depends on pings getting through.
func (s *Session) heartbeat(ctx context.Context) error {
	t := time.NewTicker(s.cfg.HeartbeatInterval)
	defer t.Stop()

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if idle := now.Sub(s.seen()); idle >= s.cfg.HeartbeatTimeout {
				return fmt.Errorf("%w: nothing received for %v", dserrors.ErrHeartbeatTimeout, idle.Round(time.Millisecond))
			}
			nonce++
			if !s.w.TrySend(&wire.Ping{Nonce: nonce, Sent: now.UnixNano()}) {
				s.log.Debug("urgent queue full, ping %d skipped", nonce)
			}
		}
	}
}
