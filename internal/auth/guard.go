package auth

import (
	"sync"
	"time"
)

// Guard locks out remote hosts after repeated authentication failures.
// Each connection gets one attempt, so Guard bounds attempts per unit
// time rather than per connection.  Safe for concurrent use.
type Guard struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewGuard allows at most limit failures per host within window.  A
// limit below 1 disables the guard.
func NewGuard(limit int, window time.Duration) *Guard {
	return &Guard{
		limit:    limit,
		window:   window,
		now:      time.Now,
		failures: make(map[string][]time.Time),
	}
}

// Allowed reports whether host may attempt to authenticate now.
func (g *Guard) Allowed(host string) bool {
	if g == nil || g.limit < 1 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recent(host)) < g.limit
}

// Fail records a failed attempt from host.
func (g *Guard) Fail(host string) {
	if g == nil || g.limit < 1 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[host] = append(g.recent(host), g.now())
}

// Succeed forgets host's failures.
func (g *Guard) Succeed(host string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, host)
}

// RetryAfter is how long host must wait before Allowed turns true
// again.  Zero when not locked out.
func (g *Guard) RetryAfter(host string) time.Duration {
	if g == nil || g.limit < 1 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	recent := g.recent(host)
	if len(recent) < g.limit {
		return 0
	}
	// The oldest failure that still counts must age out.
	oldest := recent[len(recent)-g.limit]
	return oldest.Add(g.window).Sub(g.now())
}

// recent prunes and returns host's failures inside the window.
// Caller holds mu.
func (g *Guard) recent(host string) []time.Time {
	list := g.failures[host]
	cutoff := g.now().Add(-g.window)
	i := 0
	for i < len(list) && !list[i].After(cutoff) {
		i++
	}
	if i == len(list) {
		delete(g.failures, host)
		return nil
	}
	list = list[i:]
	g.failures[host] = list
	return list
}
