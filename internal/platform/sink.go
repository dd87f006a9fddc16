package platform

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deskshare/internal/frame"
	"deskshare/util"
)

// Snapshot is a display sink for headless viewers: it keeps a PNG of
// the reconstructed screen at Path, rewritten at most once per
// interval.  The file is replaced atomically so readers never see a
// partial image.
type Snapshot struct {
	path     string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	written int
}

// NewSnapshot returns a sink writing to path.  A zero interval writes
// every presented frame.
func NewSnapshot(path string, interval time.Duration) *Snapshot {
	return &Snapshot{path: path, interval: interval, now: time.Now}
}

// Present encodes bm unless the previous write was too recent.
func (s *Snapshot) Present(bm *frame.Bitmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.interval > 0 && !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".deskshare-*.png")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, bm.RGBA()); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	s.last = now
	s.written++
	return nil
}

// Written is the number of snapshots written so far.
func (s *Snapshot) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// LogSink reports the reconstructed screen's geometry instead of
// showing it.  Used when no other sink is configured.
type LogSink struct {
	Logger *util.Logger

	frames        int
	width, height int
}

func (l *LogSink) Present(bm *frame.Bitmap) error {
	l.frames++
	if bm.Width != l.width || bm.Height != l.height {
		l.width, l.height = bm.Width, bm.Height
		l.Logger.Info("receiving %dx%d screen", bm.Width, bm.Height)
	}
	l.Logger.Debug("frame %d presented", l.frames)
	return nil
}
