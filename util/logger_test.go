package util

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func capture(verbosity int) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(verbosity)
	l.SetOutput(&buf)
	l.SetTimestamps(false)
	return l, &buf
}

func TestLogger_Verbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		want      string
	}{
		{0, "[ERR] e\n"},
		{1, "[ERR] e\n[WRN] w\n[INF] i\n"},
		{2, "[ERR] e\n[WRN] w\n[INF] i\n[VRB] v\n"},
		{3, "[ERR] e\n[WRN] w\n[INF] i\n[VRB] v\n[DBG] d\n"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("-v=%d", tt.verbosity), func(t *testing.T) {
			l, buf := capture(tt.verbosity)
			l.Error("e")
			l.Warn("w")
			l.Info("i")
			l.Verbose("v")
			l.Debug("d")
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestLogger_Enabled(t *testing.T) {
	l := NewLogger(2)
	if !l.Enabled(LogVerbose) || l.Enabled(LogDebug) {
		t.Errorf("Enabled at -vv: verbose=%v debug=%v", l.Enabled(LogVerbose), l.Enabled(LogDebug))
	}
	if l.Level() != LogVerbose {
		t.Errorf("Level = %v", l.Level())
	}
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3)
	l.SetOutput(&buf)
	l.Debug("frame %d", 7)

	re := regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} \[DBG\] frame 7\n$`)
	if !re.MatchString(buf.String()) {
		t.Errorf("got %q, want a timestamped debug line", buf.String())
	}
}

func TestLogger_Named(t *testing.T) {
	l, buf := capture(1)
	sess := l.Named("session").Named("a1b2")
	sess.Info("viewer %s joined", "10.0.0.7")
	l.Info("listening")

	want := "[INF] session/a1b2: viewer 10.0.0.7 joined\n[INF] listening\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLogger_ChildrenShareOutput(t *testing.T) {
	l, _ := capture(1)
	child := l.Named("capture")

	var buf bytes.Buffer
	l.SetOutput(&buf)
	child.Warn("grab failed")
	if !strings.Contains(buf.String(), "capture: grab failed") {
		t.Errorf("child did not follow SetOutput: %q", buf.String())
	}
}

func TestLogger_ConcurrentLines(t *testing.T) {
	l, buf := capture(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log := l.Named(fmt.Sprintf("s%d", i))
			for j := 0; j < 50; j++ {
				log.Info("tick %d", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	re := regexp.MustCompile(`^\[INF\] s\d: tick \d+$`)
	for _, line := range lines {
		if !re.MatchString(line) {
			t.Fatalf("interleaved line %q", line)
		}
	}
}
