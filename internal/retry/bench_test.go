package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// BenchmarkBreaker_Closed is the per-tick cost of a healthy grabber.
func BenchmarkBreaker_Closed(b *testing.B) {
	var br Breaker
	for i := 0; i < b.N; i++ {
		br.Do(func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBreaker_Open is the per-tick cost while grabs are suspended.
func BenchmarkBreaker_Open(b *testing.B) {
	br := &Breaker{Threshold: 1, Cooldown: time.Hour}
	br.Do(func() error { return errors.New("locked") }) //nolint:errcheck

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br.Do(func() error { return nil }) //nolint:errcheck
	}
}

func BenchmarkBackoff_FirstAttempt(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return nil }) //nolint:errcheck
	}
}
