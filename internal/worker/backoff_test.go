package worker

import (
	"testing"
	"time"
)

func TestBackoffSleepCurve(t *testing.T) {
	t.Parallel()

	opts := Options{
		BackoffBase: 2 * time.Second,
		BackoffMin:  2 * time.Second,
		BackoffMax:  60 * time.Second,
	}.withDefaults()

	// Delay after failed attempt n is base * 2^(n-1), clamped to [min, max]:
	// 2s, 4s, 8s, 16s, 32s, 60s, 60s, ...
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := backoffSleep(opts, i+1); got != w {
			t.Fatalf("backoffSleep(attempt=%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffSleepClampsToMin(t *testing.T) {
	t.Parallel()

	opts := Options{
		BackoffBase: 500 * time.Millisecond,
		BackoffMin:  2 * time.Second,
		BackoffMax:  60 * time.Second,
	}.withDefaults()

	if got := backoffSleep(opts, 1); got != 2*time.Second {
		t.Fatalf("backoffSleep(attempt=1) = %v, want min clamp 2s", got)
	}
}
