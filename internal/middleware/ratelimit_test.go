package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterCapsWithinWindow(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.allow("k") {
			t.Fatalf("request %d rejected before the cap", i+1)
		}
	}
	if rl.allow("k") {
		t.Fatal("request over the cap was allowed")
	}
	// Other keys are independent.
	if !rl.allow("other") {
		t.Fatal("unrelated key rejected")
	}
}

func TestRateLimiterEvictsExpired(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)
	rl.allow("k")
	rl.allow("k")
	if rl.allow("k") {
		t.Fatal("over-cap request allowed")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.allow("k") {
		t.Fatal("request rejected after the window passed")
	}
}
