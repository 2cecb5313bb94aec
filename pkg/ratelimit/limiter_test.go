package ratelimit

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		rate, burst float64
		wantRate    rate.Limit
		wantBurst   int
	}{
		{"defaults", 0, 0, 40, 80},
		{"burst below rate", 10, 5, 10, 10},
		{"explicit", 5, 20, 5, 20},
		{"fractional burst", 1, 2.5, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.rate, tt.burst)
			if l.Limit() != tt.wantRate || l.Burst() != tt.wantBurst {
				t.Errorf("rate=%v burst=%v, want %v/%v", l.Limit(), l.Burst(), tt.wantRate, tt.wantBurst)
			}
		})
	}
}

func TestNew_StartsFull(t *testing.T) {
	l := New(1, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if l.Allow() {
		t.Error("Allow() after burst should be false")
	}
}

func TestNew_WeightedWait(t *testing.T) {
	l := New(100, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.WaitN(ctx, 5); err != nil {
		t.Fatalf("WaitN(5) failed: %v", err)
	}
	if err := l.WaitN(ctx, 5); err != nil {
		t.Fatalf("WaitN(5) failed: %v", err)
	}
	if l.AllowN(time.Now(), 5) {
		t.Error("bucket should be nearly empty after 10 weight")
	}
}

func TestRegistry_SharesPerKey(t *testing.T) {
	reg := NewRegistry(1, 2)

	a1 := reg.Get("live:key-a")
	a2 := reg.Get("live:key-a")
	b := reg.Get("live:key-b")

	if a1 != a2 {
		t.Error("same key must return the same limiter")
	}
	if a1 == b {
		t.Error("different keys must not share a limiter")
	}

	// исчерпание одного ключа не трогает другой
	a1.Allow()
	a1.Allow()
	if a2.Allow() {
		t.Error("shared limiter should be exhausted")
	}
	if !b.Allow() {
		t.Error("limiter of another key should be full")
	}
}
