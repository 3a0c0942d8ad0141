package pipeline

import (
	"testing"
	"time"
)

func TestBackoff_NonDecreasingAndCapped(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 400*time.Millisecond, 6)

	var prev time.Duration
	for i := 0; i < 6; i++ {
		delay, ok := b.Next()
		if !ok {
			t.Fatalf("attempt %d refused before budget spent", i)
		}
		if delay < prev {
			t.Errorf("attempt %d: delay %v shrank below %v", i, delay, prev)
		}
		if delay > 400*time.Millisecond {
			t.Errorf("attempt %d: delay %v exceeds cap", i, delay)
		}
		prev = delay
	}
	if prev != 400*time.Millisecond {
		t.Errorf("final delay = %v, want cap", prev)
	}

	if _, ok := b.Next(); ok {
		t.Error("backoff handed out a retry past the attempt budget")
	}
}

func TestBackoff_Doubles(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 4)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		delay, ok := b.Next()
		if !ok || delay != w {
			t.Errorf("attempt %d: delay = %v/%v, want %v", i, delay, ok, w)
		}
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 2)
	b.Next()
	b.Next()
	if _, ok := b.Next(); ok {
		t.Fatal("budget not exhausted")
	}

	b.Reset()
	delay, ok := b.Next()
	if !ok || delay != time.Second {
		t.Errorf("after reset: delay = %v/%v, want 1s/true", delay, ok)
	}
}

func TestBackoff_DefaultsSanitized(t *testing.T) {
	b := NewBackoff(0, 0, 1)
	delay, ok := b.Next()
	if !ok || delay <= 0 {
		t.Errorf("delay = %v/%v, want positive delay", delay, ok)
	}
}
