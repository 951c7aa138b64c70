package main

import (
	"sync"
	"testing"
	"time"
)

func TestIdleTimer_FiresOnceWithGeneration(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []uint64
	)
	timer := newIdleTimer(func(gen uint64) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, gen)
	})
	defer timer.Stop()

	timer.Arm(7, 20*time.Millisecond)

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, "idle timer did not fire")

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != 7 {
		t.Fatalf("expected a single fire with gen 7, got %v", fired)
	}
}

func TestIdleTimer_RearmSupersedes(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []uint64
	)
	timer := newIdleTimer(func(gen uint64) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, gen)
	})
	defer timer.Stop()

	timer.Arm(1, 40*time.Millisecond)
	timer.Arm(2, 80*time.Millisecond)

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) > 0
	}, "idle timer did not fire")

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != 2 {
		t.Fatalf("expected only gen 2 to fire, got %v", fired)
	}
}

func TestIdleTimer_StopCancels(t *testing.T) {
	fired := make(chan uint64, 1)
	timer := newIdleTimer(func(gen uint64) { fired <- gen })

	timer.Arm(1, 20*time.Millisecond)
	timer.Stop()

	select {
	case gen := <-fired:
		t.Fatalf("stopped timer fired with gen %d", gen)
	case <-time.After(80 * time.Millisecond):
	}
}
