package main

import (
	"sync"
	"time"
)

// idleTimer is a single-shot, restartable deadline.
//
// Arm always supersedes: the previous deadline is stopped before the new
// one is scheduled, so at most one is outstanding. A deadline that already
// fired and is waiting to be delivered cannot be recalled; the generation
// it carries lets the reducer drop it.
type idleTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	fire  func(gen uint64)
}

func newIdleTimer(fire func(gen uint64)) *idleTimer {
	return &idleTimer{fire: fire}
}

// Arm schedules fire(gen) after d, cancelling any pending deadline.
// It may be called from inside fire.
func (t *idleTimer) Arm(gen uint64, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
}

// Stop cancels the pending deadline, if any.
func (t *idleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
