package player

import (
	"sync"
	"time"
)

// SleepTimer pauses playback when its deadline passes. Starting it again
// replaces the previous deadline.
type SleepTimer struct {
	mu       sync.Mutex
	onExpire func()
	timer    *time.Timer
	deadline time.Time
}

func NewSleepTimer(onExpire func()) *SleepTimer {
	return &SleepTimer{onExpire: onExpire}
}

// Start arms the timer for d from now.
func (t *SleepTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.deadline = time.Now().Add(d)
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		t.timer = nil
		t.deadline = time.Time{}
		t.mu.Unlock()
		t.onExpire()
	})
}

// Cancel disarms the timer if it is running.
func (t *SleepTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.deadline = time.Time{}
}

// Remaining reports the time left, or zero when the timer is off.
func (t *SleepTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deadline.IsZero() {
		return 0
	}
	d := time.Until(t.deadline)
	if d < 0 {
		return 0
	}
	return d
}
