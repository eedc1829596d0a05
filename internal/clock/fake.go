package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Sleep advances the fake's notion
// of "now" to the deadline without blocking; Overshoot, when set, lets a
// test simulate a late wakeup by returning extra frames to add on top of
// the deadline on the next Sleep call.
type Fake struct {
	mu         sync.Mutex
	sampleRate uint
	now        int64
	Overshoot  func() int64
	SleepErr   error
}

// NewFake creates a fake clock starting at frame 0.
func NewFake(sampleRate uint) *Fake {
	return &Fake{sampleRate: sampleRate}
}

// Now returns the fake clock's current frame count.
func (f *Fake) Now() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake clock to deadlineFrames (plus any configured
// overshoot) without blocking the caller.
func (f *Fake) Sleep(deadlineFrames int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SleepErr != nil {
		return f.SleepErr
	}
	target := deadlineFrames
	if f.Overshoot != nil {
		target += f.Overshoot()
	}
	if target > f.now {
		f.now = target
	}
	return nil
}

// FramesToTime converts frames to a duration at this clock's sample rate.
func (f *Fake) FramesToTime(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(f.sampleRate)
}

// Advance moves the fake clock forward by n frames directly, bypassing
// Sleep. Useful for setting up test preconditions.
func (f *Fake) Advance(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += n
}
