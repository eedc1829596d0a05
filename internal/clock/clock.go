// Package clock provides a monotonic time base expressed in frames at a
// fixed sample rate, with sleep-until-frame and now-in-frames primitives.
package clock

import (
	"fmt"
	"time"
)

// Clock is the frame-time contract the loop driver depends on. now() never
// decreases; sleep() returns once monotonic time has reached the given
// frame deadline.
type Clock interface {
	// Now returns the current time in frames since the clock's origin.
	Now() int64
	// Sleep blocks until monotonic time has reached deadlineFrames. It may
	// overshoot by a scheduler quantum; it fails only if the underlying
	// sleep primitive errors.
	Sleep(deadlineFrames int64) error
	// FramesToTime converts a frame count to a duration at this clock's
	// sample rate. Used for diagnostics only.
	FramesToTime(frames int64) time.Duration
}

// FrameClock is the production Clock, backed by the runtime's monotonic
// clock reading.
type FrameClock struct {
	sampleRate uint
	origin     time.Time
}

// New establishes a frame clock at sampleRate, with its origin set so that
// Now() returns 0 at the instant of this call.
func New(sampleRate uint) (*FrameClock, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("clock: sample rate must be positive")
	}
	return &FrameClock{
		sampleRate: sampleRate,
		origin:     time.Now(),
	}, nil
}

// Now returns frames elapsed since the clock was created.
func (c *FrameClock) Now() int64 {
	return framesSince(c.origin, c.sampleRate)
}

// Sleep blocks until the clock reaches deadlineFrames.
func (c *FrameClock) Sleep(deadlineFrames int64) error {
	now := c.Now()
	if deadlineFrames <= now {
		return nil
	}
	time.Sleep(c.FramesToTime(deadlineFrames - now))
	return nil
}

// FramesToTime converts a frame count to wall-clock duration.
func (c *FrameClock) FramesToTime(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(c.sampleRate)
}

func framesSince(origin time.Time, sampleRate uint) int64 {
	elapsed := time.Since(origin)
	return elapsed.Nanoseconds() * int64(sampleRate) / int64(time.Second)
}
