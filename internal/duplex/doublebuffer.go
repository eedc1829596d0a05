package duplex

import (
	"fmt"

	"github.com/avnsound/duplexd/pkg/logger"
)

// slot pairs a queued buffer with the absolute frame at which its last
// sample lands.
type slot struct {
	buf      *Buffer
	endFrame int64
}

// DoubleBuffer wraps a Device and maintains up to two (Buffer, end_frame)
// slots in front of it: a front slot currently in flight with the device,
// and a back slot queued behind it. This is the Go-generic re-expression
// of the source's DoubleBuffer<Channel> class template: D is fixed at
// compile time to the read or write device's concrete type, giving each
// direction its own scheduling envelope without runtime type switches.
type DoubleBuffer[D Device] struct {
	device D
	period int64

	front, back *slot
	lastSync    int64
}

// NewDoubleBuffer wraps device, scheduling buffers period frames apart.
func NewDoubleBuffer[D Device](device D, period int64) *DoubleBuffer[D] {
	return &DoubleBuffer[D]{device: device, period: period}
}

// SetBuffer enqueues buf with deadline endFrame. It fails if both slots are
// already occupied.
func (d *DoubleBuffer[D]) SetBuffer(buf *Buffer, endFrame int64) error {
	switch {
	case d.front == nil:
		d.front = &slot{buf: buf, endFrame: endFrame}
		d.device.Assign(buf)
	case d.back == nil:
		d.back = &slot{buf: buf, endFrame: endFrame}
	default:
		return fmt.Errorf("duplex: both buffer slots occupied")
	}
	return nil
}

// Finished reports whether the front slot's deadline has arrived and the
// device has drained/filled it completely.
func (d *DoubleBuffer[D]) Finished(syncFrames int64) bool {
	return d.front != nil && d.front.endFrame <= syncFrames && d.front.buf.Finished()
}

// TakeBuffer dequeues the front slot and promotes the back slot to front.
// The caller must ensure the front slot is Finished first.
func (d *DoubleBuffer[D]) TakeBuffer() (*Buffer, error) {
	if d.front == nil {
		return nil, fmt.Errorf("duplex: take_buffer called with no front slot queued")
	}
	taken := d.front.buf
	d.front = d.back
	d.back = nil
	if d.front != nil {
		d.device.Assign(d.front.buf)
	}
	return taken, nil
}

// Balance reports the channel's position relative to the clock: the
// device's frame pointer minus the sync_frames observed at the last
// Process call. Positive means the device is ahead of schedule.
func (d *DoubleBuffer[D]) Balance() int64 {
	return d.device.FramePointer() - d.lastSync
}

// PeriodEnd returns the end_frame of the furthest-scheduled slot.
func (d *DoubleBuffer[D]) PeriodEnd() int64 {
	if d.back != nil {
		return d.back.endFrame
	}
	if d.front != nil {
		return d.front.endFrame
	}
	return 0
}

// EndFrames is an alias for PeriodEnd, used by reset recovery.
func (d *DoubleBuffer[D]) EndFrames() int64 {
	return d.PeriodEnd()
}

// WakeupTime reports the next frame instant at which Process needs to be
// called for this channel.
func (d *DoubleBuffer[D]) WakeupTime(syncFrames int64) int64 {
	if d.front == nil {
		return syncFrames
	}
	return d.front.endFrame
}

// Process transfers as many frames as the device will accept right now, at
// most one period's worth. Returns false only on device error.
func (d *DoubleBuffer[D]) Process(syncFrames int64) (bool, error) {
	d.lastSync = syncFrames
	if d.front == nil {
		return true, nil
	}
	n, err := d.device.Transfer(syncFrames)
	if err != nil {
		return false, err
	}
	d.front.buf.Advance(n)
	return true, nil
}

// ResetBuffers discards all scheduling and re-enqueues both slots anchored
// at newEndFrames and newEndFrames+period. Used after a large gap.
func (d *DoubleBuffer[D]) ResetBuffers(newEndFrames int64) {
	frontBuf := NewBuffer(uint(d.period), d.device.FrameSize())
	backBuf := NewBuffer(uint(d.period), d.device.FrameSize())
	d.front = &slot{buf: frontBuf, endFrame: newEndFrames}
	d.back = &slot{buf: backBuf, endFrame: newEndFrames + d.period}
	d.device.Assign(frontBuf)
}

// Forwarded device methods: callers reach the wrapped Device's query and
// lifecycle operations straight through the DoubleBuffer.

func (d *DoubleBuffer[D]) Recording() bool             { return d.device.Recording() }
func (d *DoubleBuffer[D]) Playback() bool              { return d.device.Playback() }
func (d *DoubleBuffer[D]) SampleRate() uint            { return d.device.SampleRate() }
func (d *DoubleBuffer[D]) Stepping() uint              { return d.device.Stepping() }
func (d *DoubleBuffer[D]) FrameSize() uint             { return d.device.FrameSize() }
func (d *DoubleBuffer[D]) CanMemoryMap() bool          { return d.device.CanMemoryMap() }
func (d *DoubleBuffer[D]) MemoryMap() error            { return d.device.MemoryMap() }
func (d *DoubleBuffer[D]) MemoryUnmap() error          { return d.device.MemoryUnmap() }
func (d *DoubleBuffer[D]) AddToSyncGroup(id int) error { return d.device.AddToSyncGroup(id) }
func (d *DoubleBuffer[D]) StartSyncGroup(id int) error { return d.device.StartSyncGroup(id) }
func (d *DoubleBuffer[D]) Close() error                { return d.device.Close() }
func (d *DoubleBuffer[D]) LogState(log *logger.Logger, syncFrames int64) {
	d.device.LogState(log, syncFrames)
}
