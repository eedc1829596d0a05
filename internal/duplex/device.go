package duplex

import "github.com/avnsound/duplexd/pkg/logger"

// Device is the contract required of the device driver layer: opening a
// device, configuring format, mapping DMA regions, reading the hardware
// frame pointer, and issuing transfers is all out of scope for this
// package — a Device only needs to satisfy this interface.
//
// A Device accepts exactly one assigned buffer at a time; DoubleBuffer
// layers the two-slot scheduling envelope described on DoubleBuffer on
// top of that single active assignment, enqueuing a second buffer in
// software and re-assigning once the first finishes.
type Device interface {
	Recording() bool
	Playback() bool
	SampleRate() uint
	FrameSize() uint
	// Stepping is the device's minimum transfer granularity in frames (16
	// at <=48kHz, 32 at 96kHz, 64 at 192kHz).
	Stepping() uint

	CanMemoryMap() bool
	MemoryMap() error
	MemoryUnmap() error

	AddToSyncGroup(id int) error
	StartSyncGroup(id int) error

	Close() error
	LogState(log *logger.Logger, syncFrames int64)

	// Assign hands the device the buffer it should transfer into/out of
	// next. Called once when a buffer becomes the active (front) slot.
	Assign(buf *Buffer)
	// Transfer moves as many frames as the device will currently accept
	// into/out of the assigned buffer, at most one period's worth, and
	// returns the number of frames transferred. Returns an error only on
	// device failure.
	Transfer(syncFrames int64) (uint, error)
	// FramePointer is the device's frame-accurate hardware position: total
	// frames transferred since the channel started.
	FramePointer() int64
}
