package duplex

import (
	"fmt"

	"github.com/avnsound/duplexd/pkg/logger"
)

// SimDevice is the reference Device implementation: an in-memory channel
// with no real hardware behind it, carrying opaque bytes the core loop
// never inspects. Actual ALSA/OSS device drivers are out of scope for this
// repository and would implement the same Device interface against real
// DMA-mapped ring buffers instead.
//
// A SimDevice transfers a buffer's entire remaining frames the instant
// Transfer is called, simulating a device that has been continuously
// filling/draining in the background and simply reports what is ready once
// its deadline is checked.
type SimDevice struct {
	name       string
	recording  bool
	sampleRate uint
	frameSize  uint
	stepping   uint

	canMemoryMap bool
	mapped       bool
	closed       bool
	syncGroups   map[int]bool
	syncStarted  map[int]bool

	assigned         *Buffer
	totalTransferred int64

	// FailTransfer, when set, is returned by the next Transfer call instead
	// of performing a transfer. Used by tests to exercise the Device-error
	// fatal path.
	FailTransfer error
	// FailMemoryMap, when set, is returned by MemoryMap.
	FailMemoryMap error
}

// NewSimDevice constructs a simulated recording or playback device.
func NewSimDevice(name string, recording bool, sampleRate, frameSize, stepping uint, canMemoryMap bool) *SimDevice {
	return &SimDevice{
		name:         name,
		recording:    recording,
		sampleRate:   sampleRate,
		frameSize:    frameSize,
		stepping:     stepping,
		canMemoryMap: canMemoryMap,
		syncGroups:   make(map[int]bool),
		syncStarted:  make(map[int]bool),
	}
}

func (s *SimDevice) Recording() bool     { return s.recording }
func (s *SimDevice) Playback() bool      { return !s.recording }
func (s *SimDevice) SampleRate() uint    { return s.sampleRate }
func (s *SimDevice) FrameSize() uint     { return s.frameSize }
func (s *SimDevice) Stepping() uint      { return s.stepping }
func (s *SimDevice) CanMemoryMap() bool  { return s.canMemoryMap }

func (s *SimDevice) MemoryMap() error {
	if s.FailMemoryMap != nil {
		return s.FailMemoryMap
	}
	if !s.canMemoryMap {
		return fmt.Errorf("duplex: %s does not support memory mapping", s.name)
	}
	s.mapped = true
	return nil
}

func (s *SimDevice) MemoryUnmap() error {
	s.mapped = false
	return nil
}

func (s *SimDevice) AddToSyncGroup(id int) error {
	s.syncGroups[id] = true
	return nil
}

func (s *SimDevice) StartSyncGroup(id int) error {
	if !s.syncGroups[id] {
		return fmt.Errorf("duplex: %s is not a member of sync group %d", s.name, id)
	}
	s.syncStarted[id] = true
	return nil
}

func (s *SimDevice) Close() error {
	s.closed = true
	return nil
}

func (s *SimDevice) Closed() bool { return s.closed }
func (s *SimDevice) Mapped() bool { return s.mapped }

func (s *SimDevice) LogState(log *logger.Logger, syncFrames int64) {
	if log == nil {
		return
	}
	log.Debug("channel state",
		logger.String("channel", s.name),
		logger.Int64("sync_frames", syncFrames),
		logger.Int64("frame_pointer", s.totalTransferred))
}

func (s *SimDevice) Assign(buf *Buffer) {
	s.assigned = buf
}

func (s *SimDevice) Transfer(syncFrames int64) (uint, error) {
	if s.FailTransfer != nil {
		return 0, s.FailTransfer
	}
	if s.assigned == nil {
		return 0, nil
	}
	n := s.assigned.Remaining()
	s.totalTransferred += int64(n)
	return n, nil
}

func (s *SimDevice) FramePointer() int64 {
	return s.totalTransferred
}
