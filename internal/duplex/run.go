// Package duplex implements synchronous full-duplex audio I/O: a record
// channel and a playback channel phase-locked against a shared frame
// clock, with drift correction absorbing sample-rate skew between the two
// and a gap-recovery path for scheduler stalls. See the package's
// component types (Buffer, DoubleBuffer, Correction, Run) for the pieces;
// Run is the loop driver that ties them together.
package duplex

import (
	"context"
	"errors"
	"fmt"

	"github.com/avnsound/duplexd/internal/clock"
	"github.com/avnsound/duplexd/pkg/logger"
)

// Error kinds. All are fatal to the current run; none is retried.
var (
	ErrConfiguration = errors.New("duplex: configuration error")
	ErrDevice        = errors.New("duplex: device error")
	ErrClock         = errors.New("duplex: clock error")
)

// gapThreshold distinguishes normal jitter from a pathological scheduler
// stall: below it, correction absorbs drift; above it, the loop abandons
// the current schedule and re-anchors both channels.
const gapThreshold = 1024

// Config holds the parameters of a single read_write invocation.
type Config struct {
	// Period is the scheduling quantum in frames.
	Period uint
	// Repetitions bounds the loop: it ends once this many total
	// per-channel completions have been observed (a shared counter
	// incremented by either channel's completion, not a full-duplex
	// period count).
	Repetitions uint
	// MemoryMap requests DMA-mapped transfer; initialization fails unless
	// both channels support it.
	MemoryMap bool

	// SimDelayEvery, when non-zero, injects SimDelayFrames of extra sleep
	// once per SimDelayEvery 1024-frame block, exercising the gap-recovery
	// path. Zero disables it; production runs should leave this at zero.
	SimDelayEvery uint
	// SimDelayFrames is the extra delay injected per SimDelayEvery trigger.
	SimDelayFrames int64
}

// IterationState is a snapshot of loop state, broadcast to telemetry
// hooks once per iteration.
type IterationState struct {
	SyncFrames      int64
	ReadBalance     int64
	WriteBalance    int64
	ReadCorrection  int64
	WriteCorrection int64
	Gap             int64
	Finished        uint
}

// Hooks are optional, non-blocking callbacks the driver invokes for
// diagnostics, metrics, and telemetry. A nil hook is skipped.
type Hooks struct {
	OnIteration  func(IterationState)
	OnGapReset   func(gapFrames int64)
	OnLateWakeup func(extraFrames int64)
	OnMismatch   func(channel string, scheduledEnd, actual int64)
}

// ClockFactory constructs the frame clock the loop driver owns for the
// duration of a run. Defaults to clock.New.
type ClockFactory func(sampleRate uint) (clock.Clock, error)

// Run owns both double-buffers, both correction filters, and the frame
// clock, and runs the period-by-period loop. R and W are the concrete
// read and write device types, fixed at compile time: the Go-generic
// re-expression of a single class template parameterized by channel
// kind, giving each direction its own scheduling envelope without a
// runtime type switch.
type Run[R Device, W Device] struct {
	cfg          Config
	log          *logger.Logger
	hooks        Hooks
	clockFactory ClockFactory

	readDevice  R
	writeDevice W

	clk   clock.Clock
	read  *DoubleBuffer[R]
	write *DoubleBuffer[W]

	readCorrection  *Correction
	writeCorrection *Correction

	// syncFrames is the loop's single source of truth for "current time."
	// It is mutated only inside sleep; every other step reads it.
	syncFrames int64
	finished   uint

	// inFrames/outFrames track the reset baseline shift applied after a
	// gap; diagnostic only.
	inFrames, outFrames int64

	lastSimDelayBlock int64
}

// Option configures a Run at construction time.
type Option[R Device, W Device] func(*Run[R, W])

// WithLogger injects a logger; a quiet error-level logger is used if omitted.
func WithLogger[R Device, W Device](log *logger.Logger) Option[R, W] {
	return func(r *Run[R, W]) { r.log = log }
}

// WithHooks installs telemetry/metrics/mqtt callbacks.
func WithHooks[R Device, W Device](h Hooks) Option[R, W] {
	return func(r *Run[R, W]) { r.hooks = h }
}

// WithClockFactory overrides how the run constructs its frame clock,
// primarily for tests that need a deterministic fake clock.
func WithClockFactory[R Device, W Device](f ClockFactory) Option[R, W] {
	return func(r *Run[R, W]) { r.clockFactory = f }
}

// New constructs a Run over the given read (record) and write (playback)
// devices. No device or clock state is touched until ReadWrite is called.
func New[R Device, W Device](cfg Config, readDevice R, writeDevice W, opts ...Option[R, W]) *Run[R, W] {
	r := &Run[R, W]{
		cfg:               cfg,
		log:               logger.New(logger.Config{Level: "error"}),
		readDevice:        readDevice,
		writeDevice:       writeDevice,
		readCorrection:    NewCorrection(),
		writeCorrection:   NewCorrection(),
		lastSimDelayBlock: -1,
		clockFactory: func(sampleRate uint) (clock.Clock, error) {
			return clock.New(sampleRate)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadWrite runs initialization followed by the steady-state loop until
// Repetitions completions have been observed or a fatal error occurs. It
// returns true only on a fully completed run; any failure, including
// context cancellation, returns false, and both channels are closed.
func (r *Run[R, W]) ReadWrite(ctx context.Context) (ok bool, err error) {
	defer func() {
		if ok {
			if r.cfg.MemoryMap {
				_ = r.read.MemoryUnmap()
				_ = r.write.MemoryUnmap()
			}
		} else {
			_ = r.readDevice.Close()
			_ = r.writeDevice.Close()
		}
	}()

	if err = r.init(); err != nil {
		r.log.Error("initialization failed", logger.Error(err))
		return false, err
	}

	for r.finished < r.cfg.Repetitions {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		if err := r.process(); err != nil {
			r.log.Error("process failed", logger.Error(err))
			return false, err
		}

		r.checkCompletion()

		gap, err := r.sleep()
		if err != nil {
			r.log.Error("sleep failed", logger.Error(err))
			return false, err
		}
		if gap > 0 {
			r.inFrames += gap
			r.outFrames += gap
		}

		if r.hooks.OnIteration != nil {
			r.hooks.OnIteration(IterationState{
				SyncFrames:      r.syncFrames,
				ReadBalance:     r.read.Balance(),
				WriteBalance:    r.write.Balance(),
				ReadCorrection:  r.readCorrection.Correction,
				WriteCorrection: r.writeCorrection.Correction,
				Gap:             gap,
				Finished:        r.finished,
			})
		}
	}

	ok = true
	return true, nil
}

func (r *Run[R, W]) init() error {
	if !r.readDevice.Recording() || !r.writeDevice.Playback() {
		return fmt.Errorf("%w: read channel must record and write channel must play back", ErrConfiguration)
	}

	if r.cfg.MemoryMap {
		if !r.readDevice.CanMemoryMap() || !r.writeDevice.CanMemoryMap() {
			return fmt.Errorf("%w: memory mapping requested but not supported by both channels", ErrConfiguration)
		}
		if err := r.readDevice.MemoryMap(); err != nil {
			return fmt.Errorf("%w: read channel memory map: %v", ErrConfiguration, err)
		}
		if err := r.writeDevice.MemoryMap(); err != nil {
			return fmt.Errorf("%w: write channel memory map: %v", ErrConfiguration, err)
		}
	}

	if r.readDevice.SampleRate() != r.writeDevice.SampleRate() {
		return fmt.Errorf("%w: sample rate mismatch (read=%d write=%d)", ErrConfiguration, r.readDevice.SampleRate(), r.writeDevice.SampleRate())
	}
	if r.readDevice.Stepping() != r.writeDevice.Stepping() {
		return fmt.Errorf("%w: stepping mismatch (read=%d write=%d)", ErrConfiguration, r.readDevice.Stepping(), r.writeDevice.Stepping())
	}

	period := int64(r.cfg.Period)
	r.read = NewDoubleBuffer[R](r.readDevice, period)
	r.write = NewDoubleBuffer[W](r.writeDevice, period)

	if err := r.read.SetBuffer(NewBuffer(r.cfg.Period, r.readDevice.FrameSize()), period); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := r.read.SetBuffer(NewBuffer(r.cfg.Period, r.readDevice.FrameSize()), 2*period); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := r.write.SetBuffer(NewBuffer(r.cfg.Period, r.writeDevice.FrameSize()), period); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := r.write.SetBuffer(NewBuffer(r.cfg.Period, r.writeDevice.FrameSize()), 2*period); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := r.readDevice.AddToSyncGroup(0); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := r.writeDevice.AddToSyncGroup(0); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := r.readDevice.StartSyncGroup(0); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	clk, err := r.clockFactory(r.readDevice.SampleRate())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClock, err)
	}
	r.clk = clk
	r.syncFrames = clk.Now()

	return nil
}

func (r *Run[R, W]) process() error {
	if r.read.WakeupTime(r.syncFrames) <= r.syncFrames {
		if ok, err := r.read.Process(r.syncFrames); !ok {
			return fmt.Errorf("%w: read channel: %v", ErrDevice, err)
		}
	}
	if r.write.WakeupTime(r.syncFrames) <= r.syncFrames {
		if ok, err := r.write.Process(r.syncFrames); !ok {
			return fmt.Errorf("%w: write channel: %v", ErrDevice, err)
		}
	}

	r.read.LogState(r.log, r.syncFrames)
	r.write.LogState(r.log, r.syncFrames)
	return nil
}

func (r *Run[R, W]) checkCompletion() {
	r.completeChannel("read", r.read, r.readCorrection)
	r.completeChannel("write", r.write, r.writeCorrection)
}

// completeChannel is shared between the read and write DoubleBuffer
// instantiations; both satisfy this narrow view of their method set
// regardless of the device type parameter.
func (r *Run[R, W]) completeChannel(name string, dbuf interface {
	Finished(int64) bool
	Balance() int64
	PeriodEnd() int64
	TakeBuffer() (*Buffer, error)
	SetBuffer(*Buffer, int64) error
}, correction *Correction) {
	if !dbuf.Finished(r.syncFrames) {
		return
	}

	correction.Correct(dbuf.Balance())

	// scheduledEnd is the furthest-queued slot's end_frame, captured
	// before TakeBuffer promotes it to front; in steady state this equals
	// sync_frames + period.
	scheduledEnd := dbuf.PeriodEnd()
	if r.syncFrames+int64(r.cfg.Period) != scheduledEnd {
		r.log.Info("completion frame disagrees with schedule",
			logger.String("channel", name),
			logger.Int64("sync_frames", r.syncFrames),
			logger.Int64("scheduled_end", scheduledEnd))
		if r.hooks.OnMismatch != nil {
			r.hooks.OnMismatch(name, scheduledEnd, r.syncFrames+int64(r.cfg.Period))
		}
	}

	buf, err := dbuf.TakeBuffer()
	if err != nil {
		r.log.Warn("take_buffer failed", logger.String("channel", name), logger.Error(err))
		return
	}
	buf.Zero()

	newEnd := scheduledEnd + int64(r.cfg.Period)
	if err := dbuf.SetBuffer(buf, newEnd+correction.Correction); err != nil {
		r.log.Warn("set_buffer failed", logger.String("channel", name), logger.Error(err))
	}

	r.finished++
}

// sleep advances sync_frames to the next actionable instant, applying
// step-aligned catch-up for late wakeups and hard gap recovery for
// pathological stalls. It returns the gap applied, if any.
func (r *Run[R, W]) sleep() (int64, error) {
	wakeup := r.read.WakeupTime(r.syncFrames)
	if w := r.write.WakeupTime(r.syncFrames); w < wakeup {
		wakeup = w
	}

	if wakeup > r.syncFrames {
		simDelay := r.simDelay(wakeup)
		if simDelay > 0 && r.hooks.OnLateWakeup != nil {
			r.hooks.OnLateWakeup(simDelay)
		}
		if err := r.clk.Sleep(wakeup + simDelay); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrClock, err)
		}
		r.syncFrames = wakeup
	}

	now := r.clk.Now()
	syncDiff := now - r.syncFrames
	stepping := int64(r.read.Stepping())
	if syncDiff > stepping {
		rounded := (syncDiff / stepping) * stepping
		r.syncFrames += rounded
		r.log.Info("late wakeup catch-up",
			logger.Int64("sync_diff", syncDiff),
			logger.Int64("applied", rounded))
	}

	gap := max64(0, r.syncFrames-r.read.PeriodEnd(), r.syncFrames-r.write.PeriodEnd())
	if gap > gapThreshold {
		r.read.ResetBuffers(r.read.EndFrames() + gap)
		r.write.ResetBuffers(r.write.EndFrames() + gap)
		r.log.Warn("gap reset", logger.Int64("gap", gap))
		if r.hooks.OnGapReset != nil {
			r.hooks.OnGapReset(gap)
		}
	} else {
		gap = 0
	}

	return gap, nil
}

// simDelay returns the extra delay to inject on top of the given wakeup
// deadline, once per SimDelayEvery 1024-frame block. It is the production
// no-op path unless Config.SimDelayEvery is set by a test harness.
func (r *Run[R, W]) simDelay(wakeup int64) int64 {
	if r.cfg.SimDelayEvery == 0 {
		return 0
	}
	block := wakeup / 1024
	if block == r.lastSimDelayBlock {
		return 0
	}
	if block%int64(r.cfg.SimDelayEvery) == 0 {
		r.lastSimDelayBlock = block
		return r.cfg.SimDelayFrames
	}
	return 0
}

func max64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
