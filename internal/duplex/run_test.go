package duplex

import (
	"context"
	"testing"
	"time"

	"github.com/avnsound/duplexd/internal/clock"
)

func fakeClockFactory(fake *clock.Fake) ClockFactory {
	return func(sampleRate uint) (clock.Clock, error) {
		return fake, nil
	}
}

func newTestRun(t *testing.T, cfg Config, fake *clock.Fake) (*Run[*SimDevice, *SimDevice], *SimDevice, *SimDevice) {
	t.Helper()
	read := NewSimDevice("read", true, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 48000, 4, 16, true)
	run := New(cfg, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
	)
	return run, read, write
}

func TestRun_SteadyStateCompletesRepetitions(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 16}
	run, _, _ := newTestRun(t, cfg, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := run.ReadWrite(ctx)
	if err != nil {
		t.Fatalf("ReadWrite: %v", err)
	}
	if !ok {
		t.Fatal("ReadWrite returned false, want true for a clean completion")
	}
	if run.finished < cfg.Repetitions {
		t.Errorf("finished = %d, want >= %d", run.finished, cfg.Repetitions)
	}
}

func TestRun_ZeroRepetitionsCompletesImmediately(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 0}
	run, _, _ := newTestRun(t, cfg, fake)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ok, err := run.ReadWrite(ctx)
	if err != nil {
		t.Fatalf("ReadWrite: %v", err)
	}
	if !ok {
		t.Fatal("ReadWrite returned false for a zero-repetition run")
	}
}

func TestRun_SampleRateMismatchFailsBeforeAnyTransfer(t *testing.T) {
	fake := clock.NewFake(48000)
	read := NewSimDevice("read", true, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 44100, 4, 16, true)
	run := New(Config{Period: 1024, Repetitions: 4}, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
	)

	ok, err := run.ReadWrite(context.Background())
	if ok || err == nil {
		t.Fatal("expected a configuration error for mismatched sample rates")
	}
	if read.FramePointer() != 0 || write.FramePointer() != 0 {
		t.Error("no transfer should have been attempted before the sample-rate check")
	}
}

func TestRun_SteppingMismatchFails(t *testing.T) {
	fake := clock.NewFake(48000)
	read := NewSimDevice("read", true, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 48000, 4, 32, true)
	run := New(Config{Period: 1024, Repetitions: 4}, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
	)

	ok, err := run.ReadWrite(context.Background())
	if ok || err == nil {
		t.Fatal("expected a configuration error for mismatched stepping")
	}
}

func TestRun_RecordingChannelMustRecord(t *testing.T) {
	fake := clock.NewFake(48000)
	// Both devices configured for playback: the read channel never records.
	read := NewSimDevice("read", false, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 48000, 4, 16, true)
	run := New(Config{Period: 1024, Repetitions: 4}, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
	)

	ok, err := run.ReadWrite(context.Background())
	if ok || err == nil {
		t.Fatal("expected a configuration error when the read channel cannot record")
	}
}

func TestRun_MemoryMapRequestedButUnsupportedFails(t *testing.T) {
	fake := clock.NewFake(48000)
	read := NewSimDevice("read", true, 48000, 4, 16, false)
	write := NewSimDevice("write", false, 48000, 4, 16, true)
	run := New(Config{Period: 1024, Repetitions: 4, MemoryMap: true}, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
	)

	ok, err := run.ReadWrite(context.Background())
	if ok || err == nil {
		t.Fatal("expected a configuration error requesting memory mapping unsupported by both channels")
	}
}

func TestRun_ContextCancellationStopsTheLoop(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 1_000_000}
	run, _, _ := newTestRun(t, cfg, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := run.ReadWrite(ctx)
	if ok {
		t.Fatal("expected ReadWrite to report failure on a pre-cancelled context")
	}
	if err == nil {
		t.Fatal("expected a context error")
	}
}

func TestRun_GapResetFiresHookOnPathologicalStall(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 4}
	read := NewSimDevice("read", true, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 48000, 4, 16, true)

	var gapFrames int64
	run := New(cfg, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
		WithHooks[*SimDevice, *SimDevice](Hooks{
			OnGapReset: func(gap int64) { gapFrames = gap },
		}),
	)

	// A single huge overshoot simulates a scheduler stall well past
	// gapThreshold, forcing a hard resynchronization on the first sleep.
	fired := false
	fake.Overshoot = func() int64 {
		if fired {
			return 0
		}
		fired = true
		return gapThreshold * 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := run.ReadWrite(ctx)
	if err != nil {
		t.Fatalf("ReadWrite: %v", err)
	}
	if !ok {
		t.Fatal("expected the run to recover from the gap and complete")
	}
	if gapFrames <= gapThreshold {
		t.Errorf("OnGapReset fired with gap=%d, want > %d", gapFrames, gapThreshold)
	}
}

func TestRun_LateWakeupHookFromSimDelayInjection(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 8, SimDelayEvery: 1, SimDelayFrames: 100}
	read := NewSimDevice("read", true, 48000, 4, 16, true)
	write := NewSimDevice("write", false, 48000, 4, 16, true)

	var lateWakeups int
	run := New(cfg, read, write,
		WithClockFactory[*SimDevice, *SimDevice](fakeClockFactory(fake)),
		WithHooks[*SimDevice, *SimDevice](Hooks{
			OnLateWakeup: func(extra int64) { lateWakeups++ },
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := run.ReadWrite(ctx)
	if err != nil {
		t.Fatalf("ReadWrite: %v", err)
	}
	if !ok {
		t.Fatal("ReadWrite returned false")
	}
	if lateWakeups == 0 {
		t.Error("expected at least one simulated late wakeup with SimDelayEvery=1")
	}
}

func TestRun_DeviceTransferErrorIsFatal(t *testing.T) {
	fake := clock.NewFake(48000)
	cfg := Config{Period: 1024, Repetitions: 4}
	run, read, _ := newTestRun(t, cfg, fake)
	read.FailTransfer = errDeviceFailure

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := run.ReadWrite(ctx)
	if ok || err == nil {
		t.Fatal("expected the read channel's transfer error to fail the run")
	}
}
