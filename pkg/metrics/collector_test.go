package metrics

import (
	"testing"
)

// TestNewCollector tests creating a new metrics collector
func TestNewCollector(t *testing.T) {
	collector := NewCollector()
	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
}

// TestCollector_PeriodsCompleted tests per-channel period counters
func TestCollector_PeriodsCompleted(t *testing.T) {
	collector := NewCollector()

	collector.PeriodCompleted("read")
	collector.PeriodCompleted("read")
	collector.PeriodCompleted("write")

	if got := collector.GetPeriodsCompleted("read"); got != 2 {
		t.Errorf("Expected 2 read periods, got %d", got)
	}
	if got := collector.GetPeriodsCompleted("write"); got != 1 {
		t.Errorf("Expected 1 write period, got %d", got)
	}
	if got := collector.GetTotalPeriodsCompleted(); got != 3 {
		t.Errorf("Expected 3 total periods, got %d", got)
	}
}

// TestCollector_GapResets tests gap-reset counters
func TestCollector_GapResets(t *testing.T) {
	collector := NewCollector()

	collector.GapReset(2048)
	resets := collector.GetGapResets()
	if resets != 1 {
		t.Errorf("Expected 1 gap reset, got %d", resets)
	}
}

// TestCollector_LateWakeups tests late-wakeup counters
func TestCollector_LateWakeups(t *testing.T) {
	collector := NewCollector()

	collector.LateWakeup(8192)
	collector.LateWakeup(8192)
	wakeups := collector.GetLateWakeups()
	if wakeups != 2 {
		t.Errorf("Expected 2 late wakeups, got %d", wakeups)
	}
}

// TestCollector_Mismatches tests schedule-mismatch counters
func TestCollector_Mismatches(t *testing.T) {
	collector := NewCollector()

	collector.ScheduleMismatch("read")
	if got := collector.GetMismatches(); got != 1 {
		t.Errorf("Expected 1 mismatch, got %d", got)
	}
}

// TestCollector_CorrectionGauges tests the correction gauge pair
func TestCollector_CorrectionGauges(t *testing.T) {
	collector := NewCollector()

	collector.SetCorrection(12, -5)
	read, write := collector.GetCorrection()
	if read != 12 || write != -5 {
		t.Errorf("Expected correction (12,-5), got (%d,%d)", read, write)
	}
}

// TestCollector_BalanceGauges tests the balance gauge pair
func TestCollector_BalanceGauges(t *testing.T) {
	collector := NewCollector()

	collector.SetBalance(100, -40)
	read, write := collector.GetBalance()
	if read != 100 || write != -40 {
		t.Errorf("Expected balance (100,-40), got (%d,%d)", read, write)
	}
}

// TestCollector_RunOutcomes tests run-lifecycle counters
func TestCollector_RunOutcomes(t *testing.T) {
	collector := NewCollector()

	collector.RunStarted()
	collector.RunStarted()
	collector.RunFinished(true)
	collector.RunFinished(false)

	if got := collector.GetRunsStarted(); got != 2 {
		t.Errorf("Expected 2 runs started, got %d", got)
	}
	if got := collector.GetRunsSucceeded(); got != 1 {
		t.Errorf("Expected 1 run succeeded, got %d", got)
	}
	if got := collector.GetRunsFailed(); got != 1 {
		t.Errorf("Expected 1 run failed, got %d", got)
	}
}

// TestCollector_Reset tests resetting gauges
func TestCollector_Reset(t *testing.T) {
	collector := NewCollector()

	collector.SetCorrection(10, 10)
	collector.SetBalance(10, 10)
	collector.Reset()

	read, write := collector.GetCorrection()
	if read != 0 || write != 0 {
		t.Error("Expected correction gauges to be 0 after reset")
	}
}

// TestCollector_Concurrent tests concurrent access
func TestCollector_Concurrent(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.PeriodCompleted("read")
			collector.SetCorrection(int64(id), int64(id))
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if collector.GetPeriodsCompleted("read") != 10 {
		t.Error("Expected 10 completed read periods")
	}
}
