package metrics

import (
	"sync"
)

// Collector aggregates counters and gauges describing the full-duplex
// loop's behavior across its lifetime: periods completed per channel,
// drift-correction activity, and recovery events.
type Collector struct {
	mu sync.RWMutex

	periodsCompleted map[string]uint64 // keyed by channel name ("read"/"write")
	gapResets        uint64
	lateWakeups      uint64
	mismatches       uint64

	readCorrection  int64
	writeCorrection int64
	readBalance     int64
	writeBalance    int64

	runsStarted   uint64
	runsSucceeded uint64
	runsFailed    uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		periodsCompleted: make(map[string]uint64),
	}
}

// PeriodCompleted records a channel completing one period.
func (c *Collector) PeriodCompleted(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodsCompleted[channel]++
}

// GapReset records a hard resynchronization event.
func (c *Collector) GapReset(gapFrames int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gapResets++
}

// LateWakeup records a simulated or real late scheduler wakeup.
func (c *Collector) LateWakeup(extraFrames int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lateWakeups++
}

// ScheduleMismatch records a completion frame disagreeing with its
// scheduled deadline.
func (c *Collector) ScheduleMismatch(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mismatches++
}

// SetCorrection updates the current drift-correction gauges.
func (c *Collector) SetCorrection(readCorrection, writeCorrection int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readCorrection = readCorrection
	c.writeCorrection = writeCorrection
}

// SetBalance updates the current channel-balance gauges.
func (c *Collector) SetBalance(readBalance, writeBalance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readBalance = readBalance
	c.writeBalance = writeBalance
}

// RunStarted records the start of a loop invocation.
func (c *Collector) RunStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runsStarted++
}

// RunFinished records the outcome of a loop invocation.
func (c *Collector) RunFinished(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.runsSucceeded++
	} else {
		c.runsFailed++
	}
}

// Reset clears gauges back to zero; cumulative counters are untouched.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readCorrection = 0
	c.writeCorrection = 0
	c.readBalance = 0
	c.writeBalance = 0
}

// GetPeriodsCompleted returns the total periods completed on the given channel.
func (c *Collector) GetPeriodsCompleted(channel string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.periodsCompleted[channel]
}

// GetTotalPeriodsCompleted returns periods completed summed across channels.
func (c *Collector) GetTotalPeriodsCompleted() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total uint64
	for _, v := range c.periodsCompleted {
		total += v
	}
	return total
}

// GetGapResets returns the total number of hard resynchronizations.
func (c *Collector) GetGapResets() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gapResets
}

// GetLateWakeups returns the total number of late wakeups observed.
func (c *Collector) GetLateWakeups() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lateWakeups
}

// GetMismatches returns the total number of schedule mismatches logged.
func (c *Collector) GetMismatches() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mismatches
}

// GetCorrection returns the current read and write correction gauges.
func (c *Collector) GetCorrection() (read, write int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readCorrection, c.writeCorrection
}

// GetBalance returns the current read and write balance gauges.
func (c *Collector) GetBalance() (read, write int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readBalance, c.writeBalance
}

// GetRunsStarted returns the total number of loop invocations started.
func (c *Collector) GetRunsStarted() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runsStarted
}

// GetRunsSucceeded returns the total number of loop invocations that completed successfully.
func (c *Collector) GetRunsSucceeded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runsSucceeded
}

// GetRunsFailed returns the total number of loop invocations that failed.
func (c *Collector) GetRunsFailed() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runsFailed
}
