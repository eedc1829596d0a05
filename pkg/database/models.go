package database

import (
	"time"

	"gorm.io/gorm"
)

// RunRecord summarizes one completed (or failed) invocation of the
// full-duplex loop: its configuration, outcome, and final filter state.
// Persisted history lets an operator compare drift behavior across runs
// without re-reading log files.
type RunRecord struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	RunID             string    `gorm:"index;size:36" json:"run_id"`
	Period            uint      `gorm:"not null" json:"period"`
	Repetitions       uint      `gorm:"not null" json:"repetitions"`
	SampleRate        uint      `gorm:"not null" json:"sample_rate"`
	Stepping          uint      `gorm:"not null" json:"stepping"`
	MemoryMap         bool      `json:"memory_map"`
	Completed         uint      `gorm:"not null" json:"completed"`
	Success           bool      `json:"success"`
	FailureReason     string    `gorm:"size:255" json:"failure_reason"`
	GapResets         int       `gorm:"default:0" json:"gap_resets"`
	LateWakeups       int       `gorm:"default:0" json:"late_wakeups"`
	FinalReadCorrect  int64     `json:"final_read_correction"`
	FinalWriteCorrect int64     `json:"final_write_correction"`
	StartTime         time.Time `gorm:"index;not null" json:"start_time"`
	EndTime           time.Time `gorm:"not null" json:"end_time"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName specifies the table name for RunRecord.
func (RunRecord) TableName() string {
	return "run_records"
}

// BeforeCreate ensures timestamps are populated when a caller omits them.
func (r *RunRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
	return nil
}

// Duration returns the wall-clock span of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
