package database

import (
	"time"

	"gorm.io/gorm"
)

// RunRepository handles run-history database operations.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create adds a new run record.
func (r *RunRepository) Create(run *RunRecord) error {
	return r.db.Create(run).Error
}

// GetRecent retrieves the most recent N run records.
func (r *RunRepository) GetRecent(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := r.db.Order("start_time DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRecentPaginated retrieves run records with pagination.
func (r *RunRepository) GetRecentPaginated(page, perPage int) ([]RunRecord, int64, error) {
	var runs []RunRecord
	var total int64

	if err := r.db.Model(&RunRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	err := r.db.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&runs).Error

	return runs, total, err
}

// GetByRunID retrieves a single run record by its UUID.
func (r *RunRepository) GetByRunID(runID string) (*RunRecord, error) {
	var run RunRecord
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetByOutcome retrieves the most recent N runs matching the given
// success/failure outcome.
func (r *RunRepository) GetByOutcome(succeeded bool, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := r.db.Where("success = ?", succeeded).
		Order("start_time DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// GetByTimeRange retrieves run records within a time range.
func (r *RunRepository) GetByTimeRange(start, end time.Time, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := r.db.Where("start_time BETWEEN ? AND ?", start, end).
		Order("start_time DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// DeleteOlderThan deletes run records older than the specified time.
func (r *RunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&RunRecord{})
	return result.RowsAffected, result.Error
}
