package database

import (
	"time"

	"gorm.io/gorm"
)

// AppendProgressRecord persists a new progress observation. Progress history
// is append-only: existing records are never updated or deleted.
func AppendProgressRecord(db *gorm.DB, record *ProgressRecord) error {
	return db.Create(record).Error
}

// LatestProgressBySource returns the most recent progress record for a
// milestone from the given source, or gorm.ErrRecordNotFound.
func LatestProgressBySource(db *gorm.DB, milestoneID uint, source ProgressSource) (*ProgressRecord, error) {
	var record ProgressRecord
	err := db.Where("milestone_id = ? AND source = ?", milestoneID, source).
		Order("reported_at DESC, id DESC").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LatestNonForecastProgress returns the most recent real (non-forecast)
// observation for a milestone, or gorm.ErrRecordNotFound. Forecast records
// are excluded so synthesized estimates never count as ground truth.
func LatestNonForecastProgress(db *gorm.DB, milestoneID uint) (*ProgressRecord, error) {
	var record ProgressRecord
	err := db.Where("milestone_id = ? AND source != ?", milestoneID, ProgressSourceForecast).
		Order("reported_at DESC, id DESC").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LatestProgress returns the most recent progress record of any source for
// a milestone, or gorm.ErrRecordNotFound.
func LatestProgress(db *gorm.DB, milestoneID uint) (*ProgressRecord, error) {
	var record ProgressRecord
	err := db.Where("milestone_id = ?", milestoneID).
		Order("reported_at DESC, id DESC").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindStaleMilestones returns in-progress milestones whose most recent
// non-forecast observation is older than the cutoff, or that have no
// non-forecast observation at all.
func FindStaleMilestones(db *gorm.DB, cutoff time.Time) ([]Milestone, error) {
	var milestones []Milestone
	err := db.Where("status = ?", MilestoneStatusInProgress).
		Where(`id NOT IN (
			SELECT milestone_id FROM progress_records
			WHERE source != ? AND reported_at >= ?
		)`, ProgressSourceForecast, cutoff).
		Find(&milestones).Error
	if err != nil {
		return nil, err
	}
	return milestones, nil
}
