package database

import (
	"time"

	"gorm.io/gorm"
)

// FrameRepository handles received frame database operations
type FrameRepository struct {
	db *gorm.DB
}

// NewFrameRepository creates a new frame repository
func NewFrameRepository(db *gorm.DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// Create adds a new frame record
func (r *FrameRepository) Create(f *ReceivedFrame) error {
	return r.db.Create(f).Error
}

// GetRecent retrieves the most recent N frames
func (r *FrameRepository) GetRecent(limit int) ([]ReceivedFrame, error) {
	var frames []ReceivedFrame
	err := r.db.Order("received_at DESC, id DESC").Limit(limit).Find(&frames).Error
	return frames, err
}

// GetRecentPaginated retrieves frames with pagination
func (r *FrameRepository) GetRecentPaginated(page, perPage int) ([]ReceivedFrame, int64, error) {
	var frames []ReceivedFrame
	var total int64

	if err := r.db.Model(&ReceivedFrame{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	err := r.db.Order("received_at DESC, id DESC").
		Offset(offset).
		Limit(perPage).
		Find(&frames).Error

	return frames, total, err
}

// GetBySource retrieves frames sent by a MAC source address
func (r *FrameRepository) GetBySource(addr string, limit int) ([]ReceivedFrame, error) {
	var frames []ReceivedFrame
	err := r.db.Where("src_addr = ?", addr).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&frames).Error
	return frames, err
}

// GetByTimeRange retrieves frames received within a time range
func (r *FrameRepository) GetByTimeRange(start, end time.Time, limit int) ([]ReceivedFrame, error) {
	var frames []ReceivedFrame
	err := r.db.Where("received_at BETWEEN ? AND ?", start, end).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&frames).Error
	return frames, err
}

// FCSCounts returns the number of stored frames with a valid and an invalid FCS
func (r *FrameRepository) FCSCounts() (valid, invalid int64, err error) {
	if err = r.db.Model(&ReceivedFrame{}).Where("parsed = ? AND fcs_valid = ?", true, true).Count(&valid).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.Model(&ReceivedFrame{}).Where("parsed = ? AND fcs_valid = ?", true, false).Count(&invalid).Error
	return valid, invalid, err
}

// Count returns the total number of stored frames
func (r *FrameRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&ReceivedFrame{}).Count(&count).Error
	return count, err
}

// DeleteOlderThan deletes frames received before the specified time
func (r *FrameRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("received_at < ?", before).Delete(&ReceivedFrame{})
	return result.RowsAffected, result.Error
}
