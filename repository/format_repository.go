package repository

import (
	"fmt"

	"tunetube/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormatRepository stores per-track resolved stream metadata.
type FormatRepository interface {
	// Replace upserts the format row for a track (replace-on-conflict).
	Replace(format *model.Format) error
	ByTrack(id string) (*model.Format, error)
	// ContentLength returns the known stream size, or nil when the track
	// has never been resolved. Cached ranges must not be trusted without it.
	ContentLength(id string) (*int64, error)
}

type gormFormatRepository struct {
	db *gorm.DB
}

// NewFormatRepository creates a FormatRepository backed by the given handle.
func NewFormatRepository(db *gorm.DB) FormatRepository {
	return &gormFormatRepository{db: db}
}

func (r *gormFormatRepository) Replace(format *model.Format) error {
	err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(format).Error
	if err != nil {
		return fmt.Errorf("failed to replace format for track %s: %w", format.TrackID, err)
	}
	return nil
}

func (r *gormFormatRepository) ByTrack(id string) (*model.Format, error) {
	var format model.Format
	err := r.db.First(&format, "track_id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load format for track %s: %w", id, err)
	}
	return &format, nil
}

func (r *gormFormatRepository) ContentLength(id string) (*int64, error) {
	format, err := r.ByTrack(id)
	if err != nil || format == nil {
		return nil, err
	}
	return format.ContentLength, nil
}
