package repository

import (
	"fmt"
	"time"

	"tunetube/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository defines track data operations.
type TrackRepository interface {
	// InsertIgnore adds the track if it is not already known. Re-inserting
	// a known track is a no-op, not an error.
	InsertIgnore(track *model.Track) error
	ByID(id string) (*model.Track, error)
	UpdateDurationText(id, durationText string) error
	IncrementTotalPlayTime(id string, delta time.Duration) error
	// SetLiked stores the liked-at timestamp, or clears it when nil.
	SetLiked(id string, likedAt *int64) error
	SetLoudnessBoost(id string, boostDb *float64) error
	LoudnessBoost(id string) (*float64, error)
	Blacklisted() (map[string]bool, error)
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a TrackRepository backed by the given handle.
func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) InsertIgnore(track *model.Track) error {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(track).Error
	if err != nil {
		return fmt.Errorf("failed to insert track %s: %w", track.ID, err)
	}
	return nil
}

func (r *gormTrackRepository) ByID(id string) (*model.Track, error) {
	var track model.Track
	err := r.db.First(&track, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load track %s: %w", id, err)
	}
	return &track, nil
}

func (r *gormTrackRepository) UpdateDurationText(id, durationText string) error {
	err := r.db.Model(&model.Track{}).Where("id = ?", id).
		Update("duration_text", durationText).Error
	if err != nil {
		return fmt.Errorf("failed to update duration for track %s: %w", id, err)
	}
	return nil
}

func (r *gormTrackRepository) IncrementTotalPlayTime(id string, delta time.Duration) error {
	err := r.db.Model(&model.Track{}).Where("id = ?", id).
		Update("total_play_time_ms", gorm.Expr("total_play_time_ms + ?", delta.Milliseconds())).Error
	if err != nil {
		return fmt.Errorf("failed to increment play time for track %s: %w", id, err)
	}
	return nil
}

func (r *gormTrackRepository) SetLiked(id string, likedAt *int64) error {
	err := r.db.Model(&model.Track{}).Where("id = ?", id).
		Update("liked_at", likedAt).Error
	if err != nil {
		return fmt.Errorf("failed to set liked state for track %s: %w", id, err)
	}
	return nil
}

func (r *gormTrackRepository) SetLoudnessBoost(id string, boostDb *float64) error {
	err := r.db.Model(&model.Track{}).Where("id = ?", id).
		Update("loudness_boost_db", boostDb).Error
	if err != nil {
		return fmt.Errorf("failed to set loudness boost for track %s: %w", id, err)
	}
	return nil
}

func (r *gormTrackRepository) LoudnessBoost(id string) (*float64, error) {
	track, err := r.ByID(id)
	if err != nil || track == nil {
		return nil, err
	}
	return track.LoudnessBoostDb, nil
}

func (r *gormTrackRepository) Blacklisted() (map[string]bool, error) {
	var ids []string
	err := r.db.Model(&model.Track{}).Where("blacklisted = ?", true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklisted tracks: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
