package repository

import (
	"fmt"

	"tunetube/model"

	"gorm.io/gorm"
)

// EventRepository stores playback events for history and trending.
type EventRepository interface {
	Insert(event *model.PlaybackEvent) error
	ByTrack(id string) ([]model.PlaybackEvent, error)
	DeleteAll() error
}

type gormEventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates an EventRepository backed by the given handle.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func (r *gormEventRepository) Insert(event *model.PlaybackEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert playback event: %w", err)
	}
	return nil
}

func (r *gormEventRepository) ByTrack(id string) ([]model.PlaybackEvent, error) {
	var events []model.PlaybackEvent
	err := r.db.Where("track_id = ?", id).Order("timestamp asc").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load events for track %s: %w", id, err)
	}
	return events, nil
}

func (r *gormEventRepository) DeleteAll() error {
	err := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.PlaybackEvent{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete playback events: %w", err)
	}
	return nil
}
