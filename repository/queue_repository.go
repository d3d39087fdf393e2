package repository

import (
	"fmt"

	"tunetube/model"

	"gorm.io/gorm"
)

// QueueRepository persists the playback queue. The queue is always replaced
// as a whole so a crash mid-write cannot leave rows from two generations.
type QueueRepository interface {
	ReplaceAll(items []model.QueuedTrack) error
	All() ([]model.QueuedTrack, error)
	Clear() error
}

type gormQueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a QueueRepository backed by the given handle.
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &gormQueueRepository{db: db}
}

func (r *gormQueueRepository) ReplaceAll(items []model.QueuedTrack) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&model.QueuedTrack{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		// Fresh auto ids preserve insertion order on read-back.
		for i := range items {
			items[i].ItemID = 0
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace queue: %w", err)
	}
	return nil
}

func (r *gormQueueRepository) All() ([]model.QueuedTrack, error) {
	var items []model.QueuedTrack
	err := r.db.Order("item_id asc").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return items, nil
}

func (r *gormQueueRepository) Clear() error {
	err := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.QueuedTrack{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}
