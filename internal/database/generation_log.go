package database

import (
	"context"

	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"gorm.io/gorm"
)

const defaultRecentLimit = 50

// GenerationLogStore persists request metadata
type GenerationLogStore struct {
	db *gorm.DB
}

func NewGenerationLogStore(db *gorm.DB) *GenerationLogStore {
	return &GenerationLogStore{db: db}
}

// Record inserts entry
func (s *GenerationLogStore) Record(ctx context.Context, entry *models.GenerationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest entries, optionally for one variant
func (s *GenerationLogStore) Recent(ctx context.Context, variant string, limit int) ([]models.GenerationLog, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if variant != "" {
		q = q.Where("variant = ?", variant)
	}

	var logs []models.GenerationLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
