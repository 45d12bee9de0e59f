package repository

import (
	"context"

	"gorm.io/gorm"

	"baria-go/internal/model"
)

// RedFlagRepository stores critical screening events.
type RedFlagRepository interface {
	Create(ctx context.Context, entry *model.RedFlagLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.RedFlagLog, error)
}

type redFlagRepository struct {
	db *gorm.DB
}

func NewRedFlagRepository(db *gorm.DB) RedFlagRepository {
	return &redFlagRepository{db: db}
}

func (r *redFlagRepository) Create(ctx context.Context, entry *model.RedFlagLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *redFlagRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.RedFlagLog, error) {
	var logs []model.RedFlagLog
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}
