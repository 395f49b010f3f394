package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chanscope/internal/models"
)

// PassportsRepository stores LLM passports. A new passport fully replaces
// the previous one of the same channel.
type PassportsRepository struct {
	db *gorm.DB
}

// NewPassportsRepository creates a new PassportsRepository.
func NewPassportsRepository(db *gorm.DB) *PassportsRepository {
	return &PassportsRepository{db: db}
}

// Save upserts p.
func (r *PassportsRepository) Save(ctx context.Context, p models.LLMPassport) error {
	if p.BloggerID == 0 {
		return fmt.Errorf("save passport: %w", ErrMissingKey)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blogger_id"}},
			UpdateAll: true,
		}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("save passport %d: %w", p.BloggerID, err)
	}
	return nil
}

// Get returns the passport of a channel or ErrNotFound.
func (r *PassportsRepository) Get(ctx context.Context, bloggerID int64) (*models.LLMPassport, error) {
	var rows []models.LLMPassport
	if err := r.db.WithContext(ctx).Where("blogger_id = ?", bloggerID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get passport %d: %w", bloggerID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ByIDs returns passports keyed by blogger id.
func (r *PassportsRepository) ByIDs(ctx context.Context, ids []int64) (map[int64]models.LLMPassport, error) {
	out := make(map[int64]models.LLMPassport, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.LLMPassport
	if err := r.db.WithContext(ctx).Where("blogger_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list passports: %w", err)
	}
	for _, row := range rows {
		out[row.BloggerID] = row
	}
	return out, nil
}

// Exists reports whether a passport was already generated for the channel.
func (r *PassportsRepository) Exists(ctx context.Context, bloggerID int64) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.LLMPassport{}).Where("blogger_id = ?", bloggerID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count passport %d: %w", bloggerID, err)
	}
	return n > 0, nil
}
