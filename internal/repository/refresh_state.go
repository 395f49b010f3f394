package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chanscope/internal/models"
)

// RefreshStateRepository keeps per (chat, sub-resource) fetch bookkeeping.
type RefreshStateRepository struct {
	db *gorm.DB
}

// NewRefreshStateRepository creates a new RefreshStateRepository.
func NewRefreshStateRepository(db *gorm.DB) *RefreshStateRepository {
	return &RefreshStateRepository{db: db}
}

// Record upserts st. Each timestamp keeps its stored value when the incoming
// one is null; the error code and message always take the incoming value.
func (r *RefreshStateRepository) Record(ctx context.Context, st models.RefreshState) error {
	if st.ChatID == 0 || st.Entity == "" {
		return fmt.Errorf("record refresh state: %w", ErrMissingKey)
	}
	set := clause.Set{
		{Column: clause.Column{Name: "last_request_at"}, Value: gorm.Expr("COALESCE(excluded.last_request_at, refresh_state.last_request_at)")},
		{Column: clause.Column{Name: "last_success_at"}, Value: gorm.Expr("COALESCE(excluded.last_success_at, refresh_state.last_success_at)")},
		{Column: clause.Column{Name: "last_error_at"}, Value: gorm.Expr("COALESCE(excluded.last_error_at, refresh_state.last_error_at)")},
		{Column: clause.Column{Name: "last_error_code"}, Value: gorm.Expr("excluded.last_error_code")},
		{Column: clause.Column{Name: "last_error"}, Value: gorm.Expr("excluded.last_error")},
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "entity"}},
			DoUpdates: set,
		}).
		Create(&st).Error
	if err != nil {
		return fmt.Errorf("record refresh state %d/%s: %w", st.ChatID, st.Entity, err)
	}
	return nil
}

// MarkRequest records that a fetch was issued.
func (r *RefreshStateRepository) MarkRequest(ctx context.Context, chatID int64, entity string, at time.Time) error {
	at = at.UTC()
	return r.Record(ctx, models.RefreshState{ChatID: chatID, Entity: entity, LastRequestAt: &at})
}

// MarkSuccess records a successful fetch and clears the error code.
func (r *RefreshStateRepository) MarkSuccess(ctx context.Context, chatID int64, entity string, at time.Time) error {
	at = at.UTC()
	return r.Record(ctx, models.RefreshState{ChatID: chatID, Entity: entity, LastSuccessAt: &at})
}

// MarkError records a failed fetch with the protocol error code.
func (r *RefreshStateRepository) MarkError(ctx context.Context, chatID int64, entity string, at time.Time, code int, cause error) error {
	at = at.UTC()
	st := models.RefreshState{ChatID: chatID, Entity: entity, LastErrorAt: &at, LastErrorCode: &code}
	if cause != nil {
		msg := cause.Error()
		st.LastError = &msg
	}
	return r.Record(ctx, st)
}

// Get returns one state row or ErrNotFound.
func (r *RefreshStateRepository) Get(ctx context.Context, chatID int64, entity string) (*models.RefreshState, error) {
	var rows []models.RefreshState
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND entity = ?", chatID, entity).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get refresh state %d/%s: %w", chatID, entity, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ForChat returns all state rows of a chat keyed by sub-resource name.
func (r *RefreshStateRepository) ForChat(ctx context.Context, chatID int64) (map[string]models.RefreshState, error) {
	var rows []models.RefreshState
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list refresh state %d: %w", chatID, err)
	}
	out := make(map[string]models.RefreshState, len(rows))
	for _, row := range rows {
		out[row.Entity] = row
	}
	return out, nil
}
