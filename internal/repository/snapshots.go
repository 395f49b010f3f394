package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chanscope/internal/models"
)

// SnapshotsRepository stores whole-document snapshots. Every save replaces
// the previous document of the chat in one statement.
type SnapshotsRepository struct {
	db *gorm.DB
}

// NewSnapshotsRepository creates a new SnapshotsRepository.
func NewSnapshotsRepository(db *gorm.DB) *SnapshotsRepository {
	return &SnapshotsRepository{db: db}
}

func (r *SnapshotsRepository) replace(ctx context.Context, row any) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

// SaveHistory replaces the message history snapshot of doc.ChatID.
func (r *SnapshotsRepository) SaveHistory(ctx context.Context, doc models.HistoryDocument) error {
	if doc.ChatID == 0 {
		return fmt.Errorf("save history: %w", ErrMissingKey)
	}
	if doc.CollectedAt.IsZero() {
		doc.CollectedAt = time.Now().UTC()
	}
	doc.FetchedCount = len(doc.Messages)
	row := models.ChannelMessages{
		ChatID:       doc.ChatID,
		Document:     datatypes.NewJSONType(doc),
		FetchedCount: doc.FetchedCount,
		CollectedAt:  doc.CollectedAt,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := r.replace(ctx, &row); err != nil {
		return fmt.Errorf("save history %d: %w", doc.ChatID, err)
	}
	return nil
}

// GetHistory returns the stored history document or ErrNotFound.
func (r *SnapshotsRepository) GetHistory(ctx context.Context, chatID int64) (*models.HistoryDocument, error) {
	var rows []models.ChannelMessages
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get history %d: %w", chatID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	doc := rows[0].Document.Data()
	return &doc, nil
}

// SaveComments replaces the comment snapshot of chatID. A nil slice is
// stored as JSON null, meaning no eligible discussion.
func (r *SnapshotsRepository) SaveComments(ctx context.Context, chatID int64, comments []models.CommentRecord) error {
	if chatID == 0 {
		return fmt.Errorf("save comments: %w", ErrMissingKey)
	}
	now := time.Now().UTC()
	row := models.ChannelComments{
		ChatID:       chatID,
		Payload:      datatypes.NewJSONType(comments),
		CommentCount: len(comments),
		CollectedAt:  now,
		UpdatedAt:    now,
	}
	if err := r.replace(ctx, &row); err != nil {
		return fmt.Errorf("save comments %d: %w", chatID, err)
	}
	return nil
}

// GetComments returns the stored comments (nil for a null snapshot) or
// ErrNotFound when nothing was ever stored.
func (r *SnapshotsRepository) GetComments(ctx context.Context, chatID int64) ([]models.CommentRecord, error) {
	var rows []models.ChannelComments
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get comments %d: %w", chatID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].Payload.Data(), nil
}

// SaveSimilar replaces the similar-channels snapshot of chatID.
func (r *SnapshotsRepository) SaveSimilar(ctx context.Context, chatID int64, items []models.SimilarItem) error {
	if chatID == 0 {
		return fmt.Errorf("save similar: %w", ErrMissingKey)
	}
	if items == nil {
		items = []models.SimilarItem{}
	}
	now := time.Now().UTC()
	row := models.ChannelSimilar{
		ChatID:      chatID,
		Items:       datatypes.NewJSONType(items),
		CollectedAt: now,
		UpdatedAt:   now,
	}
	if err := r.replace(ctx, &row); err != nil {
		return fmt.Errorf("save similar %d: %w", chatID, err)
	}
	return nil
}

// GetSimilar returns the stored similar items or ErrNotFound.
func (r *SnapshotsRepository) GetSimilar(ctx context.Context, chatID int64) ([]models.SimilarItem, error) {
	var rows []models.ChannelSimilar
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get similar %d: %w", chatID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].Items.Data(), nil
}
