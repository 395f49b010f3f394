package handlers

import (
	"context"

	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
)

// ChannelsRepository defines interface for channel rows
type ChannelsRepository interface {
	List(ctx context.Context, f repository.ListFilter) ([]models.Channel, error)
	GetByID(ctx context.Context, chatID int64) (*models.Channel, error)
}

// SnapshotsRepository defines interface for stored snapshot documents
type SnapshotsRepository interface {
	GetHistory(ctx context.Context, chatID int64) (*models.HistoryDocument, error)
	GetComments(ctx context.Context, chatID int64) ([]models.CommentRecord, error)
	GetSimilar(ctx context.Context, chatID int64) ([]models.SimilarItem, error)
}

// PassportsRepository defines interface for LLM passports
type PassportsRepository interface {
	Get(ctx context.Context, bloggerID int64) (*models.LLMPassport, error)
	ByIDs(ctx context.Context, ids []int64) (map[int64]models.LLMPassport, error)
}
