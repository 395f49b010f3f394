package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chanscope/internal/models"
)

// channelColumns are the mutable columns of channels, all merged on upsert.
var channelColumns = []string{
	"title",
	"supergroup_id",
	"active_username",
	"description",
	"is_verified",
	"date",
	"boost_level",
	"member_count",
	"has_linked_chat",
	"linked_chat_id",
	"has_direct_messages_group",
	"direct_messages_chat_id",
	"reactions_disabled",
	"gift_count",
	"outgoing_paid_message_star_count",
	"photo_small_id",
	"photo_small_unique_id",
	"photo_big_id",
	"photo_big_unique_id",
	"similar_count",
	"is_target",
}

// UpsertOption adjusts a channel upsert.
type UpsertOption func(map[string]bool)

// ForceColumns makes the listed columns take the incoming value even when
// it is null.
func ForceColumns(columns ...string) UpsertOption {
	return func(forced map[string]bool) {
		for _, c := range columns {
			forced[c] = true
		}
	}
}

// ChannelsRepository provides access to the channels table.
type ChannelsRepository struct {
	db *gorm.DB
}

// NewChannelsRepository creates a new ChannelsRepository.
func NewChannelsRepository(db *gorm.DB) *ChannelsRepository {
	return &ChannelsRepository{db: db}
}

// Upsert inserts ch or merges it into the stored row: a non-null incoming
// value replaces the stored one, a null incoming value keeps it.
func (r *ChannelsRepository) Upsert(ctx context.Context, ch models.Channel, opts ...UpsertOption) error {
	if ch.ChatID == 0 {
		return fmt.Errorf("upsert channel: %w", ErrMissingKey)
	}

	forced := make(map[string]bool)
	for _, opt := range opts {
		opt(forced)
	}

	set := make(clause.Set, 0, len(channelColumns)+1)
	for _, col := range channelColumns {
		expr := "COALESCE(excluded." + col + ", channels." + col + ")"
		if forced[col] {
			expr = "excluded." + col
		}
		set = append(set, clause.Assignment{Column: clause.Column{Name: col}, Value: gorm.Expr(expr)})
	}
	set = append(set, clause.Assignment{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")})

	ch.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: set,
		}).
		Create(&ch).Error
	if err != nil {
		return fmt.Errorf("upsert channel %d: %w", ch.ChatID, err)
	}
	return nil
}

// GetByID returns a channel or ErrNotFound.
func (r *ChannelsRepository) GetByID(ctx context.Context, chatID int64) (*models.Channel, error) {
	var rows []models.Channel
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get channel %d: %w", chatID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetByUsername looks a channel up by its active username, ignoring case
// and a leading "@".
func (r *ChannelsRepository) GetByUsername(ctx context.Context, username string) (*models.Channel, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if name == "" {
		return nil, ErrNotFound
	}
	var rows []models.Channel
	err := r.db.WithContext(ctx).
		Where("lower(active_username) = ?", name).
		Order("updated_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get channel @%s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListFilter narrows List.
type ListFilter struct {
	TargetsOnly bool
	IDs         []int64
}

// List returns channels ordered by member count, biggest first.
func (r *ChannelsRepository) List(ctx context.Context, f ListFilter) ([]models.Channel, error) {
	q := r.db.WithContext(ctx).Model(&models.Channel{})
	if f.TargetsOnly {
		q = q.Where("is_target = ?", true)
	}
	if len(f.IDs) > 0 {
		q = q.Where("chat_id IN ?", f.IDs)
	}
	var rows []models.Channel
	if err := q.Order("member_count DESC").Order("chat_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return rows, nil
}
