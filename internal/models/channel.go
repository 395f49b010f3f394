// Package models defines the persisted row shapes and snapshot documents.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Channel is one chat entity: a broadcast channel or a linked discussion
// group. Nil fields are unknown; the repository never overwrites a known
// value with nil.
type Channel struct {
	ChatID int64 `gorm:"column:chat_id;primaryKey;autoIncrement:false" json:"chat_id"`

	Title          *string `gorm:"column:title" json:"title"`
	SupergroupID   *int64  `gorm:"column:supergroup_id" json:"supergroup_id"`
	ActiveUsername *string `gorm:"column:active_username;index" json:"active_username"`
	Description    *string `gorm:"column:description" json:"description"`
	IsVerified     *bool   `gorm:"column:is_verified" json:"is_verified"`
	Date           *int64  `gorm:"column:date" json:"date"`
	BoostLevel     *int    `gorm:"column:boost_level" json:"boost_level"`
	MemberCount    *int    `gorm:"column:member_count" json:"member_count"`

	HasLinkedChat          *bool  `gorm:"column:has_linked_chat" json:"has_linked_chat"`
	LinkedChatID           *int64 `gorm:"column:linked_chat_id" json:"linked_chat_id"`
	HasDirectMessagesGroup *bool  `gorm:"column:has_direct_messages_group" json:"has_direct_messages_group"`
	DirectMessagesChatID   *int64 `gorm:"column:direct_messages_chat_id" json:"direct_messages_chat_id"`
	ReactionsDisabled      *bool  `gorm:"column:reactions_disabled" json:"reactions_disabled"`

	GiftCount                    *int   `gorm:"column:gift_count" json:"gift_count"`
	OutgoingPaidMessageStarCount *int64 `gorm:"column:outgoing_paid_message_star_count" json:"outgoing_paid_message_star_count"`

	PhotoSmallID       *string `gorm:"column:photo_small_id" json:"photo_small_id"`
	PhotoSmallUniqueID *string `gorm:"column:photo_small_unique_id" json:"photo_small_unique_id"`
	PhotoBigID         *string `gorm:"column:photo_big_id" json:"photo_big_id"`
	PhotoBigUniqueID   *string `gorm:"column:photo_big_unique_id" json:"photo_big_unique_id"`

	SimilarCount *int `gorm:"column:similar_count" json:"similar_count"`
	// IsTarget marks membership in the operator's curated channel list.
	IsTarget *bool `gorm:"column:is_target" json:"is_target"`

	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName implements gorm's tabler.
func (Channel) TableName() string { return "channels" }

// ChannelMessages is the message history snapshot of a channel.
type ChannelMessages struct {
	ChatID       int64                                `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Document     datatypes.JSONType[HistoryDocument] `gorm:"column:messages_json;not null"`
	FetchedCount int                                  `gorm:"column:fetched_count"`
	CollectedAt  time.Time                            `gorm:"column:collected_at"`
	UpdatedAt    time.Time                            `gorm:"column:updated_at"`
}

func (ChannelMessages) TableName() string { return "channel_messages" }

// ChannelComments is the comment sample of a channel. A nil payload means
// no eligible discussion thread.
type ChannelComments struct {
	ChatID       int64                                `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Payload      datatypes.JSONType[[]CommentRecord] `gorm:"column:payload_json;not null"`
	CommentCount int                                  `gorm:"column:comment_count"`
	CollectedAt  time.Time                            `gorm:"column:collected_at"`
	UpdatedAt    time.Time                            `gorm:"column:updated_at"`
}

func (ChannelComments) TableName() string { return "channel_comments" }

// ChannelSimilar is the recommendation graph snapshot of a channel.
type ChannelSimilar struct {
	ChatID      int64                              `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Items       datatypes.JSONType[[]SimilarItem] `gorm:"column:items_json;not null"`
	CollectedAt time.Time                          `gorm:"column:collected_at"`
	UpdatedAt   time.Time                          `gorm:"column:updated_at"`
}

func (ChannelSimilar) TableName() string { return "channel_similar" }

// RefreshState is the fetch bookkeeping for one (chat, sub-resource) pair.
type RefreshState struct {
	ChatID        int64      `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Entity        string     `gorm:"column:entity;primaryKey;size:64"`
	LastRequestAt *time.Time `gorm:"column:last_request_at"`
	LastSuccessAt *time.Time `gorm:"column:last_success_at"`
	LastErrorAt   *time.Time `gorm:"column:last_error_at"`
	LastErrorCode *int       `gorm:"column:last_error_code"`
	LastError     *string    `gorm:"column:last_error"`
}

func (RefreshState) TableName() string { return "refresh_state" }

// TGSession stores a serialized MTProto session.
type TGSession struct {
	Name      string    `gorm:"column:name;primaryKey;size:64"`
	Data      []byte    `gorm:"column:data"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (TGSession) TableName() string { return "tg_sessions" }

// All lists every model for schema migration.
func All() []any {
	return []any{
		&Channel{},
		&ChannelMessages{},
		&ChannelComments{},
		&ChannelSimilar{},
		&RefreshState{},
		&LLMPassport{},
		&TGSession{},
	}
}
