package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryDocument is the whole fetched message window of a channel.
type HistoryDocument struct {
	ChatID       int64           `json:"chat_id"`
	Limit        int             `json:"limit"`
	FetchedCount int             `json:"fetched_count"`
	CollectedAt  time.Time       `json:"collected_at"`
	Batches      []HistoryBatch  `json:"batches"`
	Messages     []MessageRecord `json:"messages"`
}

// HistoryBatch records one pagination step.
type HistoryBatch struct {
	FromMessageID int64 `json:"from_message_id"`
	Requested     int   `json:"requested"`
	Received      int   `json:"received"`
}

// MessageRecord is one normalized message. Counters are omitted when zero.
type MessageRecord struct {
	ID             int64           `json:"id"`
	ChatID         int64           `json:"chat_id"`
	Date           int64           `json:"date"`
	ContentType    string          `json:"content_type"`
	TextMarkdown   *string         `json:"text_markdown"`
	MediaRemoteID  *string         `json:"media_remote_id"`
	MediaUniqueID  *string         `json:"media_unique_id"`
	MediaLocalPath *string         `json:"media_local_path"`
	ForwardCount   int             `json:"forward_count,omitempty"`
	ReplyCount     int             `json:"reply_count,omitempty"`
	ViewCount      int             `json:"view_count,omitempty"`
	Reactions      *ReactionTotals `json:"reactions,omitempty"`
	Transcription  *string         `json:"transcription,omitempty"`
}

// Text returns the rendered text or an empty string.
func (m MessageRecord) Text() string {
	if m.TextMarkdown == nil {
		return ""
	}
	return *m.TextMarkdown
}

// ReactionsTotal returns the total reaction count, zero when unknown.
func (m MessageRecord) ReactionsTotal() int {
	if m.Reactions == nil {
		return 0
	}
	return m.Reactions.Total
}

// ReactionTotals splits reactions into paid and free buckets.
type ReactionTotals struct {
	Total int `json:"total"`
	Paid  int `json:"paid"`
	Free  int `json:"free"`
}

// CommentRecord is one sampled discussion comment.
type CommentRecord struct {
	Text           string `json:"text"`
	ReactionsCount int    `json:"reactions_count,omitempty"`
}

// SimilarItem is one recommended channel, encoded as [chat_id, supergroup_id|null].
type SimilarItem struct {
	ChatID       int64
	SupergroupID *int64
}

func (s SimilarItem) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.ChatID, s.SupergroupID})
}

func (s *SimilarItem) UnmarshalJSON(data []byte) error {
	var pair []*int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("similar item: %w", err)
	}
	if len(pair) == 0 || pair[0] == nil {
		return fmt.Errorf("similar item: missing chat id")
	}
	s.ChatID = *pair[0]
	s.SupergroupID = nil
	if len(pair) > 1 {
		s.SupergroupID = pair[1]
	}
	return nil
}
