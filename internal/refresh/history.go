package refresh

import (
	"context"

	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/telegram"
)

func (s *Service) refreshHistory(ctx context.Context, chatID int64) error {
	doc, err := s.fetchHistory(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.snapshots.SaveHistory(ctx, doc); err != nil {
		return err
	}
	s.log.Info().
		Int64("chat_id", chatID).
		Int("fetched", len(doc.Messages)).
		Int("limit", doc.Limit).
		Int("batches", len(doc.Batches)).
		Msg("refresh: history fetched")
	return nil
}

// fetchHistory pages backwards from the newest message until the limit is
// reached or the history ends.
func (s *Service) fetchHistory(ctx context.Context, chatID int64) (models.HistoryDocument, error) {
	limit := s.opts.HistoryLimit
	doc := models.HistoryDocument{ChatID: chatID, Limit: limit}
	seen := make(map[int64]bool)

	var from int64
	for len(doc.Messages) < limit {
		want := min(limit-len(doc.Messages), s.opts.HistoryPageSize)
		batch, err := s.tg.GetChatHistory(ctx, chatID, from, want)
		if err != nil {
			return doc, err
		}
		doc.Batches = append(doc.Batches, models.HistoryBatch{
			FromMessageID: from,
			Requested:     want,
			Received:      len(batch),
		})
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			if m == nil || m.IsEmpty() || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			rec := mapper.MessageToRecord(m)
			if err := s.enrich(ctx, chatID, m, &rec); err != nil {
				return doc, err
			}
			doc.Messages = append(doc.Messages, rec)
		}

		next := lastID(batch)
		if len(batch) < want || next == 0 || next == from {
			break
		}
		from = next
	}

	doc.FetchedCount = len(doc.Messages)
	doc.CollectedAt = s.now().UTC()
	return doc, nil
}

func lastID(batch []*telegram.Message) int64 {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i] != nil {
			return batch[i].ID
		}
	}
	return 0
}
