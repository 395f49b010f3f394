package refresh

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
)

// maxCommentRoots caps how many posts are sampled for comments.
const maxCommentRoots = 5

// CommentRoots ranks posts with replies by reply count, biggest first, and
// returns up to n of them.
func CommentRoots(messages []models.MessageRecord, n int) []models.MessageRecord {
	var out []models.MessageRecord
	for _, m := range messages {
		if m.ReplyCount > 0 {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b models.MessageRecord) int {
		return cmp.Compare(b.ReplyCount, a.ReplyCount)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Service) refreshComments(ctx context.Context, chatID int64) error {
	row, err := s.channels.GetByID(ctx, chatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if row == nil || row.LinkedChatID == nil || *row.LinkedChatID == 0 {
		s.log.Info().Int64("chat_id", chatID).Msg("refresh: comments skipped, no linked chat")
		return s.snapshots.SaveComments(ctx, chatID, nil)
	}
	linked := *row.LinkedChatID

	var messages []models.MessageRecord
	doc, err := s.snapshots.GetHistory(ctx, chatID)
	switch {
	case err == nil:
		messages = doc.Messages
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	roots := CommentRoots(messages, maxCommentRoots)
	replies := 0
	for _, r := range roots {
		replies += r.ReplyCount
	}
	if len(roots) == 0 || replies < s.opts.CommentMinReplies {
		s.log.Info().
			Int64("chat_id", chatID).
			Int("replies", replies).
			Int("min", s.opts.CommentMinReplies).
			Msg("refresh: comments skipped, too few replies")
		return s.snapshots.SaveComments(ctx, chatID, nil)
	}

	comments, err := s.collectComments(ctx, chatID, linked, roots)
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		comments = nil
	}
	if err := s.snapshots.SaveComments(ctx, chatID, comments); err != nil {
		return err
	}
	s.log.Info().
		Int64("chat_id", chatID).
		Int64("linked_chat_id", linked).
		Int("roots", len(roots)).
		Int("fetched", len(comments)).
		Int("target", s.opts.CommentTarget).
		Msg("refresh: comments fetched")
	return nil
}

// collectComments walks the threads of roots until the target is reached. A
// failing thread is skipped; the error is returned only if nothing was
// collected.
func (s *Service) collectComments(ctx context.Context, chatID, linkedChatID int64, roots []models.MessageRecord) ([]models.CommentRecord, error) {
	var since int64
	if s.opts.CommentMaxAge > 0 {
		since = s.now().Add(-s.opts.CommentMaxAge).Unix()
	}

	var (
		out     []models.CommentRecord
		lastErr error
	)
	for _, root := range roots {
		remaining := s.opts.CommentTarget - len(out)
		if remaining <= 0 {
			break
		}

		thread, err := s.tg.GetMessageThread(ctx, chatID, root.ID)
		if err != nil {
			if isFatal(ctx, err) {
				return out, err
			}
			lastErr = err
			continue
		}
		threadChat, threadID := linkedChatID, root.ID
		if thread != nil && thread.ChatID != 0 {
			threadChat = thread.ChatID
		}
		if thread != nil && thread.MessageThreadID != 0 {
			threadID = thread.MessageThreadID
		}

		got, err := s.fetchThread(ctx, threadChat, threadID, since, remaining)
		out = append(out, got...)
		if err != nil {
			if isFatal(ctx, err) {
				return out, err
			}
			lastErr = err
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// fetchThread pages a discussion thread newest first. It stops at the first
// comment older than since.
func (s *Service) fetchThread(ctx context.Context, chatID, threadID, since int64, limit int) ([]models.CommentRecord, error) {
	seen := make(map[int64]bool)
	var (
		out  []models.CommentRecord
		from int64
	)
	for len(out) < limit {
		want := min(limit-len(out), s.opts.CommentPageSize)
		batch, err := s.tg.GetMessageThreadHistory(ctx, chatID, threadID, from, want)
		if err != nil {
			return out, err
		}
		if len(batch) == 0 {
			break
		}

		more := true
		for _, m := range batch {
			if m == nil || m.IsEmpty() || m.ID == threadID {
				continue
			}
			if since > 0 && m.Date > 0 && m.Date < since {
				more = false
				break
			}
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			c, ok := mapper.CommentFromMessage(m)
			if !ok {
				continue
			}
			out = append(out, c)
			if len(out) >= limit {
				more = false
				break
			}
		}

		next := lastID(batch)
		if !more || len(batch) < want || next == 0 || next == from {
			break
		}
		from = next
	}
	return out, nil
}
