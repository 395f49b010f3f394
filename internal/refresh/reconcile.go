package refresh

import (
	"context"
	"fmt"

	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
	"github.com/blockedby/chanscope/internal/telegram"
)

// Signature is the dedup key of an update: its type plus the most specific
// identifier it carries. index is used when it carries none.
func Signature(u telegram.Update, index int) string {
	t := u.UpdateType()
	switch v := u.(type) {
	case *telegram.UpdateNewChat:
		if v.Chat != nil {
			return fmt.Sprintf("%s:chat:%d", t, v.Chat.ID)
		}
	case *telegram.UpdateChatAvailableReactions:
		return fmt.Sprintf("%s:chat:%d", t, v.ChatID)
	case *telegram.UpdateMessageContent:
		return fmt.Sprintf("%s:chat:%d", t, v.ChatID)
	case *telegram.UpdateSupergroup:
		if v.Supergroup != nil {
			return fmt.Sprintf("%s:supergroup:%d", t, v.Supergroup.ID)
		}
	case *telegram.UpdateSupergroupFullInfo:
		return fmt.Sprintf("%s:supergroup:%d", t, v.SupergroupID)
	case *telegram.UpdateUser:
		return fmt.Sprintf("%s:user:%d", t, v.UserID)
	case *telegram.UpdateNewMessage:
		if v.Message != nil {
			return fmt.Sprintf("%s:message:%d:%d", t, v.Message.ChatID, v.Message.ID)
		}
	case *telegram.UpdateOption:
		if v.Name != "" {
			return fmt.Sprintf("%s:option:%s", t, v.Name)
		}
	}
	return fmt.Sprintf("%s:fallback:%d", t, index)
}

// KeepLatest drops every update that a later one with the same signature
// supersedes. Survivors keep their arrival order.
func KeepLatest(updates []telegram.Update) []telegram.Update {
	seen := make(map[string]bool, len(updates))
	keep := make([]bool, len(updates))
	kept := 0
	for i := len(updates) - 1; i >= 0; i-- {
		sig := Signature(updates[i], i)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		keep[i] = true
		kept++
	}
	out := make([]telegram.Update, 0, kept)
	for i, u := range updates {
		if keep[i] {
			out = append(out, u)
		}
	}
	return out
}

// Relevant reports whether u references any of ids.
func Relevant(u telegram.Update, ids map[int64]bool) bool {
	found := false
	u.VisitIDs(func(id int64) {
		if ids[id] {
			found = true
		}
	})
	return found
}

// FilterForChat keeps the updates that belong to chat or reference one of
// extra, then deduplicates them.
func FilterForChat(updates []telegram.Update, chat *telegram.Chat, extra []int64) []telegram.Update {
	if len(updates) == 0 || chat == nil {
		return nil
	}
	ids := make(map[int64]bool)
	for _, id := range telegram.ChatIdentifiers(chat) {
		ids[id] = true
	}
	for _, id := range extra {
		if id != 0 {
			ids[id] = true
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var relevant []telegram.Update
	for _, u := range updates {
		if u != nil && Relevant(u, ids) {
			relevant = append(relevant, u)
		}
	}
	return KeepLatest(relevant)
}

// Reconciler replays buffered updates into the store.
type Reconciler struct {
	channels *repository.ChannelsRepository
	log      *logger.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(channels *repository.ChannelsRepository, log *logger.Logger) *Reconciler {
	return &Reconciler{channels: channels, log: log}
}

// Apply writes updates in order and returns how many changed a row. Updates
// about a group are filed under chat when it owns that group.
func (r *Reconciler) Apply(ctx context.Context, chat *telegram.Chat, updates []telegram.Update) int {
	applied := 0
	for _, u := range updates {
		row, ok := r.rowFor(chat, u)
		if !ok {
			continue
		}
		if err := r.channels.Upsert(ctx, row); err != nil {
			r.log.Warn().Err(err).Str("type", u.UpdateType()).Msg("refresh: apply update failed")
			continue
		}
		applied++
	}
	return applied
}

func (r *Reconciler) rowFor(chat *telegram.Chat, u telegram.Update) (models.Channel, bool) {
	switch v := u.(type) {
	case *telegram.UpdateNewChat:
		if v.Chat == nil || v.Chat.ID == 0 {
			return models.Channel{}, false
		}
		return mapper.ChatToChannel(v.Chat), true
	case *telegram.UpdateSupergroup:
		if v.Supergroup == nil || v.Supergroup.ID == 0 {
			return models.Channel{}, false
		}
		return mapper.SupergroupToChannel(ownerChatID(chat, v.Supergroup.ID), v.Supergroup), true
	case *telegram.UpdateSupergroupFullInfo:
		if v.FullInfo == nil || v.SupergroupID == 0 {
			return models.Channel{}, false
		}
		return mapper.FullInfoToChannel(ownerChatID(chat, v.SupergroupID), v.FullInfo), true
	case *telegram.UpdateChatAvailableReactions:
		disabled := mapper.ReactionsDisabled(v.AvailableReactions)
		if disabled == nil || v.ChatID == 0 {
			return models.Channel{}, false
		}
		return models.Channel{ChatID: v.ChatID, ReactionsDisabled: disabled}, true
	case *telegram.UpdateMessageContent:
		r.log.Debug().Int64("chat_id", v.ChatID).Int64("message_id", v.MessageID).Msg("refresh: message content changed")
	case *telegram.UpdateNewMessage:
		if v.Message != nil {
			r.log.Debug().Int64("chat_id", v.Message.ChatID).Int64("message_id", v.Message.ID).Msg("refresh: new message")
		}
	}
	return models.Channel{}, false
}

func ownerChatID(chat *telegram.Chat, supergroupID int64) int64 {
	if id, ok := chat.SupergroupID(); ok && id == supergroupID {
		return chat.ID
	}
	return mapper.ChatIDFromSupergroup(supergroupID)
}
