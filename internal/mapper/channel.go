package mapper

import (
	"strings"

	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/telegram"
)

// ChatIDFromSupergroup derives the chat id of a supergroup.
func ChatIDFromSupergroup(supergroupID int64) int64 {
	return telegram.ChannelChatID(supergroupID)
}

// ChatToChannel maps a resolved chat. The target flag is left nil.
func ChatToChannel(chat *telegram.Chat) models.Channel {
	if chat == nil {
		return models.Channel{}
	}
	ch := models.Channel{
		ChatID:            chat.ID,
		Title:             nonEmpty(chat.Title),
		ActiveUsername:    firstUsername(chat.ActiveUsernames),
		IsVerified:        chat.Verified,
		ReactionsDisabled: ReactionsDisabled(chat.AvailableReactions),
	}
	if sgID, ok := chat.SupergroupID(); ok {
		ch.SupergroupID = &sgID
	}
	return ch
}

// SupergroupToChannel maps a group profile onto the row of chatID.
func SupergroupToChannel(chatID int64, sg *telegram.Supergroup) models.Channel {
	ch := models.Channel{ChatID: chatID}
	if sg == nil {
		return ch
	}
	if sg.ID != 0 {
		id := sg.ID
		ch.SupergroupID = &id
	}
	if sg.Date > 0 {
		d := sg.Date
		ch.Date = &d
	}
	ch.BoostLevel = sg.BoostLevel
	ch.MemberCount = sg.MemberCount
	ch.HasLinkedChat = sg.HasLinkedChat
	ch.HasDirectMessagesGroup = sg.HasDirectMessagesGroup
	ch.ActiveUsername = firstUsername(sg.ActiveUsernames)
	ch.IsVerified = sg.Verified
	return ch
}

// FullInfoToChannel maps a group extended profile onto the row of chatID.
func FullInfoToChannel(chatID int64, fi *telegram.SupergroupFullInfo) models.Channel {
	ch := models.Channel{ChatID: chatID}
	if fi == nil {
		return ch
	}
	ch.Description = fi.Description
	ch.MemberCount = fi.MemberCount
	ch.GiftCount = fi.GiftCount
	ch.OutgoingPaidMessageStarCount = fi.OutgoingPaidMessageStarCount
	ch.ReactionsDisabled = ReactionsDisabled(fi.AvailableReactions)

	linked := fi.LinkedChatID != 0
	ch.HasLinkedChat = &linked
	if linked {
		id := fi.LinkedChatID
		ch.LinkedChatID = &id
	}
	if fi.DirectMessagesChatID != 0 {
		id := fi.DirectMessagesChatID
		ch.DirectMessagesChatID = &id
		has := true
		ch.HasDirectMessagesGroup = &has
	}
	if fi.Photo != nil {
		ch.PhotoSmallID, ch.PhotoSmallUniqueID, ch.PhotoBigID, ch.PhotoBigUniqueID = PhotoIDs(fi.Photo.Sizes)
	}
	return ch
}

// ReactionsDisabled is true for the explicit "none" policy or an empty
// allow-list, false for any other known policy and nil when unknown.
func ReactionsDisabled(ar telegram.AvailableReactions) *bool {
	var disabled bool
	switch v := ar.(type) {
	case telegram.ReactionsNone:
		disabled = true
	case telegram.ReactionsSome:
		disabled = len(v.Reactions) == 0
	case telegram.ReactionsAll:
		disabled = false
	default:
		return nil
	}
	return &disabled
}

// PhotoIDs returns the remote and unique ids of the first (smallest) and
// last (biggest) size variant.
func PhotoIDs(sizes []telegram.PhotoSize) (smallID, smallUnique, bigID, bigUnique *string) {
	if len(sizes) == 0 {
		return nil, nil, nil, nil
	}
	first, last := sizes[0].File, sizes[len(sizes)-1].File
	return nonEmpty(first.RemoteID), nonEmpty(first.UniqueID), nonEmpty(last.RemoteID), nonEmpty(last.UniqueID)
}

// SimilarItems normalizes recommended chats into (chat id, group id) pairs.
func SimilarItems(chats []*telegram.Chat) []models.SimilarItem {
	items := make([]models.SimilarItem, 0, len(chats))
	for _, c := range chats {
		if c == nil || c.ID == 0 {
			continue
		}
		item := models.SimilarItem{ChatID: c.ID}
		if sgID, ok := c.SupergroupID(); ok {
			item.SupergroupID = &sgID
		}
		items = append(items, item)
	}
	return items
}

func firstUsername(names []string) *string {
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			return &n
		}
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
