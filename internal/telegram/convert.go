package telegram

import (
	"strconv"

	"github.com/gotd/td/tg"
)

// channelChatBase offsets channel ids into the negative chat id space.
const channelChatBase int64 = -1000000000000

// ChannelChatID returns the chat id of a channel or supergroup.
func ChannelChatID(channelID int64) int64 {
	return channelChatBase - channelID
}

// ChannelIDFromChat reverses ChannelChatID.
func ChannelIDFromChat(chatID int64) (int64, bool) {
	if chatID >= channelChatBase {
		return 0, false
	}
	return channelChatBase - chatID, true
}

func peerChatID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerChannel:
		return ChannelChatID(v.ChannelID)
	case *tg.PeerChat:
		return -v.ChatID
	case *tg.PeerUser:
		return v.UserID
	default:
		return 0
	}
}

func channelUsernames(ch *tg.Channel) []string {
	var names []string
	if ch.Username != "" {
		names = append(names, ch.Username)
	}
	for _, u := range ch.Usernames {
		if u.Active && u.Username != ch.Username {
			names = append(names, u.Username)
		}
	}
	return names
}

func channelToChat(ch *tg.Channel) *Chat {
	verified := ch.Verified
	return &Chat{
		ID:              ChannelChatID(ch.ID),
		Title:           ch.Title,
		Type:            ChatTypeSupergroup{SupergroupID: ch.ID, IsChannel: ch.Broadcast},
		ActiveUsernames: channelUsernames(ch),
		Verified:        &verified,
	}
}

func userToChat(u *tg.User) *Chat {
	title := u.FirstName
	if u.LastName != "" {
		title += " " + u.LastName
	}
	verified := u.Verified
	var names []string
	if u.Username != "" {
		names = []string{u.Username}
	}
	return &Chat{
		ID:              u.ID,
		Title:           title,
		Type:            ChatTypePrivate{UserID: u.ID},
		ActiveUsernames: names,
		Verified:        &verified,
	}
}

func channelToSupergroup(ch *tg.Channel) *Supergroup {
	verified := ch.Verified
	hasLink := ch.HasLink
	sg := &Supergroup{
		ID:              ch.ID,
		Date:            int64(ch.Date),
		ActiveUsernames: channelUsernames(ch),
		Verified:        &verified,
		HasLinkedChat:   &hasLink,
		IsChannel:       ch.Broadcast,
	}
	if n, ok := ch.GetParticipantsCount(); ok {
		sg.MemberCount = &n
	}
	if lvl, ok := ch.GetLevel(); ok {
		sg.BoostLevel = &lvl
	}
	return sg
}

func (c *Client) channelFullToInfo(full *tg.ChannelFull) *SupergroupFullInfo {
	about := full.About
	fi := &SupergroupFullInfo{Description: &about}
	if n, ok := full.GetParticipantsCount(); ok {
		fi.MemberCount = &n
	}
	if id, ok := full.GetLinkedChatID(); ok && id != 0 {
		fi.LinkedChatID = ChannelChatID(id)
	}
	if n, ok := full.GetStargiftsCount(); ok {
		fi.GiftCount = &n
	}
	if stars, ok := full.GetSendPaidMessagesStars(); ok {
		fi.OutgoingPaidMessageStarCount = &stars
	}
	if photo, ok := full.ChatPhoto.(*tg.Photo); ok {
		fi.Photo = &ChatPhoto{ID: photo.ID, Sizes: c.photoSizes(photo)}
	}
	if r, ok := full.GetAvailableReactions(); ok {
		fi.AvailableReactions = mapChatReactions(r)
	}
	return fi
}

func mapChatReactions(r tg.ChatReactionsClass) AvailableReactions {
	switch v := r.(type) {
	case *tg.ChatReactionsNone:
		return ReactionsNone{}
	case *tg.ChatReactionsAll:
		return ReactionsAll{}
	case *tg.ChatReactionsSome:
		out := ReactionsSome{}
		for _, rc := range v.Reactions {
			if e, ok := rc.(*tg.ReactionEmoji); ok {
				out.Reactions = append(out.Reactions, e.Emoticon)
			}
		}
		return out
	default:
		return nil
	}
}

// photoSizes registers downloadable sizes of a photo, small to big.
func (c *Client) photoSizes(p *tg.Photo) []PhotoSize {
	var out []PhotoSize
	for _, s := range p.Sizes {
		var (
			typ  string
			w, h int
			size int
		)
		switch v := s.(type) {
		case *tg.PhotoSize:
			typ, w, h, size = v.Type, v.W, v.H, v.Size
		case *tg.PhotoSizeProgressive:
			typ, w, h = v.Type, v.W, v.H
			if n := len(v.Sizes); n > 0 {
				size = v.Sizes[n-1]
			}
		default:
			continue
		}
		remote := "photo:" + strconv.FormatInt(p.ID, 10) + ":" + typ
		c.rememberFile(remote, &tg.InputPhotoFileLocation{
			ID:            p.ID,
			AccessHash:    p.AccessHash,
			FileReference: p.FileReference,
			ThumbSize:     typ,
		})
		out = append(out, PhotoSize{
			Type:   typ,
			Width:  w,
			Height: h,
			File: File{
				RemoteID: remote,
				UniqueID: strconv.FormatInt(p.ID, 36) + typ,
				Size:     int64(size),
			},
		})
	}
	return out
}

func (c *Client) documentFile(d *tg.Document) File {
	remote := "document:" + strconv.FormatInt(d.ID, 10)
	c.rememberFile(remote, &tg.InputDocumentFileLocation{
		ID:            d.ID,
		AccessHash:    d.AccessHash,
		FileReference: d.FileReference,
	})
	return File{RemoteID: remote, UniqueID: strconv.FormatInt(d.ID, 36), Size: d.Size}
}

// documentThumb registers the largest plain thumbnail of a document.
func (c *Client) documentThumb(d *tg.Document) *PhotoSize {
	var best *tg.PhotoSize
	for _, t := range d.Thumbs {
		if s, ok := t.(*tg.PhotoSize); ok && (best == nil || s.W > best.W) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	remote := "document:" + strconv.FormatInt(d.ID, 10) + ":" + best.Type
	c.rememberFile(remote, &tg.InputDocumentFileLocation{
		ID:            d.ID,
		AccessHash:    d.AccessHash,
		FileReference: d.FileReference,
		ThumbSize:     best.Type,
	})
	return &PhotoSize{
		Type:   best.Type,
		Width:  best.W,
		Height: best.H,
		File: File{
			RemoteID: remote,
			UniqueID: strconv.FormatInt(d.ID, 36) + best.Type,
			Size:     int64(best.Size),
		},
	}
}

func (c *Client) rememberFile(remoteID string, loc tg.InputFileLocationClass) {
	c.mu.Lock()
	c.files[remoteID] = loc
	c.mu.Unlock()
}

func (c *Client) transcript(chatID, messageID int64) SpeechRecognition {
	c.mu.RLock()
	text, ok := c.transcripts[msgKey{chatID, messageID}]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return SpeechRecognized{Text: text}
}

func (c *Client) mapMessage(m *tg.Message) *Message {
	chatID := peerChatID(m.PeerID)
	msg := &Message{
		ID:     int64(m.ID),
		ChatID: chatID,
		Date:   int64(m.Date),
	}
	text := FormattedText{Text: m.Message, Entities: mapEntities(m.Entities)}
	msg.Content = c.mapContent(chatID, int64(m.ID), m.Media, text)

	info := &InteractionInfo{}
	if v, ok := m.GetViews(); ok {
		info.ViewCount = &v
	}
	if v, ok := m.GetForwards(); ok {
		info.ForwardCount = &v
	}
	if r, ok := m.GetReplies(); ok {
		n := r.Replies
		info.ReplyCount = &n
	}
	if r, ok := m.GetReactions(); ok {
		for _, rc := range r.Results {
			if t := mapReactionType(rc.Reaction); t != nil {
				info.Reactions = append(info.Reactions, Reaction{Type: t, Count: rc.Count})
			}
		}
	}
	if info.ViewCount != nil || info.ForwardCount != nil || info.ReplyCount != nil || info.Reactions != nil {
		msg.Interaction = info
	}
	return msg
}

// mapServiceMessage keeps pins, photo changes and other channel actions as
// messages tagged with the action type.
func mapServiceMessage(m *tg.MessageService) *Message {
	kind := "messageService"
	if m.Action != nil {
		kind = m.Action.TypeName()
	}
	return &Message{
		ID:      int64(m.ID),
		ChatID:  peerChatID(m.PeerID),
		Date:    int64(m.Date),
		Content: &MessageUnsupported{Type: kind},
	}
}

func (c *Client) mapContent(chatID, messageID int64, media tg.MessageMediaClass, text FormattedText) MessageContent {
	switch v := media.(type) {
	case nil:
		return &MessageText{Text: text}
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return &MessagePhoto{Caption: text}
		}
		return &MessagePhoto{Caption: text, Sizes: c.photoSizes(photo)}
	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return &MessageDocument{Caption: text}
		}
		return c.mapDocument(chatID, messageID, doc, text)
	case *tg.MessageMediaPoll:
		return &MessagePoll{Question: v.Poll.Question.Text}
	case *tg.MessageMediaWebPage:
		return &MessageText{Text: text}
	default:
		return &MessageUnsupported{Type: media.TypeName()}
	}
}

func (c *Client) mapDocument(chatID, messageID int64, doc *tg.Document, text FormattedText) MessageContent {
	file := c.documentFile(doc)
	var animated bool
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return &MessageVoiceNote{Caption: text, Voice: file, Speech: c.transcript(chatID, messageID)}
			}
			return &MessageAudio{Caption: text, Audio: file}
		case *tg.DocumentAttributeVideo:
			if a.RoundMessage {
				return &MessageVideoNote{VideoNote: file, Thumbnail: c.documentThumb(doc), Speech: c.transcript(chatID, messageID)}
			}
		}
	}
	if animated {
		return &MessageAnimation{Caption: text, Animation: file}
	}
	for _, attr := range doc.Attributes {
		if _, ok := attr.(*tg.DocumentAttributeVideo); ok {
			return &MessageVideo{Caption: text, Video: file, Thumbnail: c.documentThumb(doc)}
		}
	}
	return &MessageDocument{Caption: text, Document: file}
}

func mapReactionType(r tg.ReactionClass) ReactionType {
	switch v := r.(type) {
	case *tg.ReactionEmoji:
		return ReactionEmoji{Emoji: v.Emoticon}
	case *tg.ReactionCustomEmoji:
		return ReactionCustomEmoji{DocumentID: v.DocumentID}
	case *tg.ReactionPaid:
		return ReactionPaid{}
	default:
		return nil
	}
}

func mapEntities(in []tg.MessageEntityClass) []TextEntity {
	if len(in) == 0 {
		return nil
	}
	out := make([]TextEntity, 0, len(in))
	for _, e := range in {
		out = append(out, TextEntity{
			Offset: e.GetOffset(),
			Length: e.GetLength(),
			Type:   mapEntityType(e),
		})
	}
	return out
}

func mapEntityType(e tg.MessageEntityClass) TextEntityType {
	switch v := e.(type) {
	case *tg.MessageEntityBold:
		return EntityBold{}
	case *tg.MessageEntityItalic:
		return EntityItalic{}
	case *tg.MessageEntityUnderline:
		return EntityUnderline{}
	case *tg.MessageEntityStrike:
		return EntityStrikethrough{}
	case *tg.MessageEntityCode:
		return EntityCode{}
	case *tg.MessageEntitySpoiler:
		return EntitySpoiler{}
	case *tg.MessageEntityPre:
		return EntityPre{Language: v.Language}
	case *tg.MessageEntityTextURL:
		return EntityTextURL{URL: v.URL}
	case *tg.MessageEntityMentionName:
		return EntityMentionName{UserID: v.UserID}
	case *tg.MessageEntityURL, *tg.MessageEntityMention, *tg.MessageEntityHashtag,
		*tg.MessageEntityCashtag, *tg.MessageEntityEmail, *tg.MessageEntityPhone,
		*tg.MessageEntityBotCommand, *tg.MessageEntityCustomEmoji:
		return EntityPlain{Kind: e.TypeName()}
	default:
		return EntityUnknown{Kind: e.TypeName()}
	}
}
