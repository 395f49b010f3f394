package telegram

// This file declares the protocol payload shapes consumed by the refresh
// engine. Every payload family that the wire protocol models as a tagged union
// is a closed interface here: only types in this package implement it, and
// consumers switch over the concrete types with an explicit default arm.

// ChatType identifies what kind of peer a chat wraps.
type ChatType interface {
	isChatType()
}

// ChatTypePrivate is a one-to-one chat with a user.
type ChatTypePrivate struct {
	UserID int64
}

// ChatTypeBasicGroup is a legacy small group.
type ChatTypeBasicGroup struct {
	BasicGroupID int64
}

// ChatTypeSupergroup covers both broadcast channels and megagroups.
type ChatTypeSupergroup struct {
	SupergroupID int64
	IsChannel    bool
}

// ChatTypeSecret is an end-to-end encrypted chat.
type ChatTypeSecret struct {
	SecretChatID int64
	UserID       int64
}

func (ChatTypePrivate) isChatType()    {}
func (ChatTypeBasicGroup) isChatType() {}
func (ChatTypeSupergroup) isChatType() {}
func (ChatTypeSecret) isChatType()     {}

// AvailableReactions describes which reactions a chat accepts.
type AvailableReactions interface {
	isAvailableReactions()
}

// ReactionsAll allows every reaction.
type ReactionsAll struct{}

// ReactionsSome allows a fixed set of reactions.
type ReactionsSome struct {
	Reactions []string
}

// ReactionsNone disables reactions.
type ReactionsNone struct{}

func (ReactionsAll) isAvailableReactions()  {}
func (ReactionsSome) isAvailableReactions() {}
func (ReactionsNone) isAvailableReactions() {}

// File is a remote file reference.
type File struct {
	// ID is a client-local handle, zero when the client has none.
	ID       int64
	RemoteID string
	UniqueID string
	Size     int64
}

// PhotoSize is one resolution variant of a photo.
type PhotoSize struct {
	Type   string
	Width  int
	Height int
	File   File
}

// ChatPhoto is a profile photo with its size variants ordered small to big.
type ChatPhoto struct {
	ID    int64
	Sizes []PhotoSize
}

// Chat is the result of a public name lookup.
type Chat struct {
	ID                 int64
	Title              string
	Type               ChatType
	ActiveUsernames    []string
	Verified           *bool
	AvailableReactions AvailableReactions
}

// SupergroupID returns the group id for supergroup chats.
func (c *Chat) SupergroupID() (int64, bool) {
	if c == nil {
		return 0, false
	}
	if sg, ok := c.Type.(ChatTypeSupergroup); ok && sg.SupergroupID != 0 {
		return sg.SupergroupID, true
	}
	return 0, false
}

// Supergroup is the group profile.
type Supergroup struct {
	ID                     int64
	Date                   int64
	MemberCount            *int
	BoostLevel             *int
	ActiveUsernames        []string
	Verified               *bool
	HasLinkedChat          *bool
	HasDirectMessagesGroup *bool
	IsChannel              bool
}

// SupergroupFullInfo is the group extended profile.
type SupergroupFullInfo struct {
	Description                  *string
	MemberCount                  *int
	LinkedChatID                 int64
	DirectMessagesChatID         int64
	GiftCount                    *int
	OutgoingPaidMessageStarCount *int64
	Photo                        *ChatPhoto
	AvailableReactions           AvailableReactions
}

// TextEntityType is the style of a rich text span.
type TextEntityType interface {
	isTextEntityType()
}

type (
	EntityBold          struct{}
	EntityItalic        struct{}
	EntityUnderline     struct{}
	EntityStrikethrough struct{}
	EntityCode          struct{}
	EntitySpoiler       struct{}
	// EntityPre is a preformatted block with an optional language tag.
	EntityPre struct{ Language string }
	// EntityTextURL links the span text to URL.
	EntityTextURL struct{ URL string }
	// EntityMentionName mentions a user without a public username.
	EntityMentionName struct{ UserID int64 }
	// EntityPlain is a recognized entity that is already literal in the
	// text (urls, @mentions, hashtags, emails and so on).
	EntityPlain struct{ Kind string }
	// EntityUnknown is anything the client could not classify.
	EntityUnknown struct{ Kind string }
)

func (EntityBold) isTextEntityType()          {}
func (EntityItalic) isTextEntityType()        {}
func (EntityUnderline) isTextEntityType()     {}
func (EntityStrikethrough) isTextEntityType() {}
func (EntityCode) isTextEntityType()          {}
func (EntitySpoiler) isTextEntityType()       {}
func (EntityPre) isTextEntityType()           {}
func (EntityTextURL) isTextEntityType()       {}
func (EntityMentionName) isTextEntityType()   {}
func (EntityPlain) isTextEntityType()         {}
func (EntityUnknown) isTextEntityType()       {}

// TextEntity annotates Length UTF-16 code units starting at Offset.
type TextEntity struct {
	Offset int
	Length int
	Type   TextEntityType
}

// FormattedText is text plus style spans.
type FormattedText struct {
	Text     string
	Entities []TextEntity
}

// SpeechRecognition is the state of a voice transcription.
type SpeechRecognition interface {
	isSpeechRecognition()
}

// SpeechRecognized carries the final transcript.
type SpeechRecognized struct{ Text string }

// SpeechPending is an in-progress transcription.
type SpeechPending struct{ PartialText string }

// SpeechFailed means the server gave up.
type SpeechFailed struct{ Message string }

func (SpeechRecognized) isSpeechRecognition() {}
func (SpeechPending) isSpeechRecognition()    {}
func (SpeechFailed) isSpeechRecognition()     {}

// MessageContent is the body of a message.
type MessageContent interface {
	// ContentType is the stable tag stored in snapshots.
	ContentType() string
}

type MessageText struct {
	Text FormattedText
}

type MessagePhoto struct {
	Caption FormattedText
	Sizes   []PhotoSize
}

type MessageVideo struct {
	Caption   FormattedText
	Video     File
	Thumbnail *PhotoSize
}

type MessageAnimation struct {
	Caption   FormattedText
	Animation File
}

type MessageDocument struct {
	Caption  FormattedText
	Document File
}

type MessageAudio struct {
	Caption FormattedText
	Audio   File
}

type MessageVoiceNote struct {
	Caption FormattedText
	Voice   File
	Speech  SpeechRecognition
}

type MessageVideoNote struct {
	VideoNote File
	Thumbnail *PhotoSize
	Speech    SpeechRecognition
}

type MessagePoll struct {
	Question string
}

// MessageUnsupported keeps the raw tag of content the client does not model.
type MessageUnsupported struct {
	Type string
}

func (*MessageText) ContentType() string      { return "messageText" }
func (*MessagePhoto) ContentType() string     { return "messagePhoto" }
func (*MessageVideo) ContentType() string     { return "messageVideo" }
func (*MessageAnimation) ContentType() string { return "messageAnimation" }
func (*MessageDocument) ContentType() string  { return "messageDocument" }
func (*MessageAudio) ContentType() string     { return "messageAudio" }
func (*MessageVoiceNote) ContentType() string { return "messageVoiceNote" }
func (*MessageVideoNote) ContentType() string { return "messageVideoNote" }
func (*MessagePoll) ContentType() string      { return "messagePoll" }
func (m *MessageUnsupported) ContentType() string {
	if m.Type == "" {
		return "messageUnsupported"
	}
	return m.Type
}

// ReactionType is the kind of a reaction counter.
type ReactionType interface {
	isReactionType()
}

type ReactionEmoji struct{ Emoji string }
type ReactionCustomEmoji struct{ DocumentID int64 }
type ReactionPaid struct{}

func (ReactionEmoji) isReactionType()       {}
func (ReactionCustomEmoji) isReactionType() {}
func (ReactionPaid) isReactionType()        {}

// Reaction is one counter bucket.
type Reaction struct {
	Type  ReactionType
	Count int
}

// InteractionInfo holds counters. Nil pointers mean the server sent none.
type InteractionInfo struct {
	ViewCount    *int
	ForwardCount *int
	ReplyCount   *int
	Reactions    []Reaction
}

// Message is one channel post or thread comment.
type Message struct {
	ID          int64
	ChatID      int64
	Date        int64
	Content     MessageContent
	Interaction *InteractionInfo
}

// ContentEmpty tags a placeholder for a deleted or inaccessible message.
const ContentEmpty = "messageEmpty"

// IsEmpty reports a placeholder that carries only its id.
func (m *Message) IsEmpty() bool {
	u, ok := m.Content.(*MessageUnsupported)
	return ok && u.Type == ContentEmpty
}

// MessageThread addresses the discussion thread of a channel post.
type MessageThread struct {
	ChatID          int64
	MessageThreadID int64
	ReplyCount      int
}
