package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/blockedby/chanscope/internal/logger"
)

// Options configures a connection.
type Options struct {
	AppID   int
	AppHash string
	Storage session.Storage
	Limiter *RateLimiter
	Log     *logger.Logger
	// ZapLog receives the MTProto library's own logs. Nil disables them.
	ZapLog *zap.Logger
}

// Client adapts the gotd MTProto client to the payload types of this
// package. Every request waits on the rate limiter first.
type Client struct {
	api     *tg.Client
	limiter *RateLimiter
	log     *logger.Logger
	dl      *downloader.Downloader

	mu          sync.RWMutex
	channels    map[int64]int64 // channel id -> access hash
	files       map[string]tg.InputFileLocationClass
	transcripts map[msgKey]string
	onUpdate    func(Update)
}

type msgKey struct {
	chatID    int64
	messageID int64
}

func newClient(opts Options) *Client {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = DefaultRateLimiter()
	}
	log := opts.Log
	if log == nil {
		log = logger.Get()
	}
	return &Client{
		limiter:     limiter,
		log:         log,
		dl:          downloader.NewDownloader(),
		channels:    make(map[int64]int64),
		files:       make(map[string]tg.InputFileLocationClass),
		transcripts: make(map[msgKey]string),
	}
}

// Run connects, verifies the stored session is authorized and calls f with a
// ready client. The connection closes when f returns.
func Run(ctx context.Context, opts Options, f func(ctx context.Context, c *Client) error) error {
	if opts.AppID == 0 || opts.AppHash == "" {
		return errors.New("telegram: app id and hash are required")
	}
	c := newClient(opts)

	dispatcher := tg.NewUpdateDispatcher()
	c.registerHandlers(&dispatcher)

	zapLog := opts.ZapLog
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	client := telegram.NewClient(opts.AppID, opts.AppHash, telegram.Options{
		SessionStorage: opts.Storage,
		UpdateHandler:  &dispatcher,
		Logger:         zapLog,
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		c.api = client.API()
		c.log.Info().Msg("telegram: connected")
		return f(ctx, c)
	})
}

// OnUpdate sets the single listener for push notifications.
func (c *Client) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

func (c *Client) emit(u Update) {
	c.mu.RLock()
	fn := c.onUpdate
	c.mu.RUnlock()
	if fn != nil {
		fn(u)
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.api == nil {
		return ErrNotAuthorized
	}
	return c.limiter.Wait(ctx)
}

// SearchPublicChat resolves a public username.
func (c *Client) SearchPublicChat(ctx context.Context, username string) (*Chat, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, wrapErr("resolve username", err)
	}
	c.rememberChats(res.Chats)

	switch p := res.Peer.(type) {
	case *tg.PeerChannel:
		for _, chat := range res.Chats {
			if ch, ok := chat.(*tg.Channel); ok && ch.ID == p.ChannelID {
				return channelToChat(ch), nil
			}
		}
	case *tg.PeerChat:
		for _, chat := range res.Chats {
			if ch, ok := chat.(*tg.Chat); ok && ch.ID == p.ChatID {
				return &Chat{ID: -ch.ID, Title: ch.Title, Type: ChatTypeBasicGroup{BasicGroupID: ch.ID}}, nil
			}
		}
	case *tg.PeerUser:
		for _, u := range res.Users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return userToChat(user), nil
			}
		}
	}
	return nil, fmt.Errorf("resolve @%s: %w", username, ErrNotFound)
}

// GetSupergroup fetches the group profile.
func (c *Client) GetSupergroup(ctx context.Context, supergroupID int64) (*Supergroup, error) {
	input, err := c.inputChannel(supergroupID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{input})
	if err != nil {
		return nil, wrapErr("get channel", err)
	}
	chats := chatsOf(res)
	c.rememberChats(chats)
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == supergroupID {
			return channelToSupergroup(ch), nil
		}
	}
	return nil, fmt.Errorf("supergroup %d: %w", supergroupID, ErrNotFound)
}

// GetSupergroupFullInfo fetches the group extended profile.
func (c *Client) GetSupergroupFullInfo(ctx context.Context, supergroupID int64) (*SupergroupFullInfo, error) {
	input, err := c.inputChannel(supergroupID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.ChannelsGetFullChannel(ctx, input)
	if err != nil {
		return nil, wrapErr("get full channel", err)
	}
	c.rememberChats(res.Chats)

	full, ok := res.FullChat.(*tg.ChannelFull)
	if !ok {
		return nil, fmt.Errorf("unexpected full chat type %T", res.FullChat)
	}
	return c.channelFullToInfo(full), nil
}

// GetChatHistory returns up to limit messages older than fromMessageID,
// newest first. A zero fromMessageID starts at the latest message.
func (c *Client) GetChatHistory(ctx context.Context, chatID, fromMessageID int64, limit int) ([]*Message, error) {
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: int(fromMessageID),
		Limit:    limit,
	})
	if err != nil {
		return nil, wrapErr("get history", err)
	}
	return c.extractMessages(res), nil
}

// GetMessageThread locates the discussion thread of a channel post.
func (c *Client) GetMessageThread(ctx context.Context, chatID, messageID int64) (*MessageThread, error) {
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.MessagesGetDiscussionMessage(ctx, &tg.MessagesGetDiscussionMessageRequest{
		Peer:  peer,
		MsgID: int(messageID),
	})
	if err != nil {
		return nil, wrapErr("get discussion message", err)
	}
	c.rememberChats(res.Chats)

	for _, m := range res.Messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		thread := &MessageThread{ChatID: peerChatID(msg.PeerID), MessageThreadID: int64(msg.ID)}
		if replies, ok := msg.GetReplies(); ok {
			thread.ReplyCount = replies.Replies
		}
		return thread, nil
	}
	return nil, fmt.Errorf("thread of %d/%d: %w", chatID, messageID, ErrNotFound)
}

// GetMessageThreadHistory returns replies of a thread older than
// fromMessageID, newest first.
func (c *Client) GetMessageThreadHistory(ctx context.Context, chatID, threadID, fromMessageID int64, limit int) ([]*Message, error) {
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
		Peer:     peer,
		MsgID:    int(threadID),
		OffsetID: int(fromMessageID),
		Limit:    limit,
	})
	if err != nil {
		return nil, wrapErr("get replies", err)
	}
	return c.extractMessages(res), nil
}

// GetChatSimilarChats returns the channel recommendations of a chat.
func (c *Client) GetChatSimilarChats(ctx context.Context, chatID int64) ([]*Chat, error) {
	channelID, ok := ChannelIDFromChat(chatID)
	if !ok {
		return nil, fmt.Errorf("similar chats of %d: not a channel", chatID)
	}
	input, err := c.inputChannel(channelID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.ChannelsGetChannelRecommendations(ctx, &tg.ChannelsGetChannelRecommendationsRequest{
		Channel: input,
	})
	if err != nil {
		return nil, wrapErr("get recommendations", err)
	}
	chats := chatsOf(res)
	c.rememberChats(chats)

	out := make([]*Chat, 0, len(chats))
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok {
			out = append(out, channelToChat(ch))
		}
	}
	return out, nil
}

// DownloadFile saves a previously seen file to dest.
func (c *Client) DownloadFile(ctx context.Context, file *File, dest string) (string, error) {
	if file == nil || file.RemoteID == "" {
		return "", fmt.Errorf("download: %w", ErrNotFound)
	}
	c.mu.RLock()
	loc, ok := c.files[file.RemoteID]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("download %s: unknown location: %w", file.RemoteID, ErrNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if _, err := c.dl.Download(c.api, loc).ToPath(ctx, dest); err != nil {
		return "", wrapErr("download", err)
	}
	return dest, nil
}

// RecognizeSpeech asks the server to transcribe a voice or video note. A
// transcript that is ready immediately is delivered as an
// UpdateMessageContent, the same way a later push would be.
func (c *Client) RecognizeSpeech(ctx context.Context, chatID, messageID int64) error {
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	res, err := c.api.MessagesTranscribeAudio(ctx, &tg.MessagesTranscribeAudioRequest{
		Peer:  peer,
		MsgID: int(messageID),
	})
	if err != nil {
		return wrapErr("transcribe audio", err)
	}
	if !res.Pending && res.Text != "" {
		c.transcribed(chatID, messageID, res.Text)
	}
	return nil
}

// GetMessage re-reads a single message. Voice notes carry the last known
// transcript.
func (c *Client) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	channelID, ok := ChannelIDFromChat(chatID)
	if !ok {
		return nil, fmt.Errorf("get message %d/%d: not a channel", chatID, messageID)
	}
	input, err := c.inputChannel(channelID)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: input,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: int(messageID)}},
	})
	if err != nil {
		return nil, wrapErr("get message", err)
	}
	for _, m := range c.extractMessages(res) {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %d/%d: %w", chatID, messageID, ErrNotFound)
}

func (c *Client) transcribed(chatID, messageID int64, text string) {
	c.mu.Lock()
	c.transcripts[msgKey{chatID, messageID}] = text
	c.mu.Unlock()
	c.emit(&UpdateMessageContent{
		ChatID:    chatID,
		MessageID: messageID,
		Content:   &MessageVoiceNote{Speech: SpeechRecognized{Text: text}},
	})
}

func (c *Client) registerHandlers(d *tg.UpdateDispatcher) {
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.rememberEntities(e)
		if msg, ok := u.Message.(*tg.Message); ok {
			c.emit(&UpdateNewMessage{Message: c.mapMessage(msg)})
		}
		return nil
	})
	d.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		c.rememberEntities(e)
		if msg, ok := u.Message.(*tg.Message); ok {
			m := c.mapMessage(msg)
			c.emit(&UpdateMessageContent{ChatID: m.ChatID, MessageID: m.ID, Content: m.Content})
		}
		return nil
	})
	d.OnChannel(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannel) error {
		c.rememberEntities(e)
		if ch, ok := e.Channels[u.ChannelID]; ok {
			c.emit(&UpdateSupergroup{Supergroup: channelToSupergroup(ch)})
		} else {
			c.emit(&UpdateUnsupported{Type: "updateChannel"})
		}
		return nil
	})
	d.OnTranscribedAudio(func(ctx context.Context, e tg.Entities, u *tg.UpdateTranscribedAudio) error {
		if u.Pending || u.Text == "" {
			return nil
		}
		c.transcribed(peerChatID(u.Peer), int64(u.MsgID), u.Text)
		return nil
	})
	d.OnUserName(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserName) error {
		c.emit(&UpdateUser{UserID: u.UserID})
		return nil
	})
}

func (c *Client) rememberEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range e.Channels {
		c.channels[id] = ch.AccessHash
	}
}

func (c *Client) rememberChats(chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok {
			c.channels[ch.ID] = ch.AccessHash
		}
	}
}

func (c *Client) inputChannel(channelID int64) (*tg.InputChannel, error) {
	c.mu.RLock()
	hash, ok := c.channels[channelID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("channel %d: no access hash: %w", channelID, ErrNotFound)
	}
	return &tg.InputChannel{ChannelID: channelID, AccessHash: hash}, nil
}

func (c *Client) inputPeer(chatID int64) (tg.InputPeerClass, error) {
	if channelID, ok := ChannelIDFromChat(chatID); ok {
		in, err := c.inputChannel(channelID)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerChannel{ChannelID: in.ChannelID, AccessHash: in.AccessHash}, nil
	}
	if chatID < 0 {
		return &tg.InputPeerChat{ChatID: -chatID}, nil
	}
	return nil, fmt.Errorf("peer %d: users are not supported", chatID)
}

func (c *Client) extractMessages(res tg.MessagesMessagesClass) []*Message {
	var raw []tg.MessageClass
	switch v := res.(type) {
	case *tg.MessagesMessages:
		raw = v.Messages
		c.rememberChats(v.Chats)
	case *tg.MessagesMessagesSlice:
		raw = v.Messages
		c.rememberChats(v.Chats)
	case *tg.MessagesChannelMessages:
		raw = v.Messages
		c.rememberChats(v.Chats)
	default:
		return nil
	}

	// one entry per server record: callers detect the end of a page by its
	// length.
	out := make([]*Message, 0, len(raw))
	for _, m := range raw {
		switch v := m.(type) {
		case *tg.Message:
			out = append(out, c.mapMessage(v))
		case *tg.MessageService:
			out = append(out, mapServiceMessage(v))
		case *tg.MessageEmpty:
			msg := &Message{ID: int64(v.ID), Content: &MessageUnsupported{Type: ContentEmpty}}
			if peer, ok := v.GetPeerID(); ok {
				msg.ChatID = peerChatID(peer)
			}
			out = append(out, msg)
		}
	}
	return out
}

func chatsOf(res tg.MessagesChatsClass) []tg.ChatClass {
	switch v := res.(type) {
	case *tg.MessagesChats:
		return v.Chats
	case *tg.MessagesChatsSlice:
		return v.Chats
	default:
		return nil
	}
}

// wrapErr converts RPC errors into *Error so callers can inspect the code.
func wrapErr(op string, err error) error {
	if _, ok := tgerr.AsFloodWait(err); ok {
		return fmt.Errorf("%s: %w", op, &Error{Code: CodeFlood, Message: "FLOOD_WAIT: " + err.Error()})
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return fmt.Errorf("%s: %w", op, &Error{Code: rpcErr.Code, Message: rpcErr.Type})
	}
	return fmt.Errorf("%s: %w", op, err)
}
