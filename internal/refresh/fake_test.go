package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/internal/database"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/telegram"
)

// fakeClient is an in-memory TelegramClient. Unset hooks return empty
// results.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	chats         map[string]*telegram.Chat
	resolveErr    error
	supergroups   map[int64]*telegram.Supergroup
	fullInfo      map[int64]*telegram.SupergroupFullInfo
	fullInfoErr   error
	history       func(chatID, from int64, limit int) ([]*telegram.Message, error)
	thread        func(chatID, messageID int64) (*telegram.MessageThread, error)
	threadHistory func(chatID, threadID, from int64, limit int) ([]*telegram.Message, error)
	similar       map[int64][]*telegram.Chat
	similarErr    error
	downloadErr   error
	downloads     []string
	recognize     func(chatID, messageID int64) error
	getMessage    func(chatID, messageID int64) (*telegram.Message, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:       make(map[string]int),
		chats:       make(map[string]*telegram.Chat),
		supergroups: make(map[int64]*telegram.Supergroup),
		fullInfo:    make(map[int64]*telegram.SupergroupFullInfo),
		similar:     make(map[int64][]*telegram.Chat),
	}
}

func (f *fakeClient) count(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *fakeClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeClient) SearchPublicChat(_ context.Context, username string) (*telegram.Chat, error) {
	f.count("SearchPublicChat")
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	chat, ok := f.chats[username]
	if !ok {
		return nil, &telegram.Error{Code: 400, Message: "USERNAME_NOT_OCCUPIED"}
	}
	return chat, nil
}

func (f *fakeClient) GetSupergroup(_ context.Context, id int64) (*telegram.Supergroup, error) {
	f.count("GetSupergroup")
	if sg, ok := f.supergroups[id]; ok {
		return sg, nil
	}
	return &telegram.Supergroup{ID: id}, nil
}

func (f *fakeClient) GetSupergroupFullInfo(_ context.Context, id int64) (*telegram.SupergroupFullInfo, error) {
	f.count("GetSupergroupFullInfo")
	if f.fullInfoErr != nil {
		return nil, f.fullInfoErr
	}
	if fi, ok := f.fullInfo[id]; ok {
		return fi, nil
	}
	return &telegram.SupergroupFullInfo{}, nil
}

func (f *fakeClient) GetChatHistory(_ context.Context, chatID, from int64, limit int) ([]*telegram.Message, error) {
	f.count("GetChatHistory")
	if f.history == nil {
		return nil, nil
	}
	return f.history(chatID, from, limit)
}

func (f *fakeClient) GetMessageThread(_ context.Context, chatID, messageID int64) (*telegram.MessageThread, error) {
	f.count("GetMessageThread")
	if f.thread == nil {
		return &telegram.MessageThread{ChatID: chatID, MessageThreadID: messageID}, nil
	}
	return f.thread(chatID, messageID)
}

func (f *fakeClient) GetMessageThreadHistory(_ context.Context, chatID, threadID, from int64, limit int) ([]*telegram.Message, error) {
	f.count("GetMessageThreadHistory")
	if f.threadHistory == nil {
		return nil, nil
	}
	return f.threadHistory(chatID, threadID, from, limit)
}

func (f *fakeClient) GetChatSimilarChats(_ context.Context, chatID int64) ([]*telegram.Chat, error) {
	f.count("GetChatSimilarChats")
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	return f.similar[chatID], nil
}

func (f *fakeClient) DownloadFile(_ context.Context, file *telegram.File, dest string) (string, error) {
	f.count("DownloadFile")
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	f.mu.Lock()
	f.downloads = append(f.downloads, dest)
	f.mu.Unlock()
	return dest, nil
}

func (f *fakeClient) RecognizeSpeech(_ context.Context, chatID, messageID int64) error {
	f.count("RecognizeSpeech")
	if f.recognize == nil {
		return nil
	}
	return f.recognize(chatID, messageID)
}

func (f *fakeClient) GetMessage(_ context.Context, chatID, messageID int64) (*telegram.Message, error) {
	f.count("GetMessage")
	if f.getMessage == nil {
		return nil, telegram.ErrNotFound
	}
	return f.getMessage(chatID, messageID)
}

// channelChat builds a broadcast channel chat for supergroup sgID.
func channelChat(sgID int64, username string) *telegram.Chat {
	return &telegram.Chat{
		ID:              telegram.ChannelChatID(sgID),
		Title:           "Channel " + username,
		Type:            telegram.ChatTypeSupergroup{SupergroupID: sgID, IsChannel: true},
		ActiveUsernames: []string{username},
	}
}

func defaultOptions() Options {
	return Options{
		Tracker:            TrackerConfig{TTL: 30 * 24 * time.Hour},
		HistoryLimit:       100,
		HistoryPageSize:    100,
		CommentPageSize:    100,
		CommentTarget:      200,
		CommentMinReplies:  30,
		MediaTextThreshold: 100,
		SpeechRetries:      1,
	}
}

func newTestService(t *testing.T, fc *fakeClient, opts Options) (*Service, Stores) {
	t.Helper()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))

	stores := NewStores(db.GORM)
	return NewService(fc, stores, nil, nil, opts, logger.Nop()), stores
}

func intPtr(v int) *int { return &v }

// textMessages builds n text posts with descending ids starting below from.
func textMessages(chatID, from int64, n int) []*telegram.Message {
	if from == 0 {
		from = 10000
	}
	out := make([]*telegram.Message, 0, n)
	for i := 0; i < n; i++ {
		id := from - int64(i) - 1
		out = append(out, &telegram.Message{
			ID:      id,
			ChatID:  chatID,
			Date:    1700000000,
			Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "post"}},
		})
	}
	return out
}
