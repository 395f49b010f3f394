package refresh

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/telegram"
)

type recordingPublisher struct {
	events []ChannelRefreshedEvent
}

func (p *recordingPublisher) PublishChannelRefreshed(_ context.Context, e ChannelRefreshedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func TestRun_NoLinkedChat(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		return textMessages(chatID, from, 3), nil
	}
	fc.similar[chat.ID] = []*telegram.Chat{channelChat(6, "a"), channelChat(7, "b")}

	svc, stores := newTestService(t, fc, defaultOptions())
	pub := &recordingPublisher{}
	svc.publisher = pub

	sum, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)
	require.Len(t, sum.Entities, 1)
	assert.False(t, sum.Aborted)

	row, err := stores.Channels.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, *row.IsTarget)
	assert.Equal(t, "news", *row.ActiveUsername)
	assert.False(t, *row.HasLinkedChat)
	assert.Equal(t, 2, *row.SimilarCount)

	for _, resource := range []string{ResourceResolve, ResourceHistory, ResourceComments, ResourceSimilar} {
		st, err := stores.States.Get(ctx, chat.ID, resource)
		require.NoError(t, err, resource)
		assert.NotNil(t, st.LastSuccessAt, resource)
	}

	comments, err := stores.Snapshots.GetComments(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, comments)
	assert.Equal(t, 0, fc.Calls("GetMessageThread"))

	doc, err := stores.Snapshots.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 3)

	require.Len(t, pub.events, 1)
	assert.Equal(t, sum.RunID, pub.events[0].RunID)
	assert.Contains(t, pub.events[0].Refreshed, ResourceHistory)
	assert.Empty(t, pub.events[0].Failed)
}

func TestRun_EmptyTargetList(t *testing.T) {
	fc := newFakeClient()
	svc, _ := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sum.Entities)
	assert.Equal(t, 0, fc.Calls("SearchPublicChat"))
}

func TestFetchHistory_Pagination(t *testing.T) {
	fc := newFakeClient()
	call := 0
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		call++
		n := 100
		if call >= 3 {
			n = 30
		}
		return textMessages(chatID, from, min(n, limit)), nil
	}
	opts := defaultOptions()
	opts.HistoryLimit = 250
	svc, _ := newTestService(t, fc, opts)

	doc, err := svc.fetchHistory(context.Background(), -1005)
	require.NoError(t, err)
	assert.Equal(t, 3, fc.Calls("GetChatHistory"))
	assert.Len(t, doc.Messages, 230)
	assert.Equal(t, 230, doc.FetchedCount)
	require.Len(t, doc.Batches, 3)
	assert.Equal(t, 100, doc.Batches[1].Requested)
	assert.Equal(t, 50, doc.Batches[2].Requested)
	assert.Equal(t, 30, doc.Batches[2].Received)
	assert.Equal(t, doc.Messages[99].ID, doc.Batches[1].FromMessageID)

	seen := make(map[int64]bool)
	for _, m := range doc.Messages {
		assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
		seen[m.ID] = true
	}
}

func TestFetchHistory_ServiceEntriesKeepPaging(t *testing.T) {
	fc := newFakeClient()
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		batch := textMessages(chatID, from, min(100, limit))
		if from == 0 {
			batch[10].Content = &telegram.MessageUnsupported{Type: "messageActionPinMessage"}
			batch[20].Content = &telegram.MessageUnsupported{Type: telegram.ContentEmpty}
		}
		return batch, nil
	}
	opts := defaultOptions()
	opts.HistoryLimit = 300
	svc, _ := newTestService(t, fc, opts)

	doc, err := svc.fetchHistory(context.Background(), -1005)
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 300)
	assert.Equal(t, 4, fc.Calls("GetChatHistory"))
	assert.Equal(t, "messageActionPinMessage", doc.Messages[10].ContentType)
	for _, m := range doc.Messages {
		assert.NotEqual(t, int64(10000-21), m.ID)
	}
}

func TestFetchHistory_StopsOnEmptyAndDedupes(t *testing.T) {
	fc := newFakeClient()
	call := 0
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		call++
		if call == 1 {
			batch := textMessages(chatID, 0, 2)
			return append(batch, batch[0], nil), nil
		}
		return nil, nil
	}
	opts := defaultOptions()
	opts.HistoryLimit = 4
	opts.HistoryPageSize = 4
	svc, _ := newTestService(t, fc, opts)

	doc, err := svc.fetchHistory(context.Background(), -1005)
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 2)
	assert.Equal(t, 2, fc.Calls("GetChatHistory"))
}

// setupCommentChannel stores a linked channel whose history has posts with
// the given reply counts.
func setupCommentChannel(t *testing.T, replies []int) (*Service, *fakeClient, *telegram.Chat) {
	t.Helper()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat
	fc.fullInfo[5] = &telegram.SupergroupFullInfo{LinkedChatID: -1009}
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		var out []*telegram.Message
		for i, n := range replies {
			out = append(out, &telegram.Message{
				ID:          int64(100 + i),
				ChatID:      chatID,
				Content:     &telegram.MessageText{Text: telegram.FormattedText{Text: "post"}},
				Interaction: &telegram.InteractionInfo{ReplyCount: intPtr(n)},
			})
		}
		return out, nil
	}
	fc.threadHistory = func(chatID, threadID, from int64, limit int) ([]*telegram.Message, error) {
		return textMessages(chatID, 0, 3), nil
	}
	svc, _ := newTestService(t, fc, defaultOptions())
	return svc, fc, chat
}

func TestRefreshComments_BelowMinimum(t *testing.T) {
	svc, fc, chat := setupCommentChannel(t, []int{10, 5, 5, 3, 2})

	sum, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)

	step, ok := sum.Entities[0].Step(ResourceComments)
	require.True(t, ok)
	assert.Equal(t, StatusOK, step.Status)
	assert.Equal(t, 0, fc.Calls("GetMessageThread"))
	assert.Equal(t, 0, fc.Calls("GetMessageThreadHistory"))

	comments, err := svc.snapshots.GetComments(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Nil(t, comments)
}

func TestRefreshComments_AboveMinimum(t *testing.T) {
	svc, fc, chat := setupCommentChannel(t, []int{10, 5, 5, 3, 8, 0})

	_, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)

	assert.Equal(t, 5, fc.Calls("GetMessageThread"))
	assert.GreaterOrEqual(t, fc.Calls("GetMessageThreadHistory"), 1)

	comments, err := svc.snapshots.GetComments(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 15)
	assert.Equal(t, "post", comments[0].Text)
}

// textRecords builds records in ascending id order with the given reply counts.
func textRecords(replies map[int64]int) []models.MessageRecord {
	ids := make([]int64, 0, len(replies))
	for id := range replies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]models.MessageRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.MessageRecord{ID: id, ReplyCount: replies[id]})
	}
	return out
}

func TestCommentRoots(t *testing.T) {
	msgs := textRecords(map[int64]int{1: 3, 2: 0, 3: 9, 4: 3, 5: 1, 6: 4, 7: 2})
	roots := CommentRoots(msgs, 5)
	require.Len(t, roots, 5)
	ids := make([]int64, 0, len(roots))
	for _, r := range roots {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{3, 6, 1, 4, 7}, ids)
}

func TestFetchThread_FiltersAndStops(t *testing.T) {
	fc := newFakeClient()
	now := time.Now().Unix()
	fc.threadHistory = func(chatID, threadID, from int64, limit int) ([]*telegram.Message, error) {
		return []*telegram.Message{
			{ID: 50, Date: now, Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "root"}}},
			{ID: 49, Date: now, Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "first"}}},
			{ID: 49, Date: now, Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "first"}}},
			{ID: 48, Date: now, Content: &telegram.MessagePhoto{}},
			{ID: 47, Date: now - 100000, Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "too old"}}},
			{ID: 46, Date: now, Content: &telegram.MessageText{Text: telegram.FormattedText{Text: "never reached"}}},
		}, nil
	}
	svc, _ := newTestService(t, fc, defaultOptions())

	got, err := svc.fetchThread(context.Background(), -1009, 50, now-1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, 1, fc.Calls("GetMessageThreadHistory"))
}

func TestFetchThread_ServiceEntriesKeepPaging(t *testing.T) {
	fc := newFakeClient()
	fc.threadHistory = func(chatID, threadID, from int64, limit int) ([]*telegram.Message, error) {
		batch := textMessages(chatID, from, min(100, limit))
		if from == 0 {
			batch[5].Content = &telegram.MessageUnsupported{Type: "messageActionPinMessage"}
		}
		return batch, nil
	}
	svc, _ := newTestService(t, fc, defaultOptions())

	got, err := svc.fetchThread(context.Background(), -1009, 1, 0, 150)
	require.NoError(t, err)
	assert.Len(t, got, 150)
	assert.Equal(t, 2, fc.Calls("GetMessageThreadHistory"))
}

func TestRun_FloodAbortsRun(t *testing.T) {
	fc := newFakeClient()
	fc.chats["news"] = channelChat(5, "news")
	fc.chats["other"] = channelChat(6, "other")
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		return nil, fmt.Errorf("get history: %w", &telegram.Error{Code: 429, Message: "FLOOD_WAIT_30"})
	}
	svc, stores := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(context.Background(), []string{"news", "other"})
	require.Error(t, err)
	assert.True(t, telegram.IsFlood(err))
	assert.True(t, sum.Aborted)
	require.Len(t, sum.Entities, 1)
	assert.Equal(t, 1, fc.Calls("SearchPublicChat"))
	assert.Equal(t, 0, fc.Calls("GetChatSimilarChats"))

	st, err := stores.States.Get(context.Background(), telegram.ChannelChatID(5), ResourceHistory)
	require.NoError(t, err)
	require.NotNil(t, st.LastErrorCode)
	assert.Equal(t, 429, *st.LastErrorCode)
	assert.Nil(t, st.LastSuccessAt)
}

func TestRun_FloodOnResolveAbortsRun(t *testing.T) {
	fc := newFakeClient()
	fc.resolveErr = &telegram.Error{Code: 429, Message: "Too Many Requests"}
	svc, _ := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Len(t, sum.Entities, 1)
}

func TestRun_StepFailureContinues(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat
	fc.fullInfoErr = &telegram.Error{Code: 400, Message: "CHANNEL_PRIVATE"}
	svc, stores := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)
	res := sum.Entities[0]

	full, _ := res.Step(ResourceFullInfo)
	assert.Equal(t, StatusFailed, full.Status)
	assert.Equal(t, 400, full.ErrorCode)
	hist, _ := res.Step(ResourceHistory)
	assert.Equal(t, StatusOK, hist.Status)
	sim, _ := res.Step(ResourceSimilar)
	assert.Equal(t, StatusOK, sim.Status)

	st, err := stores.States.Get(ctx, chat.ID, ResourceFullInfo)
	require.NoError(t, err)
	assert.Equal(t, 400, *st.LastErrorCode)
	assert.NotNil(t, st.LastRequestAt)

	_, _, failed := sum.Counts()
	assert.Equal(t, 1, failed)
}

func TestRun_ResolveFailureSkipsEntity(t *testing.T) {
	fc := newFakeClient()
	fc.chats["good"] = channelChat(5, "good")
	svc, _ := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(context.Background(), []string{"missing", "good"})
	require.NoError(t, err)
	require.Len(t, sum.Entities, 2)
	assert.NotEmpty(t, sum.Entities[0].Error)
	assert.Empty(t, sum.Entities[0].Steps)
	assert.Empty(t, sum.Entities[1].Error)
}

func TestRun_NonSupergroupSkipsGroupSteps(t *testing.T) {
	fc := newFakeClient()
	fc.chats["bob"] = &telegram.Chat{ID: 42, Title: "Bob", Type: telegram.ChatTypePrivate{UserID: 42}}
	svc, _ := newTestService(t, fc, defaultOptions())

	sum, err := svc.Run(context.Background(), []string{"bob"})
	require.NoError(t, err)
	st, _ := sum.Entities[0].Step(ResourceSupergroup)
	assert.Equal(t, StatusNotApplicable, st.Status)
	assert.Equal(t, 0, fc.Calls("GetSupergroup"))
	assert.Equal(t, 0, fc.Calls("GetSupergroupFullInfo"))
}

func TestRun_TTLSkipsFreshSteps(t *testing.T) {
	fc := newFakeClient()
	fc.chats["news"] = channelChat(5, "news")
	svc, _ := newTestService(t, fc, defaultOptions())

	_, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)
	sum, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)

	assert.Equal(t, 2, fc.Calls("SearchPublicChat"))
	assert.Equal(t, 1, fc.Calls("GetChatHistory"))
	hist, _ := sum.Entities[0].Step(ResourceHistory)
	assert.Equal(t, StatusSkipped, hist.Status)
}

func TestRun_FillOnlySkipsWithoutNetwork(t *testing.T) {
	fc := newFakeClient()
	fc.chats["news"] = channelChat(5, "news")
	opts := defaultOptions()
	opts.Tracker.TTL = 0
	svc, _ := newTestService(t, fc, opts)

	_, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)
	sum, err := svc.Run(context.Background(), []string{"@News"})
	require.NoError(t, err)

	assert.Equal(t, 1, fc.Calls("SearchPublicChat"))
	assert.True(t, sum.Entities[0].Skipped)
	assert.Equal(t, telegram.ChannelChatID(5), sum.Entities[0].ChatID)
}

func TestRun_FillOnlyRefetchesMissing(t *testing.T) {
	fc := newFakeClient()
	fc.chats["news"] = channelChat(5, "news")
	fc.similarErr = &telegram.Error{Code: 500, Message: "INTERNAL"}
	opts := defaultOptions()
	opts.Tracker.TTL = 0
	svc, _ := newTestService(t, fc, opts)

	_, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)
	fc.similarErr = nil
	sum, err := svc.Run(context.Background(), []string{"news"})
	require.NoError(t, err)

	assert.False(t, sum.Entities[0].Skipped)
	assert.Equal(t, 1, fc.Calls("GetChatHistory"))
	assert.Equal(t, 2, fc.Calls("GetChatSimilarChats"))
}

func TestRun_MediaAndTranscription(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat

	photo := func(id int64, caption string) *telegram.Message {
		return &telegram.Message{ID: id, ChatID: chat.ID, Content: &telegram.MessagePhoto{
			Caption: telegram.FormattedText{Text: caption},
			Sizes:   []telegram.PhotoSize{{Width: 320, File: telegram.File{RemoteID: "p"}}},
		}}
	}
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'я'
	}
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		return []*telegram.Message{
			photo(10, "short"),
			photo(9, string(long)),
			{ID: 8, ChatID: chat.ID, Content: &telegram.MessageVoiceNote{Voice: telegram.File{RemoteID: "v"}}},
			{ID: 7, ChatID: chat.ID, Content: &telegram.MessageVoiceNote{Speech: telegram.SpeechRecognized{Text: "embedded"}}},
		}, nil
	}

	opts := defaultOptions()
	opts.MediaDir = t.TempDir()
	opts.SpeechTimeout = time.Second
	svc, stores := newTestService(t, fc, opts)
	fc.recognize = func(chatID, messageID int64) error {
		svc.router.Dispatch(transcriptUpdate(chatID, messageID, "pushed text"))
		return nil
	}

	_, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)

	doc, err := stores.Snapshots.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, doc.Messages, 4)

	require.NotNil(t, doc.Messages[0].MediaLocalPath)
	assert.Equal(t, fmt.Sprintf("%d/10.jpg", chat.ID), *doc.Messages[0].MediaLocalPath)
	assert.Nil(t, doc.Messages[1].MediaLocalPath)
	assert.Equal(t, 1, fc.Calls("DownloadFile"))

	require.NotNil(t, doc.Messages[2].Transcription)
	assert.Equal(t, "pushed text", *doc.Messages[2].Transcription)
	assert.Equal(t, "embedded", *doc.Messages[3].Transcription)
	assert.Equal(t, 1, fc.Calls("RecognizeSpeech"))
	assert.Equal(t, 0, svc.correlator.Len())
}

func TestRun_AuxiliaryFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat
	fc.downloadErr = fmt.Errorf("disk full")
	fc.recognize = func(int64, int64) error { return &telegram.Error{Code: 400, Message: "MSG_VOICE_MISSING"} }
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		return []*telegram.Message{
			{ID: 2, ChatID: chatID, Content: &telegram.MessageVideo{Thumbnail: &telegram.PhotoSize{File: telegram.File{RemoteID: "t"}}}},
			{ID: 1, ChatID: chatID, Content: &telegram.MessageVideoNote{VideoNote: telegram.File{RemoteID: "n"}}},
		}, nil
	}
	opts := defaultOptions()
	opts.MediaDir = t.TempDir()
	svc, stores := newTestService(t, fc, opts)

	sum, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)
	hist, _ := sum.Entities[0].Step(ResourceHistory)
	assert.Equal(t, StatusOK, hist.Status)

	doc, err := stores.Snapshots.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, doc.Messages, 2)
	assert.Nil(t, doc.Messages[0].MediaLocalPath)
	assert.Nil(t, doc.Messages[1].Transcription)
	assert.Equal(t, 0, svc.correlator.Len())
}

func TestRun_ReconcilesUpdatesReceivedDuringRefresh(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat

	svc, stores := newTestService(t, fc, defaultOptions())
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		svc.router.Dispatch(&telegram.UpdateSupergroup{Supergroup: &telegram.Supergroup{ID: 5, MemberCount: intPtr(100)}})
		svc.router.Dispatch(&telegram.UpdateSupergroup{Supergroup: &telegram.Supergroup{ID: 5, MemberCount: intPtr(777)}})
		svc.router.Dispatch(&telegram.UpdateSupergroup{Supergroup: &telegram.Supergroup{ID: 999, MemberCount: intPtr(1)}})
		return nil, nil
	}

	sum, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Entities[0].UpdatesApplied)

	row, err := stores.Channels.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 777, *row.MemberCount)

	_, err = stores.Channels.GetByID(ctx, telegram.ChannelChatID(999))
	assert.Error(t, err)
}

func TestRun_TranscriptionFallsBackToPoll(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	chat := channelChat(5, "news")
	fc.chats["news"] = chat
	fc.history = func(chatID, from int64, limit int) ([]*telegram.Message, error) {
		return []*telegram.Message{
			{ID: 3, ChatID: chatID, Content: &telegram.MessageVoiceNote{Voice: telegram.File{RemoteID: "v"}}},
		}, nil
	}
	fc.getMessage = func(chatID, messageID int64) (*telegram.Message, error) {
		return &telegram.Message{ID: messageID, ChatID: chatID, Content: &telegram.MessageVoiceNote{
			Speech: telegram.SpeechRecognized{Text: "re-read"},
		}}, nil
	}
	opts := defaultOptions()
	opts.SpeechTimeout = time.Second
	svc, stores := newTestService(t, fc, opts)

	_, err := svc.Run(ctx, []string{"news"})
	require.NoError(t, err)

	doc, err := stores.Snapshots.GetHistory(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)
	require.NotNil(t, doc.Messages[0].Transcription)
	assert.Equal(t, "re-read", *doc.Messages[0].Transcription)
	assert.Equal(t, 1, fc.Calls("GetMessage"))
}
