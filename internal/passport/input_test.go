package passport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chanscope/internal/models"
)

func record(id int64, date int64, views, replies int) models.MessageRecord {
	return models.MessageRecord{ID: id, ChatID: -100, Date: date, ContentType: "messageText", ViewCount: views, ReplyCount: replies}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	assert.Nil(t, Percentile(nil, 50))
	assert.Equal(t, 10.0, *Percentile(sorted, 0))
	assert.Equal(t, 40.0, *Percentile(sorted, 100))
	assert.Equal(t, 25.0, *Percentile(sorted, 50))
	assert.InDelta(t, 38.5, *Percentile(sorted, 95), 1e-9)
	assert.Equal(t, 20.0, *Percentile([]float64{20}, 95))
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := Summarize(nil)
		assert.Equal(t, 0, s.Total)
		assert.Nil(t, s.AvgPosts30d)
	})

	t.Run("ten posts over ten days", func(t *testing.T) {
		var msgs []models.MessageRecord
		for i := 0; i < 10; i++ {
			msgs = append(msgs, record(int64(i+1), 1_700_000_000+int64(i)*86400*10/9, 0, 0))
		}
		s := Summarize(msgs)
		require.NotNil(t, s.AvgPosts30d)
		assert.Equal(t, 30, *s.AvgPosts30d)
	})

	t.Run("single post uses one hour span", func(t *testing.T) {
		s := Summarize([]models.MessageRecord{record(1, 1_700_000_000, 0, 0)})
		require.NotNil(t, s.AvgPosts30d)
		assert.Equal(t, 720, *s.AvgPosts30d)
	})
}

func TestEngagement(t *testing.T) {
	msgs := []models.MessageRecord{
		record(3, 3, 1000, 10),
		record(2, 2, 2000, 0),
		record(1, 1, 0, 5),
	}
	msgs[1].Reactions = &models.ReactionTotals{Total: 40, Free: 40}
	msgs[1].ForwardCount = 10

	st := Engagement("all", msgs)
	assert.Equal(t, 3, st.SampleSize)
	assert.True(t, st.DataSparse)
	assert.Equal(t, 1500.0, *st.AvgViews)
	assert.Equal(t, 1500.0, *st.MedianViews)
	assert.Equal(t, 2000.0, *st.MaxViews)
	assert.InDelta(t, 65.0/3000, *st.ERTotal, 1e-9)
	assert.InDelta(t, (10.0/1000+50.0/2000)/2, *st.ERAvg, 1e-9)
	assert.InDelta(t, 40.0/3000, *st.ReactionRate, 1e-9)
	assert.False(t, *st.HasSpikes)
}

func TestEngagement_NoViews(t *testing.T) {
	st := Engagement("all", []models.MessageRecord{record(1, 1, 0, 3)})
	assert.Nil(t, st.AvgViews)
	assert.Nil(t, st.ERTotal)
	assert.Nil(t, st.HasSpikes)
	assert.Equal(t, 3.0, *st.AvgEngagement)
}

func TestEngagement_FlatViewsLookSmoothed(t *testing.T) {
	var msgs []models.MessageRecord
	for i := 0; i < 20; i++ {
		msgs = append(msgs, record(int64(i), int64(i), 1000+i%2, 0))
	}
	st := Engagement("all", msgs)
	require.NotNil(t, st.PossibleSmoothing)
	assert.True(t, *st.PossibleSmoothing)
	assert.False(t, st.DataSparse)
}

func TestBuildInput(t *testing.T) {
	title := "News"
	text := "see https://example.com/a.png and https://example.com/a.png"
	path := "-100/1.jpg"
	history := &models.HistoryDocument{Messages: []models.MessageRecord{
		{ID: 2, ChatID: -100, Date: 1_700_000_000, TextMarkdown: &text, MediaLocalPath: &path, ViewCount: 10},
		{ID: 1, ChatID: -100, Date: 1_699_990_000, MediaLocalPath: &path},
	}}
	var comments []models.CommentRecord
	for i := 0; i < maxComments+10; i++ {
		comments = append(comments, models.CommentRecord{Text: "c"})
	}
	comments = append([]models.CommentRecord{{Text: "  "}}, comments...)

	in := BuildInput(models.Channel{ChatID: -100, Title: &title}, history, comments)

	assert.Equal(t, int64(-100), in.ChannelInfo.ID)
	assert.Equal(t, "News", *in.ChannelInfo.Title)
	require.Len(t, in.Messages, 2)
	assert.Equal(t, []string{"https://example.com/a.png"}, in.Messages[0].ImageURLs)
	assert.Equal(t, 10, *in.Messages[0].ViewCount)
	assert.Nil(t, in.Messages[1].ViewCount)
	assert.True(t, strings.HasPrefix(*in.Messages[0].Date, "2023-11-14T"))
	assert.Len(t, in.Comments, maxComments)
	assert.Equal(t, []string{path}, in.Images())
	require.Len(t, in.EngagementSummary, 1)
	assert.Equal(t, "all", in.EngagementSummary[0].Scope)
}

func TestBuildInput_NoHistory(t *testing.T) {
	in := BuildInput(models.Channel{ChatID: 5}, nil, nil)
	assert.Empty(t, in.Messages)
	assert.Nil(t, in.Comments)
	assert.Equal(t, 0, in.MessageSummary.Total)
}
