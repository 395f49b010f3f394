package passport

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/blockedby/chanscope/internal/models"
)

// maxComments caps the comment texts sent to the model.
const maxComments = 200

// Input is the JSON document handed to the model.
type Input struct {
	ChannelInfo       ChannelInfo       `json:"channel_info"`
	Messages          []MessageInput    `json:"messages"`
	MessageSummary    MessageSummary    `json:"message_summary"`
	EngagementSummary []EngagementStats `json:"engagement_summary"`
	Comments          []string          `json:"comments"`
}

// ChannelInfo is the channel row without bookkeeping columns.
type ChannelInfo struct {
	ID                           int64   `json:"id"`
	ActiveUsername               *string `json:"active_username"`
	Title                        *string `json:"title"`
	Description                  *string `json:"description"`
	BoostLevel                   *int    `json:"boost_level"`
	Date                         *string `json:"date"`
	HasDirectMessagesGroup       *bool   `json:"has_direct_messages_group"`
	HasLinkedChat                *bool   `json:"has_linked_chat"`
	MemberCount                  *int    `json:"member_count"`
	IsVerified                   *bool   `json:"is_verified"`
	DirectMessagesChatID         *int64  `json:"direct_messages_chat_id"`
	GiftCount                    *int    `json:"gift_count"`
	LinkedChatID                 *int64  `json:"linked_chat_id"`
	OutgoingPaidMessageStarCount *int64  `json:"outgoing_paid_message_star_count"`
	ReactionsDisabled            *bool   `json:"reactions_disabled"`
	SimilarCount                 *int    `json:"similar_count"`
	UpdatedAt                    *string `json:"updated_at"`
}

// MessageInput is one post as the model sees it.
type MessageInput struct {
	ID             int64                  `json:"id"`
	ChatID         int64                  `json:"chat_id"`
	Date           *string                `json:"date"`
	ContentType    string                 `json:"content_type"`
	TextMarkdown   *string                `json:"text_markdown"`
	MediaLocalPath *string                `json:"media_local_path"`
	ForwardCount   *int                   `json:"forward_count,omitempty"`
	ReplyCount     *int                   `json:"reply_count,omitempty"`
	ViewCount      *int                   `json:"view_count,omitempty"`
	Reactions      *models.ReactionTotals `json:"reactions,omitempty"`
	Transcription  *string                `json:"transcription,omitempty"`
	ImageURLs      []string               `json:"image_urls,omitempty"`
}

// MessageSummary gives the posting cadence.
type MessageSummary struct {
	Total       int  `json:"total"`
	AvgPosts30d *int `json:"avg_posts_30d"`
}

// EngagementStats describes views and interactions over a sample of posts.
// Nil fields could not be computed.
type EngagementStats struct {
	Scope               string   `json:"scope"`
	SampleSize          int      `json:"sample_size"`
	AvgViews            *float64 `json:"avg_views"`
	MedianViews         *float64 `json:"median_views"`
	P95Views            *float64 `json:"p95_views"`
	MaxViews            *float64 `json:"max_views"`
	AvgEngagement       *float64 `json:"avg_engagement"`
	ERTotal             *float64 `json:"er_total"`
	ERAvg               *float64 `json:"er_avg"`
	ReactionRate        *float64 `json:"reaction_rate"`
	ReplyRate           *float64 `json:"reply_rate"`
	ForwardRate         *float64 `json:"forward_rate"`
	SpikeRatioViews     *float64 `json:"spike_ratio_views"`
	MaxOverP95Views     *float64 `json:"max_over_p95_views"`
	FlatnessLast30Views *float64 `json:"flatness_last30_views"`
	FlatBandShareViews  *float64 `json:"flat_band_share_views"`
	HasSpikes           *bool    `json:"has_spikes"`
	PossibleSmoothing   *bool    `json:"possible_smoothing"`
	DataSparse          bool     `json:"data_sparse"`
}

var imageURLPattern = regexp.MustCompile(`(?i)(https?://[^\s)]+\.(?:png|jpe?g|gif|webp))`)

// BuildInput assembles the model input. history and comments may be nil.
func BuildInput(ch models.Channel, history *models.HistoryDocument, comments []models.CommentRecord) Input {
	var records []models.MessageRecord
	if history != nil {
		records = history.Messages
	}
	messages := make([]MessageInput, 0, len(records))
	for _, m := range records {
		messages = append(messages, messageInput(m))
	}

	return Input{
		ChannelInfo:       channelInfo(ch),
		Messages:          messages,
		MessageSummary:    Summarize(records),
		EngagementSummary: []EngagementStats{Engagement("all", records)},
		Comments:          commentTexts(comments),
	}
}

// Images returns the distinct local media paths referenced by in.
func (in Input) Images() []string {
	var out []string
	for _, m := range in.Messages {
		if m.MediaLocalPath == nil || strings.TrimSpace(*m.MediaLocalPath) == "" {
			continue
		}
		if !slices.Contains(out, *m.MediaLocalPath) {
			out = append(out, *m.MediaLocalPath)
		}
	}
	return out
}

func channelInfo(ch models.Channel) ChannelInfo {
	info := ChannelInfo{
		ID:                           ch.ChatID,
		ActiveUsername:               ch.ActiveUsername,
		Title:                        ch.Title,
		Description:                  ch.Description,
		BoostLevel:                   ch.BoostLevel,
		HasDirectMessagesGroup:       ch.HasDirectMessagesGroup,
		HasLinkedChat:                ch.HasLinkedChat,
		MemberCount:                  ch.MemberCount,
		IsVerified:                   ch.IsVerified,
		DirectMessagesChatID:         ch.DirectMessagesChatID,
		GiftCount:                    ch.GiftCount,
		LinkedChatID:                 ch.LinkedChatID,
		OutgoingPaidMessageStarCount: ch.OutgoingPaidMessageStarCount,
		ReactionsDisabled:            ch.ReactionsDisabled,
		SimilarCount:                 ch.SimilarCount,
	}
	if ch.Date != nil {
		info.Date = isoTime(*ch.Date)
	}
	if !ch.UpdatedAt.IsZero() {
		s := ch.UpdatedAt.UTC().Format(time.RFC3339)
		info.UpdatedAt = &s
	}
	return info
}

func messageInput(m models.MessageRecord) MessageInput {
	out := MessageInput{
		ID:             m.ID,
		ChatID:         m.ChatID,
		Date:           isoTime(m.Date),
		ContentType:    m.ContentType,
		TextMarkdown:   m.TextMarkdown,
		MediaLocalPath: m.MediaLocalPath,
		ForwardCount:   positive(m.ForwardCount),
		ReplyCount:     positive(m.ReplyCount),
		ViewCount:      positive(m.ViewCount),
		Reactions:      m.Reactions,
		Transcription:  m.Transcription,
	}
	out.ImageURLs = ImageURLs(m.Text())
	return out
}

// ImageURLs extracts distinct image links from text.
func ImageURLs(text string) []string {
	var out []string
	for _, u := range imageURLPattern.FindAllString(text, -1) {
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

func commentTexts(comments []models.CommentRecord) []string {
	var out []string
	for _, c := range comments {
		if len(out) >= maxComments {
			break
		}
		if strings.TrimSpace(c.Text) != "" {
			out = append(out, c.Text)
		}
	}
	return out
}

// Summarize extrapolates the posting rate to a 30 day window. The observed
// span is at least one hour.
func Summarize(messages []models.MessageRecord) MessageSummary {
	sum := MessageSummary{Total: len(messages)}
	var oldest, newest int64
	n := 0
	for _, m := range messages {
		if m.Date <= 0 {
			continue
		}
		if n == 0 || m.Date < oldest {
			oldest = m.Date
		}
		if n == 0 || m.Date > newest {
			newest = m.Date
		}
		n++
	}
	if n == 0 {
		return sum
	}
	span := max(float64(newest-oldest), time.Hour.Seconds())
	avg := int(math.Round(float64(n) / span * 30 * 24 * time.Hour.Seconds()))
	sum.AvgPosts30d = &avg
	return sum
}

// Engagement computes view and interaction statistics. Messages are expected
// newest first.
func Engagement(scope string, messages []models.MessageRecord) EngagementStats {
	st := EngagementStats{Scope: scope, SampleSize: len(messages), DataSparse: len(messages) < 10}

	var views, engagements, perView []float64
	var totalReactions, totalReplies, totalForwards float64
	for _, m := range messages {
		reactions := float64(m.ReactionsTotal())
		replies := float64(m.ReplyCount)
		forwards := float64(m.ForwardCount)
		eng := reactions + replies + forwards

		totalReactions += reactions
		totalReplies += replies
		totalForwards += forwards
		engagements = append(engagements, eng)

		if m.ViewCount > 0 {
			v := float64(m.ViewCount)
			views = append(views, v)
			perView = append(perView, eng/v)
		}
	}

	sorted := slices.Clone(views)
	slices.Sort(sorted)
	p50 := Percentile(sorted, 50)
	p95 := Percentile(sorted, 95)

	st.AvgViews = mean(views)
	st.MedianViews = p50
	st.P95Views = p95
	if len(sorted) > 0 {
		st.MaxViews = ptr(sorted[len(sorted)-1])
	}
	st.AvgEngagement = mean(engagements)

	if totalViews := total(views); totalViews > 0 {
		st.ERTotal = ptr(total(engagements) / totalViews)
		st.ReactionRate = ptr(totalReactions / totalViews)
		st.ReplyRate = ptr(totalReplies / totalViews)
		st.ForwardRate = ptr(totalForwards / totalViews)
	}
	st.ERAvg = mean(perView)

	if p50 != nil && *p50 > 0 && p95 != nil {
		st.SpikeRatioViews = ptr(*p95 / *p50)
		st.HasSpikes = ptr(*st.SpikeRatioViews > 1.4)
	}
	if p95 != nil && *p95 > 0 && st.MaxViews != nil {
		st.MaxOverP95Views = ptr(*st.MaxViews / *p95)
	}

	recent := views[:min(len(views), 30)]
	if m, sd := mean(recent), stddev(recent); m != nil && *m > 0 && sd != nil {
		st.FlatnessLast30Views = ptr(*sd / *m)
	}
	if p50 != nil && *p50 > 0 && len(views) > 0 {
		lower, upper := *p50*0.95, *p50*1.05
		in := 0
		for _, v := range views {
			if v >= lower && v <= upper {
				in++
			}
		}
		st.FlatBandShareViews = ptr(float64(in) / float64(len(views)))
	}
	if st.FlatnessLast30Views != nil && st.FlatBandShareViews != nil {
		st.PossibleSmoothing = ptr(*st.FlatnessLast30Views < 0.05 && *st.FlatBandShareViews > 0.7)
	}
	return st
}

// Percentile interpolates linearly between closest ranks of sortedAsc.
func Percentile(sortedAsc []float64, p float64) *float64 {
	if len(sortedAsc) == 0 {
		return nil
	}
	if p <= 0 {
		return ptr(sortedAsc[0])
	}
	if p >= 100 {
		return ptr(sortedAsc[len(sortedAsc)-1])
	}
	rank := p / 100 * float64(len(sortedAsc)-1)
	low, high := int(math.Floor(rank)), int(math.Ceil(rank))
	if low == high {
		return ptr(sortedAsc[low])
	}
	w := rank - float64(low)
	return ptr(sortedAsc[low]*(1-w) + sortedAsc[high]*w)
}

func total(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	return ptr(total(xs) / float64(len(xs)))
}

// stddev is the population deviation; nil when the mean is zero.
func stddev(xs []float64) *float64 {
	m := mean(xs)
	if m == nil || *m == 0 {
		return nil
	}
	var acc float64
	for _, x := range xs {
		acc += (x - *m) * (x - *m)
	}
	return ptr(math.Sqrt(acc / float64(len(xs))))
}

func isoTime(unix int64) *string {
	if unix <= 0 {
		return nil
	}
	s := time.Unix(unix, 0).UTC().Format(time.RFC3339)
	return &s
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func ptr[T any](v T) *T { return &v }
