package handlers

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/passport"
)

// previewRunes caps message text in API responses.
const previewRunes = 400

// MessageView is a post prepared for the dashboard.
type MessageView struct {
	ID             int64    `json:"id"`
	Date           *string  `json:"date"`
	ContentType    string   `json:"content_type"`
	TextPreview    *string  `json:"text_preview"`
	Transcription  *string  `json:"transcription"`
	ViewCount      *int     `json:"view_count"`
	ReactionsTotal *int     `json:"reactions_total"`
	ReplyCount     *int     `json:"reply_count"`
	ForwardCount   *int     `json:"forward_count"`
	ER             *float64 `json:"er"`
	IsAd           bool     `json:"is_ad"`
	ImageURLs      []string `json:"image_urls"`
	MediaURL       *string  `json:"media_url"`
}

// TypeSummary aggregates posts of one content type.
type TypeSummary struct {
	Type  string   `json:"type"`
	Count int      `json:"count"`
	AvgER *float64 `json:"avg_er"`
}

// Summary aggregates a channel's posts.
type Summary struct {
	Total    int           `json:"total"`
	AvgViews *float64      `json:"avg_views"`
	AvgER    *float64      `json:"avg_er"`
	Ads      int           `json:"ads"`
	Types    []TypeSummary `json:"types"`
}

// SimilarView is one recommended channel.
type SimilarView struct {
	ChatID       int64   `json:"chat_id"`
	SupergroupID *int64  `json:"supergroup_id"`
	Title        *string `json:"title"`
	Username     *string `json:"active_username"`
}

// NormalizeMessage projects a stored record. adIDs marks paid posts.
func NormalizeMessage(m models.MessageRecord, adIDs map[int64]bool) MessageView {
	reactions := m.ReactionsTotal()
	interactions := reactions + m.ReplyCount + m.ForwardCount

	v := MessageView{
		ID:             m.ID,
		ContentType:    m.ContentType,
		Transcription:  m.Transcription,
		ViewCount:      nonZero(m.ViewCount),
		ReactionsTotal: nonZero(reactions),
		ReplyCount:     nonZero(m.ReplyCount),
		ForwardCount:   nonZero(m.ForwardCount),
		IsAd:           adIDs[m.ID],
		ImageURLs:      passport.ImageURLs(m.Text()),
	}
	if v.ContentType == "" {
		v.ContentType = "unknown"
	}
	if v.ImageURLs == nil {
		v.ImageURLs = []string{}
	}
	if m.Date > 0 {
		s := time.Unix(m.Date, 0).UTC().Format(time.RFC3339)
		v.Date = &s
	}
	if m.ViewCount > 0 {
		er := float64(interactions) / float64(m.ViewCount)
		v.ER = &er
	}

	text := m.Text()
	if text == "" && m.Transcription != nil {
		text = *m.Transcription
	}
	if text != "" {
		if r := []rune(text); len(r) > previewRunes {
			text = string(r[:previewRunes])
		}
		v.TextPreview = &text
	}
	if m.MediaLocalPath != nil && *m.MediaLocalPath != "" {
		u := MediaURL(*m.MediaLocalPath)
		v.MediaURL = &u
	}
	return v
}

// MediaURL maps a path relative to the media root onto the /media route.
func MediaURL(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	return "/media/" + strings.TrimPrefix(path.Clean("/"+rel), "/")
}

// Summarize aggregates views and ER. Content types keep first-seen order.
func Summarize(messages []MessageView) Summary {
	s := Summary{Total: len(messages), Types: []TypeSummary{}}
	if len(messages) == 0 {
		return s
	}

	type acc struct {
		count, erCount int
		erSum          float64
	}
	var (
		viewSum, erSum float64
		erCount        int
		order          []string
	)
	byType := make(map[string]*acc)
	for _, m := range messages {
		if m.ViewCount != nil {
			viewSum += float64(*m.ViewCount)
		}
		if m.IsAd {
			s.Ads++
		}
		a, ok := byType[m.ContentType]
		if !ok {
			a = &acc{}
			byType[m.ContentType] = a
			order = append(order, m.ContentType)
		}
		a.count++
		if m.ER != nil {
			erSum += *m.ER
			erCount++
			a.erSum += *m.ER
			a.erCount++
		}
	}

	avgViews := viewSum / float64(len(messages))
	s.AvgViews = &avgViews
	s.AvgER = average(erSum, erCount)
	for _, t := range order {
		a := byType[t]
		s.Types = append(s.Types, TypeSummary{Type: t, Count: a.count, AvgER: average(a.erSum, a.erCount)})
	}
	return s
}

// AdIDs decodes the ad post ids of a passport.
func AdIDs(p *models.LLMPassport) map[int64]bool {
	out := map[int64]bool{}
	if p == nil || p.Ads == nil {
		return out
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*p.Ads), &ids); err != nil {
		return out
	}
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func average(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}

func nonZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
