package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
)

// ChannelsHandler serves the read-only channel API.
type ChannelsHandler struct {
	channels  ChannelsRepository
	snapshots SnapshotsRepository
	passports PassportsRepository
	log       *logger.Logger
}

// NewChannelsHandler creates a new ChannelsHandler.
func NewChannelsHandler(channels ChannelsRepository, snapshots SnapshotsRepository, passports PassportsRepository, log *logger.Logger) *ChannelsHandler {
	if log == nil {
		log = logger.Get()
	}
	return &ChannelsHandler{channels: channels, snapshots: snapshots, passports: passports, log: log}
}

// ChannelListItem is one row of GET /api/channels.
type ChannelListItem struct {
	ChatID            int64   `json:"chat_id"`
	ActiveUsername    *string `json:"active_username"`
	Title             *string `json:"title"`
	MemberCount       *int    `json:"member_count"`
	UpdatedAt         *string `json:"updated_at"`
	ReactionsDisabled *bool   `json:"reactions_disabled"`
	IsTarget          *bool   `json:"is_target"`
	Category          *string `json:"category"`
	BrandSafety       *string `json:"brand_safety"`
	Summary           Summary `json:"summary"`
}

// ChannelDetail is the body of GET /api/channels/{id}.
type ChannelDetail struct {
	Channel  models.Channel         `json:"channel"`
	Messages []MessageView          `json:"messages"`
	Summary  Summary                `json:"summary"`
	Comments []models.CommentRecord `json:"comments"`
	Similar  []SimilarView          `json:"similar"`
	Passport *models.LLMPassport    `json:"passport"`
}

// List returns every stored channel with its message summary. ?targets=true
// restricts the list to curated targets.
func (h *ChannelsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetsOnly, _ := strconv.ParseBool(r.URL.Query().Get("targets"))

	rows, err := h.channels.List(ctx, repository.ListFilter{TargetsOnly: targetsOnly})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ids := make([]int64, 0, len(rows))
	for _, ch := range rows {
		ids = append(ids, ch.ChatID)
	}
	passports, err := h.passports.ByIDs(ctx, ids)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]ChannelListItem, 0, len(rows))
	for _, ch := range rows {
		var p *models.LLMPassport
		if pp, ok := passports[ch.ChatID]; ok {
			p = &pp
		}
		messages, err := h.messages(r, ch.ChatID, p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		item := ChannelListItem{
			ChatID:            ch.ChatID,
			ActiveUsername:    ch.ActiveUsername,
			Title:             ch.Title,
			MemberCount:       ch.MemberCount,
			UpdatedAt:         isoTime(ch.UpdatedAt),
			ReactionsDisabled: ch.ReactionsDisabled,
			IsTarget:          ch.IsTarget,
			Summary:           Summarize(messages),
		}
		if p != nil {
			item.Category = p.ContentCategory
			item.BrandSafety = p.BrandSafety
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"channels": items})
}

// Get returns one channel with its posts, comments, similar channels and
// passport.
func (h *ChannelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid channel id"})
		return
	}

	ch, err := h.channels.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Channel not found"})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p, err := h.passports.Get(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	messages, err := h.messages(r, id, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	comments, err := h.snapshots.GetComments(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	similar, err := h.similar(r, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ChannelDetail{
		Channel:  *ch,
		Messages: messages,
		Summary:  Summarize(messages),
		Comments: comments,
		Similar:  similar,
		Passport: p,
	})
}

func (h *ChannelsHandler) messages(r *http.Request, chatID int64, p *models.LLMPassport) ([]MessageView, error) {
	doc, err := h.snapshots.GetHistory(r.Context(), chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return []MessageView{}, nil
	}
	if err != nil {
		return nil, err
	}
	ads := AdIDs(p)
	out := make([]MessageView, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		out = append(out, NormalizeMessage(m, ads))
	}
	return out, nil
}

// similar resolves titles of recommended channels that are stored locally.
func (h *ChannelsHandler) similar(r *http.Request, chatID int64) ([]SimilarView, error) {
	items, err := h.snapshots.GetSimilar(r.Context(), chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return []SimilarView{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ChatID)
	}
	known := map[int64]models.Channel{}
	if len(ids) > 0 {
		rows, err := h.channels.List(r.Context(), repository.ListFilter{IDs: ids})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			known[row.ChatID] = row
		}
	}

	out := make([]SimilarView, 0, len(items))
	for _, it := range items {
		v := SimilarView{ChatID: it.ChatID, SupergroupID: it.SupergroupID}
		if row, ok := known[it.ChatID]; ok {
			v.Title = row.Title
			v.Username = row.ActiveUsername
		}
		out = append(out, v)
	}
	return out, nil
}

func isoTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err // Client disconnected
	}
}
