// Package refresh is the incremental channel refresh engine: it walks the
// target list one entity at a time, fetches stale sub-resources in dependency
// order, merges them into the store and replays push updates collected while
// the entity was processed.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockedby/chanscope/internal/config"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
	"github.com/blockedby/chanscope/internal/telegram"
)

// TelegramClient is the subset of the protocol client the engine calls.
type TelegramClient interface {
	SearchPublicChat(ctx context.Context, username string) (*telegram.Chat, error)
	GetSupergroup(ctx context.Context, supergroupID int64) (*telegram.Supergroup, error)
	GetSupergroupFullInfo(ctx context.Context, supergroupID int64) (*telegram.SupergroupFullInfo, error)
	GetChatHistory(ctx context.Context, chatID, fromMessageID int64, limit int) ([]*telegram.Message, error)
	GetMessageThread(ctx context.Context, chatID, messageID int64) (*telegram.MessageThread, error)
	GetMessageThreadHistory(ctx context.Context, chatID, threadID, fromMessageID int64, limit int) ([]*telegram.Message, error)
	GetChatSimilarChats(ctx context.Context, chatID int64) ([]*telegram.Chat, error)
	DownloadFile(ctx context.Context, file *telegram.File, dest string) (string, error)
	RecognizeSpeech(ctx context.Context, chatID, messageID int64) error
	GetMessage(ctx context.Context, chatID, messageID int64) (*telegram.Message, error)
}

// EventPublisher announces refreshed channels.
type EventPublisher interface {
	PublishChannelRefreshed(ctx context.Context, event ChannelRefreshedEvent) error
}

// ChannelRefreshedEvent is published once per processed entity.
type ChannelRefreshedEvent struct {
	RunID       uuid.UUID `json:"run_id"`
	ChatID      int64     `json:"chat_id"`
	Name        string    `json:"name"`
	Refreshed   []string  `json:"refreshed"`
	Failed      []string  `json:"failed,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Options tunes fetching.
type Options struct {
	Tracker TrackerConfig

	HistoryLimit    int
	HistoryPageSize int

	CommentPageSize   int
	CommentTarget     int
	CommentMinReplies int
	CommentMaxAge     time.Duration

	// MediaDir is MEDIA_ROOT; empty disables preview downloads.
	MediaDir           string
	MediaTextThreshold int

	SpeechTimeout    time.Duration
	SpeechRetries    int
	SpeechRetryDelay time.Duration
}

// OptionsFromConfig maps the environment configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	r := cfg.Refresh
	return Options{
		Tracker: TrackerConfig{
			TTL:   time.Duration(r.TTLDays) * 24 * time.Hour,
			Force: r.Force,
			Only:  r.Only,
			Skip:  r.Skip,
		},
		HistoryLimit:       r.HistoryLimit,
		HistoryPageSize:    r.HistoryPageSize,
		CommentPageSize:    r.CommentPageSize,
		CommentTarget:      r.CommentTarget,
		CommentMinReplies:  r.CommentMinReplies,
		CommentMaxAge:      r.CommentMaxAge,
		MediaDir:           cfg.MediaDir,
		MediaTextThreshold: r.MediaText,
		SpeechTimeout:      r.SpeechTimeout,
		SpeechRetries:      r.SpeechRetries,
		SpeechRetryDelay:   r.SpeechRetryDelay,
	}
}

// Stores groups the repositories the engine writes to.
type Stores struct {
	Channels  *repository.ChannelsRepository
	Snapshots *repository.SnapshotsRepository
	States    *repository.RefreshStateRepository
}

// NewStores builds all repositories over one database handle.
func NewStores(db *gorm.DB) Stores {
	return Stores{
		Channels:  repository.NewChannelsRepository(db),
		Snapshots: repository.NewSnapshotsRepository(db),
		States:    repository.NewRefreshStateRepository(db),
	}
}

// Service runs refresh passes. It is not safe for concurrent runs.
type Service struct {
	tg         TelegramClient
	channels   *repository.ChannelsRepository
	snapshots  *repository.SnapshotsRepository
	states     *repository.RefreshStateRepository
	tracker    *Tracker
	router     *Router
	correlator *Correlator
	reconciler *Reconciler
	publisher  EventPublisher
	opts       Options
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates a refresh service. router must be the listener wired to
// tg's update stream; a nil router gets a private one. publisher may be nil.
func NewService(
	tg TelegramClient,
	stores Stores,
	router *Router,
	publisher EventPublisher,
	opts Options,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Get()
	}
	if router == nil {
		router = NewRouter(NewCorrelator(), log)
	}
	if router.correlator == nil {
		router.correlator = NewCorrelator()
	}
	if opts.HistoryPageSize <= 0 || opts.HistoryPageSize > 100 {
		opts.HistoryPageSize = 100
	}
	if opts.CommentPageSize <= 0 || opts.CommentPageSize > 100 {
		opts.CommentPageSize = 100
	}
	return &Service{
		tg:         tg,
		channels:   stores.Channels,
		snapshots:  stores.Snapshots,
		states:     stores.States,
		tracker:    NewTracker(opts.Tracker, stores.States),
		router:     router,
		correlator: router.correlator,
		reconciler: NewReconciler(stores.Channels, log),
		publisher:  publisher,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

// Run processes names sequentially. It returns an error only for conditions
// that abort the whole run: a flood signal or cancellation. The summary is
// returned in both cases.
func (s *Service) Run(ctx context.Context, names []string) (*RunSummary, error) {
	sum := &RunSummary{RunID: uuid.New(), StartedAt: s.now().UTC()}
	log := s.log.Logger.With().Str("run_id", sum.RunID.String()).Logger()

	if len(names) == 0 {
		log.Info().Msg("refresh: target list is empty")
		sum.FinishedAt = s.now().UTC()
		return sum, nil
	}

	log.Info().Int("targets", len(names)).Msg("refresh: run started")
	for _, name := range names {
		res, err := s.refreshEntity(ctx, sum.RunID, name)
		sum.Entities = append(sum.Entities, res)
		if err != nil {
			sum.Aborted = true
			sum.FinishedAt = s.now().UTC()
			log.Error().Err(err).Str("entity", res.Name).Msg("refresh: run aborted")
			return sum, err
		}
	}
	sum.FinishedAt = s.now().UTC()

	refreshed, skipped, failed := sum.Counts()
	log.Info().
		Int("refreshed", refreshed).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("took", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("refresh: run completed")
	return sum, nil
}

func (s *Service) refreshEntity(ctx context.Context, runID uuid.UUID, name string) (EntityResult, error) {
	name = NormalizeName(name)
	res := EntityResult{Name: name}
	log := s.log.Logger.With().Str("entity", name).Logger()

	if chatID, ok := s.freshInStore(ctx, name); ok {
		res.ChatID = chatID
		res.Skipped = true
		log.Info().Int64("chat_id", chatID).Msg("refresh: all fresh, skipped")
		return res, nil
	}

	buf := s.router.Begin(name)
	// End is idempotent; this covers the early returns, the normal path
	// drains the buffer itself before reconciling.
	defer s.router.End(buf)

	chat, err := s.tg.SearchPublicChat(ctx, name)
	if err == nil && (chat == nil || chat.ID == 0) {
		err = telegram.ErrNotFound
	}
	if err != nil {
		res.Error = err.Error()
		if isFatal(ctx, err) {
			return res, err
		}
		log.Warn().Err(err).Msg("refresh: resolve failed, entity skipped")
		return res, nil
	}
	res.ChatID = chat.ID
	log = log.With().Int64("chat_id", chat.ID).Logger()

	row := mapper.ChatToChannel(chat)
	target := true
	row.IsTarget = &target
	if err := s.channels.Upsert(ctx, row); err != nil {
		res.Error = err.Error()
		log.Error().Err(err).Msg("refresh: store resolved chat failed")
		return res, nil
	}
	s.markSuccess(ctx, chat.ID, ResourceResolve)
	res.record(ResourceResolve, StatusOK, nil, 0)
	log.Info().Str("title", chat.Title).Msg("refresh: resolved")

	states, err := s.states.ForChat(ctx, chat.ID)
	if err != nil {
		log.Warn().Err(err).Msg("refresh: load state failed, treating all as due")
		states = map[string]models.RefreshState{}
	}

	if sgID, ok := chat.SupergroupID(); ok {
		err := s.step(ctx, &res, states, chat.ID, ResourceSupergroup, func(ctx context.Context) error {
			return s.refreshSupergroup(ctx, chat.ID, sgID)
		})
		if err != nil {
			return res, err
		}
		err = s.step(ctx, &res, states, chat.ID, ResourceFullInfo, func(ctx context.Context) error {
			return s.refreshFullInfo(ctx, chat.ID, sgID)
		})
		if err != nil {
			return res, err
		}
	} else {
		res.record(ResourceSupergroup, StatusNotApplicable, nil, 0)
		res.record(ResourceFullInfo, StatusNotApplicable, nil, 0)
	}

	steps := []struct {
		resource string
		fn       func(context.Context) error
	}{
		{ResourceHistory, func(ctx context.Context) error { return s.refreshHistory(ctx, chat.ID) }},
		{ResourceComments, func(ctx context.Context) error { return s.refreshComments(ctx, chat.ID) }},
		{ResourceSimilar, func(ctx context.Context) error { return s.refreshSimilar(ctx, chat.ID) }},
	}
	for _, st := range steps {
		if err := s.step(ctx, &res, states, chat.ID, st.resource, st.fn); err != nil {
			return res, err
		}
	}

	res.UpdatesApplied = s.reconcile(ctx, chat, s.router.End(buf))
	s.publish(ctx, runID, &res)
	return res, nil
}

// freshInStore short-circuits fill-only runs for entities that have nothing
// missing, without touching the network.
func (s *Service) freshInStore(ctx context.Context, name string) (int64, bool) {
	if s.tracker.TTLEnabled() {
		return 0, false
	}
	row, err := s.channels.GetByUsername(ctx, name)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("entity", name).Msg("refresh: stored lookup failed")
		}
		return 0, false
	}
	fresh, err := s.tracker.AllFresh(ctx, row.ChatID, Resources(row.SupergroupID != nil))
	if err != nil {
		s.log.Warn().Err(err).Str("entity", name).Msg("refresh: freshness check failed")
		return 0, false
	}
	return row.ChatID, fresh
}

// step runs one sub-resource fetch with bookkeeping. Only fatal errors are
// returned.
func (s *Service) step(
	ctx context.Context,
	res *EntityResult,
	states map[string]models.RefreshState,
	chatID int64,
	resource string,
	fn func(context.Context) error,
) error {
	log := s.log.Logger.With().Int64("chat_id", chatID).Str("resource", resource).Logger()

	if !s.tracker.Due(states, resource) {
		res.record(resource, StatusSkipped, nil, 0)
		log.Debug().Msg("refresh: not due")
		return nil
	}

	bg := context.WithoutCancel(ctx)
	if err := s.states.MarkRequest(bg, chatID, resource, s.now()); err != nil {
		log.Warn().Err(err).Msg("refresh: mark request failed")
	}

	err := fn(ctx)
	if err == nil {
		s.markSuccess(ctx, chatID, resource)
		res.record(resource, StatusOK, nil, 0)
		log.Info().Msg("refresh: step done")
		return nil
	}

	code := telegram.ErrorCode(err)
	if code == 0 && telegram.IsFlood(err) {
		code = telegram.CodeFlood
	}
	if markErr := s.states.MarkError(bg, chatID, resource, s.now(), code, err); markErr != nil {
		log.Warn().Err(markErr).Msg("refresh: mark error failed")
	}
	res.record(resource, StatusFailed, err, code)

	if isFatal(ctx, err) {
		return err
	}
	log.Warn().Err(err).Int("code", code).Msg("refresh: step failed")
	return nil
}

func (s *Service) markSuccess(ctx context.Context, chatID int64, resource string) {
	if err := s.states.MarkSuccess(context.WithoutCancel(ctx), chatID, resource, s.now()); err != nil {
		s.log.Warn().Err(err).Int64("chat_id", chatID).Str("resource", resource).Msg("refresh: mark success failed")
	}
}

func (s *Service) refreshSupergroup(ctx context.Context, chatID, supergroupID int64) error {
	sg, err := s.tg.GetSupergroup(ctx, supergroupID)
	if err != nil {
		return err
	}
	return s.channels.Upsert(ctx, mapper.SupergroupToChannel(chatID, sg))
}

func (s *Service) refreshFullInfo(ctx context.Context, chatID, supergroupID int64) error {
	fi, err := s.tg.GetSupergroupFullInfo(ctx, supergroupID)
	if err != nil {
		return err
	}
	row := mapper.FullInfoToChannel(chatID, fi)
	var opts []repository.UpsertOption
	if row.LinkedChatID == nil {
		// an unlinked discussion must not leave the old id behind
		opts = append(opts, repository.ForceColumns("linked_chat_id"))
	}
	return s.channels.Upsert(ctx, row, opts...)
}

func (s *Service) refreshSimilar(ctx context.Context, chatID int64) error {
	chats, err := s.tg.GetChatSimilarChats(ctx, chatID)
	if err != nil {
		return err
	}
	items := mapper.SimilarItems(chats)
	if err := s.snapshots.SaveSimilar(ctx, chatID, items); err != nil {
		return err
	}
	count := len(items)
	return s.channels.Upsert(ctx, models.Channel{ChatID: chatID, SimilarCount: &count})
}

func (s *Service) reconcile(ctx context.Context, chat *telegram.Chat, updates []telegram.Update) int {
	var extra []int64
	if sgID, ok := chat.SupergroupID(); ok {
		extra = append(extra, sgID)
	}
	if row, err := s.channels.GetByID(ctx, chat.ID); err == nil && row.LinkedChatID != nil {
		extra = append(extra, *row.LinkedChatID)
	}
	if items, err := s.snapshots.GetSimilar(ctx, chat.ID); err == nil {
		for _, it := range items {
			extra = append(extra, it.ChatID)
			if it.SupergroupID != nil {
				extra = append(extra, *it.SupergroupID)
			}
		}
	}

	filtered := FilterForChat(updates, chat, extra)
	applied := s.reconciler.Apply(ctx, chat, filtered)
	s.log.Info().
		Int64("chat_id", chat.ID).
		Int("collected", len(updates)).
		Int("filtered", len(filtered)).
		Int("applied", applied).
		Msg("refresh: updates reconciled")
	return applied
}

func (s *Service) publish(ctx context.Context, runID uuid.UUID, res *EntityResult) {
	if s.publisher == nil || res.ChatID == 0 {
		return
	}
	event := ChannelRefreshedEvent{
		RunID:       runID,
		ChatID:      res.ChatID,
		Name:        res.Name,
		RefreshedAt: s.now().UTC(),
	}
	for _, st := range res.Steps {
		switch st.Status {
		case StatusOK:
			event.Refreshed = append(event.Refreshed, st.Resource)
		case StatusFailed:
			event.Failed = append(event.Failed, st.Resource)
		}
	}
	if err := s.publisher.PublishChannelRefreshed(ctx, event); err != nil {
		s.log.Warn().Err(err).Int64("chat_id", res.ChatID).Msg("refresh: publish event failed")
	}
}

// isFatal reports errors that must end the run.
func isFatal(ctx context.Context, err error) bool {
	return telegram.IsFlood(err) || ctx.Err() != nil
}
