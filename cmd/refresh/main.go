package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	goflags "github.com/jessevdk/go-flags"

	"github.com/blockedby/chanscope/internal/config"
	"github.com/blockedby/chanscope/internal/database"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/nats"
	"github.com/blockedby/chanscope/internal/publisher"
	"github.com/blockedby/chanscope/internal/refresh"
	"github.com/blockedby/chanscope/internal/telegram"
)

type options struct {
	List  string   `long:"list" description:"channel list file (overrides CHANNEL_LIST_FILE)"`
	Force bool     `long:"force" description:"refetch every sub-resource regardless of age"`
	Only  []string `long:"only" description:"refresh only this sub-resource (repeatable)"`
	Skip  []string `long:"skip" description:"never refresh this sub-resource (repeatable)"`
}

func main() {
	var opts options
	if _, err := goflags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run returns the process exit code: 1 when the run was aborted.
func run(opts options) int {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if opts.List != "" {
		cfg.ChannelListFile = opts.List
	}
	if opts.Force {
		cfg.Refresh.Force = true
	}
	if len(opts.Only) > 0 {
		cfg.Refresh.Only = opts.Only
	}
	if len(opts.Skip) > 0 {
		cfg.Refresh.Skip = opts.Skip
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting channel refresh")

	if !cfg.TelegramConfigured() {
		log.Fatal().Msg("TG_API_ID and TG_API_HASH are required")
	}

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Read targets before connecting anywhere
	names, err := refresh.ReadTargets(cfg.ChannelListFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.ChannelListFile).Msg("failed to read channel list")
	}

	// 5. Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 6. Connect to NATS (optional)
	var pub refresh.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureChannelStream(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure channel stream, publishing disabled")
			} else {
				pub = publisher.NewNATSPublisher(nc)
			}
		}
	}

	zapLog, err := telegram.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mtproto logger")
	}
	defer func() { _ = zapLog.Sync() }()

	tgOpts := telegram.Options{
		AppID:   cfg.TGApiID,
		AppHash: cfg.TGApiHash,
		Storage: telegram.NewSessionStorage(db.GORM, cfg.TGSessionName),
		Limiter: telegram.NewRateLimiter(cfg.Refresh.RequestDelay),
		Log:     log.With("telegram"),
		ZapLog:  zapLog,
	}

	// 7. Run
	var summary *refresh.RunSummary
	err = telegram.Run(ctx, tgOpts, func(ctx context.Context, client *telegram.Client) error {
		router := refresh.NewRouter(refresh.NewCorrelator(), log)
		client.OnUpdate(router.Dispatch)

		svc := refresh.NewService(
			client,
			refresh.NewStores(db.GORM),
			router,
			pub,
			refresh.OptionsFromConfig(cfg),
			log,
		)

		var runErr error
		summary, runErr = svc.Run(ctx, names)
		return runErr
	})

	if summary != nil {
		for _, e := range summary.Entities {
			ev := log.Info()
			if e.Failed() {
				ev = log.Warn()
			}
			ev.Str("entity", e.Name).Int64("chat_id", e.ChatID).Bool("skipped", e.Skipped).Msg("refresh: entity result")
		}
	}

	if err != nil {
		if errors.Is(err, telegram.ErrNotAuthorized) {
			log.Error().Msg("telegram session is not authorized, run tg-auth first")
		} else {
			log.Error().Err(err).Msg("refresh aborted")
		}
		return 1
	}
	log.Info().Msg("refresh complete")
	return 0
}
