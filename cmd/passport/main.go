package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goflags "github.com/jessevdk/go-flags"

	"github.com/blockedby/chanscope/internal/config"
	"github.com/blockedby/chanscope/internal/database"
	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/nats"
	"github.com/blockedby/chanscope/internal/passport"
)

type options struct {
	All     bool   `long:"all" description:"generate for every eligible channel"`
	Force   bool   `long:"force" description:"regenerate passports that already exist"`
	Consume bool   `long:"consume" description:"run as a consumer of channels.refreshed events"`
	DumpDir string `long:"dump-dir" description:"write model input and output json per channel"`
	Prompt  string `long:"prompt" description:"xml prompt file (defaults to the built-in prompt)"`

	Args struct {
		Channels []string `positional-arg-name:"channel" description:"chat id or username"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	parser := goflags.NewParser(&opts, goflags.Default)
	parser.Name = "passport"
	parser.LongDescription = "Generate LLM passports for stored channels."
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if !opts.All && !opts.Consume && len(opts.Args.Channels) == 0 {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Setup Logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting passport generator")

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

	// 4. Setup resources
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	llmClient := passport.NewClient(passport.Config{
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		APIKey:      cfg.LLMAPIKey,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: float32(cfg.LLMTemperature),
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})
	log.Info().Str("model", cfg.LLMModel).Msg("llm client initialized")

	var prompts *passport.PromptConfig
	if opts.Prompt != "" {
		prompts, err = passport.LoadPrompt(opts.Prompt)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.Prompt).Msg("failed to load prompt")
		}
	}

	generator := passport.NewGenerator(db.GORM, llmClient, prompts, passport.Options{
		MediaDir: cfg.MediaDir,
		DumpDir:  opts.DumpDir,
	}, log.With("passport"))

	if !opts.Consume {
		res, err := generator.Batch(ctx, opts.Args.Channels, opts.Force)
		if err != nil {
			log.Error().Err(err).Msg("batch failed")
			os.Exit(1)
		}
		if res.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	// 5. Consumer mode
	if cfg.NatsURL == "" {
		log.Fatal().Msg("NATS_URL is required for --consume")
	}
	natsClient, err := nats.New(ctx, cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer natsClient.Close()
	log.Info().Msg("connected to nats")

	if err := natsClient.EnsureChannelStream(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure stream")
	}

	consumer := passport.NewConsumer(natsClient, generator, log.With("passport"))
	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}
	log.Info().Msg("consumer started")

	<-ctx.Done()
	log.Info().Msg("shutdown complete")
}
