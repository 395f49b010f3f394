// Package passport builds LLM advertiser passports from refreshed channel
// data: it assembles the model input, requests a schema-constrained
// completion and stores the validated result.
package passport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/repository"
)

// ErrNoHistory is returned for channels without a history snapshot.
var ErrNoHistory = errors.New("passport: channel has no history")

// LLMClient abstracts the LLM provider
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error)
	Model() string
}

// Options tunes the generator.
type Options struct {
	// MediaDir resolves the relative media paths of history records.
	MediaDir string
	// DumpDir, when set, receives <name>_input.json and <name>_output.json
	// for every generated passport.
	DumpDir string
}

// Generator produces passports.
type Generator struct {
	channels  *repository.ChannelsRepository
	snapshots *repository.SnapshotsRepository
	passports *repository.PassportsRepository
	llm       LLMClient
	prompts   *PromptConfig
	opts      Options
	log       *logger.Logger
}

// NewGenerator creates a generator over db. A nil prompts uses the built-in
// prompt.
func NewGenerator(db *gorm.DB, llm LLMClient, prompts *PromptConfig, opts Options, log *logger.Logger) *Generator {
	if prompts == nil {
		prompts = DefaultPrompt()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Generator{
		channels:  repository.NewChannelsRepository(db),
		snapshots: repository.NewSnapshotsRepository(db),
		passports: repository.NewPassportsRepository(db),
		llm:       llm,
		prompts:   prompts,
		opts:      opts,
		log:       log,
	}
}

// BatchResult counts the outcome of a batch.
type BatchResult struct {
	Generated int
	Skipped   int
	Failed    int
}

// Eligible returns target channels that have a history snapshot. When
// selectors are given only channels whose id or username matches one of them
// are returned.
func (g *Generator) Eligible(ctx context.Context, selectors []string) ([]models.Channel, error) {
	rows, err := g.channels.List(ctx, repository.ListFilter{TargetsOnly: true})
	if err != nil {
		return nil, err
	}
	var out []models.Channel
	for _, ch := range rows {
		if len(selectors) > 0 && !matches(ch, selectors) {
			continue
		}
		if _, err := g.snapshots.GetHistory(ctx, ch.ChatID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

func matches(ch models.Channel, selectors []string) bool {
	id := strconv.FormatInt(ch.ChatID, 10)
	for _, sel := range selectors {
		sel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(sel), "@"))
		if sel == id {
			return true
		}
		if ch.ActiveUsername != nil && strings.ToLower(*ch.ActiveUsername) == sel {
			return true
		}
	}
	return false
}

// Batch generates passports for the selected channels, all eligible ones when
// selectors is empty. Per-channel failures are counted and logged.
func (g *Generator) Batch(ctx context.Context, selectors []string, force bool) (BatchResult, error) {
	var res BatchResult
	targets, err := g.Eligible(ctx, selectors)
	if err != nil {
		return res, err
	}
	if len(targets) == 0 {
		g.log.Info().Msg("passport: no eligible channels")
		return res, nil
	}

	for _, ch := range targets {
		done, err := g.Generate(ctx, ch.ChatID, force)
		switch {
		case ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			res.Failed++
			g.log.Error().Err(err).Int64("chat_id", ch.ChatID).Msg("passport: generation failed")
		case done:
			res.Generated++
		default:
			res.Skipped++
		}
	}
	g.log.Info().
		Int("generated", res.Generated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("passport: batch completed")
	return res, nil
}

// Generate builds and stores the passport of chatID. Without force a channel
// that already has one is skipped and false is returned.
func (g *Generator) Generate(ctx context.Context, chatID int64, force bool) (bool, error) {
	log := g.log.Logger.With().Int64("chat_id", chatID).Logger()

	if !force {
		exists, err := g.passports.Exists(ctx, chatID)
		if err != nil {
			return false, err
		}
		if exists {
			log.Info().Msg("passport: already present, skipped")
			return false, nil
		}
	}

	ch, err := g.channels.GetByID(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("load channel: %w", err)
	}
	history, err := g.snapshots.GetHistory(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrNoHistory
	}
	if err != nil {
		return false, err
	}
	comments, err := g.snapshots.GetComments(ctx, chatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	input := BuildInput(*ch, history, comments)
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal input: %w", err)
	}

	log.Info().Int("messages", len(input.Messages)).Int("comments", len(input.Comments)).Msg("passport: requesting llm")
	raw, err := g.llm.Complete(ctx, g.prompts.System, g.prompts.BuildUserPrompt(string(payload)), g.imagePaths(input))
	if err != nil {
		return false, err
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return false, err
	}
	if err := g.passports.Save(ctx, resp.ToModel(chatID, raw, g.llm.Model())); err != nil {
		return false, err
	}
	g.dump(*ch, payload, raw)

	log.Info().Str("brand_safety", resp.AdvertisingPotential.BrandSafetyRisk).Msg("passport: stored")
	return true, nil
}

func (g *Generator) imagePaths(in Input) []string {
	rel := in.Images()
	out := make([]string, 0, len(rel))
	for _, p := range rel {
		if g.opts.MediaDir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(g.opts.MediaDir, filepath.FromSlash(p))
		}
		out = append(out, p)
	}
	return out
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// dumpName is a filesystem-safe name for ch.
func dumpName(ch models.Channel) string {
	base := strconv.FormatInt(ch.ChatID, 10)
	if ch.ActiveUsername != nil && *ch.ActiveUsername != "" {
		base = *ch.ActiveUsername
	} else if ch.Title != nil && *ch.Title != "" {
		base = *ch.Title
	}
	name := strings.Trim(unsafeName.ReplaceAllString(base, "_"), "_")
	if len(name) > 120 {
		name = name[:120]
	}
	if name == "" {
		name = "channel"
	}
	return name
}

func (g *Generator) dump(ch models.Channel, input []byte, output string) {
	if g.opts.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(g.opts.DumpDir, 0755); err != nil {
		g.log.Warn().Err(err).Msg("passport: create dump dir failed")
		return
	}
	name := dumpName(ch)
	files := map[string][]byte{
		name + "_input.json":  input,
		name + "_output.json": []byte(cleanJSON(output)),
	}
	for file, data := range files {
		if err := os.WriteFile(filepath.Join(g.opts.DumpDir, file), data, 0644); err != nil {
			g.log.Warn().Err(err).Str("file", file).Msg("passport: dump failed")
		}
	}
}
