package passport

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	maxInlineImages     = 25
	maxInlineImageBytes = 2 << 20
)

// Client is a wrapper around go-openai that requests schema-constrained
// passports.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// NewClient creates a new LLM client with the provided configuration.
func NewClient(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

// Complete sends the prompts and inline images and returns the raw JSON
// answer.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt}
	if parts := imageParts(images); len(parts) > 0 {
		user.Content = ""
		user.MultiContent = append([]openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
		}, parts...)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "blogger_passport",
				Schema: OutputSchema,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// imageParts inlines readable images as data URLs. Oversized or unreadable
// files are skipped.
func imageParts(paths []string) []openai.ChatMessagePart {
	var parts []openai.ChatMessagePart
	for _, p := range paths {
		if len(parts) >= maxInlineImages {
			break
		}
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() || st.Size() > maxInlineImageBytes {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		url := "data:" + mimeType(p) + ";base64," + base64.StdEncoding.EncodeToString(data)
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailLow},
		})
	}
	return parts
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
