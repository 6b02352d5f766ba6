// Package openai adapts OpenAI chat completions to port.ExtractionModel.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds OpenAI settings
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Model implements port.ExtractionModel with a vision-capable chat model
type Model struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

// New creates an OpenAI-backed extraction model
func New(cfg Config, logger *zap.Logger) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Model{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the model identifier used in extraction-method labels
func (m *Model) Name() string {
	return m.cfg.Model
}

// Generate sends every part as one multi-content user message
func (m *Model) Generate(ctx context.Context, parts []port.ModelPart) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	resp, err := m.client.CreateChatCompletion(ctx, BuildRequest(m.cfg, parts))
	if err != nil {
		m.logger.Error("OpenAI API call failed", zap.String("model", m.cfg.Model), zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	m.logger.Debug("OpenAI response received",
		zap.String("model", m.cfg.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// BuildRequest converts model parts into a chat completion request.
// Images travel inline as base64 data URLs.
func BuildRequest(cfg Config, parts []port.ModelPart) openai.ChatCompletionRequest {
	content := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			content = append(content, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data)),
					Detail: openai.ImageURLDetailHigh,
				},
			})
			continue
		}
		content = append(content, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: p.Text,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: content,
			},
		},
	}
}

// Verify interface compliance
var _ port.ExtractionModel = (*Model)(nil)
