// Package gemini adapts Google's Gemini API to port.ExtractionModel.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Config holds Gemini settings
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Model implements port.ExtractionModel
type Model struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Gemini-backed extraction model
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)

	return &Model{
		client:  client,
		model:   model,
		name:    cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Name returns the model identifier used in extraction-method labels
func (m *Model) Name() string {
	return m.name
}

// Generate sends the ordered parts in one request and concatenates the text answer
func (m *Model) Generate(ctx context.Context, parts []port.ModelPart) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.model.GenerateContent(ctx, toGenaiParts(parts)...)
	if err != nil {
		m.logger.Error("Gemini API call failed",
			zap.String("model", m.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	m.logger.Debug("Gemini response received",
		zap.String("model", m.name),
		zap.Int("parts", len(parts)),
		zap.Duration("elapsed", time.Since(start)))
	return text.String(), nil
}

// Close releases the underlying client
func (m *Model) Close() error {
	return m.client.Close()
}

func toGenaiParts(parts []port.ModelPart) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			// genai.ImageData wants the subtype ("jpeg"), not the full MIME type
			out = append(out, genai.ImageData(strings.TrimPrefix(p.MIMEType, "image/"), p.Data))
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

// Verify interface compliance
var _ port.ExtractionModel = (*Model)(nil)
