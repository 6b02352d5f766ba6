// Package extraction sends documents to the extraction model and recovers its JSON answer.
package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// Result is the recovered, not yet reconciled, extraction of one document
type Result struct {
	Fields map[string]interface{}
	Method string
	Raw    string
}

// Options tunes the adapter
type Options struct {
	// PerPage sends each PDF page in its own model call and merges the answers.
	// The default is a single call carrying every page.
	PerPage bool
}

// Adapter drives the extraction model for images and PDFs
type Adapter struct {
	model      port.ExtractionModel
	renderer   port.DocumentRenderer
	normalizer port.ImageNormalizer
	opts       Options
	logger     *zap.Logger
}

// NewAdapter creates a new extraction adapter
func NewAdapter(
	model port.ExtractionModel,
	renderer port.DocumentRenderer,
	normalizer port.ImageNormalizer,
	opts Options,
	logger *zap.Logger,
) *Adapter {
	return &Adapter{
		model:      model,
		renderer:   renderer,
		normalizer: normalizer,
		opts:       opts,
		logger:     logger,
	}
}

// Extract selects the path for kind once and runs it
func (a *Adapter) Extract(ctx context.Context, kind entity.DocumentKind, data []byte) (*Result, error) {
	switch kind {
	case entity.DocumentImage:
		return a.ExtractImage(ctx, data)
	case entity.DocumentPDF:
		return a.ExtractPDF(ctx, data)
	default:
		return nil, fmt.Errorf("%w: unknown document kind %q", entity.ErrValidation, kind)
	}
}

// ExtractImage sends one image with the single-invoice prompt
func (a *Adapter) ExtractImage(ctx context.Context, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image has no bytes", entity.ErrEmptyDocument)
	}

	mimeType, img, err := a.normalizer.Normalize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", entity.ErrEmptyDocument, err)
	}

	parts := []port.ModelPart{
		port.TextPart(singleImagePrompt),
		port.ImagePart(mimeType, img),
	}
	return a.generate(ctx, parts, entity.DocumentImage)
}

// ExtractPDF sends the union of all pages' text and images in one call,
// or one call per page when PerPage is set.
func (a *Adapter) ExtractPDF(ctx context.Context, data []byte) (*Result, error) {
	pages, err := a.renderer.Pages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read PDF: %v", entity.ErrEmptyDocument, err)
	}

	var content []port.ModelPart
	for _, page := range pages {
		content = append(content, pageParts(page)...)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: no text or images in %d page(s)", entity.ErrEmptyDocument, len(pages))
	}

	if a.opts.PerPage {
		return a.extractPerPage(ctx, pages)
	}

	parts := append([]port.ModelPart{port.TextPart(multiPagePrompt)}, content...)
	a.logger.Debug("Sending multi-page document",
		zap.Int("pages", len(pages)),
		zap.Int("parts", len(parts)))
	return a.generate(ctx, parts, entity.DocumentPDF)
}

func (a *Adapter) extractPerPage(ctx context.Context, pages []port.PageContent) (*Result, error) {
	var answers []map[string]interface{}
	var raw []string

	for _, page := range pages {
		content := pageParts(page)
		if len(content) == 0 {
			continue
		}
		parts := append([]port.ModelPart{port.TextPart(singlePagePrompt)}, content...)
		res, err := a.generate(ctx, parts, entity.DocumentPDF)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}
		answers = append(answers, res.Fields)
		raw = append(raw, res.Raw)
	}

	return &Result{
		Fields: reconciler.MergePages(answers),
		Method: a.method(entity.DocumentPDF),
		Raw:    strings.Join(raw, "\n"),
	}, nil
}

func (a *Adapter) generate(ctx context.Context, parts []port.ModelPart, kind entity.DocumentKind) (*Result, error) {
	text, err := a.model.Generate(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("extraction model call failed: %w", err)
	}

	fields, err := RecoverJSON(text)
	if err != nil {
		a.logger.Warn("Model response had no recoverable JSON",
			zap.String("model", a.model.Name()),
			zap.Int("response_len", len(text)))
		return nil, err
	}

	return &Result{
		Fields: fields,
		Method: a.method(kind),
		Raw:    text,
	}, nil
}

func (a *Adapter) method(kind entity.DocumentKind) string {
	return fmt.Sprintf("%s (%s)", a.model.Name(), kind)
}

func pageParts(page port.PageContent) []port.ModelPart {
	var parts []port.ModelPart
	text := strings.TrimSpace(page.Text)
	if text != "" || len(page.Image) > 0 {
		parts = append(parts, port.TextPart(fmt.Sprintf(pageHeader, page.Number)))
	}
	if text != "" {
		parts = append(parts, port.TextPart(text))
	}
	if len(page.Image) > 0 {
		parts = append(parts, port.ImagePart(page.MIMEType, page.Image))
	}
	return parts
}
