package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// NoInvoicesAnswer is returned without calling the model when the owner has no invoices
const NoInvoicesAnswer = "You have no invoices yet."

const assistantPrompt = `You are a helpful bookkeeping assistant. Answer the user's question using ONLY
the invoice data below. Amounts are in the currency given by "moneda". Dates in "fecha" are
day/month/year. If the data cannot answer the question, say so briefly.
Answer in the language of the question, in plain text without markdown.

Invoices (JSON):
%s

Question: %s`

// AssistantService answers free-text questions about an owner's invoices
type AssistantService interface {
	Ask(ctx context.Context, ownerID, question string) (string, error)
}

type assistantServiceImpl struct {
	invoices port.InvoiceRepository
	model    port.ExtractionModel
	logger   *zap.Logger
}

// NewAssistantService creates a new AssistantService
func NewAssistantService(invoices port.InvoiceRepository, model port.ExtractionModel, logger *zap.Logger) AssistantService {
	return &assistantServiceImpl{
		invoices: invoices,
		model:    model,
		logger:   logger,
	}
}

func (s *assistantServiceImpl) Ask(ctx context.Context, ownerID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: query is required", entity.ErrValidation)
	}

	invoices, err := s.invoices.ListDetailedByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if len(invoices) == 0 {
		return NoInvoicesAnswer, nil
	}

	data, err := json.Marshal(invoices)
	if err != nil {
		return "", fmt.Errorf("failed to encode invoices: %w", err)
	}

	answer, err := s.model.Generate(ctx, []port.ModelPart{
		port.TextPart(fmt.Sprintf(assistantPrompt, data, question)),
	})
	if err != nil {
		s.logger.Error("Assistant model call failed", zap.String("owner_id", ownerID), zap.Error(err))
		return "", fmt.Errorf("assistant model call failed: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
