// Package lark posts operational alerts to a Lark/Feishu group chat.
package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// maxReasonLen keeps alerts readable when the reason carries a raw model response
const maxReasonLen = 500

// Config holds Lark notifier configuration
type Config struct {
	AppID     string
	AppSecret string
	ChatID    string
	BaseURL   string // empty uses the public Lark endpoint
}

// Notifier implements port.Notifier by sending a text message to one chat
type Notifier struct {
	client *lark.Client
	chatID string
	logger *zap.Logger
}

// NewNotifier creates a new Lark notifier
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelWarn),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}

	return &Notifier{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		chatID: cfg.ChatID,
		logger: logger,
	}
}

// NotifyJobFailed posts a short description of the failed job
func (n *Notifier) NotifyJobFailed(ctx context.Context, job *entity.Job, reason string) error {
	content, err := json.Marshal(map[string]string{"text": FailureText(job, reason)})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Debug("Job failure notification sent", zap.String("job_id", job.ID))
	return nil
}

// FailureText renders the alert body
func FailureText(job *entity.Job, reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen] + "..."
	}
	return fmt.Sprintf("Invoice job failed\njob: %s\nkind: %s\nowner: %s\nreason: %s",
		job.ID, job.Kind, job.OwnerID, reason)
}

// Verify interface compliance
var _ port.Notifier = (*Notifier)(nil)
