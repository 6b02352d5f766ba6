// Command test-notification posts a sample job-failure message to the configured
// Lark ops chat, to check credentials and chat membership.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/facturia/invoice-pipeline/internal/config"
	"github.com/facturia/invoice-pipeline/internal/container"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: configs/config.yaml if present)")
	timeout := flag.Duration("timeout", 15*time.Second, "API call timeout")
	flag.Parse()

	fmt.Println("=== Lark Ops Notification Test ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Lark.Enabled() {
		fmt.Fprintf(os.Stderr, "Lark is not configured: set LARK_APP_ID, LARK_APP_SECRET and LARK_OPS_CHAT_ID\n")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Printf("App ID: %s\n", mask(cfg.Lark.AppID))
	fmt.Printf("Chat ID: %s\n", cfg.Lark.OpsChatID)

	notifier := container.ProvideNotifier(cfg.Lark, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	job := &entity.Job{
		ID:        "test-notification",
		Kind:      entity.DocumentPDF,
		Status:    entity.JobStatusFailed,
		OwnerID:   "ops-check",
		CreatedAt: time.Now().UTC(),
	}
	if err := notifier.NotifyJobFailed(ctx, job, "this is a test message, no job actually failed"); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to send message: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Message sent")
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
