// Command extract runs one local document through the configured model and
// prints the reconciled invoice without touching the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/config"
	"github.com/facturia/invoice-pipeline/internal/container"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: configs/config.yaml if present)")
	file := flag.String("file", "", "Invoice image or PDF to extract")
	kindFlag := flag.String("kind", "", "image or pdf (default: from file extension)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Extraction deadline")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: extract --file invoice.pdf [--kind pdf] [--config configs/config.yaml]\n")
		os.Exit(1)
	}

	kind, err := documentKind(*kindFlag, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to read %s: %v\n", *file, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	model, closer, err := container.ProvideModel(ctx, cfg.Extraction, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to create model: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	fmt.Printf("Extracting %s (%s, %d bytes) with %s...\n", *file, kind, len(data), model.Name())

	start := time.Now()
	res, err := container.ProvideExtractor(model, cfg.Extraction, logger).Extract(ctx, kind, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: extraction failed after %v: %v\n", time.Since(start), err)
		os.Exit(1)
	}

	invoice := reconciler.New(cfg.Invoice.BaseCurrency).Reconcile(res.Fields, res.Method)

	fmt.Printf("Model answered in %v\n\n", time.Since(start))
	out, _ := json.MarshalIndent(invoice, "", "  ")
	fmt.Println(string(out))
}

func documentKind(flagValue, path string) (entity.DocumentKind, error) {
	if flagValue != "" {
		return entity.ParseDocumentKind(flagValue)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return entity.DocumentPDF, nil
	}
	return entity.DocumentImage, nil
}
