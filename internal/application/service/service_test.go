package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/extraction"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

// scriptedModel returns canned responses in order and records the parts it saw
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]port.ModelPart
}

func (m *scriptedModel) Generate(_ context.Context, parts []port.ModelPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, parts)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *scriptedModel) Name() string { return "test-model" }

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(data []byte) (string, []byte, error) {
	return "image/jpeg", data, nil
}

type staticRenderer struct {
	pages []port.PageContent
}

func (r staticRenderer) Pages([]byte) ([]port.PageContent, error) {
	return r.pages, nil
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, entity.DocumentKind, []byte) (*extraction.Result, error) {
	panic("renderer crashed")
}

type memoryFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (s *memoryFileStore) Put(_ context.Context, key string, data []byte, contentType string) (*entity.FileRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[key] = data
	return &entity.FileRef{Locator: key, Format: contentType}, nil
}

func (s *memoryFileStore) Delete(_ context.Context, ref *entity.FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, ref.Locator)
	return nil
}

func (s *memoryFileStore) SignedURL(_ context.Context, ref *entity.FileRef, ttl time.Duration) (string, error) {
	return "https://files.test/" + ref.Locator + "?ttl=" + ttl.String(), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) NotifyJobFailed(_ context.Context, _ *entity.Job, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
	return errors.New("chat unavailable")
}

type stubExporter struct {
	got []*entity.Invoice
}

func (e *stubExporter) Export(invoices []*entity.Invoice) ([]byte, error) {
	e.got = invoices
	return []byte("xlsx"), nil
}
