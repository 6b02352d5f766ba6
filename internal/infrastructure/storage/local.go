package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrInvalidSignature is returned for expired or tampered local file URLs
var ErrInvalidSignature = errors.New("invalid or expired file signature")

// LocalFileStore implements port.FileStore on the local filesystem.
// Retrieval URLs point back at the API's /files route and carry an HMAC signature.
type LocalFileStore struct {
	baseDir    string
	publicURL  string
	signingKey []byte
	now        func() time.Time
	logger     *zap.Logger
}

// NewLocalFileStore creates a new LocalFileStore
func NewLocalFileStore(baseDir, publicURL string, signingKey []byte, logger *zap.Logger) *LocalFileStore {
	return &LocalFileStore{
		baseDir:    baseDir,
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: signingKey,
		now:        time.Now,
		logger:     logger,
	}
}

// Put writes data under key, creating parent directories
func (s *LocalFileStore) Put(ctx context.Context, key string, data []byte, contentType string) (*entity.FileRef, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return &entity.FileRef{
		Locator: key,
		Format:  strings.TrimPrefix(path.Ext(key), "."),
	}, nil
}

// SignedURL returns a /files URL valid for ttl
func (s *LocalFileStore) SignedURL(ctx context.Context, ref *entity.FileRef, ttl time.Duration) (string, error) {
	if _, err := s.resolve(ref.Locator); err != nil {
		return "", err
	}

	exp := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("exp", exp)
	q.Set("sig", s.sign(ref.Locator, exp))

	return fmt.Sprintf("%s/files/%s?%s", s.publicURL, ref.Locator, q.Encode()), nil
}

// Delete removes the file behind ref
func (s *LocalFileStore) Delete(ctx context.Context, ref *entity.FileRef) error {
	fullPath, err := s.resolve(ref.Locator)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Open verifies a signed request and returns the file content
func (s *LocalFileStore) Open(key, exp, sig string) ([]byte, error) {
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || s.now().Unix() > expUnix {
		return nil, ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(key, exp))) {
		return nil, ErrInvalidSignature
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *LocalFileStore) sign(key, exp string) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(exp))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps key to a path inside baseDir, rejecting traversal
func (s *LocalFileStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty file key")
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}
	return absPath, nil
}

// Verify interface compliance
var _ port.FileStore = (*LocalFileStore)(nil)
