// Package local implements the raw page store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/storage"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root directory where pages will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes pages to the local filesystem as <key>.html plus <key>.meta.json.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// PutRaw writes the body and then the metadata, each atomically, and returns
// a file:// URI for the body. A page is only listed by Keys once its metadata
// exists, so readers never see a body without metadata.
func (s *BlobStore) PutRaw(_ context.Context, key string, body []byte, meta document.RawMetadata) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	metaBytes, err := meta.Encode()
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	bodyPath := filepath.Join(s.baseDir, storage.BodyName(key))
	if err := writeFileAtomic(bodyPath, body); err != nil {
		return "", fmt.Errorf("write body: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.baseDir, storage.MetaName(key)), metaBytes); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return fmt.Sprintf("file://%s", bodyPath), nil
}

// GetRaw reads the body and strictly decodes the metadata for key.
func (s *BlobStore) GetRaw(_ context.Context, key string) ([]byte, document.RawMetadata, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, document.RawMetadata{}, err
	}
	// #nosec G304 -- key is validated as a hex digest.
	metaBytes, err := os.ReadFile(filepath.Join(s.baseDir, storage.MetaName(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, document.RawMetadata{}, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, document.RawMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	meta, err := document.DecodeRawMetadata(key, metaBytes)
	if err != nil {
		return nil, document.RawMetadata{}, err
	}
	// #nosec G304 -- key is validated as a hex digest.
	body, err := os.ReadFile(filepath.Join(s.baseDir, storage.BodyName(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, document.RawMetadata{}, fmt.Errorf("%w: body for %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, document.RawMetadata{}, fmt.Errorf("read body: %w", err)
	}
	return body, meta, nil
}

// Keys lists every stored key in sorted order.
func (s *BlobStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return storage.KeysFromNames(names), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
