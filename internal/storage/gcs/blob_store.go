// Package gcs provides the raw page store backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/hybrid-search/internal/document"
	rawstorage "github.com/JakeFAU/hybrid-search/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "raw".
	Prefix string
}

// BlobStore writes pages to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutRaw uploads the body and then the metadata and returns a gs:// URI for the body.
func (s *BlobStore) PutRaw(ctx context.Context, key string, body []byte, meta document.RawMetadata) (string, error) {
	if err := rawstorage.ValidateKey(key); err != nil {
		return "", err
	}
	metaBytes, err := meta.Encode()
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	bodyName := s.objectName(rawstorage.BodyName(key))
	if err := s.putObject(ctx, bodyName, "text/html", body); err != nil {
		return "", err
	}
	if err := s.putObject(ctx, s.objectName(rawstorage.MetaName(key)), "application/json", metaBytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, bodyName), nil
}

// GetRaw downloads and decodes the page stored under key.
func (s *BlobStore) GetRaw(ctx context.Context, key string) ([]byte, document.RawMetadata, error) {
	if err := rawstorage.ValidateKey(key); err != nil {
		return nil, document.RawMetadata{}, err
	}
	metaBytes, err := s.getObject(ctx, s.objectName(rawstorage.MetaName(key)))
	if err != nil {
		return nil, document.RawMetadata{}, err
	}
	meta, err := document.DecodeRawMetadata(key, metaBytes)
	if err != nil {
		return nil, document.RawMetadata{}, err
	}
	body, err := s.getObject(ctx, s.objectName(rawstorage.BodyName(key)))
	if err != nil {
		return nil, document.RawMetadata{}, err
	}
	return body, meta, nil
}

// Keys lists every stored key under the prefix in sorted order.
func (s *BlobStore) Keys(ctx context.Context) ([]string, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("select attrs: %w", err)
	}
	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		names = append(names, path.Base(attrs.Name))
	}
	return rawstorage.KeysFromNames(names), nil
}

func (s *BlobStore) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *BlobStore) putObject(ctx context.Context, name, contentType string, data []byte) error {
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("copy object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", name, err)
	}
	return nil
}

func (s *BlobStore) getObject(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", rawstorage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", name, err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}
