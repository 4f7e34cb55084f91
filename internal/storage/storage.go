// Package storage defines the raw page store shared by the crawler and the
// build pipeline. Each page is two objects under one key: the HTML body and a
// JSON metadata sidecar.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/hybrid-search/internal/document"
)

const (
	// BodySuffix names the stored HTML body.
	BodySuffix = ".html"
	// MetaSuffix names the stored metadata sidecar.
	MetaSuffix = ".meta.json"
)

var (
	// ErrNotFound is returned when a key has no stored page.
	ErrNotFound   = errors.New("raw page not found")
	// ErrInvalidKey is returned for keys that are not lowercase hex digests.
	ErrInvalidKey = errors.New("invalid storage key")
)

var validKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

// RawStore persists fetched pages and reads them back for the build stage.
type RawStore interface {
	PutRaw(ctx context.Context, key string, body []byte, meta document.RawMetadata) (string, error)
	GetRaw(ctx context.Context, key string) ([]byte, document.RawMetadata, error)
	Keys(ctx context.Context) ([]string, error)
}

// ValidateKey rejects keys that could escape the store namespace.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// BodyName returns the object name of the body for key.
func BodyName(key string) string {
	return key + BodySuffix
}

// MetaName returns the object name of the metadata for key.
func MetaName(key string) string {
	return key + MetaSuffix
}

// KeysFromNames collects the keys that have a metadata object among names,
// sorted. Names without a valid key are ignored.
func KeysFromNames(names []string) []string {
	seen := make(map[string]struct{})
	for _, name := range names {
		key, ok := strings.CutSuffix(name, MetaSuffix)
		if !ok || ValidateKey(key) != nil {
			continue
		}
		seen[key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
