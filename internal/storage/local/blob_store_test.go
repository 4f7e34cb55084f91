// Package local_test tests the local filesystem store.
package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/storage"
	"github.com/JakeFAU/hybrid-search/internal/storage/local"
)

func sampleMeta(url string) document.RawMetadata {
	return document.RawMetadata{
		URL:         url,
		FetchTime:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ContentHash: strings.Repeat("f", 64),
		ContentType: "text/html",
		StatusCode:  200,
	}
}

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "raw")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutGetRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	key := document.IDForURL("https://example.com/a")
	meta := sampleMeta("https://example.com/a")
	uri, err := store.PutRaw(ctx, key, []byte("<html>a</html>"), meta)
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(tempDir, key+".html"), uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	onDisk, err := os.ReadFile(filepath.Join(tempDir, key+".meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), `"url": "https://example.com/a"`)

	body, got, err := store.GetRaw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "<html>a</html>", string(body))
	assert.Equal(t, meta.URL, got.URL)
	assert.True(t, meta.FetchTime.Equal(got.FetchTime))
	assert.Equal(t, meta.ContentHash, got.ContentHash)

	matches, err := filepath.Glob(filepath.Join(tempDir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestKeysListsOnlyCompletePages(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	k1 := document.IDForURL("https://example.com/1")
	k2 := document.IDForURL("https://example.com/2")
	_, err = store.PutRaw(ctx, k2, []byte("2"), sampleMeta("https://example.com/2"))
	require.NoError(t, err)
	_, err = store.PutRaw(ctx, k1, []byte("1"), sampleMeta("https://example.com/1"))
	require.NoError(t, err)
	orphan := document.IDForURL("https://example.com/orphan")
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, orphan+".html"), []byte("x"), 0o600))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	want := []string{k1, k2}
	if k2 < k1 {
		want = []string{k2, k1}
	}
	assert.Equal(t, want, keys)
}

func TestGetRawErrors(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = store.GetRaw(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)

	missing := document.IDForURL("https://example.com/missing")
	_, _, err = store.GetRaw(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bad := document.IDForURL("https://example.com/bad")
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, bad+".meta.json"), []byte(`{"url":"x","extra":1}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, bad+".html"), []byte("x"), 0o600))
	_, _, err = store.GetRaw(ctx, bad)
	assert.ErrorIs(t, err, document.ErrMalformedMetadata)
	var metaErr *document.MetadataError
	assert.True(t, errors.As(err, &metaErr))
}

func TestPutRawRejectsInvalidKey(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.PutRaw(context.Background(), "../escape", []byte("x"), sampleMeta("https://example.com"))
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}
