package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hybrid-search/internal/crawler"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishWritesKeyedJSON(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	pub := newWithWriter(w, "pages", nil)

	id, err := pub.Publish(context.Background(), "", crawler.PageEvent{URL: "https://example.com", StorageKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	id, err = pub.Publish(context.Background(), "audit", map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "pages", w.msgs[0].Topic)
	assert.Equal(t, "k1", string(w.msgs[0].Key))
	var event crawler.PageEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "https://example.com", event.URL)
	assert.Equal(t, "audit", w.msgs[1].Topic)
	assert.Empty(t, w.msgs[1].Key)

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	t.Parallel()

	pub := newWithWriter(&fakeWriter{err: errors.New("leader not available")}, "pages", nil)
	_, err := pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "publishing to kafka")
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Topic: "pages"}, nil)
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)

	pub, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "pages"}, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}
