package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"
)

// ErrMalformedMetadata marks persisted metadata that failed strict decoding.
var ErrMalformedMetadata = errors.New("malformed metadata")

// RawMetadata is the sidecar record persisted next to each raw HTML page.
type RawMetadata struct {
	URL         string    `json:"url"`
	FetchTime   time.Time `json:"fetch_time"`
	ContentHash string    `json:"content_hash"`
	ContentType string    `json:"content_type,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
}

// MetadataError describes why a metadata record was rejected.
type MetadataError struct {
	Key   string
	Field string
	Err   error
}

func (e *MetadataError) Error() string {
	switch {
	case e.Field != "" && e.Key != "":
		return fmt.Sprintf("metadata %s: field %s: %v", e.Key, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("metadata field %s: %v", e.Field, e.Err)
	case e.Key != "":
		return fmt.Sprintf("metadata %s: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("metadata: %v", e.Err)
	}
}

// Unwrap exposes both ErrMalformedMetadata and the underlying cause.
func (e *MetadataError) Unwrap() []error {
	return []error{ErrMalformedMetadata, e.Err}
}

// Encode serializes the record as indented JSON.
func (m RawMetadata) Encode() ([]byte, error) {
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return payload, nil
}

// DecodeRawMetadata parses a metadata record. Unknown fields, trailing data and
// missing required fields are rejected with a *MetadataError.
func DecodeRawMetadata(key string, data []byte) (RawMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var meta RawMetadata
	if err := dec.Decode(&meta); err != nil {
		return RawMetadata{}, &MetadataError{Key: key, Field: fieldFromDecodeError(err), Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return RawMetadata{}, &MetadataError{Key: key, Err: errors.New("trailing data after record")}
	}
	if err := meta.Validate(); err != nil {
		var me *MetadataError
		if errors.As(err, &me) {
			me.Key = key
		}
		return RawMetadata{}, err
	}
	return meta, nil
}

// Validate checks the required fields.
func (m RawMetadata) Validate() error {
	if m.URL == "" {
		return &MetadataError{Field: "url", Err: errors.New("required")}
	}
	parsed, err := url.Parse(m.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &MetadataError{Field: "url", Err: fmt.Errorf("not an absolute URL: %q", m.URL)}
	}
	if m.FetchTime.IsZero() {
		return &MetadataError{Field: "fetch_time", Err: errors.New("required")}
	}
	if len(m.ContentHash) != 64 {
		return &MetadataError{Field: "content_hash", Err: fmt.Errorf("expected 64 hex chars, got %d", len(m.ContentHash))}
	}
	for _, r := range m.ContentHash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return &MetadataError{Field: "content_hash", Err: fmt.Errorf("invalid hex character %q", r)}
		}
	}
	return nil
}

func fieldFromDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return "fetch_time"
	}
	return ""
}
