// Package publisher holds helpers shared by the page event publishers.
package publisher

import (
	"encoding/json"
	"fmt"
)

// Keyed is implemented by payloads that carry a partition or ordering key.
type Keyed interface {
	EventKey() string
}

// Encode marshals payload to JSON and returns its key, if any.
func Encode(payload any) (key string, data []byte, err error) {
	data, err = json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal payload: %w", err)
	}
	if k, ok := payload.(Keyed); ok {
		key = k.EventKey()
	}
	return key, data, nil
}
