// Package job models one call attempt handed to the agent worker and the
// routing decision derived from its metadata.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMetadataParse reports malformed job metadata in strict mode. In the
// default fail-open mode the same input routes to the inbound path instead.
var ErrMetadataParse = errors.New("job: metadata is not a JSON object")

// MetadataPhoneNumber is the key that selects the outbound flow.
const MetadataPhoneNumber = "phone_number"

// Job identifies one inbound or outbound call attempt. It lives for the
// duration of a single call and carries the raw dispatch metadata.
type Job struct {
	ID       string `json:"id"`
	RoomName string `json:"room"`
	Metadata string `json:"metadata"`
}

// Path is the flow a job is routed to.
type Path string

const (
	PathInbound  Path = "inbound"
	PathOutbound Path = "outbound"
)

// ParseMetadata decodes a string-encoded key-value mapping. Empty input
// yields an empty map. Malformed input yields an empty map and ok=false;
// in strict mode it returns ErrMetadataParse instead. The empty-map
// fallback is deliberate: a job with unreadable metadata is treated as an
// inbound call rather than failed.
func ParseMetadata(raw string, strict bool) (map[string]string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, true, nil
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		if strict {
			return nil, false, fmt.Errorf("%w: %v", ErrMetadataParse, err)
		}
		return map[string]string{}, false, nil
	}

	meta := make(map[string]string, len(generic))
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			meta[k] = t
		case float64, bool:
			meta[k] = fmt.Sprint(t)
		default:
			// Nested values are not part of the dispatch contract; keep
			// them as their JSON form so nothing is silently dropped.
			b, err := json.Marshal(v)
			if err == nil {
				meta[k] = string(b)
			}
		}
	}
	return meta, true, nil
}

// Route classifies parsed metadata: a non-empty phone_number selects the
// outbound path, anything else is inbound.
func Route(meta map[string]string) Path {
	if strings.TrimSpace(meta[MetadataPhoneNumber]) != "" {
		return PathOutbound
	}
	return PathInbound
}

// EncodeMetadata is the producer-side counterpart of ParseMetadata, used
// by the dispatch gateway.
func EncodeMetadata(meta map[string]string) (string, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("job: encode metadata: %w", err)
	}
	return string(b), nil
}
