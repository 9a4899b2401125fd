package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DefaultMarker introduces the update block in generated content.
const DefaultMarker = "SHARED_STATE_UPDATE:"

// ListKey is the synthetic key an update array is wrapped under.
const ListKey = "data_list"

// ErrNoMarker is returned when the content carries no update block.
var ErrNoMarker = errors.New("no update marker in content")

// Options controls update extraction.
type Options struct {
	// Marker is the token introducing the update block. Defaults to DefaultMarker.
	Marker string
	// Lenient enables the repair parser when strict decoding fails.
	Lenient bool
}

func (o Options) marker() string {
	if o.Marker == "" {
		return DefaultMarker
	}
	return o.Marker
}

// Updates finds the first marker in content and decodes the JSON object that
// follows it. An array after the marker is wrapped under ListKey. Trailing
// prose after the value is ignored. The returned map is
// never nil; a non-nil error is a diagnostic for the caller to log, never a
// reason to stop the run.
func Updates(content string, opts Options) (map[string]any, error) {
	empty := map[string]any{}

	marker := opts.marker()
	idx := strings.Index(content, marker)
	if idx == -1 {
		return empty, ErrNoMarker
	}
	rest := content[idx+len(marker):]

	if strings.HasPrefix(strings.TrimLeft(rest, " \t\r\n"), "[") {
		value, err := decodeArray(rest, opts.Lenient)
		if err != nil {
			return empty, err
		}
		return normalize(value)
	}

	open := strings.IndexByte(rest, '{')
	if open == -1 {
		return empty, ErrNoJSON
	}

	candidate, ok := Balanced(rest, open)
	if !ok {
		// Unterminated object: hand the remainder to the repair path, if enabled.
		candidate = rest[open:]
	}

	value, err := decode(candidate)
	if err != nil && opts.Lenient {
		repaired, rerr := Repair(candidate)
		if rerr != nil {
			return empty, fmt.Errorf("decode update block: %w", err)
		}
		value, err = decode(repaired)
	}
	if err != nil {
		return empty, fmt.Errorf("decode update block: %w", err)
	}

	return normalize(value)
}

// decodeArray decodes the first bracket-balanced array in text. In lenient
// mode a malformed or unterminated array goes through the repair parser.
func decodeArray(text string, lenient bool) (any, error) {
	start := strings.IndexByte(text, '[')
	if start == -1 {
		return nil, ErrNoJSON
	}
	segment, ok := BalancedArray(text, start)
	if !ok {
		segment = text[start:]
	}

	value, err := decode(segment)
	if err != nil && lenient {
		repaired, rerr := jsonrepair.JSONRepair(segment)
		if rerr != nil {
			return nil, fmt.Errorf("repair update array: %w", rerr)
		}
		value, err = decode(repaired)
	}
	if err != nil {
		return nil, fmt.Errorf("decode update array: %w", err)
	}
	return value, nil
}

// normalize turns a decoded value into an update set.
func normalize(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{ListKey: v}, nil
	default:
		return map[string]any{}, fmt.Errorf("%w: got %T", ErrNotObject, value)
	}
}

// StripUpdates returns content with the update block and everything after it
// removed. Content without a marker is returned unchanged.
func StripUpdates(content, marker string) string {
	if marker == "" {
		marker = DefaultMarker
	}
	idx := strings.Index(content, marker)
	if idx == -1 {
		return content
	}
	return strings.TrimSpace(content[:idx])
}
