// Package extract recovers JSON values embedded in free-form model output.
//
// Every function here is pure: it takes text and returns a candidate JSON
// document or a decoded value, so the extraction rules can be tested without
// a generation backend.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	// ErrNoJSON is returned when the text contains no JSON object.
	ErrNoJSON = errors.New("no JSON object found")
	// ErrNotObject is returned when the decoded value is not a JSON object.
	ErrNotObject = errors.New("decoded value is not a JSON object")
)

// Strategy turns free text into a candidate JSON document.
type Strategy func(text string) (string, error)

// BraceBounded returns the substring from the first "{" to the last "}".
// Wrapper prose is tolerated, malformed JSON inside the braces is not.
func BraceBounded(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// Repair returns a repaired JSON document for text. Missing quotes, trailing
// commas and truncated objects are reconstructed. Leading and trailing prose
// around the outermost braces is dropped first.
func Repair(text string) (string, error) {
	candidate, err := BraceBounded(text)
	if err != nil {
		// Possibly truncated: repair from the first opening bracket to the end.
		start := strings.IndexAny(text, "{[")
		if start == -1 {
			return "", ErrNoJSON
		}
		candidate = text[start:]
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("repair JSON: %w", err)
	}
	return repaired, nil
}

// Object runs the strategies in order and returns the first candidate that
// decodes to a JSON object. The error of the last strategy is returned when
// none succeeds.
func Object(text string, strategies ...Strategy) (map[string]any, error) {
	if len(strategies) == 0 {
		strategies = []Strategy{BraceBounded}
	}

	var lastErr error
	for _, strategy := range strategies {
		candidate, err := strategy(text)
		if err != nil {
			lastErr = err
			continue
		}

		value, err := decode(candidate)
		if err != nil {
			lastErr = err
			continue
		}

		obj, ok := value.(map[string]any)
		if !ok {
			lastErr = ErrNotObject
			continue
		}
		return obj, nil
	}

	return nil, lastErr
}

// Balanced scans text from the first "{" at or after start, counting brace
// depth, and returns the substring that ends where the depth returns to zero.
// Braces inside JSON string literals are ignored. ok is false when there is no
// opening brace or the object never closes.
func Balanced(text string, start int) (obj string, ok bool) {
	return balanced(text, start, '{', '}')
}

// BalancedArray is Balanced for the first "[" at or after start.
func BalancedArray(text string, start int) (arr string, ok bool) {
	return balanced(text, start, '[', ']')
}

func balanced(text string, start int, open, close byte) (string, bool) {
	if start < 0 || start >= len(text) {
		return "", false
	}
	first := strings.IndexByte(text[start:], open)
	if first == -1 {
		return "", false
	}
	first += start

	depth := 0
	inString := false
	escaped := false
	for i := first; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[first : i+1], true
			}
		}
	}

	return "", false
}

// decode parses a JSON document into a generic value.
func decode(doc string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(doc), &value); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return value, nil
}
