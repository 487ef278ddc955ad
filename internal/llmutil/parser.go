// internal/llmutil/parser.go
package llmutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/locsmith/api/schemas"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// Kind tags an Outcome.
type Kind int

const (
	// Empty means the model returned nothing usable at all.
	Empty Kind = iota
	// Parsed means Value holds the decoded output.
	Parsed
	// Malformed means output was present but could not be decoded; Raw and Err
	// describe it.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Malformed:
		return "malformed"
	default:
		return "empty"
	}
}

// Outcome is the result of decoding model output. Callers switch on Kind.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Raw   string
	Err   error
}

// ParseList decodes model output as a JSON array of T. A bare object is
// accepted and wrapped into a one-element list.
func ParseList[T any](out schemas.RawModelOutput) Outcome[[]T] {
	payload, raw := payloadOf(out)
	if len(payload) == 0 {
		return Outcome[[]T]{Kind: Empty, Raw: raw}
	}

	if payload[0] == '{' {
		var single T
		if err := json.Unmarshal(payload, &single); err != nil {
			return malformed[[]T](raw, payload, err)
		}
		return Outcome[[]T]{Kind: Parsed, Value: []T{single}, Raw: raw}
	}

	var list []T
	if err := json.Unmarshal(payload, &list); err != nil {
		return malformed[[]T](raw, payload, err)
	}
	if list == nil {
		// A literal null decodes without error.
		return Outcome[[]T]{Kind: Empty, Raw: raw}
	}
	return Outcome[[]T]{Kind: Parsed, Value: list, Raw: raw}
}

// ParseObject decodes model output as a single JSON object of type T.
func ParseObject[T any](out schemas.RawModelOutput) Outcome[T] {
	payload, raw := payloadOf(out)
	if len(payload) == 0 {
		return Outcome[T]{Kind: Empty, Raw: raw}
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return malformed[T](raw, payload, err)
	}
	return Outcome[T]{Kind: Parsed, Value: v, Raw: raw}
}

func malformed[T any](raw string, payload []byte, err error) Outcome[T] {
	return Outcome[T]{
		Kind: Malformed,
		Raw:  raw,
		Err:  fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(string(payload), 500)),
	}
}

func payloadOf(out schemas.RawModelOutput) ([]byte, string) {
	if data := bytes.TrimSpace(out.Data); len(data) > 0 {
		return data, string(data)
	}
	return []byte(ExtractJSON(out.Text)), out.Text
}

// ExtractJSON pulls the JSON document out of an LLM response, handling
// markdown code fences and conversational text around the payload. The result
// is empty when the response is blank.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}

	// Heuristically determine if the content is likely an object or array.
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	// 1. Handle markdown wrapping (most common case).
	if strings.HasPrefix(response, "```") {
		var matches []string
		// Arrays win when the first structural character is '[', since the
		// object regex would otherwise grab the first element only.
		arrayFirst := isArray && (!isObject || strings.Index(response, "[") < strings.Index(response, "{"))
		if arrayFirst {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
		return response
	}

	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// 2. Attempt to find the structure within conversational text.
	first := strings.IndexAny(response, "[{")
	if first == -1 {
		return response
	}
	closer := "}"
	if response[first] == '[' {
		closer = "]"
	}
	last := strings.LastIndex(response, closer)
	if last <= first {
		return response
	}
	return response[first : last+1]
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
