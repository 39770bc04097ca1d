// Package extract pulls a JSON object out of free-form model output.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when the text holds nothing that looks like an object.
var ErrNoJSON = errors.New("no JSON object found in response")

var (
	jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	anyFence  = regexp.MustCompile("(?s)```\\s*(.*?)```")
	braces    = regexp.MustCompile(`(?s)\{.*\}`)
)

// Candidate returns the most likely JSON payload in text: a ```json fence,
// then any fence, then the widest brace-delimited span.
func Candidate(text string) (string, bool) {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := anyFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := braces.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// Object decodes the JSON object embedded in text.
func Object(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil && out != nil {
		return out, nil
	}

	candidate, ok := Candidate(trimmed)
	if !ok {
		return nil, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if out == nil {
		return nil, ErrNoJSON
	}
	return out, nil
}
