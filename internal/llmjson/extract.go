// Package llmjson extracts structured JSON from LLM text output that may be
// wrapped in prose or markdown fences, with a bounded retry contract (spec
// §4.6, §7 kind 8).
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// RetryAttempts and RetryDelay bound the extractor's tolerance for a
// momentarily malformed LLM response before giving up (spec §4.6).
const (
	RetryAttempts = 2
	RetryDelay    = 1 * time.Second
)

// FirstObject locates the first balanced `{...}` block in s, tolerating
// surrounding prose such as "Sure, here: {...} — hope that helps."
func FirstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

// Extract decodes v from the first JSON object found in s, repairing common
// malformations (unquoted keys, trailing commas, single quotes) before
// giving up. Callers that need the retry/backoff loop should use
// ExtractWithRetry instead.
func Extract(s string, v interface{}) error {
	block, err := FirstObject(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(block), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.RepairJSON(block)
	if err != nil {
		return fmt.Errorf("failed to repair malformed JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to parse repaired JSON: %w", err)
	}
	return nil
}

// ExtractWithRetry calls fetch (typically a fresh LLM completion call) up to
// RetryAttempts+1 times, decoding the result into v, sleeping RetryDelay
// between attempts. After all attempts fail, it returns the last error,
// which callers wrap with domain.ErrMalformedJSON.
func ExtractWithRetry(v interface{}, fetch func() (string, error)) error {
	var lastErr error
	for attempt := 0; attempt <= RetryAttempts; attempt++ {
		text, err := fetch()
		if err != nil {
			lastErr = err
		} else if err := Extract(text, v); err != nil {
			lastErr = err
		} else {
			return nil
		}
		if attempt < RetryAttempts {
			time.Sleep(RetryDelay)
		}
	}
	return fmt.Errorf("json extraction failed after %d attempts: %w", RetryAttempts+1, lastErr)
}
