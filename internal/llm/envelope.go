package llm

import (
	"encoding/json"
	"strings"

	"github.com/facet-labs/facet/pkg/models"
)

// ParseEnvelope extracts a structured envelope from raw model output. It
// tries progressively looser readings: the whole text as JSON, the text as a
// double-encoded JSON string, then the first '{' .. last '}' span. Returns
// false when none of them yield an envelope with content.
func ParseEnvelope(text string) (*models.ModelEnvelope, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if env, ok := decodeEnvelope(trimmed); ok {
		return env, true
	}

	// Some models escape the whole envelope as a JSON string.
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
		if env, ok := decodeEnvelope(strings.TrimSpace(inner)); ok {
			return env, true
		}
	}

	// Prose around the JSON: take the outermost brace span.
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		if env, ok := decodeEnvelope(trimmed[start : end+1]); ok {
			return env, true
		}
	}

	return nil, false
}

// ExtractEnvelope is ParseEnvelope with a plain-text fallback: unparseable
// output becomes an answer-only envelope so the caller never sees an error
// for sloppy model formatting.
func ExtractEnvelope(text string) *models.ModelEnvelope {
	if env, ok := ParseEnvelope(text); ok {
		return env
	}
	return &models.ModelEnvelope{Answer: truncate(strings.TrimSpace(text), 200)}
}

func decodeEnvelope(text string) (*models.ModelEnvelope, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var env models.ModelEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, false
	}
	if env.Answer == "" && env.SQL == "" && env.Viz == nil {
		return nil, false
	}
	env.Viz.Normalize()
	return &env, true
}

// ExtractSQL pulls a bare SELECT statement out of free-form text, used when
// the model answers in prose instead of the envelope format.
func ExtractSQL(text string) string {
	upper := strings.ToUpper(text)
	start := strings.Index(upper, "SELECT")
	if start < 0 {
		return ""
	}
	rest := text[start:]
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
