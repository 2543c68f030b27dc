package oracle

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Oracle responses are supposed to be bare JSON but arrive wrapped in code
// fences, prefixed with prose, or carrying trailing commas often enough that
// a single json.Unmarshal is not good enough. Parse tries a sequence of
// recovery strategies; callers that can proceed without the annotation use
// ParseOrZero and treat the zero value as "no answer".

// Pre-compiled patterns; compiling per parse is measurably slower.
var (
	fenceRegex         = regexp.MustCompile("(?s)```(?:json)?\\s*\n?([\\s\\S]*?)\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// Parse attempts to decode an oracle response as JSON, recovering from the
// common formatting quirks of LLM output.
//
// Strategy sequence:
//  1. Direct parse
//  2. Strip code fences
//  3. Remove trailing commas and comments
//  4. Extract the outermost JSON object or array from mixed content
func Parse[T any](text string) (T, bool) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, false
	}

	if v, err := tryParse[T](trimmed); err == nil {
		return v, true
	}

	unfenced := stripFences(trimmed)
	if unfenced != trimmed {
		if v, err := tryParse[T](unfenced); err == nil {
			return v, true
		}
	}

	cleaned := cleanupJSON(unfenced)
	if v, err := tryParse[T](cleaned); err == nil {
		return v, true
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if v, err := tryParse[T](extracted); err == nil {
			return v, true
		}
	}

	slog.Debug("all oracle JSON parse strategies failed",
		"preview", truncate(text, 120))
	return zero, false
}

// ParseOrZero decodes like Parse but collapses failure into the zero value.
// Used by agents whose annotation step is best-effort.
func ParseOrZero[T any](text string) T {
	v, _ := Parse[T](text)
	return v
}

func tryParse[T any](text string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(text), &v)
	return v, err
}

// stripFences returns the content of the first code fence, or the input
// unchanged when no fence is present
func stripFences(text string) string {
	if m := fenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// cleanupJSON removes trailing commas and JavaScript-style comments
func cleanupJSON(text string) string {
	cleaned := blockCommentRegex.ReplaceAllString(text, "")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the outermost object or array out of surrounding prose
func extractJSON(text string) string {
	// Prefer whichever structure starts first so "Here is the list: [...]"
	// yields the array rather than an object embedded inside it
	objIdx := strings.Index(text, "{")
	arrIdx := strings.Index(text, "[")

	if arrIdx >= 0 && (objIdx < 0 || arrIdx < objIdx) {
		if m := arrayRegex.FindString(text); m != "" {
			return m
		}
	}
	if m := objectRegex.FindString(text); m != "" {
		return m
	}
	if m := arrayRegex.FindString(text); m != "" {
		return m
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
