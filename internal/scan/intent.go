package scan

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"gapscan/internal/core/errors"
)

// KeywordIntentExtractor derives a ChangeIntent from ticket prose with
// keyword heuristics. It exists so the pipeline runs without an external
// language-model service; the classification tables mirror the taxonomy
// richer extractors emit.
type KeywordIntentExtractor struct {
	MaxKeywords int
}

const defaultMaxKeywords = 12

var createMarkers = []string{"add ", "create ", "introduce ", "new ", "instrument "}

var categoryMarkers = []struct {
	Category string
	Tokens   []string
}{
	{Category: "CONFIGURATION", Tokens: []string{"config", "setting", "appsettings", "startup", "environment variable"}},
	{Category: "INSTRUMENTATION", Tokens: []string{"telemetry", "tracing", "span", "metric", "instrument", "observab"}},
	{Category: "LOGGING", Tokens: []string{"log ", "logging", "logger"}},
}

var operationMarkers = []struct {
	Operation string
	Tokens    []string
}{
	{Operation: "span", Tokens: []string{"span", "trace", "tracing"}},
	{Operation: "metric", Tokens: []string{"metric", "counter", "histogram", "gauge"}},
	{Operation: "log", Tokens: []string{"logging", "log line", "log entry"}},
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_.]{3,}`)

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"when": true, "should": true, "would": true, "could": true, "there": true,
	"these": true, "those": true, "into": true, "need": true, "needs": true,
	"which": true, "where": true, "about": true, "after": true, "before": true,
	"please": true, "currently": true, "because": true,
}

func (e KeywordIntentExtractor) Extract(ctx context.Context, ticketText string) (ChangeIntent, error) {
	if err := ctx.Err(); err != nil {
		return ChangeIntent{}, err
	}
	if strings.TrimSpace(ticketText) == "" {
		return ChangeIntent{}, errors.New(errors.CodeValidation, "ticket text is empty")
	}
	lower := strings.ToLower(ticketText)

	intent := ChangeIntent{
		Action:        "MODIFY",
		Category:      "INSTRUMENTATION",
		OperationType: "span",
		Keywords:      e.keywords(lower),
	}
	for _, marker := range createMarkers {
		if strings.Contains(lower, marker) {
			intent.Action = "CREATE"
			break
		}
	}
	for _, entry := range categoryMarkers {
		if containsAny(lower, entry.Tokens) {
			intent.Category = entry.Category
			break
		}
	}
	for _, entry := range operationMarkers {
		if containsAny(lower, entry.Tokens) {
			intent.OperationType = entry.Operation
			break
		}
	}
	return intent, nil
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// keywords ranks the ticket's significant words by frequency, ties broken
// alphabetically so extraction is deterministic.
func (e KeywordIntentExtractor) keywords(lower string) []string {
	counts := make(map[string]int)
	for _, word := range wordRe.FindAllString(lower, -1) {
		if !stopwords[word] {
			counts[word]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	limit := e.MaxKeywords
	if limit <= 0 {
		limit = defaultMaxKeywords
	}
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}
