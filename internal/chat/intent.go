package chat

import (
	"regexp"
	"strings"
)

// Intent is what the router decided the user wants.
type Intent string

const (
	IntentGeneral   Intent = "general"
	IntentSummarize Intent = "summarize"
	IntentOverview  Intent = "overview"
	IntentUnknown   Intent = "unknown"
)

// Classifier maps a query embedding to an intent. The production model is
// trained offline; KeywordClassifier is the in-tree fallback.
type Classifier interface {
	Classify(query string, embedding []float32) Intent
}

var (
	mtRe   = regexp.MustCompile(`(?i)\bmt\s*([1-3])\b`)
	psetRe = regexp.MustCompile(`(?i)\bpset\s*([1-9]|1[0-2])\b`)
)

// NormalizeQuery expands the shorthand students actually type so retrieval
// matches the phrasing instructors use. Idempotent.
func NormalizeQuery(query string) string {
	normalized := mtRe.ReplaceAllString(query, "midterm $1")
	return psetRe.ReplaceAllString(normalized, "problem set $1")
}

// KeywordClassifier routes on surface phrasing alone and ignores the
// embedding. It errs toward general: retrieval handles a mislabeled
// question better than the digest path does.
type KeywordClassifier struct{}

var (
	summarizePhrases = []string{
		"catch me up",
		"what did i miss",
		"what's new",
		"whats new",
		"summarize",
		"summary of",
		"recent updates",
		"recap",
	}
	overviewPhrases = []string{
		"overview of",
		"assignment overview",
		"give me an overview",
	}
)

func (KeywordClassifier) Classify(query string, _ []float32) Intent {
	q := strings.ToLower(query)
	for _, phrase := range summarizePhrases {
		if strings.Contains(q, phrase) {
			return IntentSummarize
		}
	}
	for _, phrase := range overviewPhrases {
		if strings.Contains(q, phrase) {
			return IntentOverview
		}
	}
	if strings.TrimSpace(q) == "" {
		return IntentUnknown
	}
	return IntentGeneral
}
