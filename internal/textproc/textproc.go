package textproc

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	entityRe    = regexp.MustCompile(`&[#\w]+;`)
	blankRunRe  = regexp.MustCompile(`\n\s*\n`)
	sentenceRe  = regexp.MustCompile(`([.!?])\s+`)
	wordSplitRe = regexp.MustCompile(`\s+`)
)

// Clean converts forum HTML to plain text: text nodes joined by newlines,
// leftover entity escapes stripped, blank-line runs collapsed to a single
// newline. Idempotent: cleaning already-clean text is a no-op.
func Clean(raw string) string {
	text := extractText(raw)
	text = entityRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func extractText(raw string) string {
	tok := html.NewTokenizer(strings.NewReader(raw))
	var parts []string
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			if t := strings.TrimSpace(string(tok.Text())); t != "" {
				parts = append(parts, t)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tok.TagName()
			// Scripts and styles carry no forum content.
			if n := string(name); n == "script" || n == "style" {
				skipElement(tok, n)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func skipElement(tok *html.Tokenizer, name string) {
	depth := 1
	for depth > 0 {
		switch tok.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken:
			if n, _ := tok.TagName(); string(n) == name {
				depth++
			}
		case html.EndTagToken:
			if n, _ := tok.TagName(); string(n) == name {
				depth--
			}
		}
	}
}

// SplitSentences splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation on the left half and dropping empties.
func SplitSentences(text string) []string {
	marked := sentenceRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hash returns the 64-hex SHA-256 of text; chunk equality for dedup.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func wordCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(wordSplitRe.Split(s, -1))
}
