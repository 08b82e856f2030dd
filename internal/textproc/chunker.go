package textproc

import (
	"strings"
)

// ChunkSizeWords is the target chunk size. Sentences accumulate until adding
// the next one would cross it.
const ChunkSizeWords = 100

// ChunkText builds retrieval chunks from cleaned text. Chunks break on
// sentence boundaries; each new chunk is seeded with the last sentence of the
// previous one so context survives the cut. When title is non-empty every
// chunk is prefixed with "Title: {title}\n\n".
//
// Deterministic: identical inputs always yield identical chunks.
func ChunkText(text, title string, targetWords int) []string {
	if targetWords <= 0 {
		targetWords = ChunkSizeWords
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks     []string
		current    []string
		currentLen int
	)

	emit := func() {
		chunkText := strings.Join(current, " ")
		if title != "" {
			chunkText = "Title: " + title + "\n\n" + chunkText
		}
		chunks = append(chunks, chunkText)
	}

	for _, sentence := range sentences {
		sentenceLen := wordCount(sentence)
		if currentLen+sentenceLen > targetWords && len(current) > 0 {
			emit()
			overlap := current[len(current)-1]
			current = []string{overlap}
			currentLen = wordCount(overlap)
		}
		current = append(current, sentence)
		currentLen += sentenceLen
	}
	if len(current) > 0 {
		emit()
	}
	return chunks
}
