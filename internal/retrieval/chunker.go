package retrieval

import "strings"

const defaultChunkSize = 500

// NormalizeWhitespace collapses runs of whitespace into single spaces. Some
// PDFs extract with stray newlines and double spaces that would pollute the
// embeddings.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ChunkText splits text into chunks of roughly chunkSize characters on word
// boundaries. Words are never split.
func ChunkText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	words := strings.Fields(text)
	var chunks []string
	var current []string
	length := 0

	for _, word := range words {
		length += len(word) + 1
		current = append(current, word)
		if length >= chunkSize {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			length = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
