package rag

import "strings"

// DefaultChunkSize and DefaultOverlap are character counts (tokens are
// treated as character count throughout this daemon, per spec.md §9).
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Chunk splits text into fixed-size, overlapping windows. Grounded on the
// shape of the teacher's pkg/rag/chunk.DocumentProcessor (a pluggable
// splitter the ingestion worker calls per document), simplified to a single
// character-window strategy since this spec ingests plain documents, not
// source code requiring syntax-aware splitting.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	runes := []rune(text)
	step := size - overlap

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
