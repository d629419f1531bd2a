package retrieval

import "strings"

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 500

	// DefaultOverlap is the number of trailing characters repeated at the
	// start of the next chunk within a section.
	DefaultOverlap = 100

	// breakWindow is how far back from the tentative chunk end the chunker
	// looks for a natural break.
	breakWindow = 100
)

// breakDelims are tried in order; the first one found (searching backwards
// inside the break window) ends the chunk.
var breakDelims = []string{". ", "? ", "! ", "\n\n"}

// ChunkText splits text into chunks of at most size characters, preferring
// to end each chunk at a sentence or paragraph break within the final
// breakWindow characters. Consecutive chunks overlap by overlap characters,
// except where the chunk ended at a natural break near the section boundary.
//
// Non-positive size or overlap fall back to the defaults; overlap is clamped
// below size.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}
	if len(text) <= size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end < len(text) {
			// Prefer a natural break inside the final window.
			winStart := max(start, end-breakWindow)
			window := text[winStart:end]
			for _, delim := range breakDelims {
				if idx := strings.LastIndex(window, delim); idx != -1 {
					end = winStart + idx + len(delim)
					break
				}
			}
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			// Guarantee forward progress on degenerate inputs where the
			// natural break lands inside the overlap region.
			next = end
		}
		start = next
	}
	return chunks
}
