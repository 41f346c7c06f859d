package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamforge/streambot/internal/metrics"
)

// SplitText cuts text into chunks of at most chunkSize characters with
// overlap characters carried across seams. When a sentence or line boundary
// falls past the chunk midpoint the cut moves there, so chunks tend to end
// on natural breaks.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			window := text[start:end]
			for _, boundary := range []string{". ", "! ", "? ", "\n"} {
				pos := strings.LastIndex(window, boundary)
				if pos > chunkSize/2 {
					end = start + pos + len(boundary)
					break
				}
			}
		}

		chunks = append(chunks, text[start:end])

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// ImportText chunks a document and stores every chunk in the knowledge
// collection, tagged with its source and chunk index. Returns
// (stored, totalChunks).
func (s *Store) ImportText(ctx context.Context, text, source, category string, chunkSize, overlap int) (int, int) {
	if !s.Enabled() || strings.TrimSpace(text) == "" {
		return 0, 0
	}

	chunks := SplitText(text, chunkSize, overlap)
	stored := 0
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		extra := map[string]string{"chunk_index": fmt.Sprintf("%d", i)}
		if s.AddKnowledge(ctx, chunk, source, category, extra) {
			stored++
			metrics.MemoryOperations.WithLabelValues("import", "ok").Inc()
		}
	}
	s.log.Info().Str("source", source).Int("stored", stored).Int("chunks", len(chunks)).Msg("imported document")
	return stored, len(chunks)
}
