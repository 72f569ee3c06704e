package ingest

import "strings"

var chunkSeparators = []string{"\n\n", "\n", " "}

// Chunk splits text into pieces of at most size characters with overlap
// characters carried over between consecutive chunks. Splitting prefers
// paragraph boundaries, then line boundaries, then word boundaries.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(text) <= size {
		return []string{text}
	}

	pieces := splitToFit(text, size, chunkSeparators)
	return mergePieces(pieces, size, overlap)
}

// splitToFit recursively splits text on progressively finer separators
// until every piece fits in size. A single token longer than size is cut
// hard.
func splitToFit(text string, size int, seps []string) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		var out []string
		for len(text) > size {
			out = append(out, text[:size])
			text = text[size:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	var out []string
	for _, seg := range strings.Split(text, seps[0]) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, splitToFit(seg, size, seps[1:])...)
	}
	return out
}

func mergePieces(pieces []string, size, overlap int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(cur.String())
		cur.Reset()
		if chunk == "" {
			return
		}
		chunks = append(chunks, chunk)
		if overlap > 0 && len(chunk) > overlap {
			cur.WriteString(chunk[len(chunk)-overlap:])
			cur.WriteString(" ")
		}
	}

	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p)+1 > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}
