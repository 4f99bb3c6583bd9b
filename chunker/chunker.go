package chunker

import (
	"fmt"
	"strings"

	"ragcore/types"

	"github.com/google/uuid"
)

// Config controls the token-budgeted split. Token math is an estimate:
// ceil(chars / CharsPerToken), cheap enough to run on every paragraph.
type Config struct {
	MaxTokens     int
	OverlapTokens int
	CharsPerToken int
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:     500,
		OverlapTokens: 50,
		CharsPerToken: 4,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = def.OverlapTokens
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = def.CharsPerToken
	}
	return c
}

// EstimateTokens returns ceil(len(s)/charsPerToken), 0 for empty input.
func EstimateTokens(s string, charsPerToken int) int {
	if len(s) == 0 {
		return 0
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultConfig().CharsPerToken
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// ChunkDocument splits a standardized document into retrieval units.
// Tables become one chunk each; free text is greedily packed up to
// MaxTokens with the tail of the previous chunk carried into the next.
// The chunk index is a single counter across the whole document so
// ordering stays globally stable.
func ChunkDocument(doc types.StandardizedDocument, docID uuid.UUID, cfg Config) []types.DocumentChunk {
	cfg = cfg.withDefaults()

	var chunks []types.DocumentChunk
	index := 0

	for _, page := range doc.Pages {
		pageStart := len(chunks)

		for _, content := range splitText(page.TextBlocks, cfg) {
			chunks = append(chunks, types.DocumentChunk{
				ID:      uuid.New(),
				DocID:   docID,
				Content: content,
				Type:    types.ChunkText,
				Metadata: types.ChunkMetadata{
					PageNumber: page.Number,
					ChunkIndex: index,
				},
			})
			index++
		}

		for ti, table := range page.Tables {
			rendered := RenderTable(table)
			if strings.TrimSpace(rendered) == "" {
				continue
			}
			desc := DescribeTable(table)
			chunks = append(chunks, types.DocumentChunk{
				ID:      uuid.New(),
				DocID:   docID,
				Content: desc + "\n" + rendered,
				Type:    types.ChunkTable,
				Metadata: types.ChunkMetadata{
					PageNumber:       page.Number,
					ChunkIndex:       index,
					IsTable:          true,
					TableIndex:       ti,
					TableDescription: desc,
				},
			})
			index++
		}

		total := len(chunks) - pageStart
		for i := pageStart; i < len(chunks); i++ {
			chunks[i].Metadata.TotalChunksInPage = total
		}
	}

	return chunks
}

// splitText packs paragraphs into chunks of at most MaxTokens. A flush
// forced mid-flow carries the previous chunk's tail into the next chunk
// so no semantic boundary is lost.
func splitText(blocks []string, cfg Config) []string {
	var paragraphs []string
	for _, block := range blocks {
		for _, p := range strings.Split(block, "\n\n") {
			p = strings.TrimSpace(p)
			if p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	maxChars := cfg.MaxTokens * cfg.CharsPerToken
	overlapChars := cfg.OverlapTokens * cfg.CharsPerToken

	var out []string
	var cur strings.Builder

	flush := func() string {
		content := strings.TrimSpace(cur.String())
		cur.Reset()
		if content == "" {
			return ""
		}
		out = append(out, content)
		return tail(content, overlapChars)
	}

	for _, p := range paragraphs {
		// Oversized paragraph: hard split into budget-sized pieces.
		if EstimateTokens(p, cfg.CharsPerToken) > cfg.MaxTokens {
			carry := flush()
			for _, piece := range hardSplit(p, maxChars, overlapChars) {
				if carry != "" {
					piece = carry + " " + piece
					carry = ""
				}
				out = append(out, piece)
			}
			continue
		}

		candidate := p
		if cur.Len() > 0 {
			candidate = cur.String() + "\n\n" + p
		}
		if EstimateTokens(candidate, cfg.CharsPerToken) > cfg.MaxTokens && cur.Len() > 0 {
			carry := flush()
			if carry != "" {
				cur.WriteString(carry)
				cur.WriteString("\n\n")
			}
			cur.WriteString(p)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()

	return out
}

func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	// cut at a word boundary so the carried text reads naturally
	if i := strings.IndexAny(t, " \n\t"); i >= 0 && i+1 < len(t) {
		t = t[i+1:]
	}
	return t
}

func hardSplit(p string, maxChars, overlapChars int) []string {
	var pieces []string
	words := strings.Fields(p)
	var b strings.Builder
	for _, w := range words {
		if b.Len()+len(w)+1 > maxChars && b.Len() > 0 {
			piece := b.String()
			pieces = append(pieces, piece)
			b.Reset()
			if overlapChars > 0 {
				b.WriteString(tail(piece, overlapChars))
				b.WriteString(" ")
			}
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(w)
	}
	if strings.TrimSpace(b.String()) != "" {
		pieces = append(pieces, strings.TrimSpace(b.String()))
	}
	return pieces
}

// TotalChunkSize sums content length in characters across chunks.
func TotalChunkSize(chunks []types.DocumentChunk) int {
	total := 0
	for _, c := range chunks {
		total += len(c.Content)
	}
	return total
}

// PrepareForEmbedding returns chunk contents in index order, ready to be
// sent to the embedding provider in batches.
func PrepareForEmbedding(chunks []types.DocumentChunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

// MergeWithEmbeddings zips chunks with their vectors. A count mismatch is
// a hard error: guessing a pairing would corrupt page attribution.
func MergeWithEmbeddings(chunks []types.DocumentChunk, embeddings [][]float32) ([]types.VectorizedChunk, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}
	merged := make([]types.VectorizedChunk, len(chunks))
	for i, c := range chunks {
		merged[i] = types.VectorizedChunk{
			DocumentChunk: c,
			Embedding:     embeddings[i],
		}
	}
	return merged, nil
}

// SamplePages picks up to five representative page numbers: always the
// first, middle and last page, plus the quartiles on longer documents.
func SamplePages(totalPages int) []int {
	if totalPages <= 0 {
		return nil
	}
	if totalPages <= 3 {
		pages := make([]int, totalPages)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	candidates := []int{
		1,
		(totalPages + 3) / 4, // ceil(n/4)
		(totalPages + 1) / 2, // ceil(n/2)
		(3*totalPages + 3) / 4,
		totalPages,
	}

	var pages []int
	seen := make(map[int]bool)
	for _, p := range candidates {
		if p < 1 {
			p = 1
		}
		if p > totalPages {
			p = totalPages
		}
		if !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	return pages
}
