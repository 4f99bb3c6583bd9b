package chunker

import (
	"strings"
	"testing"

	"ragcore/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("", 4))
	assert.Equal(t, 1, EstimateTokens("a", 4))
	assert.Equal(t, 1, EstimateTokens("abcd", 4))
	assert.Equal(t, 2, EstimateTokens("abcde", 4))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100), 4))

	// zero divisor falls back to the default
	assert.Equal(t, 1, EstimateTokens("abc", 0))
}

func TestSamplePages(t *testing.T) {
	assert.Nil(t, SamplePages(0))
	assert.Equal(t, []int{1}, SamplePages(1))
	assert.Equal(t, []int{1, 2, 3}, SamplePages(3))
	assert.Equal(t, []int{1, 2, 3, 4}, SamplePages(4))
	assert.Equal(t, []int{1, 5, 10, 15, 20}, SamplePages(20))

	for _, n := range []int{4, 7, 100, 999} {
		pages := SamplePages(n)
		assert.LessOrEqual(t, len(pages), 5)
		seen := make(map[int]bool)
		for _, p := range pages {
			assert.GreaterOrEqual(t, p, 1)
			assert.LessOrEqual(t, p, n)
			assert.False(t, seen[p], "duplicate page %d for n=%d", p, n)
			seen[p] = true
		}
		assert.Equal(t, 1, pages[0])
		assert.Equal(t, n, pages[len(pages)-1])
	}
}

func TestChunkDocumentIndexing(t *testing.T) {
	doc := types.StandardizedDocument{
		Pages: []types.Page{
			{Number: 1, TextBlocks: []string{"First page body text."}},
			{Number: 2, TextBlocks: []string{"Second page body text."}},
			{Number: 3, TextBlocks: []string{"Third page body text."}},
		},
	}
	docID := uuid.New()

	chunks := ChunkDocument(doc, docID, DefaultConfig())
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex, "index must be global and monotonic")
		assert.Equal(t, i+1, c.Metadata.PageNumber)
		assert.Equal(t, 1, c.Metadata.TotalChunksInPage)
		assert.Equal(t, docID, c.DocID)
		assert.Equal(t, types.ChunkText, c.Type)
		assert.NotEqual(t, uuid.Nil, c.ID)
	}
}

func TestChunkDocumentSplitsLongPage(t *testing.T) {
	cfg := Config{MaxTokens: 50, OverlapTokens: 10, CharsPerToken: 4}

	var blocks []string
	for i := 0; i < 10; i++ {
		blocks = append(blocks, strings.Repeat("word ", 30))
	}
	doc := types.StandardizedDocument{
		Pages: []types.Page{{Number: 1, TextBlocks: blocks}},
	}

	chunks := ChunkDocument(doc, uuid.New(), cfg)
	require.Greater(t, len(chunks), 1)

	total := len(chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, total, c.Metadata.TotalChunksInPage)
		assert.NotEmpty(t, c.Content)
	}
}

func TestChunkDocumentPreservesContent(t *testing.T) {
	paragraphs := []string{
		"Alpha paragraph about revenue.",
		"Beta paragraph about operations.",
		"Gamma paragraph about forecasts.",
	}
	doc := types.StandardizedDocument{
		Pages: []types.Page{{Number: 1, TextBlocks: []string{strings.Join(paragraphs, "\n\n")}}},
	}

	chunks := ChunkDocument(doc, uuid.New(), DefaultConfig())
	require.NotEmpty(t, chunks)

	joined := ""
	for _, c := range chunks {
		joined += c.Content + "\n"
	}
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestChunkDocumentTables(t *testing.T) {
	doc := types.StandardizedDocument{
		Pages: []types.Page{{
			Number:     2,
			TextBlocks: []string{"Some narrative text."},
			Tables: []types.Table{{
				Headers: []string{"Revenue", "Cost"},
				Rows:    [][]string{{"100", "40"}, {"200", "90"}},
			}},
		}},
	}

	chunks := ChunkDocument(doc, uuid.New(), DefaultConfig())
	require.Len(t, chunks, 2)

	table := chunks[1]
	assert.Equal(t, types.ChunkTable, table.Type)
	assert.True(t, table.Metadata.IsTable)
	assert.Equal(t, 0, table.Metadata.TableIndex)
	assert.Equal(t, 1, table.Metadata.ChunkIndex)
	assert.Equal(t, 2, table.Metadata.TotalChunksInPage)
	assert.Contains(t, table.Metadata.TableDescription, "Financial table")
	assert.Contains(t, table.Content, "| Revenue | Cost |")
	assert.Contains(t, table.Content, "| 100 | 40 |")
}

func TestChunkDocumentSkipsEmptyTable(t *testing.T) {
	doc := types.StandardizedDocument{
		Pages: []types.Page{{
			Number:     1,
			TextBlocks: []string{"text"},
			Tables:     []types.Table{{}},
		}},
	}
	chunks := ChunkDocument(doc, uuid.New(), DefaultConfig())
	assert.Len(t, chunks, 1)
}

func TestMergeWithEmbeddings(t *testing.T) {
	chunks := []types.DocumentChunk{
		{ID: uuid.New(), Content: "one"},
		{ID: uuid.New(), Content: "two"},
	}
	vecs := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	merged, err := MergeWithEmbeddings(chunks, vecs)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, chunks[0].ID, merged[0].ID)
	assert.Equal(t, vecs[1], merged[1].Embedding)

	_, err = MergeWithEmbeddings(chunks, vecs[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestPrepareForEmbedding(t *testing.T) {
	chunks := []types.DocumentChunk{
		{Content: "a"}, {Content: "b"}, {Content: "c"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, PrepareForEmbedding(chunks))
	assert.Equal(t, 3, TotalChunkSize(chunks))
}

func TestDescribeTable(t *testing.T) {
	desc := DescribeTable(types.Table{
		Headers: []string{"Date", "Quarter"},
		Rows:    [][]string{{"2024-01-01", "Q1"}},
	})
	assert.Contains(t, desc, "Time-series table")
	assert.Contains(t, desc, "1 rows x 2 columns")

	plain := DescribeTable(types.Table{
		Headers: []string{"Foo", "Bar"},
		Rows:    [][]string{{"1", "2"}, {"3", "4"}},
	})
	assert.Equal(t, "Table, 2 rows x 2 columns", plain)
}
