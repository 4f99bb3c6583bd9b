package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ragcore/chunker"
	"ragcore/search"
	"ragcore/types"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

const (
	semSection = "section"
	semTable   = "table"

	titleMaxChars   = 80
	summaryMaxChars = 300
	topicTagCount   = 5
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens uses the cl100k_base encoding when available and falls
// back to the character estimate when the BPE ranks cannot be loaded.
func countTokens(s string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return chunker.EstimateTokens(s, 0)
	}
	return len(encoding.Encode(s, nil, nil))
}

// BuildStructure derives the flat, path-addressed outline for a
// document: one root, one section per page, one table node per table.
// Rows carry parent IDs only; the tree is reassembled on read.
func BuildStructure(docID uuid.UUID, title string, doc types.StandardizedDocument) ([]types.StructureNode, types.DocumentOverview) {
	root := types.StructureNode{
		ID:         uuid.New(),
		DocID:      docID,
		Level:      0,
		Ordering:   0,
		Path:       "1",
		Title:      title,
		StartPage:  1,
		EndPage:    len(doc.Pages),
		ChildCount: len(doc.Pages),
	}

	nodes := []types.StructureNode{root}
	totalTokens := 0

	for i, page := range doc.Pages {
		content := strings.TrimSpace(strings.Join(page.TextBlocks, "\n\n"))
		section := types.StructureNode{
			ID:           uuid.New(),
			DocID:        docID,
			ParentID:     uuid.NullUUID{UUID: root.ID, Valid: true},
			Level:        1,
			Ordering:     i,
			Path:         fmt.Sprintf("1.%d", i+1),
			Title:        sectionTitle(page),
			SemanticType: semSection,
			StartPage:    page.Number,
			EndPage:      page.Number,
			TokenCount:   countTokens(content),
			ChildCount:   len(page.Tables),
			Content:      content,
		}
		totalTokens += section.TokenCount
		nodes = append(nodes, section)

		for ti, table := range page.Tables {
			rendered := chunker.RenderTable(table)
			if strings.TrimSpace(rendered) == "" {
				continue
			}
			node := types.StructureNode{
				ID:           uuid.New(),
				DocID:        docID,
				ParentID:     uuid.NullUUID{UUID: section.ID, Valid: true},
				Level:        2,
				Ordering:     ti,
				Path:         fmt.Sprintf("%s.%d", section.Path, ti+1),
				Title:        chunker.DescribeTable(table),
				SemanticType: semTable,
				StartPage:    page.Number,
				EndPage:      page.Number,
				TokenCount:   countTokens(rendered),
				Content:      rendered,
			}
			totalTokens += node.TokenCount
			nodes = append(nodes, node)
		}
	}

	overview := buildOverview(docID, doc, nodes, totalTokens)
	return nodes, overview
}

// sectionTitle promotes the first short line of the page to a heading,
// or falls back to the page number.
func sectionTitle(page types.Page) string {
	for _, block := range page.TextBlocks {
		line := strings.TrimSpace(strings.SplitN(block, "\n", 2)[0])
		if line != "" {
			if len(line) > titleMaxChars {
				line = line[:titleMaxChars]
			}
			return line
		}
	}
	return fmt.Sprintf("Page %d", page.Number)
}

// buildOverview derives the planning record from a representative page
// sample rather than the whole document, so overview cost stays flat on
// long documents.
func buildOverview(docID uuid.UUID, doc types.StandardizedDocument, nodes []types.StructureNode, totalTokens int) types.DocumentOverview {
	var outline []string
	sections := 0
	for _, n := range nodes {
		if n.Level == 0 {
			continue
		}
		sections++
		outline = append(outline, fmt.Sprintf("%s %s", n.Path, n.Title))
	}

	sampled := chunker.SamplePages(len(doc.Pages))

	complexity := float64(totalTokens) / 50000
	if complexity > 1 {
		complexity = 1
	}

	return types.DocumentOverview{
		DocID:         docID,
		TotalTokens:   totalTokens,
		TotalSections: sections,
		Outline:       outline,
		TopicTags:     topicTags(doc, topicTagCount, sampled),
		Summary:       sampleSummary(doc, sampled),
		Complexity:    complexity,
		PageCount:     len(doc.Pages),
	}
}

// sampleSummary takes the first non-empty text block from the sampled
// pages, in sample order.
func sampleSummary(doc types.StandardizedDocument, pages []int) string {
	for _, p := range pages {
		for _, block := range doc.Pages[p-1].TextBlocks {
			s := strings.TrimSpace(block)
			if s == "" {
				continue
			}
			if len(s) > summaryMaxChars {
				s = s[:summaryMaxChars]
			}
			return s
		}
	}
	return ""
}

// topicTags picks the most frequent longer terms across the sampled
// pages. Crude, but good enough for the planning record.
func topicTags(doc types.StandardizedDocument, n int, pages []int) []string {
	freq := make(map[string]int)
	for _, p := range pages {
		for _, block := range doc.Pages[p-1].TextBlocks {
			for _, t := range search.Tokenize(block) {
				if len(t) >= 4 && !stopwords[t] {
					freq[t]++
				}
			}
		}
	}
	if len(freq) == 0 {
		return nil
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "been": true, "their": true, "which": true, "will": true,
	"would": true, "there": true, "these": true, "than": true, "then": true,
	"them": true, "when": true, "where": true, "what": true, "your": true,
	"into": true, "over": true, "such": true, "each": true, "other": true,
	"more": true, "most": true, "some": true, "only": true, "also": true,
	"about": true, "after": true, "before": true, "between": true,
}
