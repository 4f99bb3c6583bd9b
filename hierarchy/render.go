package hierarchy

import (
	"fmt"
	"strings"

	"ragcore/types"
)

// RenderCombinedContent builds the deterministic text block handed to
// downstream prompt assembly: overview first, then the keyword preview,
// then every section prefixed with its page span, type and path.
func RenderCombinedContent(overview *types.DocumentOverview, previews []string, sections []types.SectionWithCost) string {
	var b strings.Builder

	if overview != nil {
		b.WriteString("=== Document Overview ===\n")
		if overview.Summary != "" {
			b.WriteString(overview.Summary)
			b.WriteString("\n")
		}
		if len(overview.TopicTags) > 0 {
			b.WriteString("Topics: ")
			b.WriteString(strings.Join(overview.TopicTags, ", "))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Sections: %d, Tokens: %d, Pages: %d\n\n",
			overview.TotalSections, overview.TotalTokens, overview.PageCount)
	}

	if len(previews) > 0 {
		b.WriteString("=== Keyword Preview ===\n")
		for _, p := range previews {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, s := range sections {
		fmt.Fprintf(&b, "[Page %d-%d | %s | %s] %s\n",
			s.StartPage, s.EndPage, s.SemanticType, s.Path, s.Title)
		if s.Content != "" {
			b.WriteString(s.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
