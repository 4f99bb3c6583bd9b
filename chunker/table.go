package chunker

import (
	"fmt"
	"strings"

	"ragcore/types"
)

// RenderTable renders header and rows as a markdown-like grid, the same
// shape the downstream prompt builder expects for table chunks.
func RenderTable(t types.Table) string {
	if len(t.Headers) == 0 && len(t.Rows) == 0 {
		return ""
	}

	var b strings.Builder
	if len(t.Headers) > 0 {
		b.WriteString("| ")
		b.WriteString(strings.Join(t.Headers, " | "))
		b.WriteString(" |\n| ")
		b.WriteString(strings.TrimSuffix(strings.Repeat("--- | ", len(t.Headers)), " "))
		b.WriteString("\n")
	}
	for _, row := range t.Rows {
		b.WriteString("| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |\n")
	}
	return b.String()
}

var tableKinds = []struct {
	label    string
	keywords []string
}{
	{"financial", []string{"revenue", "cost", "price", "amount", "total", "profit", "loss", "budget", "expense", "balance", "usd", "eur"}},
	{"time-series", []string{"date", "year", "month", "quarter", "week", "period", "time", "day"}},
	{"personnel", []string{"name", "employee", "role", "title", "department", "manager", "staff", "contact"}},
	{"inventory", []string{"item", "sku", "quantity", "stock", "product", "unit", "warehouse", "part"}},
	{"procedural", []string{"step", "action", "procedure", "instruction", "task", "phase", "stage"}},
}

// DescribeTable labels a table by matching its header terms against known
// vocabularies, falling back to a dimension-only description.
func DescribeTable(t types.Table) string {
	cols := len(t.Headers)
	if cols == 0 && len(t.Rows) > 0 {
		cols = len(t.Rows[0])
	}
	dims := fmt.Sprintf("%d rows x %d columns", len(t.Rows), cols)

	headerText := strings.ToLower(strings.Join(t.Headers, " "))
	for _, kind := range tableKinds {
		var matched []string
		for _, kw := range kind.keywords {
			if strings.Contains(headerText, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			label := strings.ToUpper(kind.label[:1]) + kind.label[1:]
			return fmt.Sprintf("%s table (%s), %s", label, strings.Join(matched, ", "), dims)
		}
	}
	return fmt.Sprintf("Table, %s", dims)
}
