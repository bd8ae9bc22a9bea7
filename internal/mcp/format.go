package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// maxSnippetRunes bounds passage text in markdown output.
const maxSnippetRunes = 600

// FormatRetrieval renders a retrieval result as markdown.
func FormatRetrieval(res *retrieval.Result) string {
	if res == nil || len(res.Items) == 0 {
		q := ""
		if res != nil {
			q = res.Query
		}
		return fmt.Sprintf("No passages found for \"%s\"", q)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for \"%s\"\n\n", res.Query)
	fmt.Fprintf(&sb, "Found %d result", len(res.Items))
	if len(res.Items) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	if res.Degraded {
		sources := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			sources = append(sources, strings.ToLower(f.Source.String()))
		}
		fmt.Fprintf(&sb, "> Degraded: %s search was unavailable.\n\n", strings.Join(sources, " and "))
	}

	for i, item := range res.Items {
		fmt.Fprintf(&sb, "### %d. %s (score: %.3f, %s)\n", i+1, item.ID, item.FusedScore, item.Source)
		fmt.Fprintf(&sb, "_%s_\n\n", matchReason(item))
		if item.Text != "" {
			sb.WriteString(snippet(item.Text))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// FormatAnswer renders an answer and its citations as markdown.
func FormatAnswer(a *answer.Answer) string {
	var sb strings.Builder
	sb.WriteString(a.Text)
	sb.WriteString("\n")
	if a.Degraded {
		sb.WriteString("\n> Context came from one retrieval signal only.\n")
	}
	if len(a.Citations) > 0 {
		sb.WriteString("\n**Sources:**\n")
		for i, c := range a.Citations {
			fmt.Fprintf(&sb, "- [%d] %s (%s, %.3f)", i+1, c.ID, c.Source, c.Score)
			if label := c.Label(); label != "" {
				sb.WriteString(" " + label)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// matchReason explains why an item ranked.
func matchReason(item retrieval.RetrievedItem) string {
	var parts []string
	if item.Lexical != nil {
		parts = append(parts, fmt.Sprintf("full-text rank %d", item.Lexical.Rank))
	}
	if item.Semantic != nil {
		parts = append(parts, fmt.Sprintf("semantic rank %d", item.Semantic.Rank))
	}
	if len(item.Terms) > 0 {
		terms := item.Terms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, "matched: "+strings.Join(terms, ", "))
	}
	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

func snippet(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= maxSnippetRunes {
		return string(r)
	}
	return string(r[:maxSnippetRunes]) + "..."
}

// clampK ensures k is within bounds.
func clampK(k, defaultVal, max int) int {
	if k <= 0 {
		return defaultVal
	}
	if k > max {
		return max
	}
	return k
}
