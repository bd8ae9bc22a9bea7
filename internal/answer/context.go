// Package answer turns a retrieval result into an LLM answer: it packs the
// retrieved passages into a bounded context, builds the prompt for the
// requested answer style and calls the generator.
package answer

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// DefaultMaxContextWords is the context budget, counted in words.
const DefaultMaxContextWords = 7000

// Packed is the context handed to the model.
type Packed struct {
	Text string
	// Used is how many items contributed text.
	Used int
	// Words is the number of passage words included.
	Words int
	// Truncated is set when the last included passage was cut short.
	Truncated bool
}

// PackContext concatenates item texts in rank order until maxWords passage
// words are used. The passage that crosses the budget is cut at it and
// the rest are dropped. Items without text are skipped. A non-positive
// budget uses DefaultMaxContextWords.
//
// Each passage is headed by its number and its document's title and
// source URL from refs, or the document id when refs has no entry.
func PackContext(items []retrieval.RetrievedItem, refs map[string]store.DocumentRef, maxWords int) Packed {
	if maxWords <= 0 {
		maxWords = DefaultMaxContextWords
	}

	var b strings.Builder
	var p Packed
	for _, item := range items {
		words := strings.Fields(item.Text)
		if len(words) == 0 {
			continue
		}
		remaining := maxWords - p.Words
		if remaining <= 0 {
			break
		}
		if len(words) > remaining {
			words = words[:remaining]
			p.Truncated = true
		}

		p.Used++
		p.Words += len(words)
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", p.Used, sourceLabel(item.DocumentID, refs[item.DocumentID]), strings.Join(words, " "))
		if p.Truncated {
			break
		}
	}
	p.Text = b.String()
	return p
}

func sourceLabel(documentID string, ref store.DocumentRef) string {
	switch {
	case ref.Title != "" && ref.SourceURL != "":
		return fmt.Sprintf("%s (%s)", ref.Title, ref.SourceURL)
	case ref.Title != "":
		return ref.Title
	case ref.SourceURL != "":
		return "(" + ref.SourceURL + ")"
	}
	return "(" + documentID + ")"
}
