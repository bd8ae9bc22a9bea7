// Package output formats CLI results and status lines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("❌", msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints a ranked retrieval result. With explain set, each item
// shows its per-source rank and normalized score.
func (w *Writer) Results(res *retrieval.Result, explain bool) {
	if res.Degraded {
		for _, f := range res.Failures {
			w.Warningf("%s search unavailable: %v", strings.ToLower(f.Source.String()), f.Err)
		}
	}
	if len(res.Items) == 0 {
		w.Statusf("🔍", "No results for %q", res.Query)
		return
	}

	for i, item := range res.Items {
		_, _ = fmt.Fprintf(w.out, "%2d. %-8s %.4f  %s\n", i+1, item.Source, item.FusedScore, item.ID)
		if explain {
			if item.Lexical != nil {
				_, _ = fmt.Fprintf(w.out, "      lexical  rank %-4d raw %.4f norm %.4f\n",
					item.Lexical.Rank, item.Lexical.Raw, item.Lexical.Normalized)
			}
			if item.Semantic != nil {
				_, _ = fmt.Fprintf(w.out, "      semantic rank %-4d raw %.4f norm %.4f\n",
					item.Semantic.Rank, item.Semantic.Raw, item.Semantic.Normalized)
			}
		}
		if item.Text != "" {
			w.indent(preview(item.Text, 240))
		}
	}
	w.Newline()
	w.Statusf("", "%d results in %s (limit %d, %s)",
		len(res.Items), res.Stats.Elapsed.Round(time.Microsecond), res.Stats.Limit, res.Stats.Strategy)
}

// Answer prints a generated answer followed by its citations.
func (w *Writer) Answer(a *answer.Answer) {
	if a.Degraded {
		w.Warning("context came from one retrieval signal only")
	}
	_, _ = fmt.Fprintln(w.out, a.Text)
	if len(a.Citations) == 0 {
		return
	}
	w.Newline()
	_, _ = fmt.Fprintln(w.out, "Sources:")
	for i, c := range a.Citations {
		_, _ = fmt.Fprintf(w.out, "  [%d] %s (%s, %.3f)", i+1, c.ID, c.Source, c.Score)
		if label := c.Label(); label != "" {
			_, _ = fmt.Fprintf(w.out, " %s", label)
		}
		_, _ = fmt.Fprintln(w.out)
	}
	if a.Truncated {
		w.Statusf("", "context truncated at %d words", a.ContextWords)
	}
}

func (w *Writer) indent(text string) {
	for _, line := range strings.Split(text, "\n") {
		_, _ = fmt.Fprintf(w.out, "      %s\n", line)
	}
}

// preview collapses whitespace and cuts text to max runes.
func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}
