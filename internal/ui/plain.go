package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for pipes and CI logs.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

func (r *PlainRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress prints "[TAG] n/total - what" or "[TAG] what". Events
// with nothing to say are dropped.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	what := event.Message
	if what == "" {
		what = event.Document
	}
	switch {
	case event.Total > 0:
		r.printf("[%s] %d/%d - %s\n", event.Stage.Tag(), event.Current, event.Total, what)
	case what != "":
		r.printf("[%s] %s\n", event.Stage.Tag(), what)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	level := "ERROR"
	if event.IsWarn {
		level = "WARN"
	}
	if event.Document == "" {
		r.printf("%s: %v\n", level, event.Err)
		return
	}
	r.printf("%s: %s: %v\n", level, event.Document, event.Err)
}

// Complete prints the summary, the per-stage timings when known, and the
// embedder used.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	var b strings.Builder
	fmt.Fprintf(&b, "Complete: %d documents, %d chunks indexed in %s",
		stats.Documents, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Removed > 0 {
		fmt.Fprintf(&b, ", %d stale chunks removed", stats.Removed)
	}
	if stats.Errors+stats.Warnings > 0 {
		fmt.Fprintf(&b, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	b.WriteString("\n")

	st := stats.Stages
	if st.Load > 0 || st.Embed > 0 {
		ms := func(d time.Duration) time.Duration { return d.Round(time.Millisecond) }
		b.WriteString("\nStages:\n")
		fmt.Fprintf(&b, "  load   %s\n", ms(st.Load))
		fmt.Fprintf(&b, "  chunk  %s\n", ms(st.Chunk))
		if st.Embed > 0 && stats.Chunks > 0 {
			fmt.Fprintf(&b, "  embed  %s (%.1f chunks/s)\n", ms(st.Embed), float64(stats.Chunks)/st.Embed.Seconds())
		}
		fmt.Fprintf(&b, "  index  %s\n", ms(st.Index))
	}

	if e := stats.Embedder; e.Backend != "" {
		fmt.Fprintf(&b, "\nEmbedder: %s (%s, %d dims)\n", e.Backend, e.Model, e.Dimensions)
	}
	r.printf("%s", b.String())
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }
