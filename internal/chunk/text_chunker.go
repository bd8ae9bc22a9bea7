package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// Options configures a TextChunker.
type Options struct {
	// ChunkWords is the window size (default DefaultChunkWords).
	ChunkWords int
	// OverlapWords is how many words consecutive windows share
	// (default DefaultOverlapWords). Must be smaller than ChunkWords.
	OverlapWords int
}

// TextChunker splits prose into fixed-size overlapping word windows.
// Markdown front matter is dropped before splitting.
type TextChunker struct {
	opts Options
}

var (
	// headerPattern matches ATX headings: "# Title", "## Title", ...
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*#*\s*$`)

	// frontmatterPattern matches a leading "---" YAML block.
	frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.+?)\r?\n---\r?\n*`)
)

// NewTextChunker creates a chunker. Zero values take the defaults.
func NewTextChunker(opts Options) (*TextChunker, error) {
	if opts.ChunkWords == 0 {
		opts.ChunkWords = DefaultChunkWords
	}
	if opts.OverlapWords == 0 && opts.ChunkWords > DefaultOverlapWords {
		opts.OverlapWords = DefaultOverlapWords
	}
	if opts.ChunkWords < MinChunkWords {
		return nil, fmt.Errorf("chunk size must be at least %d words, got %d", MinChunkWords, opts.ChunkWords)
	}
	if opts.OverlapWords < 0 || opts.OverlapWords >= opts.ChunkWords {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", opts.ChunkWords, opts.OverlapWords)
	}
	return &TextChunker{opts: opts}, nil
}

// Options returns the effective window settings.
func (c *TextChunker) Options() Options {
	return c.opts
}

// Chunk splits doc into windows. Blank documents produce no chunks. The
// last window is never shorter than the overlap unless the document is.
func (c *TextChunker) Chunk(ctx context.Context, doc *Input) ([]*Chunk, error) {
	if doc.DocumentID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	words := strings.Fields(StripFrontmatter(doc.Content))
	if len(words) == 0 {
		return nil, nil
	}

	step := c.opts.ChunkWords - c.opts.OverlapWords
	chunks := make([]*Chunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.opts.ChunkWords, len(words))
		n := len(chunks)
		chunks = append(chunks, &Chunk{
			ID:         retrieval.ChunkID(doc.DocumentID, n),
			DocumentID: doc.DocumentID,
			Ordinal:    n,
			Content:    strings.Join(words[start:end], " "),
			StartWord:  start,
			EndWord:    end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// StripFrontmatter removes a leading YAML front matter block.
func StripFrontmatter(content string) string {
	if m := frontmatterPattern.FindStringIndex(content); m != nil {
		return content[m[1]:]
	}
	return content
}

// Title returns the text of the first markdown heading, or "".
func Title(content string) string {
	m := headerPattern.FindStringSubmatch(StripFrontmatter(content))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[2])
}
