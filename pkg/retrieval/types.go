package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Source identifies which retrieval signal(s) surfaced an item.
type Source uint8

const (
	// SourceLexical is the full-text ranking.
	SourceLexical Source = 1 << iota
	// SourceSemantic is the vector similarity ranking.
	SourceSemantic

	// SourceBoth marks items surfaced by both rankings.
	SourceBoth = SourceLexical | SourceSemantic
)

// String returns LEXICAL, SEMANTIC or BOTH.
func (s Source) String() string {
	switch s {
	case SourceLexical:
		return "LEXICAL"
	case SourceSemantic:
		return "SEMANTIC"
	case SourceBoth:
		return "BOTH"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "LEXICAL":
		*s = SourceLexical
	case "SEMANTIC":
		*s = SourceSemantic
	case "BOTH":
		*s = SourceBoth
	default:
		return fmt.Errorf("unknown source %q", b)
	}
	return nil
}

// Hit is one entry of a RankedList.
type Hit struct {
	ID    string
	Score float64

	// Text is optional passage text supplied by the backend.
	Text string
	// Terms are the query terms a lexical backend matched, if known.
	Terms []string
}

// RankedList is one source's answer for one query: ordered by descending
// raw score, no duplicate ids.
type RankedList []Hit

// Validate checks the RankedList ordering and uniqueness rules.
func (l RankedList) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for i, h := range l {
		if h.ID == "" {
			return fmt.Errorf("hit %d has empty id", i)
		}
		if math.IsNaN(h.Score) {
			return fmt.Errorf("hit %q has NaN score", h.ID)
		}
		if _, dup := seen[h.ID]; dup {
			return fmt.Errorf("duplicate id %q", h.ID)
		}
		seen[h.ID] = struct{}{}
		if i > 0 && h.Score > l[i-1].Score {
			return fmt.Errorf("hit %q (%g) ranked below a lower score (%g)", h.ID, h.Score, l[i-1].Score)
		}
	}
	return nil
}

// canonical returns a copy ordered by descending score (stable for equal
// scores) without empty ids, NaN scores or repeated ids. The first, best
// occurrence of an id wins.
func (l RankedList) canonical() RankedList {
	out := make(RankedList, 0, len(l))
	for _, h := range l {
		if h.ID == "" || math.IsNaN(h.Score) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	seen := make(map[string]struct{}, len(out))
	n := 0
	for _, h := range out {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out[n] = h
		n++
	}
	return out[:n]
}

// SourceScore is one source's contribution to a fused item.
type SourceScore struct {
	// Rank is the 1-indexed position in the source's ranking.
	Rank       int     `json:"rank"`
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// RetrievedItem is a fused passage with provenance.
type RetrievedItem struct {
	ID string `json:"id"`
	// DocumentID is the parent document of a chunk id (equal to ID for
	// document-level ids).
	DocumentID string       `json:"document_id"`
	Text       string       `json:"text,omitempty"`
	Source     Source       `json:"source"`
	Lexical    *SourceScore `json:"lexical,omitempty"`
	Semantic   *SourceScore `json:"semantic,omitempty"`
	FusedScore float64      `json:"fused_score"`
	Terms      []string     `json:"matched_terms,omitempty"`
}

// SourceFailure records why a source was left out of a degraded result.
type SourceFailure struct {
	Source Source
	Err    error
}

// MarshalJSON renders the error as a string.
func (f SourceFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Source Source `json:"source"`
		Error  string `json:"error"`
	}{f.Source, msg})
}

// Stats describes how a result was produced.
type Stats struct {
	// Limit is the over-fetch limit passed to each source.
	Limit              int           `json:"limit"`
	LexicalCandidates  int           `json:"lexical_candidates"`
	SemanticCandidates int           `json:"semantic_candidates"`
	Strategy           Strategy      `json:"strategy"`
	Weights            Weights       `json:"weights"`
	LexicalLatency     time.Duration `json:"lexical_latency_ns"`
	SemanticLatency    time.Duration `json:"semantic_latency_ns"`
	Elapsed            time.Duration `json:"elapsed_ns"`
}

// Result is the fused, truncated ranking for one Retrieve call.
type Result struct {
	Query string          `json:"query"`
	K     int             `json:"k"`
	Items []RetrievedItem `json:"items"`

	// Degraded is set whenever a source failed and was left out.
	Degraded bool            `json:"degraded"`
	Failures []SourceFailure `json:"failures,omitempty"`
	Stats    Stats           `json:"stats"`
}

// LexicalSearcher ranks passages by full-text relevance.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, limit int) (RankedList, error)
}

// SemanticSearcher ranks passages by similarity to a query embedding.
type SemanticSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int) (RankedList, error)
}

// QueryEmbedder turns a query into a vector. embed.Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageResolver returns the text for passage ids. Unknown ids are
// omitted from the map.
type PassageResolver interface {
	Passages(ctx context.Context, ids []string) (map[string]string, error)
}
