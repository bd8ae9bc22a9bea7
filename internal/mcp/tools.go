package mcp

import (
	"time"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// Tool names.
const (
	ToolRetrieve    = "retrieve"
	ToolAnswer      = "answer"
	ToolIndexStatus = "index_status"
)

// Tool descriptions shared by registration and ListTools.
var toolDescriptions = map[string]string{
	ToolRetrieve: "Hybrid retrieval over the indexed corpus. Runs full-text and semantic search, " +
		"fuses both rankings and returns the top passages with per-source ranks and scores. " +
		"Results are marked degraded when one source was unavailable.",
	ToolAnswer: "Answers a question from the indexed corpus. Retrieves context, " +
		"then asks the configured model for trends, a summary or an explanation with citations.",
	ToolIndexStatus: "Reports document, chunk and vector counts, the backends in use, " +
		"and which embedding model the index was built with.",
}

// RetrieveInput defines the input schema for the retrieve tool.
type RetrieveInput struct {
	Query          string   `json:"query" jsonschema:"the question or keywords to retrieve passages for"`
	K              int      `json:"k,omitempty" jsonschema:"number of fused results, default 10"`
	Normalization  string   `json:"normalization,omitempty" jsonschema:"score normalization: minmax or reciprocal_rank"`
	LexicalWeight  *float64 `json:"lexical_weight,omitempty" jsonschema:"weight of the full-text ranking"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" jsonschema:"weight of the semantic ranking"`
	Granularity    string   `json:"granularity,omitempty" jsonschema:"chunk or document"`
}

// RetrieveOutput defines the output schema for the retrieve tool.
type RetrieveOutput struct {
	Query    string       `json:"query"`
	K        int          `json:"k"`
	Degraded bool         `json:"degraded"`
	Failures []string     `json:"failures,omitempty" jsonschema:"sources left out of a degraded result"`
	Results  []ItemOutput `json:"results"`
}

// ItemOutput is one fused passage.
type ItemOutput struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"document_id"`
	Text         string   `json:"text,omitempty"`
	Source       string   `json:"source" jsonschema:"LEXICAL, SEMANTIC or BOTH"`
	Score        float64  `json:"score"`
	LexicalRank  int      `json:"lexical_rank,omitempty"`
	SemanticRank int      `json:"semantic_rank,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	MatchReason  string   `json:"match_reason"`
}

// AnswerInput defines the input schema for the answer tool.
type AnswerInput struct {
	Query      string `json:"query" jsonschema:"the question to answer"`
	PromptType string `json:"prompt_type,omitempty" jsonschema:"trends, summary or explanation"`
}

// AnswerOutput defines the output schema for the answer tool.
type AnswerOutput struct {
	Answer       string           `json:"answer"`
	PromptType   string           `json:"prompt_type"`
	Degraded     bool             `json:"degraded"`
	ContextWords int              `json:"context_words"`
	Truncated    bool             `json:"truncated,omitempty"`
	Citations    []CitationOutput `json:"citations"`
}

// CitationOutput is a passage placed in the answer's context.
type CitationOutput struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	SourceURL  string  `json:"source_url,omitempty"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index   IndexInfo   `json:"index"`
	Queries *QueryStats `json:"queries,omitempty" jsonschema:"query telemetry since the server started"`
}

// IndexInfo describes the data directory.
type IndexInfo struct {
	DataDir            string `json:"data_dir"`
	Documents          int    `json:"documents"`
	Chunks             int    `json:"chunks"`
	Vectors            int    `json:"vectors"`
	LastIndexed        string `json:"last_indexed,omitempty"`
	LexicalBackend     string `json:"lexical_backend"`
	SemanticBackend    string `json:"semantic_backend"`
	EmbedderProvider   string `json:"embedder_provider"`
	EmbedderModel      string `json:"embedder_model,omitempty"`
	EmbedderDimensions int    `json:"embedder_dimensions"`
	IndexModel         string `json:"index_model,omitempty" jsonschema:"model the stored vectors were built with"`
	IndexDimensions    int    `json:"index_dimensions,omitempty"`
	EmbedderStatus     string `json:"embedder_status" jsonschema:"ready, offline or mismatch"`
	TotalSizeBytes     int64  `json:"total_size_bytes"`
}

// QueryStats summarizes query telemetry.
type QueryStats struct {
	TotalQueries      int64                 `json:"total_queries"`
	Outcomes          map[string]int64      `json:"outcomes"`
	DegradedPct       float64               `json:"degraded_pct"`
	ZeroResultPct     float64               `json:"zero_result_pct"`
	ZeroResultQueries []string              `json:"zero_result_queries,omitempty"`
	TopTerms          []telemetry.TermCount `json:"top_terms,omitempty"`
	Latency           map[string]int64      `json:"latency_distribution"`
	Since             string                `json:"since"`
}

func toIndexInfo(info ui.StatusInfo) IndexInfo {
	out := IndexInfo{
		DataDir:            info.DataDir,
		Documents:          info.Documents,
		Chunks:             info.Chunks,
		Vectors:            info.Vectors,
		LexicalBackend:     info.LexicalBackend,
		SemanticBackend:    info.SemanticBackend,
		EmbedderProvider:   info.EmbedderProvider,
		EmbedderModel:      info.EmbedderModel,
		EmbedderDimensions: info.EmbedderDimensions,
		IndexModel:         info.IndexModel,
		IndexDimensions:    info.IndexDimensions,
		EmbedderStatus:     info.EmbedderStatus,
		TotalSizeBytes:     info.TotalSize,
	}
	if !info.LastIndexed.IsZero() {
		out.LastIndexed = info.LastIndexed.Format(time.RFC3339)
	}
	return out
}

func toQueryStats(s *telemetry.Snapshot) *QueryStats {
	out := &QueryStats{
		TotalQueries:      s.TotalQueries,
		Outcomes:          make(map[string]int64, len(s.Outcomes)),
		DegradedPct:       s.DegradedPercentage(),
		ZeroResultPct:     s.ZeroResultPercentage(),
		ZeroResultQueries: s.ZeroResultQueries,
		TopTerms:          s.TopTerms,
		Latency:           make(map[string]int64, len(s.LatencyDistribution)),
		Since:             s.Since.Format(time.RFC3339),
	}
	for k, v := range s.Outcomes {
		out.Outcomes[string(k)] = v
	}
	for k, v := range s.LatencyDistribution {
		out.Latency[string(k)] = v
	}
	return out
}

func toAnswerOutput(a *answer.Answer) *AnswerOutput {
	out := &AnswerOutput{
		Answer:       a.Text,
		PromptType:   string(a.PromptType),
		Degraded:     a.Degraded,
		ContextWords: a.ContextWords,
		Truncated:    a.Truncated,
		Citations:    make([]CitationOutput, 0, len(a.Citations)),
	}
	for _, c := range a.Citations {
		out.Citations = append(out.Citations, CitationOutput{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			SourceURL:  c.SourceURL,
			Source:     c.Source.String(),
			Score:      c.Score,
		})
	}
	return out
}

func toRetrieveOutput(res *retrieval.Result) RetrieveOutput {
	out := RetrieveOutput{
		Query:    res.Query,
		K:        res.K,
		Degraded: res.Degraded,
		Results:  make([]ItemOutput, 0, len(res.Items)),
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Source.String())
	}
	for _, item := range res.Items {
		o := ItemOutput{
			ID:           item.ID,
			DocumentID:   item.DocumentID,
			Text:         item.Text,
			Source:       item.Source.String(),
			Score:        item.FusedScore,
			MatchedTerms: item.Terms,
			MatchReason:  matchReason(item),
		}
		if item.Lexical != nil {
			o.LexicalRank = item.Lexical.Rank
		}
		if item.Semantic != nil {
			o.SemanticRank = item.Semantic.Rank
		}
		out.Results = append(out.Results, o)
	}
	return out
}
