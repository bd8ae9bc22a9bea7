package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// NoContextAnswer is returned without calling the model when retrieval
// finds nothing.
const NoContextAnswer = "No relevant context was found in the corpus for this question."

// Retriever is the part of retrieval.Retriever the answerer needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, cfg retrieval.Config) (*retrieval.Result, error)
}

// DocumentResolver looks up titles and source URLs for document ids.
// *store.DocumentStore implements it.
type DocumentResolver interface {
	DocumentRefs(ctx context.Context, ids []string) (map[string]store.DocumentRef, error)
}

// Citation points at a passage that was placed in the context.
type Citation struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Title      string           `json:"title,omitempty"`
	SourceURL  string           `json:"source_url,omitempty"`
	Source     retrieval.Source `json:"source"`
	Score      float64          `json:"score"`
}

// Label names the cited document as "title <url>", or "" when neither is
// known.
func (c Citation) Label() string {
	switch {
	case c.Title != "" && c.SourceURL != "":
		return c.Title + " <" + c.SourceURL + ">"
	case c.SourceURL != "":
		return "<" + c.SourceURL + ">"
	}
	return c.Title
}

// Answer is a generated answer with its provenance.
type Answer struct {
	Text         string     `json:"answer"`
	PromptType   PromptType `json:"prompt_type"`
	Citations    []Citation `json:"citations"`
	Degraded     bool       `json:"degraded"`
	ContextWords int        `json:"context_words"`
	Truncated    bool       `json:"truncated,omitempty"`
}

// Options tunes an Answerer.
type Options struct {
	// K is how many fused items are retrieved.
	K int
	// MaxContextWords bounds the packed context.
	MaxContextWords int
	// Domain is named in the prompts.
	Domain string
	// Retrieval is passed to every Retrieve call.
	Retrieval retrieval.Config
	// Documents names cited documents. Without it citations carry ids only.
	Documents DocumentResolver
	Logger    *slog.Logger
}

// Answerer retrieves context and generates answers.
type Answerer struct {
	retriever Retriever
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// NewAnswerer creates an answerer. Zero options use the defaults.
func NewAnswerer(r Retriever, g Generator, opts Options) (*Answerer, error) {
	if r == nil || g == nil {
		return nil, errors.New("retriever and generator are required")
	}
	if opts.K <= 0 {
		opts.K = 10
	}
	if opts.MaxContextWords <= 0 {
		opts.MaxContextWords = DefaultMaxContextWords
	}
	if opts.Retrieval == (retrieval.Config{}) {
		opts.Retrieval = retrieval.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Answerer{retriever: r, generator: g, opts: opts, logger: opts.Logger}, nil
}

// Ask answers query in the style of t. Retrieval errors are returned
// unchanged; a degraded result still produces an answer.
func (a *Answerer) Ask(ctx context.Context, query string, t PromptType) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, amerrors.New(amerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if _, err := ParsePromptType(string(t)); err != nil {
		return nil, err
	}

	res, err := a.retriever.Retrieve(ctx, query, a.opts.K, a.opts.Retrieval)
	if err != nil {
		return nil, err
	}

	refs := a.documentRefs(ctx, res.Items)
	packed := PackContext(res.Items, refs, a.opts.MaxContextWords)
	ans := &Answer{
		PromptType:   t,
		Degraded:     res.Degraded,
		ContextWords: packed.Words,
		Truncated:    packed.Truncated,
	}
	for _, item := range res.Items {
		if len(ans.Citations) == packed.Used {
			break
		}
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		ref := refs[item.DocumentID]
		ans.Citations = append(ans.Citations, Citation{
			ID:         item.ID,
			DocumentID: item.DocumentID,
			Title:      ref.Title,
			SourceURL:  ref.SourceURL,
			Source:     item.Source,
			Score:      item.FusedScore,
		})
	}
	if packed.Used == 0 {
		ans.Text = NoContextAnswer
		return ans, nil
	}

	prompt, err := BuildPrompt(t, a.opts.Domain, query, packed.Text, res.Degraded)
	if err != nil {
		return nil, err
	}
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	ans.Text = text

	a.logger.Debug("answered",
		slog.String("prompt_type", string(t)),
		slog.Int("passages", packed.Used),
		slog.Int("context_words", packed.Words),
		slog.Bool("degraded", res.Degraded))
	return ans, nil
}

// documentRefs resolves the documents behind items. A lookup failure only
// costs the citations their titles, so it is logged and not returned.
func (a *Answerer) documentRefs(ctx context.Context, items []retrieval.RetrievedItem) map[string]store.DocumentRef {
	if a.opts.Documents == nil || len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	var ids []string
	for _, it := range items {
		if _, ok := seen[it.DocumentID]; ok || it.DocumentID == "" {
			continue
		}
		seen[it.DocumentID] = struct{}{}
		ids = append(ids, it.DocumentID)
	}
	refs, err := a.opts.Documents.DocumentRefs(ctx, ids)
	if err != nil {
		a.logger.Warn("failed to resolve cited documents", slog.String("error", err.Error()))
		return nil
	}
	return refs
}
