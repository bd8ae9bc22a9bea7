package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k              int
	format         string // "text", "json"
	explain        bool
	normalization  string
	lexicalWeight  float64
	semanticWeight float64
	granularity    string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve passages for a query",
		Long: `Retrieve the top-k passages for a query by fusing lexical (BM25) and
semantic (embedding) rankings.

If one source fails the results come from the other and are marked
degraded.

Examples:
  amanrag search "supplier lead time"
  amanrag search "quality audit findings" -k 5 --explain
  amanrag search "inventory turnover" --normalization rr
  amanrag search "demand forecast" --lexical-weight 1 --semantic-weight 0
  amanrag search "capacity planning" --granularity document --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of results (default: retrieval.default_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-source ranks and scores")
	cmd.Flags().StringVar(&opts.normalization, "normalization", "", "Score normalization: minmax, reciprocal_rank")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0, "Weight of the lexical ranking")
	cmd.Flags().Float64Var(&opts.semanticWeight, "semantic-weight", 0, "Weight of the semantic ranking")
	cmd.Flags().StringVar(&opts.granularity, "granularity", "", "Result unit: chunk, document")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return amerrors.ValidationError(fmt.Sprintf("unknown format %q (valid: text, json)", opts.format), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc, err := cfg.RetrievalOptions()
	if err != nil {
		return err
	}
	rc, err = applyRetrievalFlags(cmd, rc, opts)
	if err != nil {
		return err
	}

	k := opts.k
	if k <= 0 {
		k = cfg.Retrieval.DefaultK
	}

	a, err := openApp(ctx, cfg, appOptions{metrics: true, requireIndex: true, readOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Debug("search_started", slog.String("query", query), slog.Int("k", k))
	res, err := a.retriever.Retrieve(ctx, query, k, rc)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(res)
	}
	out.Results(res, opts.explain)
	return nil
}

// applyRetrievalFlags overrides rc with the flags the user set. Weights
// are only replaced when given, so an explicit zero is honoured.
func applyRetrievalFlags(cmd *cobra.Command, rc retrieval.Config, opts searchOptions) (retrieval.Config, error) {
	if opts.normalization != "" {
		s, err := retrieval.ParseStrategy(opts.normalization)
		if err != nil {
			return rc, err
		}
		rc.Normalization = s
		rc.LexicalNormalization = ""
		rc.SemanticNormalization = ""
	}
	if cmd.Flags().Changed("lexical-weight") {
		rc.LexicalWeight = opts.lexicalWeight
	}
	if cmd.Flags().Changed("semantic-weight") {
		rc.SemanticWeight = opts.semanticWeight
	}
	if opts.granularity != "" {
		rc.Granularity = retrieval.Granularity(opts.granularity)
	}
	if err := rc.Validate(); err != nil {
		return rc, err
	}
	return rc, nil
}
