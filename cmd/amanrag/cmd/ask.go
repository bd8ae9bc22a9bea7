package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/output"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	promptType string
	jsonOutput bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from retrieved context",
		Long: `Retrieve passages for a question, pack them into a context window and
ask the configured chat model for an answer with citations.

Prompt types:
  trends       patterns and changes across the corpus
  summary      a concise summary of what the passages say
  explanation  a step-by-step explanation

Examples:
  amanrag ask "How have supplier lead times changed?"
  amanrag ask "What is kanban?" --type explanation
  amanrag ask "Summarize recent quality audits" --type summary --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.promptType, "type", "t", "", "Prompt type: trends, summary, explanation (default: answer.prompt_type)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the answer as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw := opts.promptType
	if raw == "" {
		raw = cfg.Answer.PromptType
	}
	pt, err := answer.ParsePromptType(raw)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, appOptions{metrics: true, requireIndex: true, readOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	answerer, err := a.newAnswerer()
	if err != nil {
		return err
	}
	ans, err := answerer.Ask(ctx, question, pt)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(ans)
	}
	out.Answer(ans)
	return nil
}
