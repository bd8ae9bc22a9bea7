package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the index in the data directory:
  - document, chunk and vector counts
  - last indexing time
  - storage sizes (documents, lexical index, vectors)
  - the embedding model the index was built with and the configured one`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}
	exists := indexExists(cfg)
	info.EmbedderStatus = embedderStatus(semanticBackend(cfg), info)

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	if err := renderer.Render(info); err != nil {
		return err
	}
	if !exists {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "\nNo index yet. Run 'amanrag index <path>' to create one.")
	}
	return err
}

// embedderStatus judges the embedder without contacting the provider. Only
// the static provider's width is known from configuration alone.
func embedderStatus(backend string, info ui.StatusInfo) string {
	switch {
	case backend == backendNone:
		return "disabled"
	case info.IndexDimensions == 0:
		return "empty"
	case info.EmbedderProvider == string(embed.ProviderStatic) &&
		info.EmbedderDimensions != info.IndexDimensions:
		return "mismatch"
	default:
		return "ready"
	}
}
