package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/mcp"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval to MCP clients",
		Long: `Start an MCP server exposing the retrieve, answer and index_status tools,
the amanrag://documents/{id} resource and query telemetry.

Stdout carries JSON-RPC only; logs go to ~/.amanrag/logs/ or logging.file.
The answer tool is offered when an API key or answer.base_url is set.

Example client configuration:
  {"command": "amanrag", "args": ["serve", "--dir", "/path/to/project"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	if !debugMode {
		cleanup, err := logging.SetupServerMode(cfg.Logging.Level, cfg.Logging.File)
		if err != nil {
			return fmt.Errorf("failed to setup server logging: %w", err)
		}
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, appOptions{metrics: true, readOnly: true})
	if err != nil {
		slog.Error("failed to open index", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.Close() }()

	opts := []mcp.Option{
		mcp.WithDocuments(a.docs),
		mcp.WithMetrics(a.metrics),
		mcp.WithDefaultK(cfg.Retrieval.DefaultK),
		mcp.WithLogger(slog.Default()),
		mcp.WithStatus(func(ctx context.Context) (ui.StatusInfo, error) {
			return collectStatus(ctx, cfg, a)
		}),
	}
	if answerConfigured(cfg) {
		answerer, err := a.newAnswerer()
		if err != nil {
			return err
		}
		opts = append(opts, mcp.WithAnswerer(answerer))
	} else {
		slog.Info("answer tool disabled: no API key or answer.base_url configured")
	}

	srv, err := mcp.NewServer(a.retriever, a.retrieval, opts...)
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// answerConfigured reports whether a chat endpoint can be reached.
func answerConfigured(cfg *config.Config) bool {
	return cfg.Embeddings.APIKey != "" || cfg.Answer.BaseURL != ""
}
