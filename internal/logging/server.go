package logging

import (
	"log/slog"
)

// SetupServerMode installs a file-only default logger for the MCP server.
// Stdout carries JSON-RPC and must never receive log output.
func SetupServerMode(level, path string) (func(), error) {
	if path == "" {
		path = DefaultLogPath()
	}
	cfg := Config{
		Level:     level,
		Format:    "json",
		FilePath:  path,
		MaxSizeMB: 10,
		MaxFiles:  5,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	logger.Info("server logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
