// Package logging configures structured slog output for amanrag.
//
// Logs are JSON lines written to a size-rotated file under
// ~/.amanrag/logs/, optionally teed to stderr. The MCP server uses
// SetupServerMode, which never writes to stdout or stderr.
package logging
