package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForUser renders err for the terminal. An AmanError shows its
// message, suggestion and code; with debug it also shows the cause and
// details. Other errors print as they are.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}
	ae, ok := As(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", ae.Suggestion)
	}
	if debug {
		if ae.Cause != nil {
			fmt.Fprintf(&sb, "\nCause: %v\n", ae.Cause)
		}
		for _, k := range sortedKeys(ae.Details) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, ae.Details[k])
		}
	}
	fmt.Fprintf(&sb, "\n[%s]", ae.Code)
	return sb.String()
}

// LogAttrs describes err as slog attributes. Plain errors yield a single
// "error" attribute; an AmanError adds its classification and details,
// the latter prefixed with "detail_".
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	ae, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", ae.Code),
		slog.String("message", ae.Message),
		slog.String("category", string(ae.Category)),
		slog.String("severity", string(ae.Severity)),
		slog.Bool("retryable", ae.Retryable),
	}
	if ae.Cause != nil {
		attrs = append(attrs, slog.String("cause", ae.Cause.Error()))
	}
	if ae.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", ae.Suggestion))
	}
	for _, k := range sortedKeys(ae.Details) {
		attrs = append(attrs, slog.String("detail_"+k, ae.Details[k]))
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
