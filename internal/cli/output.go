// Package cli provides CLI output helpers for Kensaku.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kensaku/internal/fusion"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteContext writes a retrieval bundle to w in the given format.
func WriteContext(w io.Writer, bundle *fusion.Context, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}
	if len(bundle.Sources) == 0 {
		fmt.Fprintln(w, "No relevant documents found.")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d sources\n\n", len(bundle.Sources))
	for i, src := range bundle.Sources {
		fmt.Fprintf(w, "%2d. %s (%.4f)", i+1, src.Name, src.Score)
		if src.URL != "" {
			fmt.Fprintf(w, "  %s", src.URL)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("─", 57))
	fmt.Fprintln(w, bundle.Text)
	return nil
}

// WriteResults writes raw similarity results to w in the given format.
func WriteResults(w io.Writer, collection string, results []search.Result, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Fprintf(w, "\n%d hits in %s\n\n", len(results), collection)
	for i, r := range results {
		fmt.Fprintf(w, "%2d. position %-8d similarity %.4f\n", i+1, r.ID, r.Similarity)
	}
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
