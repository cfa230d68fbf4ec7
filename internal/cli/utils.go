// Package cli provides output helpers for the ofn command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
	"github.com/hyperjump/ofn/internal/search"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one tab-separated line per match.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", models.Errorf(models.KindValidation, "output format", "unknown format %q; use text, compact or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, m := range response.Matches {
			if _, err := fmt.Fprintf(w, "%s\t%.6f\t%s\n", response.Query, m.Distance, m.Image.Filename); err != nil {
				return err
			}
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\n%s: %d matches from %d candidates in %dms\n",
		response.Query, len(response.Matches), response.Candidates, response.QueryTime)
	if response.Truncated {
		fmt.Fprintln(w, "(search truncated; raise --max-candidates or --timeout for a complete result)")
	}
	if response.Skipped > 0 {
		fmt.Fprintf(w, "(%d candidates skipped; see log)\n", response.Skipped)
	}
	fmt.Fprintln(w)
	for _, m := range response.Matches {
		fmt.Fprintf(w, "%3d. %.4f  %-12s %s\n", m.Rank, m.Distance, Similarity(m.Distance), m.Image.Filename)
		fmt.Fprintf(w, "     image %d  signature %d  shared words %d\n", m.Image.ID, m.SignatureID, m.SharedWords)
	}
}

// Similarity labels a distance with libpuzzle's similarity bands.
func Similarity(distance float64) string {
	switch {
	case distance < puzzle.SimilarityLowerThreshold:
		return "identical"
	case distance < puzzle.SimilarityLowThreshold:
		return "very similar"
	case distance < puzzle.SimilarityThreshold:
		return "similar"
	case distance < puzzle.SimilarityHighThreshold:
		return "maybe"
	default:
		return "different"
	}
}

// Status is what the status command reports about an index.
type Status struct {
	DatabasePath   string        `json:"database_path"`
	Driver         string        `json:"driver"`
	WordCount      int           `json:"word_count"`
	WordLength     int           `json:"word_length"`
	Stats          *search.Stats `json:"stats"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
}

// WriteStatus writes an index status report to w. Compact is treated as text.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	if status.Stats != nil {
		fmt.Fprintf(w, "images:            %d   # committed image files\n", status.Stats.Images)
		fmt.Fprintf(w, "signatures:        %d   # stored compressed signatures\n", status.Stats.Signatures)
		fmt.Fprintf(w, "words:             %d   # indexed signature words\n", status.Stats.Words)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:  %d   # database, WAL and shared memory files\n", *status.DiskUsageBytes)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "database_path:     %s\n", status.DatabasePath)
	fmt.Fprintf(w, "driver:            %s\n", status.Driver)
	fmt.Fprintf(w, "word_count:        %d\n", status.WordCount)
	fmt.Fprintf(w, "word_length:       %d\n", status.WordLength)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
