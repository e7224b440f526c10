// Package cli provides output helpers for the docqa command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/pkg/utils"
)

// OutputFormat is the format for answer output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes answer to w in the given format.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	default:
		writeAnswerText(w, answer)
		return nil
	}
}

func writeAnswerText(w io.Writer, answer *models.Answer) {
	fmt.Fprintf(w, "\nQ: %s\n\n", answer.Query)
	fmt.Fprintf(w, "%s\n", answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(answer.Sources))
	for _, src := range answer.Sources {
		writeOneSource(w, src)
	}
}

func writeOneSource(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%d] Page %d | Score: %.4f\n", result.Rank, result.Chunk.Page, result.Score)
	fmt.Fprintf(w, "%s\n", utils.Truncate(oneLine(result.Chunk.Content), 200))
}

// oneLine collapses runs of whitespace so a chunk prints on a single line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// BuildQuestion joins args into a single question. Blank args yield "".
func BuildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
