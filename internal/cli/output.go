// Package cli renders analysis results, lineage history, and clause hits for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/clausewise/internal/keyword"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/pipeline"
	"github.com/hyperjump/clausewise/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteOutcome writes the result of processing one document.
func WriteOutcome(w io.Writer, out *pipeline.Outcome, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "Document: %s", out.Document.ID)
	if out.Document.Title != "" {
		fmt.Fprintf(w, " (%s)", out.Document.Title)
	}
	fmt.Fprintln(w)
	if out.Reused {
		fmt.Fprintln(w, "Unchanged since last run, showing stored analysis.")
	} else {
		fmt.Fprintf(w, "Chunks: %d\n", out.Chunks)
	}
	if out.Version != nil {
		writeVersionLine(w, out.Version)
	}
	if out.Analysis != nil {
		writeAnalysisText(w, out.Analysis)
	}
	return nil
}

// WriteAnalysis writes one analysis result.
func WriteAnalysis(w io.Writer, a *models.AnalysisResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	writeAnalysisText(w, a)
	return nil
}

func writeVersionLine(w io.Writer, v *models.DocumentVersion) {
	fmt.Fprintf(w, "Lineage: %s  version %d", v.LineageID, v.VersionNumber)
	if v.SimilarityToPrevious != nil {
		fmt.Fprintf(w, "  (similarity %.3f)", *v.SimilarityToPrevious)
	}
	fmt.Fprintln(w)
}

func writeAnalysisText(w io.Writer, a *models.AnalysisResult) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Risk: %s  Score: %.1f / 10\n", a.RiskTier, a.CompositeScore)
	for _, p := range a.Penalties {
		fmt.Fprintf(w, "  - %s [%s] -%.2f\n", p.Rule, p.Topic, p.Weight)
	}
	for _, f := range a.Findings {
		if f == nil {
			continue
		}
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%s] %s", f.Topic, f.Status)
		if f.ModelUsed != "" {
			fmt.Fprintf(w, " via %s", f.ModelUsed)
		}
		fmt.Fprintf(w, " (%d evidence)\n", f.EvidenceCount)
		keys := make([]string, 0, len(f.Signals))
		for k := range f.Signals {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, f.Signals[models.SignalKey(k)])
		}
		if f.Narrative != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(f.Narrative, 400))
		}
	}
	fmt.Fprintln(w)
}

// WriteHistory writes the versions of a lineage.
func WriteHistory(w io.Writer, lineageID string, entries []*pipeline.HistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"lineage_id": lineageID, "versions": entries})
	}
	fmt.Fprintf(w, "Lineage %s: %d version(s)\n", lineageID, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "v%d  %s", e.Version.VersionNumber, e.Version.DocumentID)
		if e.Title != "" {
			fmt.Fprintf(w, "  %q", e.Title)
		}
		var notes []string
		if e.Version.SimilarityToPrevious != nil {
			notes = append(notes, fmt.Sprintf("similarity %.3f", *e.Version.SimilarityToPrevious))
		}
		if e.Duplicate {
			notes = append(notes, "duplicate")
		}
		if e.Deleted {
			notes = append(notes, "deleted")
		}
		if e.Latest != nil {
			notes = append(notes, fmt.Sprintf("%s %.1f", e.Latest.RiskTier, e.Latest.CompositeScore))
		}
		if len(notes) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(notes, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteClauseHits writes clause search hits.
func WriteClauseHits(w io.Writer, query string, hits []*keyword.ClauseHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "hits": hits})
	}
	fmt.Fprintf(w, "\nFound %d clause(s) for %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%d. %s #%d | Score: %.4f\n", i+1, h.DocumentID, h.ChunkIndex, h.Score)
		if h.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", h.Title)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Text, 200))
	}
	return nil
}

// WriteStatus writes record counts and index sizes.
func WriteStatus(w io.Writer, st *pipeline.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Documents:      %d\n", st.Storage.Documents)
	fmt.Fprintf(w, "Chunks:         %d\n", st.Storage.Chunks)
	fmt.Fprintf(w, "Analyses:       %d\n", st.Storage.Analyses)
	fmt.Fprintf(w, "Lineages:       %d\n", st.Storage.Lineages)
	fmt.Fprintf(w, "Vector entries: %d\n", st.VectorIndexSize)
	fmt.Fprintf(w, "Clause index:   %d\n", st.ClauseIndexDocs)
	return nil
}
