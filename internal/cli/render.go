package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"MarketScanner/internal/app"
	"MarketScanner/internal/domain"
)

// render writes the run result either as indented JSON or as tables.
func render(w io.Writer, res app.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	renderSummary(w, res.Run)
	if len(res.Sources) > 0 {
		renderSources(w, res.Sources)
	}
	if len(res.Items) > 0 {
		renderItems(w, res.Items)
	}

	return nil
}

func renderSummary(w io.Writer, run domain.PipelineRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pipeline", "Status", "Steps", "Elapsed", "Run ID"})
	t.AppendRow(table.Row{
		run.Pipeline,
		run.Status,
		strings.Join(run.Steps, " > "),
		run.Elapsed().Round(time.Millisecond),
		run.ID,
	})
	t.Render()

	if run.Err != "" {
		fmt.Fprintf(w, "failed at %s: %s\n", run.FailedStep, run.Err)
	}
}

func renderSources(w io.Writer, outcomes []domain.SourceOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{
		"Source", "Outcome", "Reason", "Fetched", "Normalized", "Inserted", "Updated", "Rejected", "Persist fail", "Elapsed",
	})
	for _, o := range outcomes {
		reason := o.Reason
		if o.NextAllowedAt != nil {
			reason = fmt.Sprintf("%s (next %s)", o.Reason, o.NextAllowedAt.Format(time.RFC3339))
		}
		t.AppendRow(table.Row{
			o.SourceID,
			o.Kind,
			reason,
			o.Fetched,
			o.Normalized,
			o.Inserted,
			o.Updated,
			o.NormFailures,
			o.PersistFailures,
			o.Elapsed.Round(time.Millisecond),
		})
	}
	t.Render()
}

func renderItems(w io.Writer, outcomes []domain.ItemOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Listing", "Status", "Reason"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{o.ListingKey, o.Status, o.Reason})
	}
	t.Render()
}
