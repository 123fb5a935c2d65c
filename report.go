package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderSummary renders the run summary as a table with per-URL outcomes
// and the total accumulated cost.
func RenderSummary(summary *RunSummary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"URL", "Outcome", "Words", "Links (int/ext)", "Cost (USD)"})

	for _, r := range summary.Results {
		tw.AppendRow(table.Row{r.URL, outcomeLabel(r), wordsLabel(r), linksLabel(r), fmt.Sprintf("%.4f", r.Cost.CostUSD)})
	}
	tw.AppendFooter(table.Row{"Total", "", "", "", fmt.Sprintf("%.4f", summary.TotalUsage.CostUSD)})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func outcomeLabel(r ProcessResult) string {
	if !r.Success {
		return string(r.Reason)
	}
	if r.Document != nil && r.Document.BelowMinimum {
		return "success (below minimum)"
	}
	return "success"
}

func wordsLabel(r ProcessResult) string {
	if r.Document == nil {
		return "-"
	}
	return fmt.Sprintf("%d → %d", r.WordsBefore, r.Document.WordCount)
}

func linksLabel(r ProcessResult) string {
	if r.Document == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.Document.InternalLinks, r.Document.ExternalLinks)
}
