package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Swap Execution Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Period: %s to %s\n\n",
		r.PeriodStart.Format(time.RFC3339), r.PeriodEnd.Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Orders | %d |\n", r.Summary.TotalOrders))
	sb.WriteString(fmt.Sprintf("| Executed | %d |\n", r.Summary.Executed))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Summary.Failed))
	sb.WriteString(fmt.Sprintf("| Aborted Before Submission | %d |\n", r.Summary.Aborted))
	sb.WriteString(fmt.Sprintf("| Total Realized Output (raw units) | %s |\n", r.Summary.TotalRealizedOut))
	sb.WriteString(fmt.Sprintf("| Total Gas Paid (wei) | %s |\n", r.Summary.TotalGasCostWei))
	sb.WriteString("\n")

	if len(r.Aggregators) > 0 {
		sb.WriteString("## By Aggregator\n\n")
		sb.WriteString("| Aggregator | Orders | Executed | Realized Output |\n")
		sb.WriteString("|-----------|--------|----------|------------------|\n")
		for _, row := range r.Aggregators {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				row.Name, row.Orders, row.Executed, row.RealizedOut))
		}
		sb.WriteString("\n")
	}

	if len(r.Tokens) > 0 {
		sb.WriteString("## By Token\n\n")
		sb.WriteString("| Token | Orders | Executed | Last Tx |\n")
		sb.WriteString("|-------|--------|----------|--------|\n")
		for _, row := range r.Tokens {
			lastTx := row.LastTx
			if lastTx == "" {
				lastTx = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				row.Token, row.Orders, row.Executed, lastTx))
		}
		sb.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		sb.WriteString("## Failures\n\n")
		sb.WriteString("| Order | Token | Aggregator | Reason | Finished |\n")
		sb.WriteString("|-------|-------|-----------|--------|----------|\n")
		for _, row := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				row.OrderID, row.Token, row.Aggregator,
				strings.ReplaceAll(row.Reason, "|", "\\|"),
				row.FinishedAt.Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
