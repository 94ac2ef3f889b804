package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fabfab/go-kb/ingestion"
	"github.com/fabfab/go-kb/search"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func renderReport(cmd *cobra.Command, report ingestion.Report) {
	if report.RunID == "" {
		return
	}
	cmd.Println(titleStyle.Render("Ingestion complete"))
	cmd.Printf("  Run:        %s\n", dimStyle.Render(report.RunID))
	cmd.Printf("  Documents:  %d read, %d skipped\n", report.DocumentsRead, report.DocumentsSkipped)
	cmd.Printf("  Chunks:     %d (%d embedded, %d failed)\n", report.Chunks, report.Embedded, report.EmbedFailures)
	cmd.Printf("  Uploaded:   %d points", report.Uploaded)
	if report.FailedBatches > 0 {
		cmd.Printf(", %s", errorStyle.Render(fmt.Sprintf("%d failed batches", report.FailedBatches)))
	}
	cmd.Println()
}

func renderResults(cmd *cobra.Command, resp search.Response) {
	if len(resp.Results) == 0 {
		cmd.Printf("No results for %q\n", resp.Query)
		return
	}

	if len(resp.Variants) > 1 {
		cmd.Println(dimStyle.Render("Searched: " + strings.Join(resp.Variants, " | ")))
	}
	cmd.Printf("Found %d results for %q:\n\n", len(resp.Results), resp.Query)

	for i, res := range resp.Results {
		title := res.Payload.Title
		if title == "" {
			title = res.Payload.Filename
		}
		cmd.Printf("%d. %s %s\n", i+1, titleStyle.Render(title), scoreStyle.Render(fmt.Sprintf("(%.3f)", res.Score)))
		cmd.Printf("   %s\n", dimStyle.Render(fmt.Sprintf("%s chunk %d", res.Payload.Filename, res.Payload.ChunkIndex)))
		if len(res.Payload.Topics) > 0 {
			cmd.Printf("   Topics: %s\n", strings.Join(res.Payload.Topics, ", "))
		}
		if res.Payload.URL != "" {
			cmd.Printf("   %s\n", res.Payload.URL)
		}
		cmd.Printf("   %s\n\n", snippet(res.Payload.Text, 200))
	}
}

func renderAnswer(cmd *cobra.Command, answer search.Answer) {
	header := "Answer"
	if answer.Fallback {
		header = "Answer (fallback)"
	}
	cmd.Println(titleStyle.Render(header))
	cmd.Println(answer.Text)
	if len(answer.Sources) > 0 {
		cmd.Println(dimStyle.Render("[Sources: " + strings.Join(answer.Sources, ", ") + "]"))
	}
}

// renderInfo prints aligned key/value rows.
func renderInfo(cmd *cobra.Command, title string, rows [][2]string) {
	cmd.Println(titleStyle.Render(title))
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}
	for _, row := range rows {
		cmd.Printf("  %-*s  %s\n", width+1, row[0]+":", row[1])
	}
}

// snippet collapses whitespace and cuts text to max runes.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
