package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/docingest/internal/document"
	"github.com/fyrsmithlabs/docingest/internal/indexer"
	"github.com/fyrsmithlabs/docingest/internal/pipeline"
)

// Lipgloss styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Width(20)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// maxListed caps the failed files and errors printed in a summary.
const maxListed = 10

func row(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

func status(ok, warn bool, text string) string {
	switch {
	case ok:
		return healthyStyle.Render("✓ " + text)
	case warn:
		return warningStyle.Render("! " + text)
	default:
		return errorStyle.Render("✗ " + text)
	}
}

func list(title string, items []string, style lipgloss.Style) []string {
	if len(items) == 0 {
		return nil
	}
	lines := []string{sectionStyle.Render(title)}
	for i, item := range items {
		if i == maxListed {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  ... and %d more", len(items)-maxListed)))
			break
		}
		lines = append(lines, style.Render("  "+item))
	}
	return lines
}

func ingestionRows(res *pipeline.IngestionResult) []string {
	rows := []string{
		row("Documents loaded", res.DocumentsLoaded),
		row("Chunks created", res.ChunksCreated),
		row("Vectors uploaded", res.VectorsUploaded),
		row("Failed files", len(res.FailedFiles)),
		row("Success rate", fmt.Sprintf("%.1f%%", res.SuccessRate())),
	}
	if res.Splitter != "" {
		rows = append(rows, row("Splitter", res.Splitter))
	}
	if res.FilesSkipped > 0 {
		rows = append(rows, row("Files skipped", res.FilesSkipped))
	}
	if res.ChunksFailed > 0 {
		rows = append(rows, row("Chunks failed", res.ChunksFailed))
	}
	if res.FailedBatches > 0 {
		rows = append(rows, row("Failed batches", res.FailedBatches))
	}
	rows = append(rows, row("Duration", res.Duration.Round(time.Millisecond)))
	return rows
}

func ingestionStatus(res *pipeline.IngestionResult) string {
	switch {
	case res.Complete() && !res.Failed():
		return status(true, false, "complete")
	case res.StoppedAt != "":
		return status(false, false, fmt.Sprintf("stopped in %s phase", res.StoppedAt))
	default:
		return status(false, true, "completed with errors")
	}
}

// renderIngestion formats an ingestion result as a boxed summary.
func renderIngestion(title, collection string, res *pipeline.IngestionResult) string {
	lines := []string{
		headerStyle.Render(title) + " " + dimStyle.Render(collection),
		"",
	}
	lines = append(lines, ingestionRows(res)...)
	lines = append(lines, "", ingestionStatus(res))
	lines = append(lines, list("Failed files", res.FailedFiles, errorStyle)...)
	lines = append(lines, list("Errors", res.Errors, warningStyle)...)
	return containerStyle.Render(strings.Join(lines, "\n"))
}

// renderUpdate formats an incremental update.
func renderUpdate(collection string, res *indexer.UpdateResult) string {
	lines := []string{
		headerStyle.Render("Update") + " " + dimStyle.Render(collection),
		"",
		row("Added", len(res.Changes.Added)),
		row("Modified", len(res.Changes.Modified)),
		row("Deleted", len(res.Changes.Deleted)),
		row("Unchanged", res.Changes.Unchanged),
		row("State entries", res.Advanced),
	}
	switch {
	case res.Changes.Empty():
		lines = append(lines, "", status(true, false, "up to date"))
	case res.Ingestion != nil:
		lines = append(lines, sectionStyle.Render("Ingestion"))
		lines = append(lines, ingestionRows(res.Ingestion)...)
		lines = append(lines, "", ingestionStatus(res.Ingestion))
		lines = append(lines, list("Failed files", res.Ingestion.FailedFiles, errorStyle)...)
		lines = append(lines, list("Errors", res.Ingestion.Errors, warningStyle)...)
	default:
		lines = append(lines, "", status(len(res.Errors) == 0, true, "deletions applied"))
	}
	lines = append(lines, list("Store errors", res.Errors, errorStyle)...)
	return containerStyle.Render(strings.Join(lines, "\n"))
}

// renderReport formats a verification report.
func renderReport(r *indexer.Report) string {
	lines := []string{
		headerStyle.Render("Verify") + " " + dimStyle.Render(r.Collection),
		"",
		row("Exists", r.Exists),
		row("Points", r.PointCount),
		row("Vector size", fmt.Sprintf("%d (expected %d)", r.VectorSize, r.ExpectedVectorSize)),
		"",
	}
	if r.Healthy() {
		lines = append(lines, status(true, false, "healthy"))
	} else {
		lines = append(lines, status(false, false, "unhealthy"))
		lines = append(lines, list("Problems", r.Problems, errorStyle)...)
	}
	return containerStyle.Render(strings.Join(lines, "\n"))
}

// renderChunks prints every chunk with its index and length.
func renderChunks(splitterName string, chunks []document.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n",
		headerStyle.Render(fmt.Sprintf("%d chunks", len(chunks))),
		dimStyle.Render("splitter: "+splitterName))
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n%s\n%s\n",
			sectionStyle.Render(fmt.Sprintf("#%d %s [%d chars]", i, c.Source(), utf8.RuneCountInString(c.Text))),
			c.Text)
	}
	return b.String()
}
