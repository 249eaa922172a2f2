package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"answervet/internal/batch"
	"answervet/internal/progress"
	"answervet/internal/store"
	"answervet/internal/workflow"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	answerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

var stageLabels = map[string]string{
	string(workflow.StageGenerating):       "generating answer",
	string(workflow.StageValidatingAnswer): "fact-checking answer",
	string(workflow.StageValidatingLinks):  "vetting links",
}

func renderStage(stage string) string {
	label := stageLabels[stage]
	if label == "" {
		label = stage
	}
	return mutedStyle.Render("... " + label)
}

func renderNotice(msg string) string {
	return warnStyle.Render(msg)
}

func renderError(msg string) string {
	return errorStyle.Render("Error: " + msg)
}

// renderResult renders a single-question outcome.
func renderResult(r *workflow.Result) string {
	var b strings.Builder

	if r.Succeeded() {
		b.WriteString(successStyle.Render(fmt.Sprintf("✓ Answered in %d attempt(s)", r.Attempts)))
		b.WriteString("\n")
		b.WriteString(answerStyle.Render(r.Answer.Body))
		if len(r.Documentation) > 0 {
			b.WriteString("\n")
			b.WriteString(headerStyle.Render("Documentation"))
			for _, link := range r.Documentation {
				b.WriteString("\n  " + mutedStyle.Render(link))
			}
		}
		return b.String()
	}

	b.WriteString(errorStyle.Render(fmt.Sprintf("✗ No vetted answer after %d attempt(s)", r.Attempts)))
	for _, reason := range r.Reasons {
		b.WriteString("\n  " + mutedStyle.Render(reason))
	}
	return b.String()
}

// consoleConsumer renders batch progress events as they arrive.
func consoleConsumer() progress.Consumer {
	return func(ev progress.Event) {
		switch ev.Type {
		case progress.EventRowStarted:
			fmt.Println(mutedStyle.Render(fmt.Sprintf("[row %d] started", ev.Row)))
		case progress.EventAgentProgress:
			label := stageLabels[ev.Stage]
			if label == "" {
				label = ev.Stage
			}
			fmt.Println(mutedStyle.Render(fmt.Sprintf("[row %d] %s", ev.Row, label)))
		case progress.EventRowCompleted:
			fmt.Println(successStyle.Render(fmt.Sprintf("[row %d] ✓ answered (%d link(s))", ev.Row, len(ev.Links))))
		case progress.EventRowFailed:
			fmt.Println(errorStyle.Render(fmt.Sprintf("[row %d] ✗ %s", ev.Row, truncateReason(ev.Reason))))
		case progress.EventBatchComplete:
			fmt.Println(successStyle.Render(fmt.Sprintf("Batch complete: %d row(s) in %s", ev.Processed, ev.Duration.Round(time.Millisecond))))
		}
	}
}

// renderBatchSummary renders the final batch result.
func renderBatchSummary(r *batch.Result, outPath string) string {
	var b strings.Builder

	switch r.Status {
	case batch.StatusCompleted:
		b.WriteString(successStyle.Render(fmt.Sprintf("Completed: %d rows", r.Processed)))
	case batch.StatusStopped:
		b.WriteString(warnStyle.Render(fmt.Sprintf("Stopped: %d rows processed", r.Processed)))
	default:
		b.WriteString(mutedStyle.Render(string(r.Status)))
	}
	if r.Failed > 0 {
		b.WriteString(" " + errorStyle.Render(fmt.Sprintf("(%d failed)", r.Failed)))
	}
	b.WriteString("\n" + mutedStyle.Render("Results written to "+outPath))
	return b.String()
}

// renderAuditRecord renders one stored run for the audit listing.
func renderAuditRecord(rec store.RunRecord) string {
	status := mutedStyle.Render(rec.Status)
	switch rec.Status {
	case string(workflow.StatusSucceeded):
		status = successStyle.Render(rec.Status)
	case string(workflow.StatusFailed), "error":
		status = errorStyle.Render(rec.Status)
	}

	line := fmt.Sprintf("%s %s %s", rec.CreatedAt.Format("2006-01-02 15:04"), status, truncateReason(rec.Question))
	if rec.JobID != "" {
		line += mutedStyle.Render(fmt.Sprintf(" (job %s row %d)", rec.JobID, rec.Row))
	}
	return line
}

func truncateReason(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
