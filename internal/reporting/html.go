package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders the report as a markdown document.
func Markdown(r Report) []byte {
	var b bytes.Buffer
	s := r.Summary

	fmt.Fprintf(&b, "# Run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "- **Mode:** %s\n", s.Mode)
	fmt.Fprintf(&b, "- **Status:** %s\n", s.Status)
	if s.DryRun {
		b.WriteString("- **Dry run:** yes\n")
	}
	fmt.Fprintf(&b, "- **Started:** %s\n", s.StartedAt)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Finished:** %s\n", s.FinishedAt)
	}
	fmt.Fprintf(&b, "- **Loop rounds:** %d\n", s.LoopRounds)
	fmt.Fprintf(&b, "- **Drafts:** %d (passed %d, rejected %d, downgraded %d)\n", s.Drafts, s.Passed, s.Rejected, s.Downgraded)
	fmt.Fprintf(&b, "- **Exported:** %d\n", s.Exported)
	if r.Failure != nil {
		fmt.Fprintf(&b, "\n> Failed at **%s** (%s): %s\n", r.Failure.Stage, r.Failure.Kind, escape(r.Failure.Reason))
	}

	b.WriteString("\n## Stages\n\n| Stage | Status | Duration (ms) | Outputs |\n|---|---|---:|---:|\n")
	for _, row := range r.Stages {
		status := string(row.Status)
		if row.Imported {
			status += " (imported)"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", row.Stage, status, row.DurationMs, row.Outputs)
	}

	b.WriteString("\n## Drafts\n\n| Draft | Concept | State | Version | Reviews | Last verdict |\n|---|---|---|---:|---:|---|\n")
	for _, d := range r.Drafts {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %s |\n", d.DraftID, d.ConceptID, d.State, d.Version, d.Rounds, d.LastVerdict)
	}

	if len(r.Exports) > 0 {
		b.WriteString("\n## Export decisions\n\n| Candidate | Draft | Eligible | Exported | Reason |\n|---|---|---|---|---|\n")
		for _, e := range r.Exports {
			fmt.Fprintf(&b, "| %s | %s v%d | %t | %t | %s |\n", e.CandidateID, e.DraftID, e.Version, e.Eligible, e.Exported, escape(e.Reason))
		}
	}

	b.WriteString("\n## Statistics\n\n| Sample | N | Min | P25 | Median | P75 | Max | Mean | Std dev |\n|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	writeDistribution(&b, "Review confidence", r.Confidence)
	writeDistribution(&b, "Stage duration (ms)", r.StageDurations)
	return b.Bytes()
}

func writeDistribution(b *bytes.Buffer, label string, d Distribution) {
	fmt.Fprintf(b, "| %s | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
		label, d.N, d.Min, d.P25, d.Median, d.P75, d.Max, d.Mean, d.StdDev)
}

// escape keeps free text from breaking table cells.
func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// HTML renders the report as a standalone HTML page.
func HTML(r Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: fmt.Sprintf("Run %s", r.Summary.RunID),
	})
	return markdown.ToHTML(Markdown(r), p, renderer)
}
