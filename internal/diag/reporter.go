// Package diag renders transforms.Diagnostic values for interactive
// display with colored severity levels. Unlike a source-level error
// reporter, this one has no source text to show context lines from (the
// pass framework never holds onto source text once the IR exists), so a
// diagnostic renders as a single colored line plus its span rather than
// a source excerpt with a marker.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"tensorpto/internal/transforms"
)

// Reporter formats Diagnostic values for a terminal.
type Reporter struct{}

// NewReporter returns a Reporter. It carries no state, so a single
// Reporter can format diagnostics from any number of programs.
func NewReporter() *Reporter { return &Reporter{} }

// FormatDiagnostic renders one diagnostic as a colored header line
// "<severity>[<code>]: <message>" (the "[<code>]" part is omitted when
// Code is empty) followed by a location line "   --> <span> (<source>)".
func (r *Reporter) FormatDiagnostic(d transforms.Diagnostic) string {
	levelColor := severityColor(d.Severity)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var b strings.Builder
	if d.Code != "" {
		b.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(d.Severity.String()), d.Code, bold(d.Message)))
	} else {
		b.WriteString(fmt.Sprintf("%s: %s\n", levelColor(d.Severity.String()), bold(d.Message)))
	}
	b.WriteString(fmt.Sprintf("   %s %s (%s)\n", dim("-->"), d.Span, d.Source))
	return b.String()
}

// FormatReport renders every diagnostic in order, separated by blank
// lines, mirroring transforms.GenerateReport's plain-text report but with
// color for interactive display.
func (r *Reporter) FormatReport(diags []transforms.Diagnostic) string {
	if len(diags) == 0 {
		return color.New(color.FgGreen, color.Bold).Sprint("no diagnostics\n")
	}
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(r.FormatDiagnostic(d))
		b.WriteByte('\n')
	}
	return b.String()
}

func severityColor(s transforms.Severity) func(a ...any) string {
	switch s {
	case transforms.Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case transforms.Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case transforms.Info:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
