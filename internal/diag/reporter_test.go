package diag_test

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"tensorpto/internal/diag"
	"tensorpto/internal/ir"
	"tensorpto/internal/transforms"
)

func TestFormatDiagnosticIncludesMessageCodeAndSpan(t *testing.T) {
	color.NoColor = true
	r := diag.NewReporter()
	d := transforms.Diagnostic{
		Severity: transforms.Error,
		Source:   "IncoreBlockOpsVerifier",
		Code:     "unlowered-tensor-op",
		Message:  "unlowered call to tensor.add",
		Span:     ir.Span{File: "kernel.ir", Line: 3, Col: 1},
	}

	out := r.FormatDiagnostic(d)
	assert.Contains(t, out, "unlowered call to tensor.add")
	assert.Contains(t, out, "unlowered-tensor-op")
	assert.Contains(t, out, "kernel.ir:3:1")
	assert.Contains(t, out, "IncoreBlockOpsVerifier")
}

func TestFormatReportHandlesEmptyAndNonEmpty(t *testing.T) {
	color.NoColor = true
	r := diag.NewReporter()

	assert.Contains(t, r.FormatReport(nil), "no diagnostics")

	diags := []transforms.Diagnostic{
		{Severity: transforms.Warning, Message: "first"},
		{Severity: transforms.Info, Message: "second"},
	}
	out := r.FormatReport(diags)
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
}
