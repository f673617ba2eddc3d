package transforms

import (
	"fmt"
	"io"

	"tensorpto/internal/ir"
)

// VerificationMode controls when a PassPipeline runs its verifier around
// each pass: never, before each pass, after each pass, or both.
type VerificationMode int

const (
	VerifyNone VerificationMode = iota
	VerifyBefore
	VerifyAfter
	VerifyBeforeAndAfter
)

// PassPipeline runs an ordered sequence of passes over a Program,
// tracking which properties currently hold so it can check each pass's
// required properties before running it and update the tracked set
// after it. Progress is reported with plain fmt.Fprintf lines to an
// io.Writer (nil disables reporting), in the same plain per-pass style
// an optimization pipeline's run loop would use.
type PassPipeline struct {
	passes            []Pass
	verificationMode  VerificationMode
	initialProperties PropertySet
	verifier          *IRVerifier
}

// NewPassPipeline returns an empty pipeline with no verification and no
// initial properties assumed.
func NewPassPipeline() *PassPipeline {
	return &PassPipeline{initialProperties: NewPropertySet(), verifier: NewDefaultVerifier()}
}

// AddPass appends pass to the pipeline.
func (p *PassPipeline) AddPass(pass Pass) *PassPipeline {
	p.passes = append(p.passes, pass)
	return p
}

// SetVerificationMode controls when the pipeline invokes its verifier
// relative to each pass.
func (p *PassPipeline) SetVerificationMode(mode VerificationMode) *PassPipeline {
	p.verificationMode = mode
	return p
}

// SetVerifier overrides the verifier used when VerificationMode is not
// VerifyNone. If never called, NewDefaultVerifier() is used.
func (p *PassPipeline) SetVerifier(v *IRVerifier) *PassPipeline {
	p.verifier = v
	return p
}

// SetInitialProperties declares which properties already hold on the
// Program the pipeline will be run against, so the first pass's
// precondition check is meaningful even before any pass has run.
func (p *PassPipeline) SetInitialProperties(props PropertySet) *PassPipeline {
	p.initialProperties = props.Clone()
	return p
}

// PassNames returns the names of the passes in the pipeline, in order.
func (p *PassPipeline) PassNames() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Run executes every pass in order against prog, checking required
// properties before each pass and updating the tracked property set
// after it according to the pass's PassProperties. If w is non-nil, a
// header line and then, per pass, a line naming it and a line reporting
// success or failure are written to it. Run stops and returns an error
// as soon as a pass's precondition fails, a pass itself errors, or (when
// verification is enabled around that pass) the verifier reports an
// error-severity diagnostic.
func (p *PassPipeline) Run(w io.Writer, prog *ir.Program) (*ir.Program, error) {
	report := func(format string, args ...any) {
		if w != nil {
			fmt.Fprintf(w, format, args...)
		}
	}

	report("Running %d passes...\n", len(p.passes))
	current := p.initialProperties.Clone()
	verifier := p.verifier
	if verifier == nil {
		verifier = NewDefaultVerifier()
	}

	for _, pass := range p.passes {
		report("  - %s\n", pass.Name())

		if missing := current.Missing(pass.Properties().Required); len(missing) > 0 {
			return nil, fmt.Errorf("pass %q requires missing properties %v", pass.Name(), missing)
		}

		if p.verificationMode == VerifyBefore || p.verificationMode == VerifyBeforeAndAfter {
			// Only the verifiers for properties this pass is about to rely
			// on are meaningful here: a property the pass doesn't require
			// may legitimately not hold yet (e.g. IncoreBlockOps, before
			// the lowering pass that produces it has run).
			if err := verifier.VerifyPropertiesOrThrow(prog, pass.Properties().Required); err != nil {
				return nil, fmt.Errorf("pass %q: verification before run failed: %w", pass.Name(), err)
			}
		}

		next, err := pass.Run(prog)
		if err != nil {
			report("    ✗ failed: %v\n", err)
			return nil, fmt.Errorf("pass %q: %w", pass.Name(), err)
		}
		prog = next
		current = pass.Properties().Apply(current)

		if p.verificationMode == VerifyAfter || p.verificationMode == VerifyBeforeAndAfter {
			// Symmetrically, only check the properties this pass just
			// claimed to produce.
			if err := verifier.VerifyPropertiesOrThrow(prog, pass.Properties().Produced); err != nil {
				return nil, fmt.Errorf("pass %q: verification after run failed: %w", pass.Name(), err)
			}
		}

		report("    ✓ done\n")
	}

	return prog, nil
}
