package transforms

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"tensorpto/internal/ir"
	"tensorpto/internal/opregistry"
)

// Severity classifies a Diagnostic's importance. Only Error-severity
// diagnostics cause VerifyOrThrow to fail; Warning and Info are reported
// but do not block a pipeline.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is a single user-visible finding produced by a verifier: it
// is data, never thrown, so that a caller can inspect every finding
// before deciding whether (and how) to fail.
type Diagnostic struct {
	Severity Severity
	Source   string
	Code     string
	Message  string
	Span     ir.Span
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s (%s): %s at %s", d.Severity, d.Source, d.Code, d.Message, d.Span)
}

// PropertyVerifier checks one IR property against a Program. Verifiers are
// stateless and must never panic on malformed input; a verifier that
// finds nothing wrong returns a nil slice.
type PropertyVerifier interface {
	Name() string
	Verify(prog *ir.Program) []Diagnostic
}

// funcVerifier adapts a simple always-clean property check (one that has
// no real analysis to perform in this pedagogical core, e.g. SSAForm) into
// a PropertyVerifier, so every property in the lattice has an entry in
// NewDefaultVerifier the way CreateDefault populates one verifier per
// property in the lattice.
type funcVerifier struct {
	name string
	fn   func(prog *ir.Program) []Diagnostic
}

func (v funcVerifier) Name() string { return v.name }
func (v funcVerifier) Verify(prog *ir.Program) []Diagnostic {
	return v.fn(prog)
}

func trivialVerifier(name string) PropertyVerifier {
	return funcVerifier{name: name, fn: func(prog *ir.Program) []Diagnostic { return nil }}
}

// IncoreBlockOpsVerifier flags any Call inside an InCore function that
// targets a plain Op (not a GlobalVar) which is both categorized as a
// TensorOp by the op registry and has a registered conversion rule: after
// ConvertTensorToBlockOps such a call should have been lowered to its
// block.* form, so its continued presence means the lowering missed it.
type IncoreBlockOpsVerifier struct {
	Ops  *opregistry.Registry
	Conv *OpConversionRegistry
}

func (v IncoreBlockOpsVerifier) Name() string { return "IncoreBlockOpsVerifier" }

func (v IncoreBlockOpsVerifier) Verify(prog *ir.Program) []Diagnostic {
	ops := v.Ops
	if ops == nil {
		ops = opregistry.Default()
	}
	conv := v.Conv
	if conv == nil {
		conv = DefaultOpConversionRegistry()
	}
	var diags []Diagnostic
	for _, fn := range prog.Functions {
		if fn.Kind != ir.InCore || fn.Body == nil {
			continue
		}
		walkStmt(fn.Body, func(s ir.Stmt) {
			var exprs []ir.Expr
			switch st := s.(type) {
			case *ir.AssignStmt:
				exprs = append(exprs, st.Value)
			case *ir.EvalStmt:
				exprs = append(exprs, st.Value)
			case *ir.ReturnStmt:
				exprs = append(exprs, st.Value)
			}
			for _, e := range exprs {
				walkExprCalls(e, func(call *ir.Call) {
					op, ok := call.Target.(ir.Op)
					if !ok {
						return
					}
					entry, ok := ops.GetEntry(op.Name)
					if !ok {
						return
					}
					if entry.Category == opregistry.TensorOp && conv.HasConversion(op.Name) {
						diags = append(diags, Diagnostic{
							Severity: Error,
							Source:   v.Name(),
							Code:     "unlowered-tensor-op",
							Message:  fmt.Sprintf("incore function %q still calls unlowered tensor op %q", fn.Name, op.Name),
							Span:     call.SpanV,
						})
					}
				})
			}
		})
	}
	return diags
}

// walkStmt visits s and every statement nested within it (SeqStmts,
// IfStmt branches, ForStmt body), calling visit on each.
func walkStmt(s ir.Stmt, visit func(ir.Stmt)) {
	if s == nil {
		return
	}
	visit(s)
	switch st := s.(type) {
	case *ir.SeqStmts:
		for _, sub := range st.Stmts {
			walkStmt(sub, visit)
		}
	case *ir.IfStmt:
		walkStmt(st.Then, visit)
		walkStmt(st.Else, visit)
	case *ir.ForStmt:
		walkStmt(st.Body, visit)
	}
}

// walkExprCalls visits e and, recursively, every Call reachable from it
// through argument/tuple structure, calling visit on each Call found.
func walkExprCalls(e ir.Expr, visit func(*ir.Call)) {
	switch expr := e.(type) {
	case nil:
		return
	case *ir.Call:
		visit(expr)
		for _, a := range expr.Args {
			walkExprCalls(a, visit)
		}
	case *ir.MakeTuple:
		for _, el := range expr.Elements {
			walkExprCalls(el, visit)
		}
	case *ir.TupleGetItemExpr:
		walkExprCalls(expr.Tuple, visit)
	}
}

// IRVerifier composes a set of named PropertyVerifiers, each independently
// enabled or disabled, and runs the enabled subset against a Program.
type IRVerifier struct {
	order   []string
	rules   map[string]PropertyVerifier
	enabled map[string]bool
}

// NewIRVerifier returns an empty verifier with no rules registered.
func NewIRVerifier() *IRVerifier {
	return &IRVerifier{rules: make(map[string]PropertyVerifier), enabled: make(map[string]bool)}
}

// AddRule registers rule, enabled by default. Re-adding a rule with the
// same name replaces it and preserves its previous enabled/disabled state.
func (v *IRVerifier) AddRule(rule PropertyVerifier) {
	name := rule.Name()
	if _, exists := v.rules[name]; !exists {
		v.order = append(v.order, name)
		v.enabled[name] = true
	}
	v.rules[name] = rule
}

// EnableRule turns rule name on. It is a no-op if name is not registered.
func (v *IRVerifier) EnableRule(name string) {
	if _, ok := v.rules[name]; ok {
		v.enabled[name] = true
	}
}

// DisableRule turns rule name off. It is a no-op if name is not registered.
func (v *IRVerifier) DisableRule(name string) {
	if _, ok := v.rules[name]; ok {
		v.enabled[name] = false
	}
}

// IsRuleEnabled reports whether name is registered and currently enabled.
func (v *IRVerifier) IsRuleEnabled(name string) bool {
	return v.enabled[name]
}

// Verify runs every enabled rule against prog and returns the
// concatenation of their diagnostics. It never returns an error: callers
// that want failure semantics use VerifyOrThrow.
func (v *IRVerifier) Verify(prog *ir.Program) []Diagnostic {
	var all []Diagnostic
	for _, name := range v.order {
		if !v.enabled[name] {
			continue
		}
		all = append(all, v.rules[name].Verify(prog)...)
	}
	return all
}

// propertyVerifierNames maps each Property in the lattice to the name of
// the PropertyVerifier rule that checks it, so a PassPipeline can select
// just the verifiers relevant to a pass's Required/Produced tags instead
// of always running the entire enabled rule set.
var propertyVerifierNames = map[Property]string{
	TypeChecked:             "TypeCheckPropertyVerifier",
	SSAForm:                 "SSAPropertyVerifier",
	NoNestedCalls:           "NoNestedCallPropertyVerifier",
	NormalizedStmtStructure: "NormalizedStmtPropertyVerifier",
	FlattenedSingleStmt:     "FlattenedSingleStmtPropertyVerifier",
	SplitIncoreOrch:         "SplitIncoreOrchPropertyVerifier",
	HasMemRefs:              "HasMemRefsPropertyVerifier",
	IncoreBlockOps:          "IncoreBlockOpsVerifier",
}

// VerifyProperties runs only the enabled rules that correspond to a
// property in props, in registration order, and returns their combined
// diagnostics. A property with no known rule (or whose rule isn't
// registered/enabled on v) is silently skipped.
func (v *IRVerifier) VerifyProperties(prog *ir.Program, props PropertySet) []Diagnostic {
	var all []Diagnostic
	for _, name := range v.order {
		if !v.enabled[name] {
			continue
		}
		if !ruleCoversAny(name, props) {
			continue
		}
		all = append(all, v.rules[name].Verify(prog)...)
	}
	return all
}

func ruleCoversAny(ruleName string, props PropertySet) bool {
	for p := range props {
		if propertyVerifierNames[p] == ruleName {
			return true
		}
	}
	return false
}

// VerifyOrThrow runs Verify and aggregates every Error-severity diagnostic
// into a single error via multierr, so a caller that only cares about
// pass/fail can treat verification as an ordinary Go error return.
func (v *IRVerifier) VerifyOrThrow(prog *ir.Program) error {
	return diagnosticsToError(v.Verify(prog))
}

// VerifyPropertiesOrThrow is VerifyProperties plus the same
// diagnostics-to-error aggregation VerifyOrThrow performs.
func (v *IRVerifier) VerifyPropertiesOrThrow(prog *ir.Program, props PropertySet) error {
	return diagnosticsToError(v.VerifyProperties(prog, props))
}

func diagnosticsToError(diags []Diagnostic) error {
	var combined error
	for _, d := range diags {
		if d.Severity != Error {
			continue
		}
		combined = multierr.Append(combined, fmt.Errorf("%s", d))
	}
	return combined
}

// GenerateReport renders diagnostics as a plain multi-line summary, one
// line per diagnostic. Colorized rendering for interactive display lives
// in the diag package, which consumes these same Diagnostic values.
func GenerateReport(diags []Diagnostic) string {
	if len(diags) == 0 {
		return "no diagnostics"
	}
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// NewDefaultVerifier returns an IRVerifier with one PropertyVerifier
// registered per property in the lattice. Most properties have no real
// structural check to perform here (they are placeholders for analyses
// out of scope for this core) and so verify trivially; IncoreBlockOps is
// the one flagship check with real logic.
func NewDefaultVerifier() *IRVerifier {
	v := NewIRVerifier()
	v.AddRule(trivialVerifier("TypeCheckPropertyVerifier"))
	v.AddRule(trivialVerifier("SSAPropertyVerifier"))
	v.AddRule(trivialVerifier("NoNestedCallPropertyVerifier"))
	v.AddRule(trivialVerifier("NormalizedStmtPropertyVerifier"))
	v.AddRule(trivialVerifier("FlattenedSingleStmtPropertyVerifier"))
	v.AddRule(trivialVerifier("SplitIncoreOrchPropertyVerifier"))
	v.AddRule(trivialVerifier("HasMemRefsPropertyVerifier"))
	v.AddRule(IncoreBlockOpsVerifier{})
	return v
}
