package transforms

import (
	"sync"

	"tensorpto/internal/ir"
)

// ConversionResult is what a ConversionFunc produces when rewriting a
// single tensor-op Call: zero or more prologue statements that must be
// emitted immediately before the statement being rewritten (e.g. a
// block.load materializing an operand), plus the expression that replaces
// the original call in place.
type ConversionResult struct {
	Prologue []ir.Stmt
	Result   ir.Expr
}

// ExprResult builds a ConversionResult with no prologue statements, for
// the common case of a straight name-for-name op substitution.
func ExprResult(result ir.Expr) ConversionResult {
	return ConversionResult{Result: result}
}

// ConversionFunc rewrites one op::Call's arguments and keyword arguments
// into a ConversionResult. args and kwargs are already the *rewritten*
// operands (SubstituteExpr has already been applied to them by the
// caller), so a ConversionFunc need only decide the new op shape, not
// recurse into its own operands.
type ConversionFunc func(args []ir.Expr, kwargs []ir.KwArg, span ir.Span) (ConversionResult, error)

// OpConversionRegistry maps a source op name to the rule that lowers it.
// Like OpRegistry, it is a process-wide singleton so pass factories can
// register rules at package init time; RegisterSimple/RegisterCustom
// follow last-writer-wins semantics on re-registration of the same name.
type OpConversionRegistry struct {
	mu    sync.RWMutex
	rules map[string]ConversionFunc
}

func NewOpConversionRegistry() *OpConversionRegistry {
	return &OpConversionRegistry{rules: make(map[string]ConversionFunc)}
}

// RegisterSimple registers a straight rename: fromOp lowers to a Call
// targeting toOp with the same (already-substituted) args and kwargs,
// typed the same way the op registry types every block op: by the first
// operand's type (a tensor.* op's first operand becomes a tile once
// loaded, so its block.* rename naturally comes out tile-typed).
func (r *OpConversionRegistry) RegisterSimple(fromOp, toOp string) {
	r.RegisterCustom(fromOp, func(args []ir.Expr, kwargs []ir.KwArg, span ir.Span) (ConversionResult, error) {
		var resultType ir.Type
		if len(args) > 0 {
			resultType = args[0].Type()
		}
		return ExprResult(&ir.Call{
			Target: ir.Op{Name: toOp},
			Args:   args,
			Kwargs: kwargs,
			TypeV:  resultType,
			SpanV:  span,
		}), nil
	})
}

// RegisterCustom registers an arbitrary rewrite rule for fromOp.
func (r *OpConversionRegistry) RegisterCustom(fromOp string, fn ConversionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[fromOp] = fn
}

// Lookup returns the registered rule for op, or nil if none is registered.
func (r *OpConversionRegistry) Lookup(op string) ConversionFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[op]
}

// HasConversion reports whether op has a registered rule.
func (r *OpConversionRegistry) HasConversion(op string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[op]
	return ok
}

var (
	defaultConvOnce sync.Once
	defaultConvReg  *OpConversionRegistry
)

// DefaultOpConversionRegistry returns the process-wide default registry,
// pre-populated with the tensor.*→block.* table below.
func DefaultOpConversionRegistry() *OpConversionRegistry {
	defaultConvOnce.Do(func() {
		defaultConvReg = NewOpConversionRegistry()
		for from, to := range defaultConversionTable {
			defaultConvReg.RegisterSimple(from, to)
		}
	})
	return defaultConvReg
}

// defaultConversionTable is the tensor.*→block.* mapping every op
// conversion registry is pre-populated with.
var defaultConversionTable = map[string]string{
	"tensor.add":        "block.add",
	"tensor.sub":        "block.sub",
	"tensor.mul":        "block.mul",
	"tensor.div":        "block.div",
	"tensor.maximum":    "block.maximum",
	"tensor.add_scalar": "block.adds",
	"tensor.sub_scalar": "block.subs",
	"tensor.mul_scalar": "block.muls",
	"tensor.div_scalar": "block.divs",
	"tensor.exp":        "block.exp",
	"tensor.cast":       "block.cast",
	"tensor.reshape":    "block.reshape",
	"tensor.transpose":  "block.transpose",
}
