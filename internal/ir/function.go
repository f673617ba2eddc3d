package ir

// FunctionKind classifies a Function by where it executes, which in turn
// determines which passes may touch it. ConvertTensorToBlockOps only
// rewrites InCore bodies; Orchestration and Opaque functions are only
// ever touched at their call sites (Phase 2 of ConvertTensorToBlockOps
// updates calls from non-InCore functions into freshly-reshaped InCore
// ones).
type FunctionKind int

const (
	// Opaque functions are any functions not classified as Orchestration
	// or InCore. Their bodies (if present) are not lowered, but call sites
	// inside them are updated like those in Orchestration functions.
	Opaque FunctionKind = iota
	// Orchestration functions run on the host and may call InCore functions.
	Orchestration
	// InCore functions run on-device over tensor/tile-typed operands and are
	// the target of tensor-to-block-op lowering.
	InCore
)

func (k FunctionKind) String() string {
	switch k {
	case Opaque:
		return "opaque"
	case Orchestration:
		return "orchestration"
	case InCore:
		return "incore"
	default:
		return "invalid"
	}
}

// Function is a single named function in a Program: a parameter list, a
// return type, and (for non-Opaque functions) a body statement.
type Function struct {
	Name       string
	Kind       FunctionKind
	Params     []*Var
	ReturnType Type
	Body       Stmt
	SpanV      Span
}

func (*Function) irNode()      {}
func (f *Function) Span() Span { return f.SpanV }

// ParamTypes returns the types of the function's parameters, in order.
func (f *Function) ParamTypes() []Type {
	types := make([]Type, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.TypeV
	}
	return types
}

// WithBody returns a shallow copy of f with Body replaced. Functions are
// immutable once built; passes that rewrite a function's body do so by
// constructing a new *Function rather than mutating the existing one, so
// that any Program still holding the old *Function is unaffected.
func (f *Function) WithBody(body Stmt) *Function {
	clone := *f
	clone.Body = body
	return &clone
}

// WithParams returns a shallow copy of f with Params and ReturnType
// replaced, used when a pass threads new parameters or a new return shape
// through a function (e.g. ConvertTensorToBlockOps adding output params).
func (f *Function) WithParams(params []*Var, returnType Type) *Function {
	clone := *f
	clone.Params = params
	clone.ReturnType = returnType
	return &clone
}

var _ Node = (*Function)(nil)
