package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Var is a reference to a named value: a function parameter, a let-bound
// local, or a loop induction variable. Two Var nodes are the same binding
// only if they share identity (or, under structural comparison with
// enable_auto_mapping, occupy the same position in parallel binder scopes).
type Var struct {
	Name  string
	TypeV Type
	SpanV Span
}

func (*Var) irNode()      {}
func (v *Var) Span() Span { return v.SpanV }
func (v *Var) Type() Type { return v.TypeV }

// ConstInt is an integer literal.
type ConstInt struct {
	Value int64
	TypeV Type
	SpanV Span
}

func (*ConstInt) irNode()      {}
func (c *ConstInt) Span() Span { return c.SpanV }
func (c *ConstInt) Type() Type { return c.TypeV }

// ConstFloat is a floating-point literal.
type ConstFloat struct {
	Value float64
	TypeV Type
	SpanV Span
}

func (*ConstFloat) irNode()      {}
func (c *ConstFloat) Span() Span { return c.SpanV }
func (c *ConstFloat) Type() Type { return c.TypeV }

// BinaryOp enumerates the scalar binary operators. Binary/unary expressions
// only ever appear over scalar operands: tensor/tile arithmetic is always
// expressed as an Op Call, never as a BinaryExpr. SubstituteExpr treats
// this as an internal invariant: it recurses into both operands only to
// check that substituting a tensor/tile variable leaves them unchanged,
// and reports an internal error if it would not.
type BinaryOp int

const (
	InvalidBinaryOp BinaryOp = iota
	Add
	Sub
	Mul
	Div
	Mod
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
	And
	Or
)

func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case Eq:
		return "=="
	case Ne:
		return "!="
	case And:
		return "&&"
	case Or:
		return "||"
	default:
		return "?"
	}
}

// BinaryExpr is a scalar binary operation. See BinaryOp for the invariant
// that its operands are always scalar-typed.
type BinaryExpr struct {
	Op    BinaryOp
	LHS   Expr
	RHS   Expr
	TypeV Type
	SpanV Span
}

func (*BinaryExpr) irNode()      {}
func (b *BinaryExpr) Span() Span { return b.SpanV }
func (b *BinaryExpr) Type() Type { return b.TypeV }

// UnaryOp enumerates the scalar unary operators.
type UnaryOp int

const (
	InvalidUnaryOp UnaryOp = iota
	Neg
	Not
)

func (op UnaryOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Not:
		return "!"
	default:
		return "?"
	}
}

// UnaryExpr is a scalar unary operation. Like BinaryExpr, its operand is
// always scalar-typed.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
	TypeV   Type
	SpanV   Span
}

func (*UnaryExpr) irNode()      {}
func (u *UnaryExpr) Span() Span { return u.SpanV }
func (u *UnaryExpr) Type() Type { return u.TypeV }

// KwValueKind tags the variant held by a KwValue.
type KwValueKind int

const (
	InvalidKwValue KwValueKind = iota
	KwMemorySpace
	KwDataType
	KwInt
	KwFloat
	KwString
	KwBool
)

// KwValue is a small tagged union for op keyword argument values: a
// keyword argument to an op conversion is always one of a memory space, a
// data type, or a scalar literal, so a closed sum type is a better fit
// for Go than an `any`-typed map that every caller would need to
// type-switch on anyway.
type KwValue struct {
	Kind        KwValueKind
	MemorySpace MemorySpace
	DataType    DataType
	IntVal      int64
	FloatVal    float64
	StringVal   string
	BoolVal     bool
}

func KwFromMemorySpace(m MemorySpace) KwValue { return KwValue{Kind: KwMemorySpace, MemorySpace: m} }
func KwFromDataType(d DataType) KwValue       { return KwValue{Kind: KwDataType, DataType: d} }
func KwFromInt(v int64) KwValue               { return KwValue{Kind: KwInt, IntVal: v} }
func KwFromFloat(v float64) KwValue           { return KwValue{Kind: KwFloat, FloatVal: v} }
func KwFromString(v string) KwValue           { return KwValue{Kind: KwString, StringVal: v} }
func KwFromBool(v bool) KwValue               { return KwValue{Kind: KwBool, BoolVal: v} }

func (v KwValue) Equal(other KwValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KwMemorySpace:
		return v.MemorySpace == other.MemorySpace
	case KwDataType:
		return v.DataType == other.DataType
	case KwInt:
		return v.IntVal == other.IntVal
	case KwFloat:
		return v.FloatVal == other.FloatVal
	case KwString:
		return v.StringVal == other.StringVal
	case KwBool:
		return v.BoolVal == other.BoolVal
	default:
		return true
	}
}

func (v KwValue) String() string {
	switch v.Kind {
	case KwMemorySpace:
		return v.MemorySpace.String()
	case KwDataType:
		return v.DataType.String()
	case KwInt:
		return strconv.FormatInt(v.IntVal, 10)
	case KwFloat:
		return strconv.FormatFloat(v.FloatVal, 'g', -1, 64)
	case KwString:
		return strconv.Quote(v.StringVal)
	case KwBool:
		return strconv.FormatBool(v.BoolVal)
	default:
		return "<invalid-kwvalue>"
	}
}

// KwArg is a single name/value keyword argument attached to a Call.
type KwArg struct {
	Name  string
	Value KwValue
}

// CallTarget is what a Call invokes: either a named Op (resolved through
// the op-conversion/op registries by name) or a GlobalVar (a direct
// reference to another Function in the same Program). Sealed the same way
// Node is, via an unexported marker method.
type CallTarget interface {
	callTarget()
	String() string
}

// Op is a call target naming an operation by its registered name
// (e.g. "tensor.add", "block.load"). Op names, not Op node identity, are
// what op-conversion and op-registry lookups key on.
type Op struct {
	Name string
}

func (Op) callTarget()      {}
func (o Op) String() string { return o.Name }

// GlobalVar is a call target referencing another function in the same
// Program by name.
type GlobalVar struct {
	Name string
}

func (GlobalVar) callTarget()      {}
func (g GlobalVar) String() string { return g.Name }

// Call invokes a CallTarget with positional argument expressions and
// keyword arguments.
type Call struct {
	Target CallTarget
	Args   []Expr
	Kwargs []KwArg
	TypeV  Type
	SpanV  Span
}

func (*Call) irNode()      {}
func (c *Call) Span() Span { return c.SpanV }
func (c *Call) Type() Type { return c.TypeV }

// KwLookup returns the value of the named keyword argument and true, or
// the zero KwValue and false if it is not present.
func (c *Call) KwLookup(name string) (KwValue, bool) {
	for _, kw := range c.Kwargs {
		if kw.Name == name {
			return kw.Value, true
		}
	}
	return KwValue{}, false
}

// MakeTuple constructs a tuple value from its element expressions.
type MakeTuple struct {
	Elements []Expr
	TypeV    Type
	SpanV    Span
}

func (*MakeTuple) irNode()      {}
func (m *MakeTuple) Span() Span { return m.SpanV }
func (m *MakeTuple) Type() Type { return m.TypeV }

// TupleGetItemExpr projects a single element out of a tuple-typed
// expression by static index.
type TupleGetItemExpr struct {
	Tuple Expr
	Index int
	TypeV Type
	SpanV Span
}

func (*TupleGetItemExpr) irNode()      {}
func (t *TupleGetItemExpr) Span() Span { return t.SpanV }
func (t *TupleGetItemExpr) Type() Type { return t.TypeV }

var (
	_ Expr = (*Var)(nil)
	_ Expr = (*ConstInt)(nil)
	_ Expr = (*ConstFloat)(nil)
	_ Expr = (*BinaryExpr)(nil)
	_ Expr = (*UnaryExpr)(nil)
	_ Expr = (*Call)(nil)
	_ Expr = (*MakeTuple)(nil)
	_ Expr = (*TupleGetItemExpr)(nil)

	_ CallTarget = Op{}
	_ CallTarget = GlobalVar{}
)

// ExprString renders a compact, non-recursive-explosion-prone textual form
// of an expression for use in diagnostics and structural-mismatch messages.
// It is not a general pretty-printer: nested Call/tuple structure is shown,
// but no attempt is made at operator precedence or line wrapping.
func ExprString(e Expr) string {
	switch n := e.(type) {
	case nil:
		return "<nil>"
	case *Var:
		return n.Name
	case *ConstInt:
		return strconv.FormatInt(n.Value, 10)
	case *ConstFloat:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", ExprString(n.LHS), n.Op, ExprString(n.RHS))
	case *UnaryExpr:
		return fmt.Sprintf("(%s%s)", n.Op, ExprString(n.Operand))
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = ExprString(a)
		}
		kwargs := make([]string, len(n.Kwargs))
		for i, kw := range n.Kwargs {
			kwargs[i] = fmt.Sprintf("%s=%s", kw.Name, kw.Value)
		}
		all := append(args, kwargs...)
		return fmt.Sprintf("%s(%s)", n.Target, strings.Join(all, ", "))
	case *MakeTuple:
		parts := make([]string, len(n.Elements))
		for i, el := range n.Elements {
			parts[i] = ExprString(el)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *TupleGetItemExpr:
		return fmt.Sprintf("%s[%d]", ExprString(n.Tuple), n.Index)
	default:
		return fmt.Sprintf("<unknown-expr %T>", e)
	}
}
