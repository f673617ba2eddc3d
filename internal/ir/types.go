package ir

import (
	"fmt"
	"strings"
)

// ScalarType is the type of a bare scalar value (e.g. a loop bound or a
// kwarg literal), as opposed to an array-shaped tensor/tile.
type ScalarType struct {
	DType DataType
	SpanV Span
}

func (*ScalarType) irNode()          {}
func (t *ScalarType) Span() Span     { return t.SpanV }
func (*ScalarType) Kind() TypeKind   { return ScalarTypeKind }
func (t *ScalarType) String() string { return t.DType.String() }

// TensorType is the type of a value residing in global/host (DDR) memory,
// shaped by an ordered sequence of size expressions.
type TensorType struct {
	DType DataType
	Shape []Expr
	SpanV Span
}

func (*TensorType) irNode()      {}
func (t *TensorType) Span() Span { return t.SpanV }
func (*TensorType) Kind() TypeKind {
	return TensorTypeKind
}
func (t *TensorType) String() string {
	return fmt.Sprintf("Tensor[%s, %s]", t.DType, shapeString(t.Shape))
}

// TileType is the type of a value residing in a named on-chip memory
// region, produced by lowering a TensorType through block.load.
type TileType struct {
	DType       DataType
	Shape       []Expr
	MemorySpace MemorySpace
	SpanV       Span
}

func (*TileType) irNode()        {}
func (t *TileType) Span() Span   { return t.SpanV }
func (*TileType) Kind() TypeKind { return TileTypeKind }
func (t *TileType) String() string {
	return fmt.Sprintf("Tile[%s, %s, %s]", t.DType, shapeString(t.Shape), t.MemorySpace)
}

// TupleType is the type of a value carrying more than one component,
// e.g. the result of a function returning multiple values.
type TupleType struct {
	Elements []Type
	SpanV    Span
}

func (*TupleType) irNode()        {}
func (t *TupleType) Span() Span   { return t.SpanV }
func (*TupleType) Kind() TypeKind { return TupleTypeKind }
func (t *TupleType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MemRefType is an opaque handle type produced by memory-planning passes
// (InitMemRef, AddAlloc). Its internal representation is not part of the
// pedagogical core; it is carried as an opaque tag so those passes have a
// real result type to attach to variables.
type MemRefType struct {
	MemorySpace MemorySpace
	SpanV       Span
}

func (*MemRefType) irNode()        {}
func (t *MemRefType) Span() Span   { return t.SpanV }
func (*MemRefType) Kind() TypeKind { return MemRefTypeKind }
func (t *MemRefType) String() string {
	return fmt.Sprintf("MemRef[%s]", t.MemorySpace)
}

func shapeString(shape []Expr) string {
	parts := make([]string, len(shape))
	for i, e := range shape {
		parts[i] = ExprString(e)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

var (
	_ Type = (*ScalarType)(nil)
	_ Type = (*TensorType)(nil)
	_ Type = (*TileType)(nil)
	_ Type = (*TupleType)(nil)
	_ Type = (*MemRefType)(nil)
)
