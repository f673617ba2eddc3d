package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tensorpto/internal/ir"
)

func TestKwValueEqualAndString(t *testing.T) {
	a := ir.KwFromMemorySpace(ir.UB)
	b := ir.KwFromMemorySpace(ir.UB)
	c := ir.KwFromMemorySpace(ir.DDR)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "UB", a.String())

	assert.Equal(t, "42", ir.KwFromInt(42).String())
	assert.Equal(t, `"tag"`, ir.KwFromString("tag").String())
}

func TestCallKwLookup(t *testing.T) {
	call := &ir.Call{
		Target: ir.Op{Name: "block.load"},
		Kwargs: []ir.KwArg{{Name: "memory_space", Value: ir.KwFromMemorySpace(ir.UB)}},
	}
	v, ok := call.KwLookup("memory_space")
	assert.True(t, ok)
	assert.Equal(t, ir.UB, v.MemorySpace)

	_, ok = call.KwLookup("missing")
	assert.False(t, ok)
}

func TestExprString(t *testing.T) {
	x := &ir.Var{Name: "x"}
	y := &ir.ConstInt{Value: 3}
	bin := &ir.BinaryExpr{Op: ir.Add, LHS: x, RHS: y}
	assert.Equal(t, "(x + 3)", ir.ExprString(bin))

	call := &ir.Call{Target: ir.Op{Name: "tensor.add"}, Args: []ir.Expr{x, y}}
	assert.Equal(t, "tensor.add(x, 3)", ir.ExprString(call))

	tuple := &ir.MakeTuple{Elements: []ir.Expr{x, y}}
	assert.Equal(t, "(x, 3)", ir.ExprString(tuple))

	proj := &ir.TupleGetItemExpr{Tuple: tuple, Index: 1}
	assert.Equal(t, "(x, 3)[1]", ir.ExprString(proj))
}
