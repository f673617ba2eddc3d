package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tensorpto/internal/ir"
	"tensorpto/internal/transforms"
)

func addExpr(a, b ir.Expr) *ir.BinaryExpr {
	return &ir.BinaryExpr{Op: ir.Add, LHS: a, RHS: b, TypeV: &ir.ScalarType{DType: ir.Int64}}
}

func TestStructuralEqualIgnoresSpan(t *testing.T) {
	a := &ir.ConstInt{Value: 3, SpanV: ir.Span{Line: 1}}
	b := &ir.ConstInt{Value: 3, SpanV: ir.Span{Line: 99}}
	assert.True(t, transforms.StructuralEqual(a, b, false))
	assert.Equal(t, transforms.StructuralHash(a, false), transforms.StructuralHash(b, false))
}

func TestStructuralEqualDistinguishesDifferentValues(t *testing.T) {
	a := &ir.ConstInt{Value: 3}
	b := &ir.ConstInt{Value: 4}
	assert.False(t, transforms.StructuralEqual(a, b, false))
}

func TestStructuralEqualImpliesEqualHash(t *testing.T) {
	x := &ir.Var{Name: "x"}
	a := addExpr(x, &ir.ConstInt{Value: 1})
	b := addExpr(x, &ir.ConstInt{Value: 1})

	require := assert.New(t)
	require.True(transforms.StructuralEqual(a, b, false))
	require.Equal(transforms.StructuralHash(a, false), transforms.StructuralHash(b, false))
}

func TestStructuralEqualComparesFreeVarsByNameAndType(t *testing.T) {
	scalarInt := &ir.ScalarType{DType: ir.Int64}

	x1 := &ir.Var{Name: "x", TypeV: scalarInt}
	x2 := &ir.Var{Name: "x", TypeV: scalarInt}
	assert.True(t, transforms.StructuralEqual(x1, x2, false), "without auto-mapping, two distinct Vars with the same name and type are still equal")

	renamed := &ir.Var{Name: "y", TypeV: scalarInt}
	assert.False(t, transforms.StructuralEqual(x1, renamed, false), "a different name makes two Vars unequal")

	retyped := &ir.Var{Name: "x", TypeV: &ir.ScalarType{DType: ir.Float32}}
	assert.False(t, transforms.StructuralEqual(x1, retyped, false), "a different type makes two Vars unequal even with the same name")
}

func TestStructuralEqualAutoMappingIsAlphaEquivalence(t *testing.T) {
	scalarInt := &ir.ScalarType{DType: ir.Int64}

	x := &ir.Var{Name: "x", TypeV: scalarInt}
	fnA := &ir.Function{
		Name:   "f",
		Kind:   ir.Orchestration,
		Params: []*ir.Var{x},
		Body:   &ir.ReturnStmt{Value: addExpr(x, &ir.ConstInt{Value: 1})},
	}

	y := &ir.Var{Name: "y", TypeV: scalarInt}
	fnB := &ir.Function{
		Name:   "g",
		Kind:   ir.Orchestration,
		Params: []*ir.Var{y},
		Body:   &ir.ReturnStmt{Value: addExpr(y, &ir.ConstInt{Value: 1})},
	}

	assert.False(t, transforms.StructuralEqual(fnA, fnB, false), "different names/identities without auto-mapping must differ")
	assert.True(t, transforms.StructuralEqual(fnA, fnB, true), "auto-mapping treats parallel binding positions as equivalent")
	assert.Equal(t, transforms.StructuralHash(fnA, true), transforms.StructuralHash(fnB, true))
}

func TestAssertStructuralEqualReportsMismatch(t *testing.T) {
	a := &ir.ConstInt{Value: 1}
	b := &ir.ConstInt{Value: 2}
	err := transforms.AssertStructuralEqual(a, b, false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "structural mismatch")

	assert.NoError(t, transforms.AssertStructuralEqual(a, a, false))
}
