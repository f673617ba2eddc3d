package serialization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorpto/internal/ir"
	"tensorpto/internal/serialization"
	"tensorpto/internal/transforms"
)

func TestSerializeDeserializeRoundTripsStructurally(t *testing.T) {
	x := &ir.Var{Name: "x", TypeV: &ir.ScalarType{DType: ir.Int64}}
	fn := &ir.Function{
		Name:       "f",
		Kind:       ir.Orchestration,
		Params:     []*ir.Var{x},
		ReturnType: &ir.ScalarType{DType: ir.Int64},
		Body: &ir.ReturnStmt{
			Value: &ir.BinaryExpr{Op: ir.Add, LHS: x, RHS: &ir.ConstInt{Value: 1}},
		},
	}

	data, err := serialization.Serialize(fn)
	require.NoError(t, err)

	decoded, err := serialization.Deserialize(data)
	require.NoError(t, err)

	assert.True(t, transforms.StructuralEqual(fn, decoded, false))
}

func TestSerializeDeserializePreservesSharedVarIdentity(t *testing.T) {
	shared := &ir.Var{Name: "x", TypeV: &ir.ScalarType{DType: ir.Int64}}
	fn := &ir.Function{
		Name:       "f",
		Kind:       ir.Orchestration,
		Params:     []*ir.Var{shared},
		ReturnType: &ir.ScalarType{DType: ir.Int64},
		Body: &ir.ReturnStmt{
			Value: &ir.BinaryExpr{Op: ir.Add, LHS: shared, RHS: shared},
		},
	}

	data, err := serialization.Serialize(fn)
	require.NoError(t, err)

	decoded, err := serialization.Deserialize(data)
	require.NoError(t, err)

	decodedFn := decoded.(*ir.Function)
	bin := decodedFn.Body.(*ir.ReturnStmt).Value.(*ir.BinaryExpr)
	assert.Same(t, decodedFn.Params[0], bin.LHS, "the two occurrences of the shared Var must decode to the same pointer")
	assert.Same(t, bin.LHS, bin.RHS)
}

func TestSerializeRoundTripsProgram(t *testing.T) {
	fn := &ir.Function{
		Name:       "identity",
		Kind:       ir.Orchestration,
		ReturnType: &ir.ScalarType{DType: ir.Int64},
		Body:       &ir.ReturnStmt{Value: &ir.ConstInt{Value: 42}},
	}
	prog := &ir.Program{Functions: []*ir.Function{fn}}

	data, err := serialization.Serialize(prog)
	require.NoError(t, err)

	decoded, err := serialization.Deserialize(data)
	require.NoError(t, err)

	decodedProg, ok := decoded.(*ir.Program)
	require.True(t, ok)
	require.Len(t, decodedProg.Functions, 1)
	assert.Equal(t, "identity", decodedProg.Functions[0].Name)
	assert.True(t, transforms.StructuralEqual(prog, decodedProg, false))
}
