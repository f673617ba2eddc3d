package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorpto/internal/ir"
	"tensorpto/internal/opregistry"
	"tensorpto/internal/transforms"
)

func float32TensorType(dim int64) *ir.TensorType {
	return &ir.TensorType{
		DType: ir.Float32,
		Shape: []ir.Expr{&ir.ConstInt{Value: dim, TypeV: &ir.ScalarType{DType: ir.Int64}}},
	}
}

func TestConvertTensorToBlockOpsLoadsRewritesAndStores(t *testing.T) {
	tensorType := float32TensorType(4)
	param := &ir.Var{Name: "t", TypeV: tensorType}

	kernel := &ir.Function{
		Name:       "kernel",
		Kind:       ir.InCore,
		Params:     []*ir.Var{param},
		ReturnType: tensorType,
		Body: &ir.ReturnStmt{
			Value: &ir.Call{Target: ir.Op{Name: "tensor.exp"}, Args: []ir.Expr{param}},
		},
	}
	prog := &ir.Program{Functions: []*ir.Function{kernel}}

	pass := transforms.ConvertTensorToBlockOps(opregistry.Default(), transforms.DefaultOpConversionRegistry())
	result, err := pass.Run(prog)
	require.NoError(t, err)

	newKernel := result.ByName("kernel")
	require.NotNil(t, newKernel)

	require.Len(t, newKernel.Params, 2, "the original tensor param stays and one output param is threaded on")
	assert.Same(t, param, newKernel.Params[0])
	outParam := newKernel.Params[1]
	assert.Equal(t, tensorType, outParam.TypeV)
	assert.Equal(t, tensorType, newKernel.ReturnType, "the function still returns the tensor the store wrote, not void")

	seq, ok := newKernel.Body.(*ir.SeqStmts)
	require.True(t, ok, "the load prologue must wrap the rewritten body")
	require.Len(t, seq.Stmts, 2)

	loadAssign, ok := seq.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	loadCall, ok := loadAssign.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "block.load", loadCall.Target.(ir.Op).Name)

	inner, ok := seq.Stmts[1].(*ir.SeqStmts)
	require.True(t, ok, "the store-before-return prologue must wrap the return")
	require.Len(t, inner.Stmts, 2)

	storeAssign, ok := inner.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok, "the store result is bound to a Var, not evaluated as a bare side effect")
	storeCall, ok := storeAssign.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "block.store", storeCall.Target.(ir.Op).Name)
	assert.Same(t, outParam, storeCall.Args[3])
	assert.Equal(t, tensorType, storeAssign.Var.TypeV, "the store's result is typed as the tensor it wrote into")

	finalReturn, ok := inner.Stmts[1].(*ir.ReturnStmt)
	require.True(t, ok)
	assert.Same(t, storeAssign.Var, finalReturn.Value, "the function returns the store result, not void")

	// The body's op call was rewritten from tensor.exp to block.exp and its
	// operand now references the loaded tile, not the original tensor param.
	rewrittenCall := storeCall.Args[0].(*ir.Call)
	assert.Equal(t, "block.exp", rewrittenCall.Target.(ir.Op).Name)
	assert.Same(t, loadAssign.Var, rewrittenCall.Args[0])
}

func TestConvertTensorToBlockOpsUpdatesCallSites(t *testing.T) {
	tensorType := float32TensorType(4)
	param := &ir.Var{Name: "t", TypeV: tensorType}

	kernel := &ir.Function{
		Name:       "kernel",
		Kind:       ir.InCore,
		Params:     []*ir.Var{param},
		ReturnType: tensorType,
		Body: &ir.ReturnStmt{
			Value: &ir.Call{Target: ir.Op{Name: "tensor.exp"}, Args: []ir.Expr{param}},
		},
	}

	xVar := &ir.Var{Name: "x", TypeV: tensorType}
	yVar := &ir.Var{Name: "y", TypeV: tensorType}
	host := &ir.Function{
		Name: "host",
		Kind: ir.Orchestration,
		Body: &ir.AssignStmt{
			Var:   yVar,
			Value: &ir.Call{Target: ir.GlobalVar{Name: "kernel"}, Args: []ir.Expr{xVar}},
		},
	}

	prog := &ir.Program{Functions: []*ir.Function{kernel, host}}
	pass := transforms.ConvertTensorToBlockOps(opregistry.Default(), transforms.DefaultOpConversionRegistry())
	result, err := pass.Run(prog)
	require.NoError(t, err)

	newHost := result.ByName("host")
	require.NotNil(t, newHost)

	seq, ok := newHost.Body.(*ir.SeqStmts)
	require.True(t, ok, "a tensor.create prologue must be inserted before the widened call")
	require.Len(t, seq.Stmts, 2)

	allocAssign, ok := seq.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	allocCall, ok := allocAssign.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "tensor.create", allocCall.Target.(ir.Op).Name)

	callAssign, ok := seq.Stmts[1].(*ir.AssignStmt)
	require.True(t, ok)
	assert.Same(t, yVar, callAssign.Var)
	widenedCall, ok := callAssign.Value.(*ir.Call)
	require.True(t, ok)
	require.Len(t, widenedCall.Args, 2, "the call site gains the freshly allocated output tensor")
	assert.Same(t, xVar, widenedCall.Args[0])
	assert.Same(t, allocAssign.Var, widenedCall.Args[1])
	assert.Equal(t, tensorType, widenedCall.Type(), "y is bound to the tensor the kernel computed, not a void call")
}

func TestConvertTensorToBlockOpsRetypesIntermediateAssignBeforeStoring(t *testing.T) {
	tensorType := float32TensorType(4)
	a := &ir.Var{Name: "a", TypeV: tensorType}
	c := &ir.Var{Name: "c", TypeV: tensorType}

	kernel := &ir.Function{
		Name:       "kernel",
		Kind:       ir.InCore,
		Params:     []*ir.Var{a},
		ReturnType: tensorType,
		Body: &ir.SeqStmts{Stmts: []ir.Stmt{
			&ir.AssignStmt{Var: c, Value: &ir.Call{Target: ir.Op{Name: "tensor.exp"}, Args: []ir.Expr{a}}},
			&ir.ReturnStmt{Value: c},
		}},
	}
	prog := &ir.Program{Functions: []*ir.Function{kernel}}

	pass := transforms.ConvertTensorToBlockOps(opregistry.Default(), transforms.DefaultOpConversionRegistry())
	result, err := pass.Run(prog)
	require.NoError(t, err)

	newKernel := result.ByName("kernel")
	require.NotNil(t, newKernel)
	assert.Equal(t, tensorType, newKernel.ReturnType, "the return value stays a tensor end to end")
	require.Len(t, newKernel.Params, 2, "one output param is threaded on for the stored tile")

	outer, ok := newKernel.Body.(*ir.SeqStmts)
	require.True(t, ok)
	require.Len(t, outer.Stmts, 2)

	_, ok = outer.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok, "the load prologue for a")

	middle, ok := outer.Stmts[1].(*ir.SeqStmts)
	require.True(t, ok)
	require.Len(t, middle.Stmts, 2)

	// c's declared type was tensor, but block.exp actually produces a tile;
	// the AssignStmt binding it must be retyped to match, not left stale.
	cAssign, ok := middle.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	_, isTile := cAssign.Var.TypeV.(*ir.TileType)
	assert.True(t, isTile, "the intermediate result is retyped to the tile it actually holds")
	assert.NotSame(t, c, cAssign.Var, "retyping replaces the Var rather than mutating the original")

	inner, ok := middle.Stmts[1].(*ir.SeqStmts)
	require.True(t, ok, "the store-before-return prologue must wrap the return")
	require.Len(t, inner.Stmts, 2)

	storeAssign, ok := inner.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	storeCall, ok := storeAssign.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "block.store", storeCall.Target.(ir.Op).Name)
	assert.Same(t, cAssign.Var, storeCall.Args[0], "the store flushes the retyped tile, not the stale tensor var")
	assert.Equal(t, tensorType, storeAssign.Var.TypeV)

	finalReturn, ok := inner.Stmts[1].(*ir.ReturnStmt)
	require.True(t, ok)
	assert.Same(t, storeAssign.Var, finalReturn.Value, "the function returns the store result, not void")
}

func TestConvertTensorToBlockOpsPassesThroughUnregisteredOp(t *testing.T) {
	tensorType := float32TensorType(4)
	x := &ir.Var{Name: "x", TypeV: tensorType}
	c := &ir.Var{Name: "c", TypeV: tensorType}

	kernel := &ir.Function{
		Name:       "kernel",
		Kind:       ir.InCore,
		Params:     []*ir.Var{x},
		ReturnType: tensorType,
		Body: &ir.SeqStmts{Stmts: []ir.Stmt{
			&ir.AssignStmt{Var: c, Value: &ir.Call{Target: ir.Op{Name: "tensor.unknown"}, Args: []ir.Expr{x}, TypeV: tensorType}},
			&ir.ReturnStmt{Value: c},
		}},
	}
	prog := &ir.Program{Functions: []*ir.Function{kernel}}

	pass := transforms.ConvertTensorToBlockOps(opregistry.Default(), transforms.DefaultOpConversionRegistry())
	result, err := pass.Run(prog)
	require.NoError(t, err)

	newKernel := result.ByName("kernel")
	require.NotNil(t, newKernel)
	require.Len(t, newKernel.Params, 1, "no output param is threaded on: nothing tile-typed was ever produced")
	assert.Equal(t, tensorType, newKernel.ReturnType)

	seq, ok := newKernel.Body.(*ir.SeqStmts)
	require.True(t, ok, "the load prologue for x still runs")
	require.Len(t, seq.Stmts, 2)

	inner, ok := seq.Stmts[1].(*ir.SeqStmts)
	require.True(t, ok, "no store-before-return prologue is inserted, but the rewrite still wraps in a SeqStmts")
	require.Len(t, inner.Stmts, 2)

	cAssign, ok := inner.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	assert.Same(t, c, cAssign.Var, "c keeps its declared tensor type: the op was never converted")

	unknownCall, ok := cAssign.Value.(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "tensor.unknown", unknownCall.Target.(ir.Op).Name, "an unregistered op is left unconverted")

	finalReturn, ok := inner.Stmts[1].(*ir.ReturnStmt)
	require.True(t, ok)
	assert.Same(t, c, finalReturn.Value, "the unconverted tensor value passes straight through, untouched")
}

func TestConvertTensorToBlockOpsDoesNotDescendIntoNestedControlFlow(t *testing.T) {
	tensorType := float32TensorType(4)
	param := &ir.Var{Name: "t", TypeV: tensorType}
	kernel := &ir.Function{
		Name:       "kernel",
		Kind:       ir.InCore,
		Params:     []*ir.Var{param},
		ReturnType: tensorType,
		Body: &ir.ReturnStmt{
			Value: &ir.Call{Target: ir.Op{Name: "tensor.exp"}, Args: []ir.Expr{param}},
		},
	}

	xVar := &ir.Var{Name: "x", TypeV: tensorType}
	yVar := &ir.Var{Name: "y", TypeV: tensorType}
	nestedCall := &ir.AssignStmt{
		Var:   yVar,
		Value: &ir.Call{Target: ir.GlobalVar{Name: "kernel"}, Args: []ir.Expr{xVar}},
	}
	host := &ir.Function{
		Name: "host",
		Kind: ir.Orchestration,
		Body: &ir.IfStmt{
			Cond: &ir.ConstInt{Value: 1, TypeV: &ir.ScalarType{DType: ir.Int64}},
			Then: nestedCall,
		},
	}

	prog := &ir.Program{Functions: []*ir.Function{kernel, host}}
	pass := transforms.ConvertTensorToBlockOps(opregistry.Default(), transforms.DefaultOpConversionRegistry())
	result, err := pass.Run(prog)
	require.NoError(t, err)

	newHost := result.ByName("host")
	ifStmt, ok := newHost.Body.(*ir.IfStmt)
	require.True(t, ok)
	assert.Same(t, nestedCall, ifStmt.Then, "call sites nested in an IfStmt are left untouched")
}
