package opregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorpto/internal/ir"
	"tensorpto/internal/opregistry"
)

func TestDefaultRegistryHasCoreOps(t *testing.T) {
	reg := opregistry.Default()

	assert.True(t, reg.IsRegistered("tensor.add"))
	assert.True(t, reg.IsRegistered("block.load"))
	assert.True(t, reg.IsRegistered("block.store"))
	assert.False(t, reg.IsRegistered("no.such.op"))

	entry, ok := reg.GetEntry("tensor.add")
	require.True(t, ok)
	assert.Equal(t, opregistry.TensorOp, entry.Category)

	blockEntry, ok := reg.GetEntry("block.add")
	require.True(t, ok)
	assert.Equal(t, opregistry.BlockOp, blockEntry.Category)
}

func TestCreateUnregisteredOpFails(t *testing.T) {
	reg := opregistry.New()
	_, err := reg.Create("no.such.op", nil, nil, ir.Span{})
	assert.Error(t, err)
}

func TestCreateBlockLoadInfersTileType(t *testing.T) {
	reg := opregistry.Default()
	tensorShape := []ir.Expr{&ir.ConstInt{Value: 4}}
	tensorArg := &ir.Var{Name: "t", TypeV: &ir.TensorType{DType: ir.Float32, Shape: tensorShape}}
	offsets := &ir.MakeTuple{Elements: []ir.Expr{&ir.ConstInt{Value: 0}}}
	shapes := &ir.MakeTuple{Elements: []ir.Expr{&ir.ConstInt{Value: 4}}}

	call, err := reg.Create("block.load", []ir.Expr{tensorArg, offsets, shapes}, []ir.KwArg{
		{Name: "memory_space", Value: ir.KwFromMemorySpace(ir.UB)},
	}, ir.Span{})
	require.NoError(t, err)

	tile, ok := call.Type().(*ir.TileType)
	require.True(t, ok)
	assert.Equal(t, ir.Float32, tile.DType)
	assert.Equal(t, ir.UB, tile.MemorySpace)
	assert.Equal(t, tensorShape, tile.Shape, "the tile carries the source tensor's shape, not an empty one")
}

func TestRegisterLastWriterWins(t *testing.T) {
	reg := opregistry.New()
	reg.Register(opregistry.Entry{Name: "custom.op", Category: opregistry.MemOp})
	reg.Register(opregistry.Entry{Name: "custom.op", Category: opregistry.BlockOp})

	entry, ok := reg.GetEntry("custom.op")
	require.True(t, ok)
	assert.Equal(t, opregistry.BlockOp, entry.Category)
}
