package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorpto/internal/ir"
	"tensorpto/internal/transforms"
)

func TestDefaultConversionTableCoversTensorOps(t *testing.T) {
	reg := transforms.DefaultOpConversionRegistry()
	cases := map[string]string{
		"tensor.add":       "block.add",
		"tensor.exp":       "block.exp",
		"tensor.transpose": "block.transpose",
	}
	for from, to := range cases {
		require.True(t, reg.HasConversion(from))
		fn := reg.Lookup(from)
		require.NotNil(t, fn)
		result, err := fn(nil, nil, ir.Span{})
		require.NoError(t, err)
		call, ok := result.Result.(*ir.Call)
		require.True(t, ok)
		op, ok := call.Target.(ir.Op)
		require.True(t, ok)
		assert.Equal(t, to, op.Name)
	}

	assert.False(t, reg.HasConversion("tensor.unknown"))
}

func TestRegisterCustomOverridesRegisterSimple(t *testing.T) {
	reg := transforms.NewOpConversionRegistry()
	reg.RegisterSimple("tensor.foo", "block.foo")

	called := false
	reg.RegisterCustom("tensor.foo", func(args []ir.Expr, kwargs []ir.KwArg, span ir.Span) (transforms.ConversionResult, error) {
		called = true
		return transforms.ExprResult(&ir.ConstInt{Value: 0}), nil
	})

	fn := reg.Lookup("tensor.foo")
	require.NotNil(t, fn)
	_, err := fn(nil, nil, ir.Span{})
	require.NoError(t, err)
	assert.True(t, called, "the later registration must win")
}
