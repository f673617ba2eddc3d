package irerrs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tensorpto/internal/irerrs"
)

func TestInternalProducesInternalError(t *testing.T) {
	err := irerrs.Internal("bad invariant")
	assert.Equal(t, "bad invariant", err.Error())
	assert.True(t, irerrs.IsInternal(err))
}

func TestInternalfFormats(t *testing.T) {
	err := irerrs.Internalf("unexpected type %s", "TensorType")
	assert.Equal(t, "unexpected type TensorType", err.Error())
	assert.True(t, irerrs.IsInternal(err))
}

func TestWrapPrefixesCauseMessage(t *testing.T) {
	cause := errors.New("boom")
	err := irerrs.Wrap(cause, "loading tile")
	assert.True(t, irerrs.IsInternal(err))
	assert.Contains(t, err.Error(), "loading tile")
	assert.Contains(t, err.Error(), "boom")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, irerrs.Wrap(nil, "loading tile"))
}

func TestIsInternalRejectsPlainErrors(t *testing.T) {
	assert.False(t, irerrs.IsInternal(errors.New("plain")))
}
