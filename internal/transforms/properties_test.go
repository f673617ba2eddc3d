package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tensorpto/internal/transforms"
)

func TestPropertySetOperations(t *testing.T) {
	s := transforms.NewPropertySet(transforms.TypeChecked, transforms.SSAForm)
	assert.True(t, s.Has(transforms.TypeChecked))
	assert.False(t, s.Has(transforms.HasMemRefs))

	s2 := s.Union(transforms.NewPropertySet(transforms.HasMemRefs))
	assert.True(t, s2.Has(transforms.HasMemRefs))
	assert.False(t, s.Has(transforms.HasMemRefs), "Union must not mutate the receiver")

	s3 := s2.Subtract(transforms.NewPropertySet(transforms.SSAForm))
	assert.False(t, s3.Has(transforms.SSAForm))
	assert.True(t, s3.Has(transforms.TypeChecked))

	missing := transforms.NewPropertySet().Missing(transforms.NewPropertySet(transforms.SSAForm, transforms.HasMemRefs))
	assert.ElementsMatch(t, []transforms.Property{transforms.SSAForm, transforms.HasMemRefs}, missing)
}

func TestPassPropertiesApply(t *testing.T) {
	current := transforms.NewPropertySet(transforms.TypeChecked, transforms.NormalizedStmtStructure)
	next := transforms.ConvertToSSAProperties.Apply(current)

	assert.True(t, next.Has(transforms.SSAForm))
	assert.True(t, next.Has(transforms.TypeChecked))
	assert.False(t, next.Has(transforms.NormalizedStmtStructure), "ConvertToSSA invalidates NormalizedStmtStructure")
}

func TestConvertTensorToBlockOpsPropertiesRequireSplitIncoreOrch(t *testing.T) {
	assert.True(t, transforms.ConvertTensorToBlockOpsProperties.Required.Has(transforms.SplitIncoreOrch))
	assert.True(t, transforms.ConvertTensorToBlockOpsProperties.Produced.Has(transforms.IncoreBlockOps))
}
