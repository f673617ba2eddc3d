// Package transforms implements the pass framework: the IR property
// lattice, Pass and PassPipeline, property verifiers, the op-conversion
// registry, variable substitution, the ConvertTensorToBlockOps lowering,
// and structural hash/equal.
package transforms

// Property is a declarative tag describing something true (or made true,
// or no longer true) of a Program: the vocabulary passes use to declare
// what they need and what they change, so a PassPipeline can check
// preconditions and track invalidation without running a full verifier
// pass between every step.
type Property string

const (
	TypeChecked             Property = "TypeChecked"
	SSAForm                 Property = "SSAForm"
	NoNestedCalls           Property = "NoNestedCalls"
	NormalizedStmtStructure Property = "NormalizedStmtStructure"
	FlattenedSingleStmt     Property = "FlattenedSingleStmt"
	SplitIncoreOrch         Property = "SplitIncoreOrch"
	HasMemRefs              Property = "HasMemRefs"
	IncoreBlockOps          Property = "IncoreBlockOps"
)

// PropertySet is an unordered set of Property tags.
type PropertySet map[Property]struct{}

// NewPropertySet builds a PropertySet from the given properties.
func NewPropertySet(props ...Property) PropertySet {
	s := make(PropertySet, len(props))
	for _, p := range props {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is a member of s.
func (s PropertySet) Has(p Property) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p into s, returning s for chaining.
func (s PropertySet) Add(p Property) PropertySet {
	s[p] = struct{}{}
	return s
}

// Remove deletes p from s, returning s for chaining.
func (s PropertySet) Remove(p Property) PropertySet {
	delete(s, p)
	return s
}

// Clone returns an independent copy of s.
func (s PropertySet) Clone() PropertySet {
	clone := make(PropertySet, len(s))
	for p := range s {
		clone[p] = struct{}{}
	}
	return clone
}

// Union returns a new PropertySet containing every property in s or other.
func (s PropertySet) Union(other PropertySet) PropertySet {
	out := s.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Subtract returns a new PropertySet containing every property in s not
// present in other.
func (s PropertySet) Subtract(other PropertySet) PropertySet {
	out := s.Clone()
	for p := range other {
		delete(out, p)
	}
	return out
}

// Missing returns the properties in required that are absent from s.
func (s PropertySet) Missing(required PropertySet) []Property {
	var missing []Property
	for p := range required {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// PassProperties records a pass's contract with the property lattice: the
// properties it requires holding on entry, the ones it guarantees on
// exit, and the ones it invalidates (properties that held before running
// the pass but are no longer guaranteed to hold after).
type PassProperties struct {
	Required    PropertySet
	Produced    PropertySet
	Invalidated PropertySet
}

// Apply returns the PropertySet that results from running a pass with
// these properties against a program that currently has current.
func (pp PassProperties) Apply(current PropertySet) PropertySet {
	return current.Subtract(pp.Invalidated).Union(pp.Produced)
}

// The properties of every built-in pass, fixed here so pipeline property
// tracking (and its precondition checks) behaves consistently across a
// full pipeline run.
var (
	ConvertToSSAProperties = PassProperties{
		Required:    NewPropertySet(TypeChecked),
		Produced:    NewPropertySet(SSAForm),
		Invalidated: NewPropertySet(NormalizedStmtStructure, FlattenedSingleStmt),
	}
	FlattenCallExprProperties = PassProperties{
		Required:    NewPropertySet(TypeChecked),
		Produced:    NewPropertySet(NoNestedCalls),
		Invalidated: NewPropertySet(NormalizedStmtStructure, FlattenedSingleStmt),
	}
	NormalizeStmtStructureProperties = PassProperties{
		Required:    NewPropertySet(TypeChecked),
		Produced:    NewPropertySet(NormalizedStmtStructure),
		Invalidated: NewPropertySet(FlattenedSingleStmt),
	}
	FlattenSingleStmtProperties = PassProperties{
		Required:    NewPropertySet(TypeChecked),
		Produced:    NewPropertySet(FlattenedSingleStmt),
		Invalidated: NewPropertySet(NormalizedStmtStructure),
	}
	OutlineIncoreScopesProperties = PassProperties{
		Required: NewPropertySet(SSAForm),
		Produced: NewPropertySet(SplitIncoreOrch),
	}
	ConvertTensorToBlockOpsProperties = PassProperties{
		Required: NewPropertySet(SplitIncoreOrch),
		Produced: NewPropertySet(IncoreBlockOps),
	}
	InitMemRefProperties = PassProperties{
		Required: NewPropertySet(SSAForm),
		Produced: NewPropertySet(HasMemRefs),
	}
	BasicMemoryReuseProperties = PassProperties{
		Required: NewPropertySet(HasMemRefs),
	}
	InsertSyncProperties = PassProperties{
		Required: NewPropertySet(HasMemRefs),
	}
	AddAllocProperties = PassProperties{
		Required: NewPropertySet(HasMemRefs),
	}
	// IdentityProperties is an empty contract given explicitly (Identity
	// is a demonstration pass with no real property contract) so it
	// participates in pipeline tracking like every other pass rather
	// than being special-cased.
	IdentityProperties = PassProperties{}
	// RunVerifierProperties requires nothing and changes nothing in the
	// property lattice; it is a pure side-effecting checkpoint.
	RunVerifierProperties = PassProperties{}
)
