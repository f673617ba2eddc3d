package transforms

import "tensorpto/internal/ir"

// TransformFunc rewrites a single function, returning the replacement
// function (or the same pointer if nothing changed) and an error if the
// function could not be transformed.
type TransformFunc func(fn *ir.Function, prog *ir.Program) (*ir.Function, error)

// ProgramFunc rewrites a whole program at once, for passes whose
// transformation is not naturally expressed per-function (e.g.
// ConvertTensorToBlockOps' call-site update phase, which needs to see
// every function to find callers of a rewritten one).
type ProgramFunc func(prog *ir.Program) (*ir.Program, error)

// Pass is a named, self-describing unit of IR transformation. It is a
// plain, copy-cheap struct rather than a pointer-hidden implementation
// class: Go values are cheap to copy and there is no ABI-stability reason
// to hide behind an interface, so Pass is a concrete struct whose name,
// PassProperties and run function are reached through the Name,
// Properties and Run methods.
type Pass struct {
	name       string
	properties PassProperties
	run        ProgramFunc
}

// Name returns the pass's registered name.
func (p Pass) Name() string { return p.name }

// Properties returns the pass's required/produced/invalidated property
// contract.
func (p Pass) Properties() PassProperties { return p.properties }

// Run executes the pass against prog, returning the transformed program.
func (p Pass) Run(prog *ir.Program) (*ir.Program, error) { return p.run(prog) }

// CreateProgramPass builds a Pass from a whole-program transformation.
func CreateProgramPass(name string, properties PassProperties, fn ProgramFunc) Pass {
	return Pass{name: name, properties: properties, run: fn}
}

// CreateFunctionPass builds a Pass from a per-function transformation,
// applying fn to every function in the program and rebuilding the program
// from the results. This is the common case: most passes reason about one
// function at a time.
func CreateFunctionPass(name string, properties PassProperties, fn TransformFunc) Pass {
	return Pass{
		name:       name,
		properties: properties,
		run: func(prog *ir.Program) (*ir.Program, error) {
			functions := make([]*ir.Function, len(prog.Functions))
			for i, f := range prog.Functions {
				updated, err := fn(f, prog)
				if err != nil {
					return nil, err
				}
				functions[i] = updated
			}
			return &ir.Program{Functions: functions, SpanV: prog.SpanV}, nil
		},
	}
}
