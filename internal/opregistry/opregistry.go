// Package opregistry supplies the op registry that ConvertTensorToBlockOps
// and the IncoreBlockOps verifier consult to build op::Call nodes and to
// classify an op by category. A full op registry (op signature checking,
// shape inference, lowering to hardware intrinsics) is a large external
// component; here only the minimal, pre-populated table needed to
// exercise the pass framework is supplied, consistent with callers only
// ever referencing it through its interface
// (Create/IsRegistered/GetEntry).
package opregistry

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"tensorpto/internal/ir"
)

// Category classifies a registered op for verifiers that need to reason
// about op families without relying on brittle name-prefix checks.
type Category string

const (
	TensorOp Category = "TensorOp"
	BlockOp  Category = "BlockOp"
	MemOp    Category = "MemOp"
)

// Entry describes one registered op: its category and the return-type
// rule used by Create to type the Call node it builds.
type Entry struct {
	Name     string
	Category Category
	// ResultType computes the Call's result type from its argument and
	// keyword-argument expressions. Kept simple and permissive: the type
	// system that would normally validate operand shapes/dtypes is out of
	// scope here.
	ResultType func(args []ir.Expr, kwargs []ir.KwArg) ir.Type
}

// Registry is a name-keyed table of Entry values, safe for concurrent use.
// A single process-wide instance is exposed via Default.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for name. Later registrations win,
// matching the op-conversion registry's last-writer-wins semantics.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Name] = entry
}

// IsRegistered reports whether name has a registered entry.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// GetEntry returns the entry registered under name, or ok=false if none.
func (r *Registry) GetEntry(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Create builds a *ir.Call targeting the named op, typed via the entry's
// ResultType rule. It returns an error if name is not registered; that
// check happens at call time rather than at registration time.
func (r *Registry) Create(name string, args []ir.Expr, kwargs []ir.KwArg, span ir.Span) (*ir.Call, error) {
	entry, ok := r.GetEntry(name)
	if !ok {
		return nil, errors.Errorf("opregistry: op %q is not registered", name)
	}
	var resultType ir.Type
	if entry.ResultType != nil {
		resultType = entry.ResultType(args, kwargs)
	}
	return &ir.Call{
		Target: ir.Op{Name: name},
		Args:   args,
		Kwargs: kwargs,
		TypeV:  resultType,
		SpanV:  span,
	}, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide default registry, lazily populated on
// first use with the tensor/block/mem op families the flagship lowering
// pass and its verifier exercise.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
		populateDefault(defaultReg)
	})
	return defaultReg
}

func populateDefault(r *Registry) {
	tensorBinary := func(name string) {
		r.Register(Entry{Name: name, Category: TensorOp, ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
			if len(args) == 0 {
				return nil
			}
			return args[0].Type()
		}})
	}
	for _, name := range []string{
		"tensor.add", "tensor.sub", "tensor.mul", "tensor.div", "tensor.maximum",
		"tensor.add_scalar", "tensor.sub_scalar", "tensor.mul_scalar", "tensor.div_scalar",
		"tensor.exp", "tensor.cast", "tensor.reshape", "tensor.transpose",
	} {
		tensorBinary(name)
	}

	r.Register(Entry{
		Name:     "tensor.create",
		Category: TensorOp,
		ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
			for _, kw := range kwargs {
				if kw.Name == "dtype" && kw.Value.Kind == ir.KwDataType {
					return &ir.TensorType{DType: kw.Value.DataType}
				}
			}
			return &ir.TensorType{}
		},
	})

	blockBinary := func(name string) {
		r.Register(Entry{Name: name, Category: BlockOp, ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
			if len(args) == 0 {
				return nil
			}
			return args[0].Type()
		}})
	}
	for _, name := range []string{
		"block.add", "block.sub", "block.mul", "block.div", "block.maximum",
		"block.adds", "block.subs", "block.muls", "block.divs",
		"block.exp", "block.cast", "block.reshape", "block.transpose",
	} {
		blockBinary(name)
	}

	r.Register(Entry{
		Name:     "block.load",
		Category: BlockOp,
		ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
			var dtype ir.DataType
			var shape []ir.Expr
			if len(args) > 0 {
				if t, ok := args[0].Type().(*ir.TensorType); ok {
					dtype = t.DType
					shape = t.Shape
				}
			}
			ms := ir.UB
			for _, kw := range kwargs {
				if kw.Name == "memory_space" && kw.Value.Kind == ir.KwMemorySpace {
					ms = kw.Value.MemorySpace
				}
			}
			return &ir.TileType{DType: dtype, Shape: shape, MemorySpace: ms}
		},
	})
	r.Register(Entry{
		Name:     "block.store",
		Category: BlockOp,
		// block.store yields the tensor it just wrote into (its fourth
		// argument, the destination), so a caller can keep threading that
		// tensor through the rest of an expression instead of the store
		// being a bare side effect.
		ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
			if len(args) < 4 {
				return nil
			}
			return args[3].Type()
		},
	})

	r.Register(Entry{Name: "mem.alloc", Category: MemOp, ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type {
		ms := ir.DDR
		for _, kw := range kwargs {
			if kw.Name == "memory_space" && kw.Value.Kind == ir.KwMemorySpace {
				ms = kw.Value.MemorySpace
			}
		}
		return &ir.MemRefType{MemorySpace: ms}
	}})
	r.Register(Entry{Name: "mem.sync", Category: MemOp, ResultType: func(args []ir.Expr, kwargs []ir.KwArg) ir.Type { return nil }})
}

// String is a small debugging aid; not part of the pedagogical core's
// public contract.
func (e Entry) String() string {
	return fmt.Sprintf("%s[%s]", e.Name, e.Category)
}
