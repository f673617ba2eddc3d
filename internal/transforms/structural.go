package transforms

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"tensorpto/internal/ir"
)

// bindingEnv maps a *ir.Var to the position it was bound at, used by
// StructuralEqual/StructuralHash when enableAutoMapping is set so that two
// trees which only differ in the identity (not the position) of their
// bound variables are still considered equal/co-hashed — the IR's
// equivalent of alpha-equivalence.
type bindingEnv struct {
	byVar map[*ir.Var]int
	byPos map[int]*ir.Var
	next  int
}

func newBindingEnv() *bindingEnv {
	return &bindingEnv{byVar: make(map[*ir.Var]int), byPos: make(map[int]*ir.Var)}
}

func (e *bindingEnv) bind(v *ir.Var) int {
	pos := e.next
	e.next++
	e.byVar[v] = pos
	e.byPos[pos] = v
	return pos
}

func (e *bindingEnv) positionOf(v *ir.Var) (int, bool) {
	pos, ok := e.byVar[v]
	return pos, ok
}

// StructuralHash computes a span-insensitive hash of node's structure. If
// enableAutoMapping is true, two structurally identical trees hash equal
// even if their bound variables have different names or identities, as
// long as they occupy the same binding positions — the law
// StructuralEqual(a, b) => StructuralHash(a) == StructuralHash(b) always
// holds, with or without auto-mapping, as long both sides use the same
// setting.
func StructuralHash(node ir.Node, enableAutoMapping bool) uint64 {
	h := xxhash.New()
	hashNode(h, node, newBindingEnv(), enableAutoMapping)
	return h.Sum64()
}

func writeTag(h *xxhash.Digest, tag string) {
	_, _ = h.WriteString(tag)
}

func writeUint64(h *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func writeInt(h *xxhash.Digest, v int) { writeUint64(h, uint64(v)) }

func hashNode(h *xxhash.Digest, node ir.Node, env *bindingEnv, autoMap bool) {
	switch n := node.(type) {
	case nil:
		writeTag(h, "nil")
	case ir.Type:
		hashType(h, n, env, autoMap)
	case ir.Expr:
		hashExpr(h, n, env, autoMap)
	case ir.Stmt:
		hashStmt(h, n, env, autoMap)
	case *ir.Function:
		hashFunction(h, n, env, autoMap)
	case *ir.Program:
		writeTag(h, "Program")
		writeInt(h, len(n.Functions))
		for _, fn := range n.Functions {
			hashFunction(h, fn, newBindingEnv(), autoMap)
		}
	default:
		writeTag(h, fmt.Sprintf("unknown:%T", node))
	}
}

func hashType(h *xxhash.Digest, t ir.Type, env *bindingEnv, autoMap bool) {
	if t == nil {
		writeTag(h, "type:nil")
		return
	}
	switch v := t.(type) {
	case *ir.ScalarType:
		writeTag(h, "ScalarType")
		writeInt(h, int(v.DType))
	case *ir.TensorType:
		writeTag(h, "TensorType")
		writeInt(h, int(v.DType))
		writeInt(h, len(v.Shape))
		for _, s := range v.Shape {
			hashExpr(h, s, env, autoMap)
		}
	case *ir.TileType:
		writeTag(h, "TileType")
		writeInt(h, int(v.DType))
		writeInt(h, int(v.MemorySpace))
		writeInt(h, len(v.Shape))
		for _, s := range v.Shape {
			hashExpr(h, s, env, autoMap)
		}
	case *ir.TupleType:
		writeTag(h, "TupleType")
		writeInt(h, len(v.Elements))
		for _, el := range v.Elements {
			hashType(h, el, env, autoMap)
		}
	case *ir.MemRefType:
		writeTag(h, "MemRefType")
		writeInt(h, int(v.MemorySpace))
	default:
		writeTag(h, fmt.Sprintf("unknown-type:%T", t))
	}
}

func hashKw(h *xxhash.Digest, kw ir.KwArg) {
	writeTag(h, "kw:"+kw.Name)
	writeInt(h, int(kw.Value.Kind))
	writeTag(h, kw.Value.String())
}

func hashExpr(h *xxhash.Digest, e ir.Expr, env *bindingEnv, autoMap bool) {
	switch v := e.(type) {
	case nil:
		writeTag(h, "expr:nil")
	case *ir.Var:
		if autoMap {
			if pos, ok := env.positionOf(v); ok {
				writeTag(h, "VarRef")
				writeInt(h, pos)
				return
			}
			writeTag(h, "VarFree")
			writeTag(h, v.Name)
			return
		}
		writeTag(h, "Var")
		writeTag(h, v.Name)
	case *ir.ConstInt:
		writeTag(h, "ConstInt")
		writeUint64(h, uint64(v.Value))
	case *ir.ConstFloat:
		writeTag(h, "ConstFloat")
		writeUint64(h, uint64(v.Value*1e9))
	case *ir.BinaryExpr:
		writeTag(h, "BinaryExpr")
		writeInt(h, int(v.Op))
		hashExpr(h, v.LHS, env, autoMap)
		hashExpr(h, v.RHS, env, autoMap)
	case *ir.UnaryExpr:
		writeTag(h, "UnaryExpr")
		writeInt(h, int(v.Op))
		hashExpr(h, v.Operand, env, autoMap)
	case *ir.Call:
		writeTag(h, "Call")
		writeTag(h, v.Target.String())
		writeInt(h, len(v.Args))
		for _, a := range v.Args {
			hashExpr(h, a, env, autoMap)
		}
		writeInt(h, len(v.Kwargs))
		for _, kw := range v.Kwargs {
			hashKw(h, kw)
		}
	case *ir.MakeTuple:
		writeTag(h, "MakeTuple")
		writeInt(h, len(v.Elements))
		for _, el := range v.Elements {
			hashExpr(h, el, env, autoMap)
		}
	case *ir.TupleGetItemExpr:
		writeTag(h, "TupleGetItemExpr")
		writeInt(h, v.Index)
		hashExpr(h, v.Tuple, env, autoMap)
	default:
		writeTag(h, fmt.Sprintf("unknown-expr:%T", e))
	}
}

func hashStmt(h *xxhash.Digest, s ir.Stmt, env *bindingEnv, autoMap bool) {
	switch v := s.(type) {
	case nil:
		writeTag(h, "stmt:nil")
	case *ir.AssignStmt:
		writeTag(h, "AssignStmt")
		hashExpr(h, v.Value, env, autoMap)
		if autoMap {
			env.bind(v.Var)
		} else {
			writeTag(h, v.Var.Name)
		}
	case *ir.EvalStmt:
		writeTag(h, "EvalStmt")
		hashExpr(h, v.Value, env, autoMap)
	case *ir.SeqStmts:
		writeTag(h, "SeqStmts")
		writeInt(h, len(v.Stmts))
		for _, sub := range v.Stmts {
			hashStmt(h, sub, env, autoMap)
		}
	case *ir.IfStmt:
		writeTag(h, "IfStmt")
		hashExpr(h, v.Cond, env, autoMap)
		hashStmt(h, v.Then, env, autoMap)
		hashStmt(h, v.Else, env, autoMap)
	case *ir.ForStmt:
		writeTag(h, "ForStmt")
		hashExpr(h, v.Start, env, autoMap)
		hashExpr(h, v.End, env, autoMap)
		hashExpr(h, v.Step, env, autoMap)
		if autoMap {
			env.bind(v.Var)
		} else {
			writeTag(h, v.Var.Name)
		}
		hashStmt(h, v.Body, env, autoMap)
	case *ir.ReturnStmt:
		writeTag(h, "ReturnStmt")
		hashExpr(h, v.Value, env, autoMap)
	default:
		writeTag(h, fmt.Sprintf("unknown-stmt:%T", s))
	}
}

func hashFunction(h *xxhash.Digest, fn *ir.Function, env *bindingEnv, autoMap bool) {
	writeTag(h, "Function")
	if !autoMap {
		writeTag(h, fn.Name)
	}
	writeInt(h, int(fn.Kind))
	writeInt(h, len(fn.Params))
	for _, p := range fn.Params {
		hashType(h, p.TypeV, env, autoMap)
		if autoMap {
			env.bind(p)
		} else {
			writeTag(h, p.Name)
		}
	}
	hashType(h, fn.ReturnType, env, autoMap)
	hashStmt(h, fn.Body, env, autoMap)
}

// StructuralEqual reports whether a and b are structurally identical,
// ignoring Span. If enableAutoMapping is true, bound variables are
// compared by binding position rather than by identity/name, so two
// trees differing only in which *ir.Var value (or name) is used for
// "the same" binding are still equal.
func StructuralEqual(a, b ir.Node, enableAutoMapping bool) bool {
	return equalNode(a, b, newBindingEnv(), newBindingEnv(), enableAutoMapping)
}

func equalNode(a, b ir.Node, envA, envB *bindingEnv, autoMap bool) bool {
	switch x := a.(type) {
	case ir.Type:
		y, ok := b.(ir.Type)
		return ok && equalType(x, y, envA, envB, autoMap)
	case ir.Expr:
		y, ok := b.(ir.Expr)
		return ok && equalExpr(x, y, envA, envB, autoMap)
	case ir.Stmt:
		y, ok := b.(ir.Stmt)
		return ok && equalStmt(x, y, envA, envB, autoMap)
	case *ir.Function:
		y, ok := b.(*ir.Function)
		return ok && equalFunction(x, y, envA, envB, autoMap)
	case *ir.Program:
		y, ok := b.(*ir.Program)
		if !ok || len(x.Functions) != len(y.Functions) {
			return false
		}
		for i := range x.Functions {
			if !equalFunction(x.Functions[i], y.Functions[i], newBindingEnv(), newBindingEnv(), autoMap) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func equalType(a, b ir.Type, envA, envB *bindingEnv, autoMap bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *ir.ScalarType:
		y := b.(*ir.ScalarType)
		return x.DType == y.DType
	case *ir.TensorType:
		y := b.(*ir.TensorType)
		return x.DType == y.DType && equalExprSlice(x.Shape, y.Shape, envA, envB, autoMap)
	case *ir.TileType:
		y := b.(*ir.TileType)
		return x.DType == y.DType && x.MemorySpace == y.MemorySpace && equalExprSlice(x.Shape, y.Shape, envA, envB, autoMap)
	case *ir.TupleType:
		y := b.(*ir.TupleType)
		if len(x.Elements) != len(y.Elements) {
			return false
		}
		for i := range x.Elements {
			if !equalType(x.Elements[i], y.Elements[i], envA, envB, autoMap) {
				return false
			}
		}
		return true
	case *ir.MemRefType:
		y := b.(*ir.MemRefType)
		return x.MemorySpace == y.MemorySpace
	default:
		return false
	}
}

func equalExprSlice(a, b []ir.Expr, envA, envB *bindingEnv, autoMap bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalExpr(a[i], b[i], envA, envB, autoMap) {
			return false
		}
	}
	return true
}

// varsEqual decides Var equality for the non-autoMap case: two Vars are
// equal iff their names are equal and their types match structurally, not
// by pointer identity.
func varsEqual(x, y *ir.Var, envA, envB *bindingEnv, autoMap bool) bool {
	return x.Name == y.Name && equalType(x.TypeV, y.TypeV, envA, envB, autoMap)
}

func equalExpr(a, b ir.Expr, envA, envB *bindingEnv, autoMap bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *ir.Var:
		y, ok := b.(*ir.Var)
		if !ok {
			return false
		}
		if autoMap {
			posA, okA := envA.positionOf(x)
			posB, okB := envB.positionOf(y)
			if okA != okB {
				return false
			}
			if okA {
				return posA == posB
			}
			return varsEqual(x, y, envA, envB, autoMap)
		}
		return varsEqual(x, y, envA, envB, autoMap)
	case *ir.ConstInt:
		y, ok := b.(*ir.ConstInt)
		return ok && x.Value == y.Value
	case *ir.ConstFloat:
		y, ok := b.(*ir.ConstFloat)
		return ok && x.Value == y.Value
	case *ir.BinaryExpr:
		y, ok := b.(*ir.BinaryExpr)
		return ok && x.Op == y.Op && equalExpr(x.LHS, y.LHS, envA, envB, autoMap) && equalExpr(x.RHS, y.RHS, envA, envB, autoMap)
	case *ir.UnaryExpr:
		y, ok := b.(*ir.UnaryExpr)
		return ok && x.Op == y.Op && equalExpr(x.Operand, y.Operand, envA, envB, autoMap)
	case *ir.Call:
		y, ok := b.(*ir.Call)
		if !ok || x.Target.String() != y.Target.String() {
			return false
		}
		if !equalExprSlice(x.Args, y.Args, envA, envB, autoMap) {
			return false
		}
		if len(x.Kwargs) != len(y.Kwargs) {
			return false
		}
		for i := range x.Kwargs {
			if x.Kwargs[i].Name != y.Kwargs[i].Name || !x.Kwargs[i].Value.Equal(y.Kwargs[i].Value) {
				return false
			}
		}
		return true
	case *ir.MakeTuple:
		y, ok := b.(*ir.MakeTuple)
		return ok && equalExprSlice(x.Elements, y.Elements, envA, envB, autoMap)
	case *ir.TupleGetItemExpr:
		y, ok := b.(*ir.TupleGetItemExpr)
		return ok && x.Index == y.Index && equalExpr(x.Tuple, y.Tuple, envA, envB, autoMap)
	default:
		return false
	}
}

func equalStmt(a, b ir.Stmt, envA, envB *bindingEnv, autoMap bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *ir.AssignStmt:
		y, ok := b.(*ir.AssignStmt)
		if !ok || !equalExpr(x.Value, y.Value, envA, envB, autoMap) {
			return false
		}
		if autoMap {
			envA.bind(x.Var)
			envB.bind(y.Var)
			return true
		}
		return varsEqual(x.Var, y.Var, envA, envB, autoMap)
	case *ir.EvalStmt:
		y, ok := b.(*ir.EvalStmt)
		return ok && equalExpr(x.Value, y.Value, envA, envB, autoMap)
	case *ir.SeqStmts:
		y, ok := b.(*ir.SeqStmts)
		if !ok || len(x.Stmts) != len(y.Stmts) {
			return false
		}
		for i := range x.Stmts {
			if !equalStmt(x.Stmts[i], y.Stmts[i], envA, envB, autoMap) {
				return false
			}
		}
		return true
	case *ir.IfStmt:
		y, ok := b.(*ir.IfStmt)
		return ok && equalExpr(x.Cond, y.Cond, envA, envB, autoMap) &&
			equalStmt(x.Then, y.Then, envA, envB, autoMap) &&
			equalStmt(x.Else, y.Else, envA, envB, autoMap)
	case *ir.ForStmt:
		y, ok := b.(*ir.ForStmt)
		if !ok {
			return false
		}
		if !equalExpr(x.Start, y.Start, envA, envB, autoMap) || !equalExpr(x.End, y.End, envA, envB, autoMap) || !equalExpr(x.Step, y.Step, envA, envB, autoMap) {
			return false
		}
		if autoMap {
			envA.bind(x.Var)
			envB.bind(y.Var)
		} else if !varsEqual(x.Var, y.Var, envA, envB, autoMap) {
			return false
		}
		return equalStmt(x.Body, y.Body, envA, envB, autoMap)
	case *ir.ReturnStmt:
		y, ok := b.(*ir.ReturnStmt)
		return ok && equalExpr(x.Value, y.Value, envA, envB, autoMap)
	default:
		return false
	}
}

func equalFunction(a, b *ir.Function, envA, envB *bindingEnv, autoMap bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !autoMap && a.Name != b.Name {
		return false
	}
	if a.Kind != b.Kind || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !equalType(a.Params[i].TypeV, b.Params[i].TypeV, envA, envB, autoMap) {
			return false
		}
		if autoMap {
			envA.bind(a.Params[i])
			envB.bind(b.Params[i])
		} else if !varsEqual(a.Params[i], b.Params[i], envA, envB, autoMap) {
			return false
		}
	}
	if !equalType(a.ReturnType, b.ReturnType, envA, envB, autoMap) {
		return false
	}
	return equalStmt(a.Body, b.Body, envA, envB, autoMap)
}

// AssertStructuralEqual returns nil if a and b are structurally equal, and
// otherwise an error carrying a compact printed form of a and of b as
// given. The error does not locate the point where the two trees diverge.
func AssertStructuralEqual(a, b ir.Node, enableAutoMapping bool) error {
	if StructuralEqual(a, b, enableAutoMapping) {
		return nil
	}
	return fmt.Errorf("structural mismatch:\n  lhs: %s\n  rhs: %s", printNode(a), printNode(b))
}

// printNode is the small internal stringer used only for diagnostic
// messages; it is not a general-purpose pretty-printer.
func printNode(n ir.Node) string {
	switch v := n.(type) {
	case nil:
		return "<nil>"
	case ir.Expr:
		return ir.ExprString(v)
	case ir.Type:
		return v.String()
	case *ir.Function:
		return fmt.Sprintf("function %s(...)", v.Name)
	case *ir.Program:
		return fmt.Sprintf("program with %d functions", len(v.Functions))
	default:
		return fmt.Sprintf("<%T>", n)
	}
}
