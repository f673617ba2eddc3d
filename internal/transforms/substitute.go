package transforms

import (
	"tensorpto/internal/ir"
	"tensorpto/internal/irerrs"
)

// SubstituteExpr returns e with every occurrence of from (matched by
// identity, not by name — two distinct *ir.Var nodes with the same name
// are never conflated) replaced by to. If no occurrence of from is found
// anywhere in e, the original *pointer* is returned unchanged, so callers
// can cheaply test whether a substitution had any effect by comparing
// results with ==.
//
// BinaryExpr and UnaryExpr operands are not substituted into: it is an
// internal invariant of this IR that scalar expressions never reference a
// tensor- or tile-typed variable, and substitution here is only ever used
// to replace tensor/tile-typed variables (the operands ConvertTensorToBlockOps
// rewires from a tensor parameter to its loaded tile). Rather than trust
// that invariant silently, SubstituteExpr still recurses into these
// operands far enough to check it holds; finding that the substitution
// would actually change something there means the invariant has been
// violated, and that is reported as an *irerrs.InternalError, not applied.
func SubstituteExpr(e ir.Expr, from *ir.Var, to ir.Expr) (ir.Expr, error) {
	switch expr := e.(type) {
	case nil:
		return nil, nil
	case *ir.Var:
		if expr == from {
			return to, nil
		}
		return expr, nil
	case *ir.ConstInt, *ir.ConstFloat:
		return expr, nil
	case *ir.BinaryExpr:
		newLHS, err := SubstituteExpr(expr.LHS, from, to)
		if err != nil {
			return nil, err
		}
		newRHS, err := SubstituteExpr(expr.RHS, from, to)
		if err != nil {
			return nil, err
		}
		if newLHS != expr.LHS || newRHS != expr.RHS {
			return nil, irerrs.Internalf("substitution of %q reached an operand of a BinaryExpr: scalar expressions must never reference a tensor/tile-typed variable", from.Name)
		}
		return expr, nil
	case *ir.UnaryExpr:
		newOperand, err := SubstituteExpr(expr.Operand, from, to)
		if err != nil {
			return nil, err
		}
		if newOperand != expr.Operand {
			return nil, irerrs.Internalf("substitution of %q reached the operand of a UnaryExpr: scalar expressions must never reference a tensor/tile-typed variable", from.Name)
		}
		return expr, nil
	case *ir.Call:
		return substituteCall(expr, from, to)
	case *ir.MakeTuple:
		return substituteMakeTuple(expr, from, to)
	case *ir.TupleGetItemExpr:
		newTuple, err := SubstituteExpr(expr.Tuple, from, to)
		if err != nil {
			return nil, err
		}
		if newTuple == expr.Tuple {
			return expr, nil
		}
		clone := *expr
		clone.Tuple = newTuple
		return &clone, nil
	default:
		return expr, nil
	}
}

func substituteCall(call *ir.Call, from *ir.Var, to ir.Expr) (ir.Expr, error) {
	changed := false
	newArgs := make([]ir.Expr, len(call.Args))
	for i, a := range call.Args {
		newArg, err := SubstituteExpr(a, from, to)
		if err != nil {
			return nil, err
		}
		newArgs[i] = newArg
		if newArgs[i] != a {
			changed = true
		}
	}
	if !changed {
		return call, nil
	}
	clone := *call
	clone.Args = newArgs
	return &clone, nil
}

func substituteMakeTuple(mt *ir.MakeTuple, from *ir.Var, to ir.Expr) (ir.Expr, error) {
	changed := false
	newElems := make([]ir.Expr, len(mt.Elements))
	for i, el := range mt.Elements {
		newEl, err := SubstituteExpr(el, from, to)
		if err != nil {
			return nil, err
		}
		newElems[i] = newEl
		if newElems[i] != el {
			changed = true
		}
	}
	if !changed {
		return mt, nil
	}
	clone := *mt
	clone.Elements = newElems
	return &clone, nil
}

// SubstituteStmt applies SubstituteExpr to every expression reachable
// from s, rebuilding only the statements on the path to a change and
// returning s unchanged (same pointer) if nothing under it referenced
// from.
func SubstituteStmt(s ir.Stmt, from *ir.Var, to ir.Expr) (ir.Stmt, error) {
	switch stmt := s.(type) {
	case nil:
		return nil, nil
	case *ir.AssignStmt:
		newVal, err := SubstituteExpr(stmt.Value, from, to)
		if err != nil {
			return nil, err
		}
		if newVal == stmt.Value {
			return stmt, nil
		}
		clone := *stmt
		clone.Value = newVal
		return &clone, nil
	case *ir.EvalStmt:
		newVal, err := SubstituteExpr(stmt.Value, from, to)
		if err != nil {
			return nil, err
		}
		if newVal == stmt.Value {
			return stmt, nil
		}
		clone := *stmt
		clone.Value = newVal
		return &clone, nil
	case *ir.SeqStmts:
		changed := false
		newStmts := make([]ir.Stmt, len(stmt.Stmts))
		for i, sub := range stmt.Stmts {
			newSub, err := SubstituteStmt(sub, from, to)
			if err != nil {
				return nil, err
			}
			newStmts[i] = newSub
			if newStmts[i] != sub {
				changed = true
			}
		}
		if !changed {
			return stmt, nil
		}
		clone := *stmt
		clone.Stmts = newStmts
		return &clone, nil
	case *ir.IfStmt:
		newCond, err := SubstituteExpr(stmt.Cond, from, to)
		if err != nil {
			return nil, err
		}
		newThen, err := SubstituteStmt(stmt.Then, from, to)
		if err != nil {
			return nil, err
		}
		newElse, err := SubstituteStmt(stmt.Else, from, to)
		if err != nil {
			return nil, err
		}
		if newCond == stmt.Cond && newThen == stmt.Then && newElse == stmt.Else {
			return stmt, nil
		}
		clone := *stmt
		clone.Cond, clone.Then, clone.Else = newCond, newThen, newElse
		return &clone, nil
	case *ir.ForStmt:
		if stmt.Var == from {
			// The induction variable shadows `from` for the rest of the loop;
			// only the bounds (evaluated in the enclosing scope) are substituted.
			newStart, err := SubstituteExpr(stmt.Start, from, to)
			if err != nil {
				return nil, err
			}
			newEnd, err := SubstituteExpr(stmt.End, from, to)
			if err != nil {
				return nil, err
			}
			newStep, err := SubstituteExpr(stmt.Step, from, to)
			if err != nil {
				return nil, err
			}
			if newStart == stmt.Start && newEnd == stmt.End && newStep == stmt.Step {
				return stmt, nil
			}
			clone := *stmt
			clone.Start, clone.End, clone.Step = newStart, newEnd, newStep
			return &clone, nil
		}
		newStart, err := SubstituteExpr(stmt.Start, from, to)
		if err != nil {
			return nil, err
		}
		newEnd, err := SubstituteExpr(stmt.End, from, to)
		if err != nil {
			return nil, err
		}
		newStep, err := SubstituteExpr(stmt.Step, from, to)
		if err != nil {
			return nil, err
		}
		newBody, err := SubstituteStmt(stmt.Body, from, to)
		if err != nil {
			return nil, err
		}
		if newStart == stmt.Start && newEnd == stmt.End && newStep == stmt.Step && newBody == stmt.Body {
			return stmt, nil
		}
		clone := *stmt
		clone.Start, clone.End, clone.Step, clone.Body = newStart, newEnd, newStep, newBody
		return &clone, nil
	case *ir.ReturnStmt:
		newVal, err := SubstituteExpr(stmt.Value, from, to)
		if err != nil {
			return nil, err
		}
		if newVal == stmt.Value {
			return stmt, nil
		}
		clone := *stmt
		clone.Value = newVal
		return &clone, nil
	default:
		return stmt, nil
	}
}
