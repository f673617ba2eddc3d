package ir

// AssignStmt binds the result of evaluating Value to Var for the rest of
// the enclosing SeqStmts. Rebinding the same name shadows rather than
// mutates: the IR has no notion of assignment to an existing binding.
type AssignStmt struct {
	Var   *Var
	Value Expr
	SpanV Span
}

func (*AssignStmt) irNode()      {}
func (a *AssignStmt) Span() Span { return a.SpanV }
func (*AssignStmt) stmt()        {}

// EvalStmt evaluates an expression purely for its side effect (e.g. a
// block.store call), discarding its result.
type EvalStmt struct {
	Value Expr
	SpanV Span
}

func (*EvalStmt) irNode()      {}
func (e *EvalStmt) Span() Span { return e.SpanV }
func (*EvalStmt) stmt()        {}

// SeqStmts sequences a list of statements, each executed in order and each
// able to see bindings introduced by the ones before it.
type SeqStmts struct {
	Stmts []Stmt
	SpanV Span
}

func (*SeqStmts) irNode()      {}
func (s *SeqStmts) Span() Span { return s.SpanV }
func (*SeqStmts) stmt()        {}

// IfStmt is a two-armed conditional. Else may be nil, in which case a
// false condition falls through with no effect.
type IfStmt struct {
	Cond  Expr
	Then  Stmt
	Else  Stmt
	SpanV Span
}

func (*IfStmt) irNode()      {}
func (i *IfStmt) Span() Span { return i.SpanV }
func (*IfStmt) stmt()        {}

// ForStmt is a counted loop over [Start, End) in steps of Step, binding
// the induction variable Var inside Body on each iteration.
type ForStmt struct {
	Var   *Var
	Start Expr
	End   Expr
	Step  Expr
	Body  Stmt
	SpanV Span
}

func (*ForStmt) irNode()      {}
func (f *ForStmt) Span() Span { return f.SpanV }
func (*ForStmt) stmt()        {}

// ReturnStmt returns Value (possibly a MakeTuple for multi-value returns)
// from the enclosing function.
type ReturnStmt struct {
	Value Expr
	SpanV Span
}

func (*ReturnStmt) irNode()      {}
func (r *ReturnStmt) Span() Span { return r.SpanV }
func (*ReturnStmt) stmt()        {}

var (
	_ Stmt = (*AssignStmt)(nil)
	_ Stmt = (*EvalStmt)(nil)
	_ Stmt = (*SeqStmts)(nil)
	_ Stmt = (*IfStmt)(nil)
	_ Stmt = (*ForStmt)(nil)
	_ Stmt = (*ReturnStmt)(nil)
)
