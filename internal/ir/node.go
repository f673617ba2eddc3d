package ir

// Node is the root of every IR node kind: types, expressions, statements,
// functions and programs. The unexported irNode method seals the
// interface so only this package can introduce new node kinds.
type Node interface {
	irNode()
	// Span returns the node's source location, or the zero Span if none
	// was recorded.
	Span() Span
}

// Type is the interface implemented by every IR type node.
type Type interface {
	Node
	// Kind identifies the concrete type variant, for switch-free dispatch
	// where only the coarse category matters.
	Kind() TypeKind
	String() string
}

// TypeKind enumerates the concrete Type implementations.
type TypeKind int

const (
	InvalidTypeKind TypeKind = iota
	ScalarTypeKind
	TensorTypeKind
	TileTypeKind
	TupleTypeKind
	MemRefTypeKind
)

// Expr is the interface implemented by every IR expression node.
type Expr interface {
	Node
	// Type is the statically computed result type of the expression.
	Type() Type
}

// Stmt is the interface implemented by every IR statement node.
type Stmt interface {
	Node
	stmt()
}
