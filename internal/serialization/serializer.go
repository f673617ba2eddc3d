// Package serialization implements a sharing-preserving binary codec for
// the IR: encoding a tree that shares subtrees (the same shape expression
// reused by two tensor types, the same *ir.Var bound once and read
// many times) round-trips into a tree that shares those same subtrees
// again, rather than duplicating them.
//
// The wire format is a stream of msgpack-encoded records, one per node,
// each tagged with a small integer discriminator and, for the first time
// a given pointer is seen, its full contents; subsequent occurrences of
// the same pointer are encoded as a single reference id, backed by a
// per-session reference table keyed by pointer identity.
package serialization

import (
	"bytes"
	"fmt"
	"os"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"tensorpto/internal/ir"
)

// wireTag discriminates the concrete node kind encoded in a record.
type wireTag uint8

const (
	tagRef wireTag = iota // a back-reference to an already-emitted node
	tagNil
	tagScalarType
	tagTensorType
	tagTileType
	tagTupleType
	tagMemRefType
	tagVar
	tagConstInt
	tagConstFloat
	tagBinaryExpr
	tagUnaryExpr
	tagCall
	tagMakeTuple
	tagTupleGetItem
	tagAssignStmt
	tagEvalStmt
	tagSeqStmts
	tagIfStmt
	tagForStmt
	tagReturnStmt
	tagFunction
	tagProgram
)

// record is the on-wire envelope for one node: its tag, an id assigned
// the first time it is written (used by later references), and its
// tag-specific payload. Span is intentionally not part of the wire
// format: spans are source-file-relative and not meaningful once
// serialized independently of that source.
type record struct {
	Tag     wireTag `msgpack:"t"`
	ID      uint32  `msgpack:"i"`
	Payload any     `msgpack:"p,omitempty"`
}

// Serializer holds the per-session reference table mapping a node's
// pointer identity to the id it was first assigned, so repeated
// occurrences of the same shared node are written once.
type Serializer struct {
	ids  map[any]uint32
	next uint32
	enc  *msgpack.Encoder
	buf  *bytes.Buffer
}

// NewSerializer returns a fresh Serializer with an empty reference table.
func NewSerializer() *Serializer {
	buf := &bytes.Buffer{}
	return &Serializer{ids: make(map[any]uint32), enc: msgpack.NewEncoder(buf), buf: buf}
}

// Serialize encodes node (an *ir.Program, *ir.Function, or any ir.Node) to
// a self-contained byte slice, preserving pointer-identity sharing within
// this single call. Two separate Serialize calls do not share reference
// tables: sharing across an entire serialization session spans a single
// Serializer instance, one call graph.
func Serialize(node ir.Node) ([]byte, error) {
	s := NewSerializer()
	if err := s.Encode(node); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// SerializeToFile encodes node and writes it to path.
func SerializeToFile(node ir.Node, path string) error {
	data, err := Serialize(node)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DeserializeFile reads path and decodes it back into an ir.Node.
func DeserializeFile(path string) (ir.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// Encode appends node's encoding to the serializer's buffer.
func (s *Serializer) Encode(node ir.Node) error {
	rec, err := s.toRecord(node)
	if err != nil {
		return err
	}
	return s.enc.Encode(rec)
}

// Bytes returns everything encoded so far.
func (s *Serializer) Bytes() []byte {
	return s.buf.Bytes()
}

// refID returns (id, true) if ptr has already been assigned an id in this
// session, or assigns and returns a fresh id with ok=false if not.
func (s *Serializer) refID(ptr any) (uint32, bool) {
	if id, ok := s.ids[ptr]; ok {
		return id, true
	}
	id := s.next
	s.next++
	s.ids[ptr] = id
	return id, false
}

func (s *Serializer) toRecord(node ir.Node) (record, error) {
	if node == nil || isNilNode(node) {
		return record{Tag: tagNil}, nil
	}
	id, seen := s.refID(node)
	if seen {
		return record{Tag: tagRef, ID: id}, nil
	}

	switch n := node.(type) {
	case *ir.ScalarType:
		return record{Tag: tagScalarType, ID: id, Payload: map[string]any{"dtype": int(n.DType)}}, nil
	case *ir.TensorType:
		shape, err := s.encodeExprs(n.Shape)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagTensorType, ID: id, Payload: map[string]any{"dtype": int(n.DType), "shape": shape}}, nil
	case *ir.TileType:
		shape, err := s.encodeExprs(n.Shape)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagTileType, ID: id, Payload: map[string]any{"dtype": int(n.DType), "mem": int(n.MemorySpace), "shape": shape}}, nil
	case *ir.TupleType:
		elems, err := s.encodeTypes(n.Elements)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagTupleType, ID: id, Payload: map[string]any{"elements": elems}}, nil
	case *ir.MemRefType:
		return record{Tag: tagMemRefType, ID: id, Payload: map[string]any{"mem": int(n.MemorySpace)}}, nil
	case *ir.Var:
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagVar, ID: id, Payload: map[string]any{"name": n.Name, "type": typ}}, nil
	case *ir.ConstInt:
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagConstInt, ID: id, Payload: map[string]any{"value": n.Value, "type": typ}}, nil
	case *ir.ConstFloat:
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagConstFloat, ID: id, Payload: map[string]any{"value": n.Value, "type": typ}}, nil
	case *ir.BinaryExpr:
		lhs, err := s.toRecord(n.LHS)
		if err != nil {
			return record{}, err
		}
		rhs, err := s.toRecord(n.RHS)
		if err != nil {
			return record{}, err
		}
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagBinaryExpr, ID: id, Payload: map[string]any{"op": int(n.Op), "lhs": lhs, "rhs": rhs, "type": typ}}, nil
	case *ir.UnaryExpr:
		operand, err := s.toRecord(n.Operand)
		if err != nil {
			return record{}, err
		}
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagUnaryExpr, ID: id, Payload: map[string]any{"op": int(n.Op), "operand": operand, "type": typ}}, nil
	case *ir.Call:
		return s.encodeCall(id, n)
	case *ir.MakeTuple:
		elems, err := s.encodeExprs(n.Elements)
		if err != nil {
			return record{}, err
		}
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagMakeTuple, ID: id, Payload: map[string]any{"elements": elems, "type": typ}}, nil
	case *ir.TupleGetItemExpr:
		tuple, err := s.toRecord(n.Tuple)
		if err != nil {
			return record{}, err
		}
		typ, err := s.toRecord(n.TypeV)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagTupleGetItem, ID: id, Payload: map[string]any{"tuple": tuple, "index": n.Index, "type": typ}}, nil
	case *ir.AssignStmt:
		v, err := s.toRecord(n.Var)
		if err != nil {
			return record{}, err
		}
		val, err := s.toRecord(n.Value)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagAssignStmt, ID: id, Payload: map[string]any{"var": v, "value": val}}, nil
	case *ir.EvalStmt:
		val, err := s.toRecord(n.Value)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagEvalStmt, ID: id, Payload: map[string]any{"value": val}}, nil
	case *ir.SeqStmts:
		stmts, err := s.encodeStmts(n.Stmts)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagSeqStmts, ID: id, Payload: map[string]any{"stmts": stmts}}, nil
	case *ir.IfStmt:
		cond, err := s.toRecord(n.Cond)
		if err != nil {
			return record{}, err
		}
		then, err := s.toRecord(n.Then)
		if err != nil {
			return record{}, err
		}
		els, err := s.toRecord(n.Else)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagIfStmt, ID: id, Payload: map[string]any{"cond": cond, "then": then, "else": els}}, nil
	case *ir.ForStmt:
		v, err := s.toRecord(n.Var)
		if err != nil {
			return record{}, err
		}
		start, err := s.toRecord(n.Start)
		if err != nil {
			return record{}, err
		}
		end, err := s.toRecord(n.End)
		if err != nil {
			return record{}, err
		}
		step, err := s.toRecord(n.Step)
		if err != nil {
			return record{}, err
		}
		body, err := s.toRecord(n.Body)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagForStmt, ID: id, Payload: map[string]any{"var": v, "start": start, "end": end, "step": step, "body": body}}, nil
	case *ir.ReturnStmt:
		val, err := s.toRecord(n.Value)
		if err != nil {
			return record{}, err
		}
		return record{Tag: tagReturnStmt, ID: id, Payload: map[string]any{"value": val}}, nil
	case *ir.Function:
		return s.encodeFunction(id, n)
	case *ir.Program:
		functions := make([]record, len(n.Functions))
		for i, fn := range n.Functions {
			rec, err := s.toRecord(fn)
			if err != nil {
				return record{}, err
			}
			functions[i] = rec
		}
		return record{Tag: tagProgram, ID: id, Payload: map[string]any{"functions": functions}}, nil
	default:
		return record{}, errUnsupportedNode(n)
	}
}

func (s *Serializer) encodeCall(id uint32, n *ir.Call) (record, error) {
	args, err := s.encodeExprs(n.Args)
	if err != nil {
		return record{}, err
	}
	kwargs := make([]map[string]any, len(n.Kwargs))
	for i, kw := range n.Kwargs {
		kwargs[i] = map[string]any{
			"name": kw.Name,
			"kind": int(kw.Value.Kind),
			"mem":  int(kw.Value.MemorySpace),
			"dt":   int(kw.Value.DataType),
			"i":    kw.Value.IntVal,
			"f":    kw.Value.FloatVal,
			"s":    kw.Value.StringVal,
			"b":    kw.Value.BoolVal,
		}
	}
	typ, err := s.toRecord(n.TypeV)
	if err != nil {
		return record{}, err
	}
	var target map[string]any
	switch t := n.Target.(type) {
	case ir.Op:
		target = map[string]any{"kind": "op", "name": t.Name}
	case ir.GlobalVar:
		target = map[string]any{"kind": "global", "name": t.Name}
	default:
		return record{}, errUnsupportedNode(n.Target)
	}
	return record{Tag: tagCall, ID: id, Payload: map[string]any{"target": target, "args": args, "kwargs": kwargs, "type": typ}}, nil
}

func (s *Serializer) encodeFunction(id uint32, n *ir.Function) (record, error) {
	params := make([]record, len(n.Params))
	for i, p := range n.Params {
		rec, err := s.toRecord(p)
		if err != nil {
			return record{}, err
		}
		params[i] = rec
	}
	returnType, err := s.toRecord(n.ReturnType)
	if err != nil {
		return record{}, err
	}
	body, err := s.toRecord(n.Body)
	if err != nil {
		return record{}, err
	}
	return record{Tag: tagFunction, ID: id, Payload: map[string]any{
		"name": n.Name, "kind": int(n.Kind), "params": params, "returnType": returnType, "body": body,
	}}, nil
}

func (s *Serializer) encodeExprs(exprs []ir.Expr) ([]record, error) {
	out := make([]record, len(exprs))
	for i, e := range exprs {
		rec, err := s.toRecord(e)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func (s *Serializer) encodeTypes(types []ir.Type) ([]record, error) {
	out := make([]record, len(types))
	for i, t := range types {
		rec, err := s.toRecord(t)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func (s *Serializer) encodeStmts(stmts []ir.Stmt) ([]record, error) {
	out := make([]record, len(stmts))
	for i, st := range stmts {
		rec, err := s.toRecord(st)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// isNilNode reports whether node holds a typed nil pointer (e.g. a nil
// *ir.MemRefType stored in an ir.Type-typed field), which needs the same
// tagNil treatment as a bare nil interface.
func isNilNode(node ir.Node) bool {
	v := reflect.ValueOf(node)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func errUnsupportedNode(node any) error {
	return fmt.Errorf("serialization: unsupported node type %T", node)
}
