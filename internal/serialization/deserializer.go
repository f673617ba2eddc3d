package serialization

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"tensorpto/internal/ir"
)

func bytesReader(data []byte) io.Reader { return bytes.NewReader(data) }

// Deserializer mirrors Serializer's reference table on the way back in:
// the first time a given id is decoded it is cached, and a later tagRef
// record for that id returns the exact same Go value, restoring the
// pointer-identity sharing the Serializer preserved.
type Deserializer struct {
	nodes map[uint32]ir.Node
}

// NewDeserializer returns a fresh Deserializer with an empty reference
// table.
func NewDeserializer() *Deserializer {
	return &Deserializer{nodes: make(map[uint32]ir.Node)}
}

// Deserialize decodes bytes produced by Serialize back into an ir.Node.
func Deserialize(data []byte) (ir.Node, error) {
	d := NewDeserializer()
	dec := msgpack.NewDecoder(bytesReader(data))
	var rec rawRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return d.fromRecord(rec)
}

// rawRecord is the msgpack-decoded shape of a record: Payload comes back
// as a generic map[string]interface{} tree that fromRecord interprets
// according to Tag.
type rawRecord struct {
	Tag     wireTag        `msgpack:"t"`
	ID      uint32         `msgpack:"i"`
	Payload map[string]any `msgpack:"p"`
}

func (d *Deserializer) fromRecord(rec rawRecord) (ir.Node, error) {
	if rec.Tag == tagNil {
		return nil, nil
	}
	if rec.Tag == tagRef {
		node, ok := d.nodes[rec.ID]
		if !ok {
			return nil, fmt.Errorf("deserialize: reference to unknown id %d", rec.ID)
		}
		return node, nil
	}

	switch rec.Tag {
	case tagScalarType:
		n := &ir.ScalarType{DType: ir.DataType(toInt(rec.Payload["dtype"]))}
		d.nodes[rec.ID] = n
		return n, nil
	case tagTensorType:
		n := &ir.TensorType{DType: ir.DataType(toInt(rec.Payload["dtype"]))}
		d.nodes[rec.ID] = n
		shape, err := d.decodeExprs(rec.Payload["shape"])
		if err != nil {
			return nil, err
		}
		n.Shape = shape
		return n, nil
	case tagTileType:
		n := &ir.TileType{DType: ir.DataType(toInt(rec.Payload["dtype"])), MemorySpace: ir.MemorySpace(toInt(rec.Payload["mem"]))}
		d.nodes[rec.ID] = n
		shape, err := d.decodeExprs(rec.Payload["shape"])
		if err != nil {
			return nil, err
		}
		n.Shape = shape
		return n, nil
	case tagTupleType:
		n := &ir.TupleType{}
		d.nodes[rec.ID] = n
		elems, err := d.decodeTypes(rec.Payload["elements"])
		if err != nil {
			return nil, err
		}
		n.Elements = elems
		return n, nil
	case tagMemRefType:
		n := &ir.MemRefType{MemorySpace: ir.MemorySpace(toInt(rec.Payload["mem"]))}
		d.nodes[rec.ID] = n
		return n, nil
	case tagVar:
		n := &ir.Var{Name: toString(rec.Payload["name"])}
		d.nodes[rec.ID] = n
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.TypeV = typ
		return n, nil
	case tagConstInt:
		n := &ir.ConstInt{Value: toInt64(rec.Payload["value"])}
		d.nodes[rec.ID] = n
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.TypeV = typ
		return n, nil
	case tagConstFloat:
		n := &ir.ConstFloat{Value: toFloat(rec.Payload["value"])}
		d.nodes[rec.ID] = n
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.TypeV = typ
		return n, nil
	case tagBinaryExpr:
		n := &ir.BinaryExpr{Op: ir.BinaryOp(toInt(rec.Payload["op"]))}
		d.nodes[rec.ID] = n
		lhs, err := d.decodeExpr(rec.Payload["lhs"])
		if err != nil {
			return nil, err
		}
		rhs, err := d.decodeExpr(rec.Payload["rhs"])
		if err != nil {
			return nil, err
		}
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.LHS, n.RHS, n.TypeV = lhs, rhs, typ
		return n, nil
	case tagUnaryExpr:
		n := &ir.UnaryExpr{Op: ir.UnaryOp(toInt(rec.Payload["op"]))}
		d.nodes[rec.ID] = n
		operand, err := d.decodeExpr(rec.Payload["operand"])
		if err != nil {
			return nil, err
		}
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.Operand, n.TypeV = operand, typ
		return n, nil
	case tagCall:
		return d.decodeCall(rec)
	case tagMakeTuple:
		n := &ir.MakeTuple{}
		d.nodes[rec.ID] = n
		elems, err := d.decodeExprs(rec.Payload["elements"])
		if err != nil {
			return nil, err
		}
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.Elements, n.TypeV = elems, typ
		return n, nil
	case tagTupleGetItem:
		n := &ir.TupleGetItemExpr{Index: toInt(rec.Payload["index"])}
		d.nodes[rec.ID] = n
		tuple, err := d.decodeExpr(rec.Payload["tuple"])
		if err != nil {
			return nil, err
		}
		typ, err := d.decodeType(rec.Payload["type"])
		if err != nil {
			return nil, err
		}
		n.Tuple, n.TypeV = tuple, typ
		return n, nil
	case tagAssignStmt:
		n := &ir.AssignStmt{}
		d.nodes[rec.ID] = n
		v, err := d.decodeVar(rec.Payload["var"])
		if err != nil {
			return nil, err
		}
		val, err := d.decodeExpr(rec.Payload["value"])
		if err != nil {
			return nil, err
		}
		n.Var, n.Value = v, val
		return n, nil
	case tagEvalStmt:
		n := &ir.EvalStmt{}
		d.nodes[rec.ID] = n
		val, err := d.decodeExpr(rec.Payload["value"])
		if err != nil {
			return nil, err
		}
		n.Value = val
		return n, nil
	case tagSeqStmts:
		n := &ir.SeqStmts{}
		d.nodes[rec.ID] = n
		stmts, err := d.decodeStmts(rec.Payload["stmts"])
		if err != nil {
			return nil, err
		}
		n.Stmts = stmts
		return n, nil
	case tagIfStmt:
		n := &ir.IfStmt{}
		d.nodes[rec.ID] = n
		cond, err := d.decodeExpr(rec.Payload["cond"])
		if err != nil {
			return nil, err
		}
		then, err := d.decodeStmt(rec.Payload["then"])
		if err != nil {
			return nil, err
		}
		els, err := d.decodeStmt(rec.Payload["else"])
		if err != nil {
			return nil, err
		}
		n.Cond, n.Then, n.Else = cond, then, els
		return n, nil
	case tagForStmt:
		n := &ir.ForStmt{}
		d.nodes[rec.ID] = n
		v, err := d.decodeVar(rec.Payload["var"])
		if err != nil {
			return nil, err
		}
		start, err := d.decodeExpr(rec.Payload["start"])
		if err != nil {
			return nil, err
		}
		end, err := d.decodeExpr(rec.Payload["end"])
		if err != nil {
			return nil, err
		}
		step, err := d.decodeExpr(rec.Payload["step"])
		if err != nil {
			return nil, err
		}
		body, err := d.decodeStmt(rec.Payload["body"])
		if err != nil {
			return nil, err
		}
		n.Var, n.Start, n.End, n.Step, n.Body = v, start, end, step, body
		return n, nil
	case tagReturnStmt:
		n := &ir.ReturnStmt{}
		d.nodes[rec.ID] = n
		val, err := d.decodeExpr(rec.Payload["value"])
		if err != nil {
			return nil, err
		}
		n.Value = val
		return n, nil
	case tagFunction:
		return d.decodeFunction(rec)
	case tagProgram:
		n := &ir.Program{}
		d.nodes[rec.ID] = n
		raw, _ := rec.Payload["functions"].([]any)
		functions := make([]*ir.Function, len(raw))
		for i, item := range raw {
			sub, err := d.decodeSubRecord(item)
			if err != nil {
				return nil, err
			}
			fn, err := d.fromRecord(sub)
			if err != nil {
				return nil, err
			}
			f, ok := fn.(*ir.Function)
			if !ok {
				return nil, fmt.Errorf("deserialize: expected *ir.Function in program, got %T", fn)
			}
			functions[i] = f
		}
		n.Functions = functions
		return n, nil
	default:
		return nil, fmt.Errorf("deserialize: unknown tag %d", rec.Tag)
	}
}

func (d *Deserializer) decodeCall(rec rawRecord) (ir.Node, error) {
	n := &ir.Call{}
	d.nodes[rec.ID] = n
	targetMap, _ := rec.Payload["target"].(map[string]any)
	switch toString(targetMap["kind"]) {
	case "op":
		n.Target = ir.Op{Name: toString(targetMap["name"])}
	case "global":
		n.Target = ir.GlobalVar{Name: toString(targetMap["name"])}
	default:
		return nil, fmt.Errorf("deserialize: unknown call target kind %v", targetMap["kind"])
	}
	args, err := d.decodeExprs(rec.Payload["args"])
	if err != nil {
		return nil, err
	}
	kwargsRaw, _ := rec.Payload["kwargs"].([]any)
	kwargs := make([]ir.KwArg, len(kwargsRaw))
	for i, item := range kwargsRaw {
		m, _ := item.(map[string]any)
		kwargs[i] = ir.KwArg{
			Name: toString(m["name"]),
			Value: ir.KwValue{
				Kind:        ir.KwValueKind(toInt(m["kind"])),
				MemorySpace: ir.MemorySpace(toInt(m["mem"])),
				DataType:    ir.DataType(toInt(m["dt"])),
				IntVal:      toInt64(m["i"]),
				FloatVal:    toFloat(m["f"]),
				StringVal:   toString(m["s"]),
				BoolVal:     toBool(m["b"]),
			},
		}
	}
	typ, err := d.decodeType(rec.Payload["type"])
	if err != nil {
		return nil, err
	}
	n.Args, n.Kwargs, n.TypeV = args, kwargs, typ
	return n, nil
}

func (d *Deserializer) decodeFunction(rec rawRecord) (ir.Node, error) {
	n := &ir.Function{Name: toString(rec.Payload["name"]), Kind: ir.FunctionKind(toInt(rec.Payload["kind"]))}
	d.nodes[rec.ID] = n
	paramsRaw, _ := rec.Payload["params"].([]any)
	params := make([]*ir.Var, len(paramsRaw))
	for i, item := range paramsRaw {
		v, err := d.decodeVar(item)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	returnType, err := d.decodeType(rec.Payload["returnType"])
	if err != nil {
		return nil, err
	}
	body, err := d.decodeStmt(rec.Payload["body"])
	if err != nil {
		return nil, err
	}
	n.Params, n.ReturnType, n.Body = params, returnType, body
	return n, nil
}

// The decode* helpers below convert the generic map[string]interface{}
// shape msgpack hands back for a nested record field into the strongly
// typed IR node it represents.

func (d *Deserializer) decodeSubRecord(v any) (rawRecord, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return rawRecord{}, fmt.Errorf("deserialize: expected record map, got %T", v)
	}
	payload, _ := m["p"].(map[string]any)
	return rawRecord{Tag: wireTag(toInt(m["t"])), ID: uint32(toInt(m["i"])), Payload: payload}, nil
}

func (d *Deserializer) decodeNode(v any) (ir.Node, error) {
	if v == nil {
		return nil, nil
	}
	rec, err := d.decodeSubRecord(v)
	if err != nil {
		return nil, err
	}
	return d.fromRecord(rec)
}

func (d *Deserializer) decodeExpr(v any) (ir.Expr, error) {
	node, err := d.decodeNode(v)
	if err != nil || node == nil {
		return nil, err
	}
	e, ok := node.(ir.Expr)
	if !ok {
		return nil, fmt.Errorf("deserialize: expected expression, got %T", node)
	}
	return e, nil
}

func (d *Deserializer) decodeStmt(v any) (ir.Stmt, error) {
	node, err := d.decodeNode(v)
	if err != nil || node == nil {
		return nil, err
	}
	s, ok := node.(ir.Stmt)
	if !ok {
		return nil, fmt.Errorf("deserialize: expected statement, got %T", node)
	}
	return s, nil
}

func (d *Deserializer) decodeType(v any) (ir.Type, error) {
	node, err := d.decodeNode(v)
	if err != nil || node == nil {
		return nil, err
	}
	t, ok := node.(ir.Type)
	if !ok {
		return nil, fmt.Errorf("deserialize: expected type, got %T", node)
	}
	return t, nil
}

func (d *Deserializer) decodeVar(v any) (*ir.Var, error) {
	node, err := d.decodeNode(v)
	if err != nil || node == nil {
		return nil, err
	}
	vv, ok := node.(*ir.Var)
	if !ok {
		return nil, fmt.Errorf("deserialize: expected *ir.Var, got %T", node)
	}
	return vv, nil
}

func (d *Deserializer) decodeExprs(v any) ([]ir.Expr, error) {
	items, _ := v.([]any)
	out := make([]ir.Expr, len(items))
	for i, item := range items {
		e, err := d.decodeExpr(item)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (d *Deserializer) decodeTypes(v any) ([]ir.Type, error) {
	items, _ := v.([]any)
	out := make([]ir.Type, len(items))
	for i, item := range items {
		t, err := d.decodeType(item)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (d *Deserializer) decodeStmts(v any) ([]ir.Stmt, error) {
	items, _ := v.([]any)
	out := make([]ir.Stmt, len(items))
	for i, item := range items {
		s, err := d.decodeStmt(item)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case uint32:
		return int(n)
	case uint8:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toInt64(v any) int64 { return int64(toInt(v)) }

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}
