// Package value implements the VM's tagged-value type: the single runtime
// representation every opcode, builtin and host function operates on.
//
// A Value is a discriminated union over Kind. The Kind drives every
// operator — dispatch is always on the tag carried by the Value itself,
// never on where in the bytecode the value came from. Aggregate kinds
// (String, Set, Array, Record, MemoryStream) own their backing storage
// exclusively; Copy performs a deep copy of that storage. A copied File
// aliases the same open handle. Pointer and Closure are the two shared
// kinds: copying a Pointer bumps its box's count and shares the pointee,
// which only Dispose releases; copying a Closure retains its captured
// environment, and Free releases that retain.
package value

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the tag that identifies which variant of Value is populated.
type Kind byte

const (
	Nil Kind = iota
	Void
	Integer
	Byte
	Word
	Cardinal
	Boolean
	Char
	Real
	Enum
	String
	Set
	Array
	Record
	MemoryStream
	File
	Pointer
	Closure
)

func (k Kind) String() string {
	switch k {
	case Nil:
		return "NIL"
	case Void:
		return "VOID"
	case Integer:
		return "INTEGER"
	case Byte:
		return "BYTE"
	case Word:
		return "WORD"
	case Cardinal:
		return "CARDINAL"
	case Boolean:
		return "BOOLEAN"
	case Char:
		return "CHAR"
	case Real:
		return "REAL"
	case Enum:
		return "ENUM"
	case String:
		return "STRING"
	case Set:
		return "SET"
	case Array:
		return "ARRAY"
	case Record:
		return "RECORD"
	case MemoryStream:
		return "MSTREAM"
	case File:
		return "FILE"
	case Pointer:
		return "POINTER"
	case Closure:
		return "CLOSURE"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// isOrdinal reports whether k belongs to the ordinal lattice
// (Byte, Word, Char, Boolean ⊆ Integer) described in §4.1.
func (k Kind) isOrdinal() bool {
	switch k {
	case Integer, Byte, Word, Cardinal, Boolean, Char, Enum:
		return true
	default:
		return false
	}
}

func (k Kind) isNumeric() bool {
	return k.isOrdinal() || k == Real
}

// RealKind distinguishes the three Pascal floating point widths. The Go
// implementation stores every Real as a float64 internally (there is no
// native long double), but keeps the width tag so arithmetic results take
// the wider operand width and assignment coercion keeps the target's width.
type RealKind byte

const (
	Float RealKind = iota
	Double
	LongDouble
)

func (r RealKind) String() string {
	switch r {
	case Float:
		return "Float"
	case Double:
		return "Double"
	case LongDouble:
		return "LongDouble"
	default:
		return "Double"
	}
}

// EnumDecl is the shared declaration a family of Enum values point back to:
// the ordered member names and the type name used in diagnostics.
type EnumDecl struct {
	TypeName string
	Members  []string
}

func (d *EnumDecl) Ordinal(name string) (int, bool) {
	for i, m := range d.Members {
		if m == name {
			return i, true
		}
	}
	return 0, false
}

// FuncRef is the lightweight descriptor a Closure carries back to the
// routine it was created from — enough for diagnostics and for
// CALL_INDIRECT to validate arity without reaching into the symbol table
// (which lives in package symtab and must not import this package).
type FuncRef struct {
	Name      string
	ParamCount int
}

// ptrBox is the shared, reference-counted cell behind every Pointer Value.
// Multiple Value{Kind: Pointer} instances that alias the same allocation
// share one *ptrBox. Dispose marks the box dead; every alias immediately
// observes that through IsLive, without the VM having to scan globals or
// frames to null out other copies (see DESIGN.md, "Dispose aliasing").
type ptrBox struct {
	refs     int32
	alive    bool
	baseType string
	target   *Value
}

// PointerData is the read side of a Pointer Value exposed to callers that
// need the base type name or liveness without reaching into the VM.
type PointerData struct {
	box *ptrBox
}

func (p *PointerData) BaseType() string { return p.box.baseType }
func (p *PointerData) IsLive() bool     { return p.box != nil && p.box.alive }
func (p *PointerData) Target() *Value {
	if p.box == nil || !p.box.alive {
		return nil
	}
	return p.box.target
}

// ClosureEnv is the reference-counted captured-variable environment shared
// by a closure value and every copy of it (§4.4).
type ClosureEnv struct {
	refs      int32
	Upvalues  []*Value
}

func NewClosureEnv(n int) *ClosureEnv {
	env := &ClosureEnv{Upvalues: make([]*Value, n)}
	for i := range env.Upvalues {
		env.Upvalues[i] = new(Value)
	}
	return env
}

// Retain bumps the environment's reference count, returning e so callers
// can write `env = env.Retain()`. Every Value{Kind: Closure} alias (a
// parameter pass, a stack copy) must retain the env it shares.
func (e *ClosureEnv) Retain() *ClosureEnv {
	if e != nil {
		e.refs++
	}
	return e
}

// Release drops the environment's reference count, freeing every
// upvalue cell once the last alias releases it.
func (e *ClosureEnv) Release() {
	if e == nil {
		return
	}
	e.refs--
	if e.refs <= 0 {
		for i := range e.Upvalues {
			Free(e.Upvalues[i])
		}
		e.Upvalues = nil
	}
}

// ClosureData is the runtime payload of a Closure Value.
type ClosureData struct {
	EntryOffset int
	Env         *ClosureEnv
	Fn          *FuncRef
}

// StringData is the owned backing buffer of a String Value. MaxLength is 0
// for an unbounded string; a positive MaxLength means assignment truncates
// or space-pads to that fixed width (§3.1).
type StringData struct {
	Buf       []byte
	MaxLength int
}

// SetData is a bitset over an ordinal subrange [Low, High].
type SetData struct {
	Low, High int
	Bits      []uint64
}

func NewSet(low, high int) *SetData {
	n := high - low + 1
	if n < 0 {
		n = 0
	}
	return &SetData{Low: low, High: high, Bits: make([]uint64, (n+63)/64)}
}

func (s *SetData) Contains(ord int) bool {
	if s == nil || ord < s.Low || ord > s.High {
		return false
	}
	idx := ord - s.Low
	return s.Bits[idx/64]&(1<<uint(idx%64)) != 0
}

func (s *SetData) Add(ord int) {
	if ord < s.Low || ord > s.High {
		return
	}
	idx := ord - s.Low
	s.Bits[idx/64] |= 1 << uint(idx%64)
}

func (s *SetData) Clone() *SetData {
	c := &SetData{Low: s.Low, High: s.High, Bits: make([]uint64, len(s.Bits))}
	copy(c.Bits, s.Bits)
	return c
}

// ArrayData is a flat, row-major buffer for a (possibly multidimensional)
// array. LowerBounds/UpperBounds hold one entry per dimension.
type ArrayData struct {
	LowerBounds []int
	UpperBounds []int
	ElemType    Kind
	ElemTypeName string
	Elements    []Value
}

// TotalElements is the product of each dimension's extent.
func (a *ArrayData) TotalElements() int {
	total := 1
	for i := range a.LowerBounds {
		total *= a.UpperBounds[i] - a.LowerBounds[i] + 1
	}
	return total
}

// FlatIndex converts per-dimension ordinal indices into the row-major
// offset into Elements, bounds-checking every dimension.
func (a *ArrayData) FlatIndex(indices []int) (int, error) {
	if len(indices) != len(a.LowerBounds) {
		return 0, fmt.Errorf("array index arity mismatch: expected %d, got %d", len(a.LowerBounds), len(indices))
	}
	offset := 0
	for i, idx := range indices {
		lo, hi := a.LowerBounds[i], a.UpperBounds[i]
		if idx < lo || idx > hi {
			return 0, fmt.Errorf("array index %d out of range [%d..%d]", idx, lo, hi)
		}
		extent := hi - lo + 1
		offset = offset*extent + (idx - lo)
	}
	return offset, nil
}

func (a *ArrayData) Clone() *ArrayData {
	c := &ArrayData{
		LowerBounds:  append([]int(nil), a.LowerBounds...),
		UpperBounds:  append([]int(nil), a.UpperBounds...),
		ElemType:     a.ElemType,
		ElemTypeName: a.ElemTypeName,
		Elements:     make([]Value, len(a.Elements)),
	}
	for i := range a.Elements {
		c.Elements[i] = Copy(a.Elements[i])
	}
	return c
}

// Field is one named slot of a Record value. Records are modeled as an
// ordered slice of fields, so field order (and GET_FIELD_OFFSET's
// positional addressing) is preserved without a map's nondeterministic
// iteration.
type Field struct {
	Name string
	Val  Value
}

// RecordData is the owned field list of a Record value.
type RecordData struct {
	Fields []Field
}

func (r *RecordData) Get(name string) (*Value, bool) {
	for i := range r.Fields {
		if strings.EqualFold(r.Fields[i].Name, name) {
			return &r.Fields[i].Val, true
		}
	}
	return nil, false
}

func (r *RecordData) Clone() *RecordData {
	c := &RecordData{Fields: make([]Field, len(r.Fields))}
	for i, f := range r.Fields {
		c.Fields[i] = Field{Name: f.Name, Val: Copy(f.Val)}
	}
	return c
}

// MemoryStreamData is a growable, owned byte buffer (the in-memory
// counterpart of File, used by the stdlib's MemoryStream builtins).
type MemoryStreamData struct {
	Buf []byte
	Pos int
}

func (m *MemoryStreamData) Clone() *MemoryStreamData {
	return &MemoryStreamData{Buf: append([]byte(nil), m.Buf...), Pos: m.Pos}
}

// FileData is an owned OS file handle plus the bookkeeping the stdlib's
// Assign/Reset/Rewrite/Close/IOResult builtins need.
type FileData struct {
	Name     string
	ElemType Kind
	Handle   interface{ Close() error }
	IsOpen   bool
	LastErr  error
}

// Value is the tagged union described by §3.1. Only the fields relevant to
// Kind are populated; all operators switch on Kind first.
type Value struct {
	Kind     Kind
	RealKind RealKind

	i   int64   // Integer, Byte, Word, Cardinal, Boolean(0/1), Char(ordinal)
	f   float64 // Real

	enumDecl *EnumDecl
	str      *StringData
	set      *SetData
	arr      *ArrayData
	rec      *RecordData
	mstream  *MemoryStreamData
	file     *FileData
	ptr      *ptrBox
	closure  *ClosureData
}

// ---- Factories ----

func MakeNil() Value  { return Value{Kind: Nil} }
func MakeVoid() Value { return Value{Kind: Void} }

func MakeInt(i int64) Value      { return Value{Kind: Integer, i: i} }
func MakeByte(b uint8) Value     { return Value{Kind: Byte, i: int64(b)} }
func MakeWord(w uint16) Value    { return Value{Kind: Word, i: int64(w)} }
func MakeCardinal(c uint32) Value { return Value{Kind: Cardinal, i: int64(c)} }
func MakeBool(b bool) Value {
	var i int64
	if b {
		i = 1
	}
	return Value{Kind: Boolean, i: i}
}
func MakeChar(c byte) Value { return Value{Kind: Char, i: int64(c)} }

func MakeReal(kind RealKind, f float64) Value {
	return Value{Kind: Real, RealKind: kind, f: f}
}

func MakeEnum(decl *EnumDecl, ordinal int) Value {
	return Value{Kind: Enum, i: int64(ordinal), enumDecl: decl}
}

// MakeString allocates an owned string buffer. maxLength of 0 means
// unbounded; a positive maxLength truncates/pads (§3.1).
func MakeString(s string, maxLength int) Value {
	sd := &StringData{Buf: []byte(s), MaxLength: maxLength}
	applyFixedLength(sd)
	return Value{Kind: String, str: sd}
}

func applyFixedLength(sd *StringData) {
	if sd.MaxLength <= 0 {
		return
	}
	if len(sd.Buf) > sd.MaxLength {
		sd.Buf = sd.Buf[:sd.MaxLength]
		return
	}
	if len(sd.Buf) < sd.MaxLength {
		pad := make([]byte, sd.MaxLength-len(sd.Buf))
		for i := range pad {
			pad[i] = ' '
		}
		sd.Buf = append(sd.Buf, pad...)
	}
}

func MakeSet(low, high int) Value {
	return Value{Kind: Set, set: NewSet(low, high)}
}

func MakeArray(lower, upper []int, elemType Kind, elemTypeName string) Value {
	a := &ArrayData{
		LowerBounds:  append([]int(nil), lower...),
		UpperBounds:  append([]int(nil), upper...),
		ElemType:     elemType,
		ElemTypeName: elemTypeName,
	}
	a.Elements = make([]Value, a.TotalElements())
	for i := range a.Elements {
		a.Elements[i] = zeroOf(elemType)
	}
	return Value{Kind: Array, arr: a}
}

func zeroOf(k Kind) Value {
	switch k {
	case Integer:
		return MakeInt(0)
	case Byte:
		return MakeByte(0)
	case Word:
		return MakeWord(0)
	case Cardinal:
		return MakeCardinal(0)
	case Boolean:
		return MakeBool(false)
	case Char:
		return MakeChar(0)
	case Real:
		return MakeReal(Double, 0)
	case String:
		return MakeString("", 0)
	default:
		return MakeNil()
	}
}

func MakeRecord(fields []Field) Value {
	return Value{Kind: Record, rec: &RecordData{Fields: fields}}
}

func MakeMemoryStream() Value {
	return Value{Kind: MemoryStream, mstream: &MemoryStreamData{}}
}

func MakeFile(name string, elemType Kind) Value {
	return Value{Kind: File, file: &FileData{Name: name, ElemType: elemType}}
}

// MakePointer wires a fresh reference-counted box pointing at target. The
// caller retains ownership of target's lifetime via Dispose.
func MakePointer(target *Value, baseType string) Value {
	return Value{Kind: Pointer, ptr: &ptrBox{refs: 1, alive: true, baseType: baseType, target: target}}
}

func MakeNilPointer(baseType string) Value {
	return Value{Kind: Pointer, ptr: &ptrBox{refs: 1, alive: false, baseType: baseType}}
}

func MakeClosure(entry int, env *ClosureEnv, fn *FuncRef) Value {
	return Value{Kind: Closure, closure: &ClosureData{EntryOffset: entry, Env: env.Retain(), Fn: fn}}
}

// ---- Accessors ----

func (v *Value) IsNil() bool {
	if v.Kind == Nil {
		return true
	}
	if v.Kind == Pointer {
		return v.ptr == nil || !v.ptr.alive
	}
	return false
}

func (v *Value) AsInt() int64      { return v.i }
func (v *Value) AsFloat() float64 {
	if v.Kind == Real {
		return v.f
	}
	return float64(v.i)
}
func (v *Value) AsBool() bool { return v.i != 0 }
func (v *Value) AsString() string {
	if v.str == nil {
		return ""
	}
	return string(v.str.Buf)
}
func (v *Value) StringData() *StringData { return v.str }
func (v *Value) SetData() *SetData       { return v.set }
func (v *Value) ArrayData() *ArrayData   { return v.arr }
func (v *Value) RecordData() *RecordData { return v.rec }
func (v *Value) StreamData() *MemoryStreamData { return v.mstream }
func (v *Value) FileData() *FileData     { return v.file }
func (v *Value) EnumDecl() *EnumDecl     { return v.enumDecl }
func (v *Value) ClosureData() *ClosureData { return v.closure }

// Pointer returns the dereferenceable view of a Pointer Value, or nil if v
// is not a Pointer or has no box. A disposed pointer still yields a view;
// its IsLive reports false and Target returns nil.
func (v *Value) Pointer() *PointerData {
	if v.Kind != Pointer || v.ptr == nil {
		return nil
	}
	return &PointerData{box: v.ptr}
}

// String renders a human-readable form used by disassembly and WriteLn.
func (v Value) String() string {
	switch v.Kind {
	case Nil:
		return "nil"
	case Void:
		return "<void>"
	case Integer, Byte, Word, Cardinal:
		return fmt.Sprintf("%d", v.i)
	case Boolean:
		return fmt.Sprintf("%t", v.i != 0)
	case Char:
		return string(rune(v.i))
	case Real:
		return formatReal(v.f)
	case Enum:
		if v.enumDecl != nil && int(v.i) >= 0 && int(v.i) < len(v.enumDecl.Members) {
			return v.enumDecl.Members[v.i]
		}
		return fmt.Sprintf("enum(%d)", v.i)
	case String:
		return v.AsString()
	case Set:
		return "<set>"
	case Array:
		return "<array>"
	case Record:
		return "<record>"
	case MemoryStream:
		return "<mstream>"
	case File:
		if v.file != nil {
			return fmt.Sprintf("<file %s>", v.file.Name)
		}
		return "<file>"
	case Pointer:
		if v.ptr == nil || !v.ptr.alive {
			return "nil"
		}
		return fmt.Sprintf("^%s", v.ptr.baseType)
	case Closure:
		return "<closure>"
	default:
		return "<?>"
	}
}

func formatReal(f float64) string {
	if math.IsInf(f, 1) {
		return "Inf"
	}
	if math.IsInf(f, -1) {
		return "-Inf"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	return fmt.Sprintf("%g", f)
}
