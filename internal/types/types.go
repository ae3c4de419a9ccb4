// Package types implements the C type system described in §3: a
// discriminated Type value with structural equality, and the shared
// StructInfo table that struct/union member layouts are finalised into.
//
// Grounded on the shape of the teacher's lang/yparse/types.go (TypeKind,
// BaseType, predefined type vars, Size/Alignment taking a struct table),
// generalised from that file's 16-bit target (uint8/int16/block32/64) to
// full C integer promotion (char/short/int/long, each signed or unsigned),
// function types with a variadic flag, and enum-as-int.
package types

import "fmt"

// Kind discriminates the Type variants of §3.
type Kind int

const (
	Void Kind = iota
	Integer
	Pointer
	Array
	Struct
	Union
	Function
)

// IntWidth names the four C integer ranks this compiler supports.
type IntWidth int

const (
	Char IntWidth = iota
	Short
	Int
	Long
)

// Sizeof returns the storage size in bytes of an integer of width w.
func (w IntWidth) Sizeof() int {
	switch w {
	case Char:
		return 1
	case Short:
		return 2
	case Int:
		return 4
	case Long:
		return 8
	}
	panic("bad IntWidth")
}

// UnknownArrayLen is the sentinel array length used until fix_array_size
// (see internal/sema) determines the real length from an initializer.
const UnknownArrayLen = -1

// Type is a structurally-equal discriminated value. Only the fields that
// apply to Kind are meaningful; see the accessor methods below.
type Type struct {
	Kind Kind

	// Integer
	Width    IntWidth
	Unsigned bool

	// Pointer, Array (ElemType doubles as the array element type)
	ElemType *Type

	// Array
	ArrayLen int // UnknownArrayLen until fixed

	// Struct, Union
	StructInfo *StructInfo

	// Function
	Return     *Type
	Params     []*Type
	Variadic   bool
}

// Member describes one field of a StructInfo, with its offset computed
// during finalisation.
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

// StructInfo is the shared, tag-keyed layout for a struct or union.
// Invariant: once Finalized is true, Members' offsets and Size are
// immutable (§3).
type StructInfo struct {
	Tag       string
	IsUnion   bool
	Members   []Member
	Size      int
	Align     int
	Finalized bool
}

// Predefined scalar types, analogous to the teacher's predefined type
// vars (TyUint8, TyInt16, ...) but spanning full C integer ranks.
var (
	TyVoid    = &Type{Kind: Void}
	TyChar    = &Type{Kind: Integer, Width: Char, Unsigned: false}
	TyUChar   = &Type{Kind: Integer, Width: Char, Unsigned: true}
	TyShort   = &Type{Kind: Integer, Width: Short, Unsigned: false}
	TyUShort  = &Type{Kind: Integer, Width: Short, Unsigned: true}
	TyInt     = &Type{Kind: Integer, Width: Int, Unsigned: false}
	TyUInt    = &Type{Kind: Integer, Width: Int, Unsigned: true}
	TyLong    = &Type{Kind: Integer, Width: Long, Unsigned: false}
	TyULong   = &Type{Kind: Integer, Width: Long, Unsigned: true}
)

// NewPointerType returns `pointer to elem`.
func NewPointerType(elem *Type) *Type {
	return &Type{Kind: Pointer, ElemType: elem}
}

// NewArrayType returns `array of elem`, with length len (or
// UnknownArrayLen).
func NewArrayType(elem *Type, length int) *Type {
	return &Type{Kind: Array, ElemType: elem, ArrayLen: length}
}

// NewStructType wraps an existing StructInfo in a Type (is_union comes
// from the StructInfo itself so callers never have to keep it in sync).
func NewStructType(si *StructInfo) *Type {
	k := Struct
	if si.IsUnion {
		k = Union
	}
	return &Type{Kind: k, StructInfo: si}
}

// NewFuncType returns a function type.
func NewFuncType(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: Function, Return: ret, Params: params, Variadic: variadic}
}

// IsIntegral reports whether t is an Integer (enum is always represented
// as TyInt per §3 "enum (treated as int)").
func (t *Type) IsIntegral() bool { return t != nil && t.Kind == Integer }

// IsPointer reports whether t is a Pointer, or an Array (which decays to
// a pointer in rvalue context — see internal/sema).
func (t *Type) IsPointer() bool { return t != nil && (t.Kind == Pointer || t.Kind == Array) }

// IsArithmetic reports whether t participates in the usual arithmetic
// conversions.
func (t *Type) IsArithmetic() bool { return t.IsIntegral() }

// Pointee returns the type pointed to (or array element type); panics if
// t is not a Pointer or Array.
func (t *Type) Pointee() *Type {
	if t.Kind != Pointer && t.Kind != Array {
		panic("Pointee of non-pointer type")
	}
	return t.ElemType
}

// Sizeof returns the storage size of t in bytes. Struct/union sizes must
// already be finalized.
func (t *Type) Sizeof() int {
	switch t.Kind {
	case Void:
		return 0
	case Integer:
		return t.Width.Sizeof()
	case Pointer, Function:
		return 8
	case Array:
		if t.ArrayLen < 0 {
			panic("Sizeof of array with unknown length")
		}
		return t.ArrayLen * t.ElemType.Sizeof()
	case Struct, Union:
		if !t.StructInfo.Finalized {
			panic("Sizeof of unfinalized struct/union " + t.StructInfo.Tag)
		}
		return t.StructInfo.Size
	}
	panic("bad Kind")
}

// Alignof returns the alignment requirement of t in bytes.
func (t *Type) Alignof() int {
	switch t.Kind {
	case Array:
		return t.ElemType.Alignof()
	case Struct, Union:
		if !t.StructInfo.Finalized {
			panic("Alignof of unfinalized struct/union " + t.StructInfo.Tag)
		}
		return t.StructInfo.Align
	default:
		sz := t.Sizeof()
		if sz == 0 {
			return 1
		}
		return sz
	}
}

// Equal reports structural equality, per §3 "equality is structural".
func (a *Type) Equal(b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Void:
		return true
	case Integer:
		return a.Width == b.Width && a.Unsigned == b.Unsigned
	case Pointer:
		return a.ElemType.Equal(b.ElemType)
	case Array:
		return a.ArrayLen == b.ArrayLen && a.ElemType.Equal(b.ElemType)
	case Struct, Union:
		return a.StructInfo == b.StructInfo || a.StructInfo.Tag == b.StructInfo.Tag
	case Function:
		if !a.Return.Equal(b.Return) || a.Variadic != b.Variadic || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !a.Params[i].Equal(b.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// FindMember looks up a member by name in a finalized StructInfo.
func (si *StructInfo) FindMember(name string) (int, *Member) {
	for i := range si.Members {
		if si.Members[i].Name == name {
			return i, &si.Members[i]
		}
	}
	return -1, nil
}

// Finalize computes member offsets and the struct/union's total size and
// alignment, then locks the layout (§3 invariant). Struct members are
// packed sequentially, each aligned to its own type's alignment; unions
// overlay every member at offset 0. This mirrors the teacher's
// symtab.go FuncScope.Finalize alignment technique (align-then-place),
// generalised from a single frame-offset counter to per-member layout.
func (si *StructInfo) Finalize() {
	if si.Finalized {
		return
	}
	offset := 0
	align := 1
	for i := range si.Members {
		m := &si.Members[i]
		a := m.Type.Alignof()
		if a > align {
			align = a
		}
		if si.IsUnion {
			m.Offset = 0
			if sz := m.Type.Sizeof(); sz > offset {
				offset = sz
			}
			continue
		}
		offset = alignUp(offset, a)
		m.Offset = offset
		offset += m.Type.Sizeof()
	}
	si.Size = alignUp(offset, align)
	if si.Size == 0 {
		si.Size = 0
	}
	si.Align = align
	si.Finalized = true
}

func alignUp(v, a int) int {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// String renders a Type for diagnostics, e.g. "pointer to int".
func (t *Type) String() string {
	switch t.Kind {
	case Void:
		return "void"
	case Integer:
		s := ""
		if t.Unsigned {
			s = "unsigned "
		}
		switch t.Width {
		case Char:
			return s + "char"
		case Short:
			return s + "short"
		case Int:
			return s + "int"
		case Long:
			return s + "long"
		}
	case Pointer:
		return "pointer to " + t.ElemType.String()
	case Array:
		if t.ArrayLen < 0 {
			return "array of unknown length of " + t.ElemType.String()
		}
		return fmt.Sprintf("array[%d] of %s", t.ArrayLen, t.ElemType.String())
	case Struct:
		return "struct " + t.StructInfo.Tag
	case Union:
		return "union " + t.StructInfo.Tag
	case Function:
		return "function returning " + t.Return.String()
	}
	return "?"
}
