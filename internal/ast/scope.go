package ast

import (
	"github.com/gmofishsauce/xcc/internal/container"
	"github.com/gmofishsauce/xcc/internal/types"
)

// StorageClass distinguishes how a variable's storage is provided, per
// §3 VarInfo ("Either a global ... or a local").
type StorageClass int

const (
	StorageAuto StorageClass = iota
	StorageStatic
	StorageExtern
	StorageParam
)

// VarFlag holds the small set of boolean facts a VarInfo needs beyond its
// type and storage class.
type VarFlag int

const (
	FlagConst VarFlag = 1 << iota
	FlagAddressTaken // forces a stack spill, per §4.4 "address-taken locals"
)

// VarInfo is either a global (storage class, optional constant
// initializer, emission label) or a local (frame offset, associated
// virtual register) — §3.
type VarInfo struct {
	Name    string
	Type    *types.Type
	Storage StorageClass
	Flags   VarFlag

	IsGlobal bool
	Label    string       // emission label for globals/statics
	Init     *Initializer // normalized initializer, globals only

	FrameOffset int // assigned during register allocation
	VReg        int // -1 until the IR builder assigns one

	ParamIndex int // index in the function's parameter list, params only
}

// IsAddressTaken reports whether this variable's address has been taken,
// forcing it to be spilled rather than register-allocated (§4.4).
func (v *VarInfo) IsAddressTaken() bool { return v.Flags&FlagAddressTaken != 0 }

// Scope is a tree node: a parent pointer and an ordered list of local
// variable declarations, per §3. Lookup walks parents. Mirrors the
// teacher's SymbolTable/FuncScope pairing, generalised into a single
// recursive shape since C scoping (unlike the teacher's flat
// global+per-function model) nests arbitrarily within a function body.
type Scope struct {
	Parent *Scope
	Vars   *container.OrderedMap[*VarInfo]
}

// NewScope creates a new scope nested inside parent (nil for the global
// scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, Vars: container.NewOrderedMap[*VarInfo]()}
}

// Declare adds v to this scope. The caller is responsible for checking
// for a redeclaration error first (§4.3 "redeclaration within the same
// scope is an error").
func (s *Scope) Declare(v *VarInfo) { s.Vars.Put(v.Name, v) }

// DeclaredHere reports whether name is declared directly in this scope
// (not an ancestor) — used for the redeclaration check.
func (s *Scope) DeclaredHere(name string) bool { return s.Vars.Has(name) }

// Lookup walks from s up through parents, returning the first VarInfo
// found and the scope that holds it.
func (s *Scope) Lookup(name string) (*VarInfo, *Scope) {
	for sc := s; sc != nil; sc = sc.Parent {
		if v, ok := sc.Vars.Get(name); ok {
			return v, sc
		}
	}
	return nil, nil
}

// IsGlobal reports whether s is the root (file) scope.
func (s *Scope) IsGlobal() bool { return s.Parent == nil }
