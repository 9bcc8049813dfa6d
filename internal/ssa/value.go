// Package ssa is the in-memory SSA intermediate representation: functions,
// basic blocks, instructions, values, uses, constants and undef.
//
// The representation follows original_source/src/structure/ir.hpp's class
// taxonomy (classic Phi instructions, not wazero's block-argument SSA) but
// adopts the teacher's (faddat-wazero/internal/engine/wazevo/ssa) Go idiom:
// pool/arena-backed allocation (pool.go), intrusive doubly linked
// instruction lists within a block, and a single tagged Instruction type
// rather than a class hierarchy per opcode (see instruction.go).
package ssa

// Value is anything an instruction operand can point at: an Instruction
// sitting in some block's list, or one of the leaf reference kinds that
// never appear in a block (Const, GlobalRef, ParamRef, Undef).
type Value interface {
	valueID() int
	addUse(u *Use)
	removeUse(u *Use)
	firstUse() *Use
	// FirstUse returns the head of this value's use-list, for callers
	// outside the package (e.g. internal/ssa/pass) that need to walk or
	// rewrite every user of a value.
	FirstUse() *Use
}

// ValueID uniquely identifies a Value within the builder that created it.
type ValueID int32

// valueBase implements the use-list bookkeeping shared by every Value
// implementation. Embed it to get a working Value.
type valueBase struct {
	id   ValueID
	uses *Use // head of the intrusive doubly linked use-list
}

func (v *valueBase) valueID() int    { return int(v.id) }
func (v *valueBase) firstUse() *Use  { return v.uses }
func (v *valueBase) FirstUse() *Use  { return v.uses }

func (v *valueBase) addUse(u *Use) {
	u.prevUse = nil
	u.nextUse = v.uses
	if v.uses != nil {
		v.uses.prevUse = u
	}
	v.uses = u
}

func (v *valueBase) removeUse(u *Use) {
	if u.prevUse != nil {
		u.prevUse.nextUse = u.nextUse
	} else if v.uses == u {
		v.uses = u.nextUse
	}
	if u.nextUse != nil {
		u.nextUse.prevUse = u.prevUse
	}
	u.prevUse, u.nextUse = nil, nil
}

// Use is an edge (value, user-instruction). Every operand slot on an
// Instruction is a Use; Set is the sole way to mutate it so the value's
// use-list stays consistent, matching SPEC_FULL.md §3.2's Use description.
type Use struct {
	value Value
	user  *Instruction

	prevUse, nextUse *Use // intrusive position within value.uses
}

// Value returns the Use's current target, or nil if unset.
func (u *Use) Value() Value { return u.value }

// User returns the instruction that owns this operand slot.
func (u *Use) User() *Instruction { return u.user }

// NextUse returns the next Use in the owning value's use-list, captured
// before any Set call that might unlink u, so callers can rewrite every
// use of a value while iterating.
func (u *Use) NextUse() *Use { return u.nextUse }

// Set rewrites the operand, removing the Use from the old value's use-list
// (if any) and inserting it into the new value's use-list (if non-nil).
func (u *Use) Set(v Value) {
	if u.value != nil {
		u.value.removeUse(u)
	}
	u.value = v
	if v != nil {
		v.addUse(u)
	}
}

func (u *Use) init(user *Instruction) { u.user = user }

// ConstValue is an interned integer constant: Function.Const(i) returns the
// same pointer for the same i for the lifetime of the owning Function, per
// SPEC_FULL.md §3.2's "ConstValue::get(i) is interned" invariant.
type ConstValue struct {
	valueBase
	Imm int32
}

// UndefValue is the process-wide singleton standing in for an
// uninitialized SSA value (used as the seed in mem2reg's renaming stack).
type UndefValue struct {
	valueBase
}

var theUndef = &UndefValue{}

// Undef returns the singleton undef value.
func Undef() *UndefValue { return theUndef }

// GlobalRef is a reference to a global declaration's address; owned by the
// declaration it names, one per Function that reads it (materialized once
// by instruction selection, see internal/codegen/isel).
type GlobalRef struct {
	valueBase
	Decl interface{} // *ast.Decl; kept as interface{} to avoid an ssa->ast import cycle at this layer
}

// ParamRef is a reference to an incoming parameter. Scalar parameters are
// immediately stored to an Alloca by the SSA builder so mem2reg can promote
// them; array parameters use the ParamRef directly as their value slot.
type ParamRef struct {
	valueBase
	Decl interface{} // *ast.Decl
}
