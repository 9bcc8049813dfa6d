// Package machine is the ARM-flavored machine IR that instruction
// selection lowers SSA into: machine functions/blocks/instructions with
// operand states (PreColored/Allocated/Virtual/Immediate), mirroring
// original_source/src/structure/machine_code.hpp in the same tagged-struct
// Go idiom internal/ssa uses for the SSA layer (see internal/ssa/value.go,
// internal/ssa/instruction.go), rather than the original's class hierarchy.
package machine

import "fmt"

// Reg names a physical ARM register, per the AAPCS32 calling convention
// (https://en.wikipedia.org/wiki/Calling_convention#ARM_(A32)) that
// original_source/src/structure/machine_code.hpp's ArmReg enum documents.
type Reg int32

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	FP = R11
	IP = R12
	SP = R13
	LR = R14
	PC = R15
)

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	default:
		return fmt.Sprintf("r%d", int(r))
	}
}

// Cond is an ARM condition code suffix.
type Cond int

const (
	Any Cond = iota
	Eq
	Ne
	Ge
	Gt
	Le
	Lt
)

var oppositeCond = [...]Cond{Any, Ne, Eq, Lt, Le, Gt, Ge}

// Opposite returns the condition that holds exactly when c does not.
func (c Cond) Opposite() Cond { return oppositeCond[c] }

func (c Cond) String() string {
	switch c {
	case Eq:
		return "eq"
	case Ne:
		return "ne"
	case Ge:
		return "ge"
	case Gt:
		return "gt"
	case Le:
		return "le"
	case Lt:
		return "lt"
	default:
		return ""
	}
}

// ShiftKind is an ARM barrel-shifter operation applied to a register
// operand.
type ShiftKind int

const (
	ShiftNone ShiftKind = iota
	Asr
	Lsl
	Lsr
	Ror
	Rrx
)

// Shift is a barrel-shifter specification attached to a register operand.
type Shift struct {
	Kind   ShiftKind
	Amount int32
}

func (s Shift) IsNone() bool { return s.Kind == ShiftNone }

func (s Shift) String() string {
	var name string
	switch s.Kind {
	case Asr:
		name = "asr"
	case Lsl:
		name = "lsl"
	case Lsr:
		name = "lsr"
	case Ror:
		name = "ror"
	case Rrx:
		name = "rrx"
	default:
		return ""
	}
	return fmt.Sprintf("%s #%d", name, s.Amount)
}

// OperandState is the lifecycle stage of an Operand, per
// machine_code.hpp's MachineOperand::State: a virtual register starts
// life as Virtual, gets Allocated a physical register by the register
// allocator, or is PreColored from the start (calling-convention-fixed
// registers); Immediate operands never need a color.
type OperandState int

const (
	PreColored OperandState = iota
	Allocated
	Virtual
	Immediate
)

// Operand is a machine-level value: a physical register, a
// not-yet-colored virtual register, or an encoded immediate. Copied by
// value throughout (small and comparable), matching MachineOperand.
type Operand struct {
	State OperandState
	Value int32
}

// R builds a precolored physical-register operand.
func R(r Reg) Operand { return Operand{State: PreColored, Value: int32(r)} }

// V builds a virtual-register operand.
func V(n int32) Operand { return Operand{State: Virtual, Value: n} }

// I builds an immediate operand.
func I(imm int32) Operand { return Operand{State: Immediate, Value: imm} }

// IsVirtual, IsImm, IsPrecolored classify an Operand's state.
func (o Operand) IsVirtual() bool    { return o.State == Virtual }
func (o Operand) IsImm() bool        { return o.State == Immediate }
func (o Operand) IsPrecolored() bool { return o.State == PreColored }

// IsReg reports whether o denotes some register (colored or not).
func (o Operand) IsReg() bool {
	return o.State == PreColored || o.State == Allocated || o.State == Virtual
}

// NeedsColor reports whether o is a node the register allocator must
// assign (virtual or precolored; Allocated/Immediate never re-enter the
// allocator).
func (o Operand) NeedsColor() bool { return o.State == Virtual || o.State == PreColored }

// IsEquiv reports whether o and other name the same physical register,
// whether that came from precoloring or from allocation.
func (o Operand) IsEquiv(other Operand) bool {
	colored := func(s OperandState) bool { return s == PreColored || s == Allocated }
	return colored(o.State) && colored(other.State) && o.Value == other.Value
}

func (o Operand) String() string {
	switch o.State {
	case PreColored, Allocated:
		return Reg(o.Value).String()
	case Virtual:
		return fmt.Sprintf("v%d", o.Value)
	case Immediate:
		return fmt.Sprintf("#%d", o.Value)
	default:
		return "?"
	}
}

// CondZero is a synthetic operand standing in for the flags register in
// the instruction scheduler's dependence graph (original_source/src/passes
// /asm/scheduling.cpp's `COND` sentinel), so that a Compare feeding a
// conditional Move/Branch is ordered before its consumer even though
// neither touches an architectural register.
var CondZero = Operand{State: PreColored, Value: 0x40000000}

// CanEncodeImm reports whether imm is representable as an ARM data-
// processing immediate: an 8-bit value rotated right by an even amount in
// 0..30, per SPEC_FULL.md §4.7.
func CanEncodeImm(imm int32) bool {
	u := uint32(imm)
	for rot := uint(0); rot < 32; rot += 2 {
		rotated := (u << rot) | (u >> (32 - rot))
		if rotated <= 0xFF {
			return true
		}
	}
	return false
}
