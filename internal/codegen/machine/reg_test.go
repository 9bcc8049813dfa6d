package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"
)

func TestCanEncodeImm(t *testing.T) {
	cases := []struct {
		imm int32
		ok  bool
	}{
		{0, true},
		{255, true},
		{256, true},     // 0x01 rotated right by 24 (i.e. left by 8)
		{0xFF00, true},  // 0xFF rotated right by 24 (i.e. left by 8)
		{-0x01000000, true}, // bit pattern 0xFF000000: 0xFF rotated right by 8
		{0x100, true},
		{-1, false}, // 0xFFFFFFFF has more than 8 significant bits under any rotation
		{1000000, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, machine.CanEncodeImm(c.imm), "imm=%#x", uint32(c.imm))
	}
}

func TestOperandConstructors(t *testing.T) {
	r := machine.R(machine.R4)
	assert.True(t, r.IsReg())
	assert.True(t, r.IsPrecolored())
	assert.Equal(t, "r4", r.String())

	v := machine.V(3)
	assert.True(t, v.IsVirtual())
	assert.True(t, v.NeedsColor())
	assert.Equal(t, "v3", v.String())

	imm := machine.I(42)
	assert.True(t, imm.IsImm())
	assert.False(t, imm.NeedsColor())
	assert.Equal(t, "#42", imm.String())

	lr := machine.R(machine.LR)
	assert.Equal(t, "lr", lr.String())
	sp := machine.R(machine.SP)
	assert.Equal(t, "sp", sp.String())
}

func TestOperandIsEquiv(t *testing.T) {
	a := machine.R(machine.R0)
	b := machine.R(machine.R0)
	c := machine.R(machine.R1)
	assert.True(t, a.IsEquiv(b))
	assert.False(t, a.IsEquiv(c))
	assert.False(t, a.IsEquiv(machine.V(0)))
}

func TestCondOpposite(t *testing.T) {
	assert.Equal(t, machine.Ne, machine.Eq.Opposite())
	assert.Equal(t, machine.Eq, machine.Ne.Opposite())
	assert.Equal(t, machine.Lt, machine.Ge.Opposite())
	assert.Equal(t, machine.Ge, machine.Lt.Opposite())
	assert.Equal(t, machine.Gt, machine.Le.Opposite())
	assert.Equal(t, machine.Le, machine.Gt.Opposite())
}
