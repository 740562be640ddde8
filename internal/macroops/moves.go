/*
 * Copyright 2021 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package macroops

import (
	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/frame"
)

// AdvanceCurrentPosition implements `current_position += by * char_size`.
func (a *Assembler) AdvanceCurrentPosition(by int32) {
	if by == 0 {
		return
	}
	delta := by * a.charSize()
	if delta > 0 {
		a.Prog.Buf.ADDQ(delta, a.Prog.Regs.CurrentPosition)
	} else {
		a.Prog.Buf.SUBQ(-delta, a.Prog.Regs.CurrentPosition)
	}
}

// AdvanceRegister implements `register[reg] += by` (pointer-wide).
func (a *Assembler) AdvanceRegister(reg int, by int32) {
	off := a.Layout.RegisterOffset(reg)
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, off), tmp)
	if by > 0 {
		a.Prog.Buf.ADDQ(by, tmp)
	} else if by < 0 {
		a.Prog.Buf.SUBQ(-by, tmp)
	}
	a.Prog.Buf.MOVQ(tmp, asm.Ptr(regFile, off))
}

// regFile is the physical register the frame pointer lives in for the
// lifetime of generated code. Prologue emission (internal/codegen) sets
// RBP to point at the base of FrameData, so every FrameData/register-
// file access below is RBP-relative — the same convention
// cloudwego-frugal's atm/pgen_amd64.go prologue establishes with
// `p.LEAQ(Ptr(RSP, self.ctxt.offs()), RBP)`.
const regFile = asm.RBP

// PushCurrentPosition/PopCurrentPosition save and restore
// current_position across a backtrack-stack round trip.
func (a *Assembler) PushCurrentPosition() {
	a.pushRaw(a.Prog.Regs.CurrentPosition)
}

func (a *Assembler) PopCurrentPosition() {
	a.popRaw(a.Prog.Regs.CurrentPosition)
}

// PushRegister/PopRegister save and restore regex register i.
// checkLimit mirrors the register-push variants that optionally call
// CheckBacktrackStackLimit inline.
func (a *Assembler) PushRegister(reg int, checkLimit bool) {
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, a.Layout.RegisterOffset(reg)), tmp)
	a.pushRaw(tmp)
	if checkLimit {
		a.CheckBacktrackStackLimit()
	}
}

func (a *Assembler) PopRegister(reg int) {
	tmp := a.Prog.Regs.Temp0
	a.popRaw(tmp)
	a.Prog.Buf.MOVQ(tmp, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
}

// ReadCurrentPositionFromRegister/WriteCurrentPositionFromRegister move
// current_position to and from a saved register slot.
func (a *Assembler) ReadCurrentPositionFromRegister(reg int) {
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, a.Layout.RegisterOffset(reg)), a.Prog.Regs.CurrentPosition)
}

// WriteCurrentPositionFromRegister writes current_position (optionally
// offset by characterOffset characters) into register reg.
func (a *Assembler) WriteCurrentPositionFromRegister(reg int, characterOffset int32) {
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentPosition, tmp)
	if characterOffset != 0 {
		a.Prog.Buf.ADDQ(characterOffset*a.charSize(), tmp)
	}
	a.Prog.Buf.MOVQ(tmp, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
}

// ReadBacktrackStackPointerFromRegister/WriteBacktrackStackPointerFromRegister
// round-trip backtrack_stack_pointer through a saved register slot as a
// base-relative offset, not an absolute address, so the value survives
// an arena Grow transparently.
func (a *Assembler) ReadBacktrackStackPointerFromRegister(reg int) {
	bsp := a.Prog.Regs.BacktrackStackPtr
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, a.Layout.RegisterOffset(reg)), tmp)
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, frame.OffBacktrackStackBase), bsp)
	a.Prog.Buf.ADDQ(tmp, bsp)
}

func (a *Assembler) WriteBacktrackStackPointerFromRegister(reg int) {
	bsp := a.Prog.Regs.BacktrackStackPtr
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, frame.OffBacktrackStackBase), tmp)
	a.Prog.Buf.MOVQ(bsp, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
	a.Prog.Buf.SUBQ(tmp, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
}

// SetCurrentPositionFromEnd clamps current_position to at most
// `-by * char_size`; if clamped, reloads the character at offset -1.
func (a *Assembler) SetCurrentPositionFromEnd(by int32) {
	limit := -by * a.charSize()
	skip := asm.NewLabel("_set_pos_from_end_skip")

	a.Prog.Buf.CMPQ(int64(limit), a.Prog.Regs.CurrentPosition)
	a.Prog.Buf.JLE(skip.Ref())
	a.Prog.Buf.MOVQ(int64(limit), a.Prog.Regs.CurrentPosition)
	a.LoadCurrentCharacterUnchecked(-1, 1)
	a.Prog.Bind(skip)
}

// SetRegister sets scratch register i to a literal, only permitted for
// i >= num_saved_registers_.
func (a *Assembler) SetRegister(i int, to int64) {
	if i < a.Layout.NumSavedRegisters {
		panic("macroops: SetRegister used on a saved (capture) register")
	}
	a.Prog.Buf.MOVQ(to, asm.Ptr(regFile, a.Layout.RegisterOffset(i)))
}

// ClearRegisters fills the inclusive [from, to] register range with
// inputStartMinusOne — used both by the prologue and by generated code
// resetting nested-group captures on re-entry.
func (a *Assembler) ClearRegisters(from, to int) {
	tmp := a.Prog.Regs.Temp1
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, frame.OffInputStartMinusOne), tmp)
	for i := from; i <= to; i++ {
		a.Prog.Buf.MOVQ(tmp, asm.Ptr(regFile, a.Layout.RegisterOffset(i)))
	}
}

func (a *Assembler) pushRaw(reg asm.Register) {
	bsp := a.Prog.Regs.BacktrackStackPtr
	a.Prog.Buf.MOVQ(reg, asm.Ptr(bsp, 0))
	a.Prog.Buf.ADDQ(int32(frame.PtrSize), bsp)
}

func (a *Assembler) popRaw(reg asm.Register) {
	bsp := a.Prog.Regs.BacktrackStackPtr
	a.Prog.Buf.SUBQ(int32(frame.PtrSize), bsp)
	a.Prog.Buf.MOVQ(asm.Ptr(bsp, 0), reg)
}
