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

// PushBacktrackLabel pushes label's address onto the backtrack stack.
// The push site is recorded in the program's LabelPatcher:
// GenerateCode later verifies every such site was eventually reached by
// a matching Bind/BindBacktrack. This is the dominant backtrack-push a
// compiled body emits, so it carries the same inline stack-limit check
// PushBacktrackRegister and PushBacktrackLiteral do.
func (a *Assembler) PushBacktrackLabel(label *asm.Label) {
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.LEAQ(asm.Ref(label), tmp)
	a.pushRaw(tmp)
	a.Prog.Patcher().Record(label)
	a.CheckBacktrackStackLimit()
}

// PushBacktrackRegister pushes regex register reg's current value, with
// an inline stack-limit check.
func (a *Assembler) PushBacktrackRegister(reg int) {
	a.PushRegister(reg, true)
}

// PushBacktrackLiteral pushes a literal pointer-sized value — used to
// save loop counters and similar scalar state across a backtrack point.
func (a *Assembler) PushBacktrackLiteral(v int64) {
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(v, tmp)
	a.pushRaw(tmp)
	a.CheckBacktrackStackLimit()
}

// PopBacktrack pops the most recent value off the backtrack stack into
// regex register reg.
func (a *Assembler) PopBacktrack(reg int) {
	a.PopRegister(reg)
}

// Backtrack pops a return address and jumps to it indirectly — the body
// of the shared backtrack trampoline every macro op's nil label falls
// back to.
func (a *Assembler) Backtrack() {
	tmp := a.Prog.Regs.Temp0
	a.popRaw(tmp)
	a.Prog.Buf.JMPQ(tmp)
}

// CheckBacktrackStackLimit calls the shared stack-overflow trampoline
// iff the backtrack stack pointer has advanced within StackLimitSlack
// of the arena limit. This is a real CALL, not a branch: the trampoline
// (emitted by internal/codegen) grows the arena, translates the
// pointer across the (possibly relocated) base, and RETs back to the
// instruction right after this check, so callers never see it as
// anything but a possible pause.
func (a *Assembler) CheckBacktrackStackLimit() {
	if a.overflowLabel == nil {
		panic("macroops: CheckBacktrackStackLimit used before SetOverflowLabel")
	}
	tmp := a.Prog.Regs.Temp0
	skip := asm.NewLabel("_backtrack_limit_ok")

	a.Prog.Buf.MOVQ(asm.Ptr(regFile, frame.OffBacktrackStackLimit), tmp)
	a.Prog.Buf.SUBQ(int32(a.StackLimitSlack()), tmp)
	a.Prog.Buf.CMPQ(tmp, a.Prog.Regs.BacktrackStackPtr)
	a.Prog.Buf.JB(skip.Ref())
	a.Prog.Buf.CALL(a.overflowLabel.Ref())
	a.Prog.Bind(skip)
}

// SetOverflowLabel overrides the stack-growth trampoline's entry point.
// New already installs one; this exists for callers that assemble the
// trampoline themselves instead of going through internal/codegen.
func (a *Assembler) SetOverflowLabel(l *asm.Label) { a.overflowLabel = l }

// CheckGreedyLoop implements the classic "did this iteration make
// forward progress" guard: compares current_position against the value
// pushed by the loop's previous iteration (stored via
// PushBacktrackLiteral(-1) as a marker the first time through) and
// branches to label if no progress was made, popping that entry first;
// when progress was made the backtrack stack is left untouched.
func (a *Assembler) CheckGreedyLoop(label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	bsp := a.Prog.Regs.BacktrackStackPtr
	tmp := a.Prog.Regs.Temp0
	noBacktrack := asm.NewLabel("_greedy_loop_no_repeat")

	a.Prog.Buf.MOVQ(asm.Ptr(bsp, -int32(frame.PtrSize)), tmp)
	a.Prog.Buf.CMPQ(a.Prog.Regs.CurrentPosition, tmp)
	a.Prog.Buf.JNE(noBacktrack.Ref())
	a.Prog.Buf.SUBQ(int32(frame.PtrSize), bsp)
	a.Prog.Buf.JMP(target.Ref())
	a.Prog.Bind(noBacktrack)
}
