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
	"github.com/nrma/nrma/internal/backtrack"
	"github.com/nrma/nrma/internal/frame"
)

// Bind marks a label at the current emission point.
func (a *Assembler) Bind(l *asm.Label) { a.Prog.Bind(l) }

// BindBacktrack marks a label and resolves outstanding LabelPatch
// entries naming it.
func (a *Assembler) BindBacktrack(l *asm.Label) { a.Prog.BindBacktrack(l) }

// ResultRegister is the register that carries the pending result value
// (one of defs.Result's three sentinels, or in global mode a capture
// count) between Fail/Succeed and internal/codegen's return trampoline,
// which is the only place that actually stores it into
// InputOutputData.Result — Fail and Succeed run inside the same
// contiguous routine as that trampoline, so a register hand-off is
// enough; no memory write is needed until the very end.
func (a *Assembler) ResultRegister() asm.Register { return a.Prog.Regs.Temp2 }

// Fail implements the routine's failure exit: in non-global mode, sets
// result := NotFound and jumps to exit; in global mode, loads
// successfulCaptures as the result and jumps to exit.
func (a *Assembler) Fail() {
	if a.Flags.Global() {
		a.Prog.Buf.MOVQ(asm.Ptr(regFile, frame.OffSuccessfulCaptures), a.ResultRegister())
	} else {
		a.Prog.Buf.MOVQ(int32(resultNotFound), a.ResultRegister())
	}
	a.Prog.Buf.JMP(a.ExitLabel.Ref())
}

// Succeed jumps to the success label. It returns whether the regex is
// global so the caller (the upstream compiler) can decide whether more
// body remains to be emitted after a Succeed call.
func (a *Assembler) Succeed() bool {
	a.Prog.Buf.JMP(a.SuccessLabel.Ref())
	return a.Flags.Global()
}

// CheckAtStart branches to label iff startIndex == 0 AND the current
// byte address equals FrameData.inputStart.
func (a *Assembler) CheckAtStart(label *asm.Label) {
	a.checkAtStart(label, true)
}

// CheckNotAtStart is CheckAtStart's negation.
func (a *Assembler) CheckNotAtStart(label *asm.Label) {
	a.checkAtStart(label, false)
}

func (a *Assembler) checkAtStart(label *asm.Label, wantAtStart bool) {
	target := a.Prog.BranchOrBacktrack(label)
	notAtStart := asm.NewLabel("_not_at_start")

	a.Prog.Buf.CMPQ(int32(0), asm.Ptr(regFile, frame.OffStartIndex))
	a.Prog.Buf.JNE(notAtStart.Ref())

	// Both operands are offset-from-input_end_pointer, so no address
	// arithmetic is needed to compare them.
	a.Prog.Buf.CMPQ(asm.Ptr(regFile, frame.OffInputStart), a.Prog.Regs.CurrentPosition)

	if wantAtStart {
		a.Prog.Buf.JE(target.Ref())
		a.Prog.Bind(notAtStart)
	} else {
		skip := asm.NewLabel("_at_start_skip")
		a.Prog.Buf.JE(skip.Ref())
		a.Prog.Bind(notAtStart)
		a.Prog.Buf.JMP(target.Ref())
		a.Prog.Bind(skip)
	}
}

// CheckPosition branches to onOutside iff
// `current_position >= -cpOffset * char_size` — i.e. reading
// cpOffset+1 characters from the current position would run past the
// end of input.
func (a *Assembler) CheckPosition(cpOffset int32, onOutside *asm.Label) {
	target := a.Prog.BranchOrBacktrack(onOutside)
	bound := int64(-cpOffset) * int64(a.charSize())
	a.Prog.Buf.CMPQ(bound, a.Prog.Regs.CurrentPosition)
	a.Prog.Buf.JGE(target.Ref())
}

// CanReadUnaligned reports true on x86/x64.
func (a *Assembler) CanReadUnaligned() bool { return asm.CanReadUnaligned() }

// StackLimitSlack returns the conservative scratch reserve of the
// backtrack arena.
func (a *Assembler) StackLimitSlack() int64 { return backtrack.StackLimitSlack }

const resultNotFound = 0
