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

import "github.com/nrma/nrma/internal/asm"

// CheckNotBackReference branches to label unless the text captured by
// [startReg, endReg) reoccurs starting at current_position, advancing
// current_position past it on a match. The comparison loop is emitted
// inline, one character at a time — there is no fixed-width shortcut
// because the captured span's length is only known at match time.
//
// current_character is left undefined by this op; callers must reload
// it (LoadCurrentCharacter) before relying on it again.
func (a *Assembler) CheckNotBackReference(startReg, endReg int, label *asm.Label) {
	a.emitBackReference(startReg, endReg, label, false)
}

// CheckNotBackReferenceIgnoreCase is CheckNotBackReference with a
// case-folding comparison, routed through the external
// case_insensitive_compare helper (following the platform ABI the way
// every other out-of-line call in this package does) since per-character
// case folding needs Unicode tables this package does not carry.
func (a *Assembler) CheckNotBackReferenceIgnoreCase(startReg, endReg int, label *asm.Label) {
	a.emitBackReference(startReg, endReg, label, true)
}

// emitBackReference compares the captured span against the input.
// Register roles for the duration of this op:
//
//	captureStart (Temp0) - span start; copied into capturePos for the
//	                       case-sensitive loop (which then uses Temp0 as
//	                       load scratch), or repointed to the first span
//	                       address for the case-folded path
//	captureEnd   (Temp1) - loop-continuation bound in the case-sensitive
//	                       path; otherwise free after the length check
//	length       (Temp2) - captureEnd - captureStart, in bytes; consumed
//	                       once by the case-folded path's single external
//	                       call, or reused as capturePos, the walk
//	                       position, in the case-sensitive loop
//	current_position     - walks the input; left advanced past the match
//	                        on success
//
// so current_character is free throughout as load/bounds-check scratch.
func (a *Assembler) emitBackReference(startReg, endReg int, label *asm.Label, ignoreCase bool) {
	a.requireJSCHAR("CheckNotBackReference")

	target := a.Prog.BranchOrBacktrack(label)
	regs := a.Prog.Regs
	captureStart, captureEnd, length := regs.Temp0, regs.Temp1, regs.Temp2

	empty := asm.NewLabel("_backref_empty")
	done := asm.NewLabel("_backref_done")

	a.Prog.Buf.MOVQ(asm.Ptr(regFile, a.Layout.RegisterOffset(startReg)), captureStart)
	a.Prog.Buf.MOVQ(asm.Ptr(regFile, a.Layout.RegisterOffset(endReg)), captureEnd)

	// length = captureEnd - captureStart. length < 0 means an inverted or
	// non-participating capture, which can never match; length == 0 is
	// the ordinary empty-capture fast path.
	a.Prog.Buf.MOVQ(captureEnd, length)
	a.Prog.Buf.SUBQ(captureStart, length)
	a.Prog.Buf.CMPQ(int32(0), length)
	a.Prog.Buf.JL(target.Ref())
	a.Prog.Buf.JE(empty.Ref())

	// current_position + length > 0 means fewer than length characters
	// remain in the input; reject before reading past InputEndPointer.
	// Uses current_character as scratch so length itself survives intact
	// for the comparison below.
	remaining := regs.CurrentCharacter
	a.Prog.Buf.MOVQ(regs.CurrentPosition, remaining)
	a.Prog.Buf.ADDQ(length, remaining)
	a.Prog.Buf.CMPQ(int32(0), remaining)
	a.Prog.Buf.JG(target.Ref())

	if ignoreCase {
		a.emitCaseFoldedCompare(captureStart, length, target)
		a.Prog.Buf.ADDQ(length, regs.CurrentPosition)
	} else {
		// capturePos walks the span independently of captureStart:
		// emitExactCharCompare uses Temp0 as its own load scratch, so
		// reusing captureStart itself here would clobber the walk
		// position on its very first iteration.
		capturePos := length
		a.Prog.Buf.MOVQ(captureStart, capturePos)
		loop := asm.NewLabel("_backref_loop")
		a.Prog.Bind(loop)
		a.emitExactCharCompare(capturePos, target)
		a.Prog.Buf.ADDQ(a.charSize(), capturePos)
		a.Prog.Buf.ADDQ(a.charSize(), regs.CurrentPosition)
		a.Prog.Buf.CMPQ(captureEnd, capturePos)
		a.Prog.Buf.JNE(loop.Ref())
	}

	a.Prog.Buf.JMP(done.Ref())
	a.Prog.Bind(empty)
	a.Prog.Bind(done)
}

// emitExactCharCompare compares the JSCHAR at byte offset capturePos
// against the one at current_position, both measured from
// InputEndPointer, branching to onMismatch if they differ. It clobbers
// Temp0 and current_character as scratch.
func (a *Assembler) emitExactCharCompare(capturePos asm.Register, onMismatch *asm.Label) {
	regs := a.Prog.Regs
	captured, input := regs.Temp0, regs.CurrentCharacter

	a.Prog.Buf.MOVZWQ(asm.Sib(regs.InputEndPointer, capturePos, 1, 0), captured)
	a.Prog.Buf.MOVZWQ(asm.Sib(regs.InputEndPointer, regs.CurrentPosition, 1, 0), input)
	a.Prog.Buf.CMPQ(input, captured)
	a.Prog.Buf.JNE(onMismatch.Ref())
}

// emitCaseFoldedCompare computes the two span addresses — capturePos and
// current_position, both measured from InputEndPointer — and byteLength
// once, then hands the whole span to CaseInsensitiveCompareCall in a
// single external call, the external call internal/codegen's ABI
// adapter wires up to charclass.CaseInsensitiveCompareStrings. This is a
// single case_insensitive_compare(addr1, addr2, byte_length) call
// covering the entire captured span, not one call per code unit.
// Clobbers capturePos (repointed to its own address) and Temp1.
func (a *Assembler) emitCaseFoldedCompare(capturePos, byteLength asm.Register, onMismatch *asm.Label) {
	regs := a.Prog.Regs

	addr1 := capturePos
	a.Prog.Buf.LEAQ(asm.Sib(regs.InputEndPointer, capturePos, 1, 0), addr1)
	addr2 := regs.Temp1
	a.Prog.Buf.LEAQ(asm.Sib(regs.InputEndPointer, regs.CurrentPosition, 1, 0), addr2)

	if a.CaseInsensitiveCompareCall != nil {
		a.CaseInsensitiveCompareCall(a, addr1, addr2, byteLength, onMismatch)
	} else {
		// No ABI adapter installed (e.g. compiled without
		// internal/codegen wired in): treat as a hard mismatch rather
		// than silently matching case-sensitively.
		a.Prog.Buf.JMP(onMismatch.Ref())
	}
}
