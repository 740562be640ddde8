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
	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/charclass"
)

// CheckCharacter branches to label iff current_character == c.
func (a *Assembler) CheckCharacter(c uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(int32(c), a.Prog.Regs.CurrentCharacter)
	a.Prog.Buf.JE(target.Ref())
}

// CheckNotCharacter is CheckCharacter's negation.
func (a *Assembler) CheckNotCharacter(c uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(int32(c), a.Prog.Regs.CurrentCharacter)
	a.Prog.Buf.JNE(target.Ref())
}

// CheckCharacterAfterAnd branches iff (current_character & mask) == c.
// When c == 0 this degenerates into a `test`/zero-flag check, which is
// worth a dedicated branch: TESTQ sets flags directly and avoids the
// otherwise-needed compare against a zero immediate.
func (a *Assembler) CheckCharacterAfterAnd(c uint16, mask uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	if c == 0 {
		a.Prog.Buf.TESTQ(int32(mask), a.Prog.Regs.CurrentCharacter)
		a.Prog.Buf.JE(target.Ref())
		return
	}
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.ANDQ(int32(mask), tmp)
	a.Prog.Buf.CMPQ(int32(c), tmp)
	a.Prog.Buf.JE(target.Ref())
}

// CheckNotCharacterAfterAnd is CheckCharacterAfterAnd's negation.
func (a *Assembler) CheckNotCharacterAfterAnd(c uint16, mask uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	if c == 0 {
		a.Prog.Buf.TESTQ(int32(mask), a.Prog.Regs.CurrentCharacter)
		a.Prog.Buf.JNE(target.Ref())
		return
	}
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.ANDQ(int32(mask), tmp)
	a.Prog.Buf.CMPQ(int32(c), tmp)
	a.Prog.Buf.JNE(target.Ref())
}

// CheckNotCharacterAfterMinusAnd branches iff ((current_character -
// minus) & and) != c.
func (a *Assembler) CheckNotCharacterAfterMinusAnd(c, minus, and uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.SUBQ(int32(minus), tmp)
	a.Prog.Buf.ANDQ(int32(and), tmp)
	a.Prog.Buf.CMPQ(int32(c), tmp)
	a.Prog.Buf.JNE(target.Ref())
}

// CheckCharacterGT/CheckCharacterLT deliberately use *signed*
// comparisons rather than the unsigned comparisons most of this file
// uses: the distinction is observable for characters >= 0x8000, where
// treating the 16-bit code unit as negative changes which side of the
// comparison it falls on.
func (a *Assembler) CheckCharacterGT(c uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(int32(int16(c)), a.Prog.Regs.CurrentCharacter)
	a.Prog.Buf.JG(target.Ref())
}

func (a *Assembler) CheckCharacterLT(c uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(int32(int16(c)), a.Prog.Regs.CurrentCharacter)
	a.Prog.Buf.JL(target.Ref())
}

// CheckCharacterInRange/CheckCharacterNotInRange use the *unsigned*
// subtract-and-compare trick: `(current_character - from) <= (to -
// from)` in one comparison.
func (a *Assembler) CheckCharacterInRange(from, to uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.SUBQ(int32(from), tmp)
	a.Prog.Buf.CMPQ(int32(to-from), tmp)
	a.Prog.Buf.JBE(target.Ref())
}

func (a *Assembler) CheckCharacterNotInRange(from, to uint16, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	tmp := a.Prog.Regs.Temp0
	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.SUBQ(int32(from), tmp)
	a.Prog.Buf.CMPQ(int32(to-from), tmp)
	a.Prog.Buf.JA(target.Ref())
}

// CheckBitInTable indexes `current_character & 127` into a 128-entry
// table and branches iff the byte read is nonzero. JSCHAR mode only.
func (a *Assembler) CheckBitInTable(table []byte, label *asm.Label) {
	a.requireJSCHAR("CheckBitInTable")
	if len(table) != 128 {
		panic("macroops: CheckBitInTable requires a 128-entry table")
	}
	target := a.Prog.BranchOrBacktrack(label)
	tmp := a.Prog.Regs.Temp0
	base := a.Prog.Regs.Temp1

	a.Prog.Buf.MOVQ(a.Prog.Regs.CurrentCharacter, tmp)
	a.Prog.Buf.ANDQ(int32(0x7f), tmp)
	a.Prog.Buf.MOVQ(int64(asm.DataAddr(table)), base)
	a.Prog.Buf.MOVZBQ(asm.Sib(base, tmp, 1, 0), tmp)
	a.Prog.Buf.TESTQ(tmp, tmp)
	a.Prog.Buf.JNE(target.Ref())
}

// CheckSpecialCharacterClass emits a fast path for the shorthand class
// kinds recognizes and reports whether it did — false tells
// the upstream compiler to fall back to generic range-check code
// (kinds 's'/'S' always return false).
func (a *Assembler) CheckSpecialCharacterClass(kind charclass.Kind, onNoMatch *asm.Label) bool {
	a.requireJSCHAR("CheckSpecialCharacterClass")

	switch kind {
	case charclass.KindEverything:
		return true

	case charclass.KindDigit:
		a.CheckCharacterNotInRange('0', '9', onNoMatch)
		return true
	case charclass.KindNotDigit:
		a.CheckCharacterInRange('0', '9', onNoMatch)
		return true

	case charclass.KindAny:
		for _, lt := range charclass.LineTerminators {
			a.CheckCharacter(lt, onNoMatch)
		}
		return true
	case charclass.KindNewlineClass:
		match := asm.NewLabel("_newline_class_match")
		for _, lt := range charclass.LineTerminators {
			a.CheckCharacter(lt, match)
		}
		a.Prog.Buf.JMP(a.Prog.BranchOrBacktrack(onNoMatch).Ref())
		a.Prog.Bind(match)
		return true

	case charclass.KindWord:
		isWord := asm.NewLabel("_word_is_word")
		target := a.Prog.BranchOrBacktrack(onNoMatch)
		a.Prog.Buf.CMPQ(int32('z'), a.Prog.Regs.CurrentCharacter)
		a.Prog.Buf.JG(target.Ref())
		a.CheckBitInTable(charclass.WordCharacterMap[:128], isWord)
		a.Prog.Buf.JMP(target.Ref())
		a.Prog.Bind(isWord)
		return true
	case charclass.KindNotWord:
		notWord := asm.NewLabel("_not_word_done")
		a.Prog.Buf.CMPQ(int32('z'), a.Prog.Regs.CurrentCharacter)
		a.Prog.Buf.JG(notWord.Ref())
		a.CheckBitInTable(charclass.WordCharacterMap[:128], onNoMatch)
		a.Prog.Bind(notWord)
		return true

	default:
		return false
	}
}

// LoadCurrentCharacter loads the character at cp_offset characters from
// current_position into current_character, first bounds-checking if
// requested. cp_offset must be >= -1 and < 2^30; characters <= 2.
func (a *Assembler) LoadCurrentCharacter(cpOffset int32, onEnd *asm.Label, checkBounds bool, characters int32) {
	if cpOffset < -1 {
		panic("macroops: LoadCurrentCharacter cp_offset must be >= -1")
	}
	if characters < 1 || characters > 2 {
		panic("macroops: LoadCurrentCharacter characters must be 1 or 2")
	}
	if checkBounds {
		a.CheckPosition(cpOffset+characters-1, onEnd)
	}
	a.LoadCurrentCharacterUnchecked(cpOffset, characters)
}

// LoadCurrentCharacterUnchecked loads without a bounds check. In JSCHAR
// mode this is one zero-extended 16-bit load, or — for characters == 2
// — a single 32-bit load of two packed 16-bit code units, gated on
// CanReadUnaligned .
func (a *Assembler) LoadCurrentCharacterUnchecked(cpOffset int32, characters int32) {
	a.requireJSCHAR("LoadCurrentCharacterUnchecked")
	addr := asm.Sib(a.Prog.Regs.InputEndPointer, a.Prog.Regs.CurrentPosition, 1, cpOffset*a.charSize())

	if characters == 1 {
		a.Prog.Buf.MOVZWQ(addr, a.Prog.Regs.CurrentCharacter)
		return
	}
	if !a.CanReadUnaligned() {
		panic("macroops: LoadCurrentCharacterUnchecked(characters=2) requires unaligned-load support")
	}
	// A plain 32-bit load zero-extends into the full 64-bit destination
	// on amd64, so this doubles as the "two packed 16-bit units" load
	// with no separate zero-extending mnemonic needed.
	a.Prog.Buf.MOVL(addr, x86_64.Register32(a.Prog.Regs.CurrentCharacter))
}
