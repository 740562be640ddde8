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

// IfRegisterGE branches to label iff register[reg] >= comparand — the
// loop-count-exceeded test greedy/lazy quantifier bodies use.
func (a *Assembler) IfRegisterGE(reg int, comparand int64, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(comparand, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
	a.Prog.Buf.JGE(target.Ref())
}

// IfRegisterLT is IfRegisterGE's complement.
func (a *Assembler) IfRegisterLT(reg int, comparand int64, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(comparand, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
	a.Prog.Buf.JL(target.Ref())
}

// IfRegisterEqPos branches to label iff register[reg] == current_position
// — used to detect empty-match iterations of a capturing group inside a
// loop.
func (a *Assembler) IfRegisterEqPos(reg int, label *asm.Label) {
	target := a.Prog.BranchOrBacktrack(label)
	a.Prog.Buf.CMPQ(a.Prog.Regs.CurrentPosition, asm.Ptr(regFile, a.Layout.RegisterOffset(reg)))
	a.Prog.Buf.JE(target.Ref())
}
