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

package asm

import (
	"github.com/chenzhuoyu/iasm/x86_64"
)

// Label wraps an *x86_64.Label with the bookkeeping GenerateCode needs to
// enforce one invariant: every label a backtrack push references must
// have been bound by the time code is generated.
type Label struct {
	name  string
	ref   *x86_64.Label
	bound bool
}

// NewLabel allocates an unbound label. Every macro op that takes a
// *Label falls back to the assembler's internal backtrack label when
// given nil — see (*Program).BranchOrBacktrack.
func NewLabel(name string) *Label {
	return &Label{name: name, ref: x86_64.CreateLabel(name)}
}

func (l *Label) String() string { return l.name }

// Ref exposes the underlying iasm label for direct use with Program.Buf
// methods (JMP, JE, ..., LEAQ), which take *x86_64.Label targets.
func (l *Label) Ref() *x86_64.Label { return l.ref }

// Program is the assembler handle every macro-op emitter is built on. It
// owns the underlying iasm program plus the LabelPatcher ledger.
type Program struct {
	Buf            *x86_64.Program
	Regs           Registers
	patches        *LabelPatcher
	backtrackLabel *Label
}

// NewProgram creates an empty program with the fixed register assignment.
func NewProgram() *Program {
	return &Program{
		Buf:     x86_64.DefaultArch.CreateProgram(),
		Regs:    DefaultRegisters,
		patches: NewLabelPatcher(),
	}
}

// Patcher exposes the label-patch ledger so internal/codegen can
// validate it after the whole body has been emitted.
func (p *Program) Patcher() *LabelPatcher { return p.patches }

// SetBacktrackLabel installs the label BranchOrBacktrack falls back to
// when a macro op is given a nil label — the single shared "pop and jump
// indirect" trampoline calls the backtrack trampoline.
func (p *Program) SetBacktrackLabel(l *Label) { p.backtrackLabel = l }

// BranchOrBacktrack resolves a possibly-nil label the way every macro op
// does: fall back to the shared backtrack label when given nil.
func (p *Program) BranchOrBacktrack(l *Label) *Label {
	if l != nil {
		return l
	}
	if p.backtrackLabel == nil {
		panic("asm: BranchOrBacktrack used before a backtrack label was installed")
	}
	return p.backtrackLabel
}

// Bind marks a label at the current emission point.
func (p *Program) Bind(l *Label) {
	p.Buf.Link(l.ref)
	l.bound = true
}

// BindBacktrack marks a label and additionally resolves any outstanding
// patch record naming it, so Verify no longer flags those sites as
// dangling.
func (p *Program) BindBacktrack(l *Label) {
	p.Bind(l)
	p.patches.resolve(l)
}
