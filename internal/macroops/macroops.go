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

// Package macroops is the NRMA core: one emitter method per macro
// operation the regex compiler needs. Each method reads or writes the
// fixed register assignment (internal/asm.DefaultRegisters) and appends
// instructions to the underlying assembler; none of them do their own
// register allocation, because — unlike cloudwego-frugal's general-purpose
// ATM backend — NRMA's seven roles are fixed for the lifetime of an
// Assembler.
//
// Every op that accepts a *asm.Label resolves a nil label to the
// shared backtrack label first (BranchOrBacktrack).
package macroops

import (
	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/defs"
	"github.com/nrma/nrma/internal/frame"
)

// Assembler is the NRMA instance the upstream regex compiler drives: it
// accepts a linear sequence of macro-op calls interleaved with Bind,
// then is consumed once by GenerateCode (internal/codegen).
type Assembler struct {
	Prog   *asm.Program
	Mode   defs.Mode
	Flags  defs.Flags
	Layout frame.Layout

	// EntryLabel marks the start of the body: internal/codegen.Prologue
	// binds it at the end of the prologue, and the upstream compiler
	// emits the body's first macro op right after.
	EntryLabel *asm.Label

	// SuccessLabel, ExitLabel are the internal trampoline entry points
	// Succeed and Fail jump to; they are bound by internal/codegen once
	// the body has been fully emitted.
	SuccessLabel *asm.Label
	ExitLabel    *asm.Label

	// backtrackLabel is the shared "pop one entry, jump indirect" target
	// every BranchOrBacktrack call falls back to.
	backtrackLabel *asm.Label

	// overflowLabel is the stack-growth trampoline's entry point. Created
	// eagerly here rather than by internal/codegen, since macro ops that
	// call CheckBacktrackStackLimit run during body emission, before
	// internal/codegen has anywhere to bind the trampoline itself —
	// SetOverflowLabel exists for callers that want to install their own.
	overflowLabel *asm.Label

	// loadStartCharacterLabel is where current_character gets (re)loaded
	// before the body runs: internal/codegen.Prologue binds it once for
	// the routine's first entry, and its global-restart trampoline jumps
	// here instead of straight to EntryLabel so every restart reloads
	// current_character too.
	loadStartCharacterLabel *asm.Label

	// CaseInsensitiveCompareCall, when set by internal/codegen, emits the
	// external-call sequence (ABI marshalling plus CALL) that invokes the
	// runtime's case-folding comparison over the byte span [addr1,
	// addr1+length) against [addr2, addr2+length) and branches to
	// onMismatch if it doesn't fold equal. Left nil, a case-insensitive
	// back-reference with a non-empty capture always branches to onMismatch.
	CaseInsensitiveCompareCall func(a *Assembler, addr1, addr2, length asm.Register, onMismatch *asm.Label)
}

// New constructs an Assembler for a single regular expression. mode
// picks the character width; numRegisters is the register-file size
// before frame.NewLayout's even-rounding; numSavedRegisters is 2x the
// capture group count.
func New(mode defs.Mode, numRegisters, numSavedRegisters int, flags defs.Flags) *Assembler {
	p := asm.NewProgram()

	a := &Assembler{
		Prog:         p,
		Mode:         mode,
		Flags:        flags,
		Layout:       frame.NewLayout(numRegisters, numSavedRegisters),
		EntryLabel:   asm.NewLabel("_entry"),
		SuccessLabel: asm.NewLabel("_success"),
		ExitLabel:    asm.NewLabel("_exit"),
	}

	a.backtrackLabel = asm.NewLabel("_backtrack")
	p.SetBacktrackLabel(a.backtrackLabel)
	a.overflowLabel = asm.NewLabel("_stack_overflow")
	a.loadStartCharacterLabel = asm.NewLabel("_load_start_character")
	return a
}

// BacktrackLabel exposes the shared backtrack target so
// internal/codegen can bind it to the pop-and-jump-indirect trampoline
// body.
func (a *Assembler) BacktrackLabel() *asm.Label { return a.backtrackLabel }

// OverflowLabel exposes the stack-growth trampoline's entry point so
// internal/codegen can bind it to the trampoline body it emits after
// the compiled regex body.
func (a *Assembler) OverflowLabel() *asm.Label { return a.overflowLabel }

// LoadStartCharacterLabel exposes the current_character (re)load entry
// point so internal/codegen can bind it in Prologue and jump to it from
// the global-restart trampoline.
func (a *Assembler) LoadStartCharacterLabel() *asm.Label { return a.loadStartCharacterLabel }

// charSize is the character width in bytes: 1 for ASCII, 2 for JSCHAR.
func (a *Assembler) charSize() int32 { return a.Mode.CharSize() }

// requireJSCHAR panics on the ASCII paths that must fault loudly if
// reached rather than silently falling through.
func (a *Assembler) requireJSCHAR(op string) {
	if a.Mode == defs.ASCII {
		panic("macroops: " + op + " is not implemented in ASCII mode")
	}
}
