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

// Package codegen wraps a macroops.Assembler's emitted body with the
// fixed prologue and trampolines every compiled routine needs: argument
// setup, frame reservation, FrameData population and the success,
// global-restart, exit, return, backtrack and overflow routines. It
// plays the role cloudwego-frugal's internal/atm/pgen_amd64.go plays for
// its own general-purpose backend, but for NRMA's fixed seven-register
// convention there is no register allocation left to do here — only
// frame bookkeeping and trampoline emission.
//
// Usage is two calls bracketing the caller's macro-op stream:
//
//	a := macroops.New(mode, numRegs, numSaved, flags)
//	codegen.Prologue(a) // binds a.EntryLabel at its end
//	// ... caller emits the compiled regex body via a's macro ops ...
//	code, err := codegen.Epilogue(a, codegen.Options{})
package codegen

import (
	"fmt"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/backtrack"
	"github.com/nrma/nrma/internal/defs"
	"github.com/nrma/nrma/internal/frame"
	"github.com/nrma/nrma/internal/macroops"
)

// stackAlign is the required native stack alignment before any CALL, on
// both the System V and Windows amd64 ABIs.
const stackAlign = 16

// calleeSavedBytes is the fixed-size save area the prologue reserves
// for Registers.NonVolatile, one slot per register.
var calleeSavedBytes = int32(len(asm.DefaultRegisters.NonVolatile) * asm.PtrSize)

// Options tunes trampoline emission. The zero value is the common case.
type Options struct {
	// InitialBacktrackEntries seeds the backtrack arena's starting
	// capacity, in pointer-sized entries, when a caller doesn't supply
	// its own backtrack.Stack. Defaults to 512 (4KiB) if zero.
	InitialBacktrackEntries int
}

func (o Options) initialEntries() int {
	if o.InitialBacktrackEntries > 0 {
		return o.InitialBacktrackEntries
	}
	return 512
}

// Code is the finished artifact: the assembled machine code plus the
// bits internal/loader and the public API need to actually run it.
type Code struct {
	Bytes                   []byte
	EntryOffset             int32
	Layout                  frame.Layout
	Mode                    defs.Mode
	Flags                   defs.Flags
	InitialBacktrackEntries int
}

// frameTotalSize is the full stack reservation: callee-saved slots plus
// FrameData and the register file, rounded up to stackAlign.
func frameTotalSize(a *macroops.Assembler) int32 {
	total := calleeSavedBytes + a.Layout.FrameSize()
	if r := total % stackAlign; r != 0 {
		total += stackAlign - r
	}
	return total
}

// Prologue emits the fixed setup sequence and binds a's EntryLabel at
// its end. Must be called before the caller emits any macro ops.
func Prologue(a *macroops.Assembler) {
	wireCaseInsensitiveCompare(a)

	p := a.Prog
	regs := p.Regs
	total := frameTotalSize(a)

	// (1) reserve the frame: callee-saved slots first, then FrameData +
	// register file.
	p.Buf.SUBQ(total, asm.RSP)
	for i, r := range regs.NonVolatile {
		p.Buf.MOVQ(r, asm.Ptr(asm.RSP, int32(i*asm.PtrSize)))
	}
	p.Buf.LEAQ(asm.Ptr(asm.RSP, calleeSavedBytes), regFile)

	// (2) load the single CallArgs* argument (RDI on SysV amd64) and
	// spill the pieces the body and trampolines need.
	callArgs := asm.RDI
	tmp := regs.Temp0
	p.Buf.MOVQ(asm.Ptr(callArgs, int32(defs.OffCallArgsRuntime)), tmp)
	p.Buf.MOVQ(tmp, asm.Ptr(regFile, frame.OffRuntimePtr))
	p.Buf.MOVQ(asm.Ptr(tmp, backtrack.OffStackBase), regs.BacktrackStackPtr)
	p.Buf.MOVQ(regs.BacktrackStackPtr, asm.Ptr(regFile, frame.OffBacktrackStackBase))
	p.Buf.MOVQ(asm.Ptr(tmp, backtrack.OffStackLimit), tmp)
	p.Buf.MOVQ(tmp, asm.Ptr(regFile, frame.OffBacktrackStackLimit))

	// (3) load InputOutputData's fields into FrameData. InputStart and
	// InputStartMinusOne are stored offset-from-input_end_pointer, the
	// same convention current_position and the saved-register file use
	// (moves.go's ReadCurrentPositionFromRegister/WriteCurrentPositionFromRegister
	// do no address translation), so InputEndPointer must load first.
	io := regs.Temp1
	p.Buf.MOVQ(asm.Ptr(callArgs, int32(defs.OffCallArgsIO)), io)
	p.Buf.MOVQ(io, asm.Ptr(regFile, frame.OffIOPtr))
	p.Buf.MOVQ(asm.Ptr(io, int32(defs.OffInputEnd)), regs.InputEndPointer)
	p.Buf.MOVQ(asm.Ptr(io, int32(defs.OffInputStart)), tmp)
	p.Buf.SUBQ(regs.InputEndPointer, tmp)
	p.Buf.MOVQ(tmp, asm.Ptr(regFile, frame.OffInputStart))
	p.Buf.SUBQ(a.Mode.CharSize(), tmp)
	p.Buf.MOVQ(tmp, asm.Ptr(regFile, frame.OffInputStartMinusOne))
	p.Buf.MOVSLQ(asm.Ptr(io, int32(defs.OffStartIndex)), tmp)
	p.Buf.MOVQ(tmp, asm.Ptr(regFile, frame.OffStartIndex))

	matches := tmp
	p.Buf.MOVQ(asm.Ptr(io, int32(defs.OffMatches)), matches)
	outRegs := regs.Temp2
	p.Buf.MOVQ(asm.Ptr(matches, int32(defs.OffPairsData)), outRegs)
	p.Buf.MOVQ(outRegs, asm.Ptr(regFile, frame.OffOutputRegisters))
	// NumPairs counts capture pairs, not raw int32 slots; the output
	// array holds two slots per pair, so the capacity stored here (and
	// checked against NumSavedRegisters below) is the doubled count.
	// MOVSLQ (not MOVQ) sign-extends the int32 field instead of reading 4
	// bytes of MatchPairs's trailing struct padding into the high half.
	p.Buf.MOVSLQ(asm.Ptr(matches, int32(defs.OffNumPairs)), outRegs)
	p.Buf.SHLQ(int32(1), outRegs)
	p.Buf.MOVQ(outRegs, asm.Ptr(regFile, frame.OffNumOutputRegisters))

	// (3b) assertion, emitted into every routine: the caller's output register file must
	// be at least as large as the saved (capture) register count this
	// routine was compiled for, or the success trampoline's writeback
	// loop overruns it.
	assertOK := asm.NewLabel("_assert_output_registers_ok")
	p.Buf.CMPQ(int32(a.Layout.NumSavedRegisters), asm.Ptr(regFile, frame.OffNumOutputRegisters))
	p.Buf.JGE(assertOK.Ref())
	emitGoCall(p, panicOutputRegistersTooSmall, nil)
	p.Bind(assertOK)

	// (4) current_position := (inputStart - input_end_pointer) +
	// startIndex * char_size. FrameData.OffInputStart already holds
	// inputStart - input_end_pointer (step 3 above), so this is one add
	// past the startIndex*char_size term.
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffStartIndex), regs.CurrentPosition)
	if sz := a.Mode.CharSize(); sz != 1 {
		p.Buf.SHLQ(int32(1), regs.CurrentPosition) // char_size == 2: *2
	}
	p.Buf.ADDQ(asm.Ptr(regFile, frame.OffInputStart), regs.CurrentPosition)

	// (5) clear the saved (capture) register file to inputStartMinusOne.
	if a.Layout.NumSavedRegisters > 0 {
		a.ClearRegisters(0, a.Layout.NumSavedRegisters-1)
	}
	p.Buf.MOVQ(int32(0), asm.Ptr(regFile, frame.OffSuccessfulCaptures))

	// (6) current_character: '\n' at the true start of input, otherwise
	// the character one position back. Bound at a label of its own
	// (rather than inline before EntryLabel) so Epilogue's global-restart
	// path can reload current_character the same way before re-entering
	// the body, instead of jumping straight to EntryLabel with current_character
	// left stale from the previous match attempt.
	p.Bind(a.LoadStartCharacterLabel())
	notStart := asm.NewLabel("_prologue_current_char_not_start")
	p.Buf.CMPQ(int32(0), asm.Ptr(regFile, frame.OffStartIndex))
	p.Buf.JNE(notStart.Ref())
	p.Buf.MOVQ(int32('\n'), regs.CurrentCharacter)
	p.Buf.JMP(a.EntryLabel.Ref())
	p.Bind(notStart)
	a.LoadCurrentCharacterUnchecked(-1, 1)

	p.Bind(a.EntryLabel)
}

// panicOutputRegistersTooSmall is the landing point for Prologue's
// output-register-file assertion. It never returns; emitGoCall's
// boolean-result convention is unused here.
func panicOutputRegistersTooSmall() bool {
	panic("codegen: output register file is smaller than the saved capture registers")
}

// regFile mirrors macroops.regFile — codegen and macroops must agree
// on which physical register holds the frame base, so both are pinned
// to the same constant rather than one importing the other's private
// name.
const regFile = asm.RBP

// Epilogue emits every trampoline that wraps around the body (success,
// global-restart, exit, return, backtrack, overflow) and assembles the
// finished program at a placeholder origin of zero: nothing this
// package emits depends on its final load address (the labels are all
// RIP-relative and the one absolute address embedded, the external
// Go-call target in emitGoCall, is independent of where this buffer
// itself ends up), so internal/loader can copy the resulting bytes
// verbatim into freshly mapped executable memory at any address.
func Epilogue(a *macroops.Assembler, opts Options) (*Code, error) {
	p := a.Prog

	overflow := a.OverflowLabel()
	globalRestart := asm.NewLabel("_global_restart")

	// --- success trampoline ---
	p.Bind(a.SuccessLabel)
	emitSuccessTrampoline(a, globalRestart)

	// --- global-restart trampoline: only reachable in global mode,
	// re-enters the body for the next match attempt via
	// LoadStartCharacterLabel, which reloads current_character before
	// falling into EntryLabel — the same sequence Prologue runs for the
	// very first entry.
	if a.Flags.Global() {
		p.Bind(globalRestart)
		if a.Layout.NumSavedRegisters > 0 {
			a.ClearRegisters(0, a.Layout.NumSavedRegisters-1)
		}
		p.Buf.JMP(a.LoadStartCharacterLabel().Ref())
	}

	// --- exit trampoline: Fail() jumps directly here with the result
	// already loaded; in global-zero-length mode the success trampoline
	// also jumps here after an empty match at the end of input.
	p.Bind(a.ExitLabel)

	// --- return trampoline: store the pending result, restore
	// non-volatiles, tear down the frame, return.
	returnResultToCaller(a)

	// --- backtrack trampoline: pop and jump indirect.
	p.Bind(a.BacktrackLabel())
	a.Backtrack()

	// --- overflow trampoline: grow the arena via the Go ABI adapter,
	// reload the (possibly relocated) base/limit/pointer, and resume.
	p.Bind(overflow)
	emitOverflowTrampoline(a)

	// Record the trampoline edges this package itself controls, so
	// internal/verify can confirm they're all reachable from EntryLabel.
	// The compiled body's own branches aren't visible here — those are
	// emitted by whatever calls these macro ops — so this is a partial
	// graph, not full-program reachability; it exists to catch a
	// trampoline that stops being wired into the chain by a future edit
	// to this file, not to certify caller-supplied bodies.
	patcher := p.Patcher()
	patcher.AddEdge(a.SuccessLabel, a.ExitLabel)
	if a.Flags.Global() {
		patcher.AddEdge(a.SuccessLabel, globalRestart)
		patcher.AddEdge(globalRestart, a.LoadStartCharacterLabel())
	}
	patcher.AddEdge(overflow, a.ExitLabel)

	entry := int32(0)
	code := p.Buf.Assemble(0)

	if err := p.Patcher().Verify(); err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}

	return &Code{
		Bytes:                   code,
		EntryOffset:             entry,
		Layout:                  a.Layout,
		Mode:                    a.Mode,
		Flags:                   a.Flags,
		InitialBacktrackEntries: opts.initialEntries(),
	}, nil
}

// emitSuccessTrampoline implements success routine: write
// every saved register's byte offset out as a character index (dividing
// by char_size), store the result, and — in global mode — restart from
// the current position (in global-zero-length mode, exiting instead
// after an empty match at the end of input).
func emitSuccessTrampoline(a *macroops.Assembler, globalRestart *asm.Label) {
	p := a.Prog
	regs := p.Regs

	outRegs, tmp := regs.Temp0, regs.Temp2
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffOutputRegisters), outRegs)

	writeback := asm.NewLabel("_success_writeback")
	after := asm.NewLabel("_success_writeback_done")

	p.Buf.MOVQ(int32(0), tmp) // loop index i, in registers
	p.Bind(writeback)
	p.Buf.CMPQ(int32(a.Layout.NumSavedRegisters), tmp)
	p.Buf.JGE(after.Ref())

	src := regs.CurrentCharacter // free here: no character load pending
	p.Buf.MOVQ(asm.Sib(regFile, tmp, asm.PtrSize, frame.Size), src)
	p.Buf.SUBQ(asm.Ptr(regFile, frame.OffInputStart), src)
	if sz := a.Mode.CharSize(); sz == 2 {
		p.Buf.SHRQ(int32(1), src)
	}
	p.Buf.MOVL(asm.Register32(src), asm.Sib(outRegs, tmp, 4, 0))

	p.Buf.ADDQ(int32(1), tmp)
	p.Buf.JMP(writeback.Ref())
	p.Bind(after)

	if !a.Flags.Global() {
		p.Buf.MOVQ(int32(1), a.ResultRegister())
		p.Buf.JMP(a.ExitLabel.Ref())
		return
	}

	// Global mode: bump successfulCaptures, then restart from the current
	// position; the scan ends when the body calls Fail. GlobalZeroLength
	// additionally forces the next attempt to advance by one character
	// after an empty match (register 0 == current_position) so an empty
	// match can't loop the scan in place forever, exiting instead when
	// that empty match sits at the end of input.
	succ := regs.Temp0
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffSuccessfulCaptures), succ)
	p.Buf.ADDQ(int32(1), succ)
	p.Buf.MOVQ(succ, asm.Ptr(regFile, frame.OffSuccessfulCaptures))

	atEnd := asm.NewLabel("_success_global_at_end")
	if a.Flags.GlobalZeroLength() && a.Layout.NumSavedRegisters > 0 {
		nonEmpty := asm.NewLabel("_success_global_non_empty")
		p.Buf.CMPQ(asm.Ptr(regFile, a.Layout.RegisterOffset(0)), regs.CurrentPosition)
		p.Buf.JNE(nonEmpty.Ref())
		a.CheckPosition(0, atEnd)
		a.AdvanceCurrentPosition(1)
		p.Bind(nonEmpty)
	}
	p.Buf.JMP(globalRestart.Ref())

	p.Bind(atEnd)
	p.Buf.MOVQ(succ, a.ResultRegister())
	p.Buf.JMP(a.ExitLabel.Ref())
}

// returnResultToCaller stores ResultRegister into InputOutputData.Result,
// restores callee-saved registers, deallocates the frame, and returns.
func returnResultToCaller(a *macroops.Assembler) {
	p := a.Prog
	regs := p.Regs

	io := regs.Temp1
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffIOPtr), io)
	p.Buf.MOVL(asm.Register32(a.ResultRegister()), asm.Ptr(io, int32(defs.OffResult)))

	total := frameTotalSize(a)
	for i, r := range regs.NonVolatile {
		p.Buf.MOVQ(asm.Ptr(asm.RSP, int32(i*asm.PtrSize)), r)
	}
	p.Buf.ADDQ(total, asm.RSP)
	p.Buf.RET()
}

// emitOverflowTrampoline implements the overflow routine:
// CheckBacktrackStackLimit reaches it by CALL, so it must leave the
// native stack exactly as it found it on every path and resume the
// caller by RET, never by popping the backtrack stack and jumping
// indirect — the values sitting on the backtrack stack at this point
// are ordinary saved registers and literals, not code addresses.
//
// BacktrackStackPtr holds an absolute address, base-relative in spirit
// but not in representation, so growing the arena (which may relocate
// it) requires translating that absolute value across the move: read
// the old base out of FrameData before backtrack.Grow overwrites it,
// compute offset = pointer - old_base, stash offset across the Go call
// (which can clobber any register that isn't this call's own return
// value), then reload the new base and set pointer = new_base + offset.
func emitOverflowTrampoline(a *macroops.Assembler) {
	p := a.Prog
	regs := p.Regs

	oldBase, offset := regs.Temp1, regs.Temp2
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffBacktrackStackBase), oldBase)
	p.Buf.MOVQ(regs.BacktrackStackPtr, offset)
	p.Buf.SUBQ(oldBase, offset)
	p.Buf.PUSHQ(offset)

	rt := regs.Temp0
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffRuntimePtr), rt)
	result := emitGoCall(p, backtrack.Grow, []asm.Register{rt})

	ok := asm.NewLabel("_overflow_grow_ok")
	p.Buf.TESTQ(result, result)
	p.Buf.JNE(ok.Ref())

	// This path exits via JMP, not RET, so it must drop both the stashed
	// offset and the CALL's own return address before leaving, or the
	// frame teardown in returnResultToCaller unwinds RSP wrong.
	p.Buf.ADDQ(int32(2*asm.PtrSize), asm.RSP)
	p.Buf.MOVQ(int32(-1), a.ResultRegister())
	p.Buf.JMP(a.ExitLabel.Ref())

	p.Bind(ok)
	p.Buf.POPQ(offset)
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffRuntimePtr), rt)
	newBase := regs.Temp1
	p.Buf.MOVQ(asm.Ptr(rt, backtrack.OffStackBase), newBase)
	p.Buf.MOVQ(newBase, asm.Ptr(regFile, frame.OffBacktrackStackBase))
	p.Buf.ADDQ(newBase, offset)
	p.Buf.MOVQ(offset, regs.BacktrackStackPtr)

	limit := rt
	p.Buf.MOVQ(asm.Ptr(regFile, frame.OffRuntimePtr), limit)
	p.Buf.MOVQ(asm.Ptr(limit, backtrack.OffStackLimit), limit)
	p.Buf.MOVQ(limit, asm.Ptr(regFile, frame.OffBacktrackStackLimit))

	p.Buf.RET()
}

