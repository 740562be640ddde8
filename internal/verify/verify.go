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

// Package verify runs after-the-fact sanity checks on assembled code:
// listing the decoded instruction stream (grounded on
// cloudwego-frugal's internal/atm/pgen_amd64_test.go disasm helper,
// which drives the same golang.org/x/arch/x86/x86asm decoder),
// confirming every non-volatile register internal/codegen's prologue
// spills to the stack is reloaded, register for register, before the
// matching RET, and walking the trampoline edges internal/codegen
// records (internal/asm.LabelPatcher.Reachable) to catch a trampoline
// that stops being wired into the exit chain.
package verify

import (
	"fmt"
	"strings"

	"github.com/chenzhuoyu/iasm/x86_64"
	"golang.org/x/arch/x86/x86asm"

	"github.com/nrma/nrma/internal/asm"
)

// CheckReachable confirms every label named in required is reachable
// from entry among the edges patcher.AddEdge recorded. It only covers
// the trampoline chain internal/codegen controls directly — the
// compiled body's own branches, emitted by whatever calls the macro-op
// package, are not part of this graph.
func CheckReachable(patcher *asm.LabelPatcher, entry *asm.Label, required ...*asm.Label) error {
	reached := patcher.Reachable(entry)
	for _, l := range required {
		if !reached[l] {
			return fmt.Errorf("verify: label %s not reachable from %s among recorded trampoline edges", l, entry)
		}
	}
	return nil
}

// Instruction is one decoded instruction, offset from the start of the
// buffer it was decoded from.
type Instruction struct {
	Offset int
	Length int
	Text   string
	Inst   x86asm.Inst
}

// Disassemble decodes code from front to back and returns every
// instruction found. It does not follow branches; it is a linear scan
// of the whole buffer, which is exactly what a freshly assembled
// routine's Bytes is (padding aside, every byte between EntryOffset and
// len(code) belongs to some trampoline this package emitted).
func Disassemble(code []byte) ([]Instruction, error) {
	var out []Instruction
	pc := 0

	for pc < len(code) {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil {
			return nil, fmt.Errorf("verify: decode at offset %#x: %w", pc, err)
		}
		out = append(out, Instruction{
			Offset: pc,
			Length: inst.Len,
			Text:   x86asm.GNUSyntax(inst, uint64(pc), nil),
			Inst:   inst,
		})
		pc += inst.Len
	}

	return out, nil
}

// Listing renders Disassemble's output the way pgen_amd64_test.go's
// disasm helper does, one "offset: bytes  mnemonic" line per
// instruction — used by the public Program.Disassemble entry point.
func Listing(code []byte) (string, error) {
	insts, err := Disassemble(code)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, in := range insts {
		fmt.Fprintf(&b, "%#08x:", in.Offset)
		for i := 0; i < in.Length; i++ {
			fmt.Fprintf(&b, " %02x", code[in.Offset+i])
		}
		fmt.Fprintf(&b, "\t%s\n", in.Text)
	}
	return b.String(), nil
}

// registerTable maps every x86asm register spelling CheckNonVolatileSave
// cares about onto the Register64 it is a view of, trimmed to the
// general-purpose registers NRMA's own register file ever assigns a
// role to — there is no need to track x87/SSE state, since macroops
// never emits any.
var registerTable = map[x86asm.Reg]x86_64.Register64{
	x86asm.RAX: x86_64.RAX, x86asm.RCX: x86_64.RCX, x86asm.RDX: x86_64.RDX, x86asm.RBX: x86_64.RBX,
	x86asm.RSP: x86_64.RSP, x86asm.RBP: x86_64.RBP, x86asm.RSI: x86_64.RSI, x86asm.RDI: x86_64.RDI,
	x86asm.R8: x86_64.R8, x86asm.R9: x86_64.R9, x86asm.R10: x86_64.R10, x86asm.R11: x86_64.R11,
	x86asm.R12: x86_64.R12, x86asm.R13: x86_64.R13, x86asm.R14: x86_64.R14, x86asm.R15: x86_64.R15,
}

// CheckNonVolatileSave confirms internal/codegen's prologue/epilogue
// convention holds over an assembled buffer: Prologue stores
// len(nonVolatile) registers to consecutive 8-byte RSP-relative slots
// starting at entryOffset's SUBQ, and every RET-terminated exit path (a
// RET preceded by the frame-release ADD to RSP; at least one must exist)
// reloads the same slots into the same registers, in the same order,
// immediately beforehand. The overflow trampoline's RET, which returns
// into the body with the frame still reserved, is not an exit path and
// is not checked. It does not attempt a general clobber
// analysis of the body in between — the prologue/epilogue contract is
// the only invariant that matters here, since the register file
// (regs.NonVolatile) is deliberately live and mutated by the compiled
// body between those two points.
func CheckNonVolatileSave(code []byte, entryOffset int32, nonVolatile []x86_64.Register64) error {
	insts, err := Disassemble(code)
	if err != nil {
		return err
	}

	saveStart := indexAtOffset(insts, int(entryOffset))
	if saveStart < 0 {
		return fmt.Errorf("verify: no instruction at entry offset %#x", entryOffset)
	}
	// Skip the SUBQ that reserves the frame; the save block follows it.
	if insts[saveStart].Inst.Op != x86asm.SUB {
		return fmt.Errorf("verify: expected SUBQ reserving the frame at entry offset %#x, found %s", entryOffset, insts[saveStart].Inst.Op)
	}
	saveStart++

	for i, want := range nonVolatile {
		if saveStart+i >= len(insts) {
			return fmt.Errorf("verify: prologue save block truncated before register %d", i)
		}
		in := insts[saveStart+i].Inst
		if in.Op != x86asm.MOV {
			return fmt.Errorf("verify: expected MOV saving %v at prologue slot %d, found %s", want, i, in.Op)
		}
		// The save block stores register -> stack slot, so in Intel
		// operand order (Args[0] = destination) the source register is
		// Args[1] here, unlike the restore block below where it's the
		// destination.
		reg, ok := in.Args[1].(x86asm.Reg)
		if !ok || registerTable[reg] != want {
			return fmt.Errorf("verify: prologue slot %d saves %v, want %v", i, registerTable[reg], want)
		}
	}

	// Every exit RET is immediately preceded by an ADDQ (frame release)
	// and, before that, the same MOV sequence in reverse-engineered
	// slot order, reloading each nonVolatile register from its slot.
	exits := 0
	for idx, in := range insts {
		if in.Inst.Op != x86asm.RET {
			continue
		}
		if idx == 0 || insts[idx-1].Inst.Op != x86asm.ADD || insts[idx-1].Inst.Args[0] != x86asm.RSP {
			continue // not an exit path: returns into the body
		}
		exits++
		need := len(nonVolatile) + 1 // + the ADDQ
		if idx-need < 0 {
			return fmt.Errorf("verify: RET at offset %#x has no room for the expected restore sequence", in.Offset)
		}
		for i, want := range nonVolatile {
			load := insts[idx-1-len(nonVolatile)+i].Inst
			if load.Op != x86asm.MOV {
				return fmt.Errorf("verify: expected MOV restoring %v before RET at offset %#x, found %s", want, in.Offset, load.Op)
			}
			reg, ok := load.Args[0].(x86asm.Reg)
			if !ok || registerTable[reg] != want {
				return fmt.Errorf("verify: restore slot %d before RET at offset %#x loads into %v, want %v", i, in.Offset, registerTable[reg], want)
			}
		}
	}
	if exits == 0 {
		return fmt.Errorf("verify: no RET preceded by a frame-release ADDQ")
	}

	return nil
}

func indexAtOffset(insts []Instruction, offset int) int {
	for i, in := range insts {
		if in.Offset == offset {
			return i
		}
	}
	return -1
}
