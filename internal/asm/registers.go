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

// Package asm is the thin register and label-patching layer this module
// builds on top of the portable x86-64 assembler (github.com/chenzhuoyu/iasm).
// It plays the role calls "PortableAssembler": everything above
// this package only ever talks about logical registers and labels, never
// physical encoding.
package asm

import (
	"unsafe"

	"github.com/chenzhuoyu/iasm/x86_64"
	"github.com/klauspost/cpuid/v2"
)

// Physical register aliases, named the way cloudwego-frugal's iasm_amd64.go names them.
const (
	RAX = x86_64.RAX
	RCX = x86_64.RCX
	RDX = x86_64.RDX
	RBX = x86_64.RBX
	RSP = x86_64.RSP
	RBP = x86_64.RBP
	RSI = x86_64.RSI
	RDI = x86_64.RDI
	R8  = x86_64.R8
	R9  = x86_64.R9
	R10 = x86_64.R10
	R11 = x86_64.R11
	R12 = x86_64.R12
	R13 = x86_64.R13
	R14 = x86_64.R14
	R15 = x86_64.R15
)

// PtrSize is the pointer/word width on amd64.
const PtrSize = 8

// Register is any operand macro ops can name as a source or destination
// — a physical GPR chosen from Registers.
type Register = x86_64.Register64

// Register32 narrows a Register to its 32-bit view, needed wherever an
// instruction's width must match a 32-bit ABI-visible field (the int32
// fields in InputOutputData and MatchPairs).
type Register32 = x86_64.Register32

// Ptr builds a base+displacement memory operand ("Address" mode).
func Ptr(base x86_64.Register, disp int32) *x86_64.MemoryOperand {
	return x86_64.Ptr(base, disp)
}

// Sib builds a base+index*scale+displacement memory operand ("BaseIndex"
// mode) — used by the character-class table lookups and the backtrack-
// stack push/pop sequences.
func Sib(base x86_64.Register, index x86_64.Register, scale uint8, disp int32) *x86_64.MemoryOperand {
	return x86_64.Sib(base, index, scale, disp)
}

// Abs builds an absolute-address operand ("AbsoluteAddress" mode),
// used to reach fields of the caller's runtime that are fixed at
// construction time (the JIT stack limit, the backtrack arena base/limit).
func Abs(addr uintptr) *x86_64.MemoryOperand {
	return x86_64.Abs(int32(addr))
}

// Ref builds a memory operand referencing a label's address — the form
// LEAQ needs to load a label's address into a register (e.g. pushing a
// backtrack return address).
func Ref(l *Label) *x86_64.MemoryOperand {
	return x86_64.Ref(l.Ref())
}

// Registers is the fixed mapping of NRMA's seven logical registers (four
// roles plus the three scratch registers Temp0..Temp2) onto physical GPRs, chosen once per Assembler
// at construction time. The allocation order below mirrors
// cloudwego-frugal's abi_amd64.go allocationOrder: callee-saved registers
// first so as few of them as possible need prologue/epilogue spill code,
// then the registers the platform ABI already treats as argument/return
// registers.
type Registers struct {
	InputEndPointer      x86_64.Register64
	CurrentCharacter     x86_64.Register64
	CurrentPosition      x86_64.Register64
	BacktrackStackPtr    x86_64.Register64
	Temp0                x86_64.Register64
	Temp1                x86_64.Register64
	Temp2                x86_64.Register64
	NonVolatile          []x86_64.Register64
}

// DefaultRegisters is the register assignment every Assembler uses. Unlike
// cloudwego-frugal's general-purpose ATM backend, which allocates registers
// per-program via linear scan, NRMA's seven roles are fixed and known at
// compile time of this package, so no allocator is needed: each logical
// role is mapped once to a physical GPR from the machine's general-purpose
// set and never reassigned.
var DefaultRegisters = Registers{
	InputEndPointer:   R12,
	CurrentCharacter:  R13,
	CurrentPosition:   R14,
	BacktrackStackPtr: R15,
	Temp0:             RAX,
	Temp1:             RBX,
	Temp2:             RCX,
	NonVolatile:       []x86_64.Register64{RBX, R12, R13, R14, R15},
}

// DataAddr returns the address of a constant table (a character-class
// bitmap, most commonly) so generated code can embed it as an immediate
// operand. Callers are responsible for keeping the backing slice alive
// for as long as the generated program can run — package charclass's
// tables are package-level vars, so they live for the process lifetime.
func DataAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// CanReadUnaligned reports whether the host CPU may perform unaligned
// wide loads without faulting. SpiderMonkey's own irregexp port hard-codes
// this true under a blanket x86/x64 assumption; this module grounds that
// assumption in an actual feature probe instead, so a future non-amd64
// backend cannot silently inherit a wrong default.
func CanReadUnaligned() bool {
	return cpuid.CPU.X64Level() >= 1
}
