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

package codegen

import (
	"reflect"

	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/charclass"
	"github.com/nrma/nrma/internal/macroops"
)

// goABIArgOrder is the fixed sequence of integer/pointer argument
// registers Go's internal ABI (ABIInternal, the default since Go 1.17
// on amd64) assigns, in order. It differs from the platform C ABI
// macroops otherwise generates code against — RDI/RSI/RDX/RCX/R8/R9 —
// which is exactly why every call from JIT'd code into ordinary Go code
// needs this adapter, the same role cloudwego-frugal's OP_gcall path plays
// in atm/pgen_amd64.go for calls out of its own generated code.
var goABIArgOrder = []asm.Register{asm.RAX, asm.RBX, asm.RCX, asm.RDI, asm.RSI, asm.R8, asm.R9, asm.R10, asm.R11}

// emitGoCall marshals args (each already holding a pointer- or
// int-sized value) into Go's ABIInternal argument registers and calls
// fn directly by address. It returns the register the boolean result
// lands in (AX, low byte), which is the only return shape this adapter
// supports — every external call names (grow_backtrack_stack,
// case_insensitive_compare) reduces to "does this succeed", so a wider
// adapter has no caller yet.
//
// This is a narrow, special-purpose bridge, not a general FFI: it
// assumes fn is a simple leaf-ish function that does not itself need to
// grow its stack (the backtrack arena's StackLimitSlack is sized to
// leave enough native stack headroom for exactly this), and that the
// calling goroutine's g and stack-guard registers are already valid
// because generated code always runs on a normal goroutine stack
// (internal/loader never switches stacks before entering generated
// code).
func emitGoCall(p *asm.Program, fn interface{}, args []asm.Register) (result asm.Register) {
	if len(args) > len(goABIArgOrder) {
		panic("codegen: emitGoCall: too many arguments for the fixed ABI adapter")
	}

	pc := reflect.ValueOf(fn).Pointer()

	// Marshal in reverse so an argument register that is also a
	// destination slot (e.g. args[0] already sitting in RAX) isn't
	// clobbered before it's been copied to its own target.
	for i := len(args) - 1; i >= 0; i-- {
		dst := goABIArgOrder[i]
		if args[i] != dst {
			p.Buf.MOVQ(args[i], dst)
		}
	}

	// RDX is not in goABIArgOrder, so loading the call target into it
	// leaves every marshalled argument intact.
	scratch := asm.RDX
	p.Buf.MOVQ(int64(pc), scratch)
	p.Buf.CALLQ(scratch)
	// Only AL carries the bool; zero-extend it so callers can test RAX.
	p.Buf.MOVZBQ(x86_64.AL, asm.RAX)

	return asm.RAX
}

// wireCaseInsensitiveCompare installs the one external call
// CheckNotBackReferenceIgnoreCase needs: two span addresses and a byte
// length go into the Go ABI adapter, and
// charclass.CaseInsensitiveCompareStrings's boolean result — covering
// the whole span in one call, not one call per code unit — decides
// whether to fall through (equal) or branch to onMismatch.
func wireCaseInsensitiveCompare(a *macroops.Assembler) {
	a.CaseInsensitiveCompareCall = func(a *macroops.Assembler, addr1, addr2, length asm.Register, onMismatch *asm.Label) {
		p := a.Prog
		result := emitGoCall(p, charclass.CaseInsensitiveCompareStrings, []asm.Register{addr1, addr2, length})
		p.Buf.TESTQ(result, result)
		p.Buf.JE(onMismatch.Ref())
	}
}
