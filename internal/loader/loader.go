//go:build (linux || darwin) && amd64

/*
 * Copyright 2022 CloudWeGo Authors
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

// Package loader copies a codegen.Code's assembled bytes into freshly
// mapped executable memory and hands back a way to call into it. It
// plays the role cloudwego-frugal's internal/jit/loader plays for its
// own compiled encoders/decoders, trimmed to the two syscalls that
// actually matter here (mmap, mprotect) since generated code never
// needs the Go runtime's stack maps or symbol table the way frugal's
// funcval-registered functions do — NRMA's routines never call back
// into arbitrary Go code, grow their own stack, or appear in a
// goroutine's backtrace; the few Go functions they call
// (backtrack.Grow, charclass.CaseInsensitiveCompareStrings and the
// prologue's output-register assertion) are reached through the
// fixed-register adapter in internal/codegen.
package loader

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nrma/nrma/internal/codegen"
	"github.com/nrma/nrma/internal/defs"
)

const (
	mmapProt  = unix.PROT_READ | unix.PROT_WRITE
	mmapFlags = unix.MAP_ANON | unix.MAP_PRIVATE
	execProt  = unix.PROT_READ | unix.PROT_EXEC
)

// entryTrampoline bridges the calling convention a Go func value uses
// (ABIInternal passes a single pointer argument in AX) to the one
// codegen.Prologue assumes (the SysV convention, argument in DI):
//
//	MOVQ AX, DI
//	MOVQ imm64, R11   ; patched to the generated routine's address
//	JMP  R11
//
// A hand-assembled stub is simpler and more honest here than reaching
// for the funcval-registration machinery cloudwego-frugal's own loader
// uses (rt.Frame, registerFunction): that machinery exists so frugal's
// generated code can appear as a real Go function to the scheduler and
// garbage collector, which matters when the generated function can
// itself call back into arbitrary Go code or run long enough to be
// preempted. NRMA's generated routines never do either.
var entryTrampolineTemplate = [16]byte{
	0x48, 0x89, 0xc7, // MOVQ AX, DI
	0x49, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0, // MOVQ imm64, R11
	0x41, 0xff, 0xe3, // JMP R11
}

const targetOffset = 5

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// entryFunc is the ABIInternal signature the funcval trick below casts
// a bare code pointer to. Go's register-based ABI (since 1.17, amd64)
// places this single pointer argument in AX, which is exactly what
// entryTrampolineTemplate expects.
type entryFunc func(unsafe.Pointer)

// makeEntryFunc follows cloudwego-frugal's own idiom exactly (see
// internal/loader/loader_amd64_test.go): a Go func value is one
// indirection away from the code address it calls, so the funcval-cast
// target must be the address of a pointer that itself points at pc, not
// the address of pc directly.
func makeEntryFunc(pc uintptr) entryFunc {
	p := &pc
	return *(*entryFunc)(unsafe.Pointer(&p))
}

// Program is one loaded, callable instance of a compiled routine. It
// owns a single mmap'd region for as long as the caller holds it; the
// caller must call Release when done, mirroring the explicit lifetime
// cloudwego-frugal's own Loader.Load leaves to its caller (nothing here
// is finalizer-collected — executable memory is scarce enough on some
// platforms that leaving its release to the GC is the wrong default).
type Program struct {
	mu       sync.Mutex
	buf      []byte
	entry    entryFunc
	Code     codegen.Code
	released bool
}

// Load maps a region sized to hold both code's assembled bytes and the
// entry trampoline, copies them in, and switches the region to
// executable. code.Bytes needs no relocation for its new address (see
// codegen.Epilogue's doc comment), so this is a single
// mmap+copy+mprotect, the same shape as cloudwego-frugal's own
// Loader.Load minus the funcval bookkeeping.
func Load(code *codegen.Code) (*Program, error) {
	body := code.Bytes

	trampolineOff := alignUp(len(body), 8)
	total := trampolineOff + len(entryTrampolineTemplate)
	pageSize := os.Getpagesize()
	mapSize := alignUp(total, pageSize)

	buf, err := unix.Mmap(-1, 0, mapSize, mmapProt, mmapFlags)
	if err != nil {
		return nil, fmt.Errorf("loader: mmap: %w", err)
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))

	copy(buf, body)

	trampoline := entryTrampolineTemplate
	target := addr + uintptr(code.EntryOffset)
	binary.LittleEndian.PutUint64(trampoline[targetOffset:targetOffset+8], uint64(target))
	copy(buf[trampolineOff:], trampoline[:])

	if err := unix.Mprotect(buf, execProt); err != nil {
		unix.Munmap(buf)
		return nil, fmt.Errorf("loader: mprotect: %w", err)
	}

	return &Program{
		buf:   buf,
		entry: makeEntryFunc(addr + uintptr(trampolineOff)),
		Code:  *code,
	}, nil
}

// Call invokes the loaded routine once, passing io and rt as the single
// defs.CallArgs the prologue expects; that CallArgs value is built
// afresh from io and rt on every call.
func (p *Program) Call(io *defs.InputOutputData, rt unsafe.Pointer) {
	args := defs.CallArgs{IO: io, Runtime: rt}
	p.entry(unsafe.Pointer(&args))
}

// Release unmaps the executable region. Calling it twice is a no-op;
// calling Call after Release is undefined (generated code would be
// executing freed memory) and is the caller's responsibility to avoid,
// the same contract cloudwego-frugal leaves implicit around its own
// loaded functions.
func (p *Program) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	if err := unix.Munmap(p.buf); err != nil {
		return fmt.Errorf("loader: munmap: %w", err)
	}
	return nil
}
