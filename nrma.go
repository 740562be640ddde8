//go:build (linux || darwin) && amd64

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

// Package nrma is a native regular-expression macro assembler: given a
// linear sequence of macro-op calls describing one compiled regular
// expression, it emits an x86-64 routine callable as
//
//	func (p *Program) Execute(io *InputOutputData)
//
// The macro ops themselves (LoadCurrentCharacter, CheckNotCharacter,
// PushBacktrack, and the rest) live on the embedded assembler type and
// are documented alongside their internal/macroops implementations;
// this file wires construction, code generation, loading and execution
// together the way cloudwego-frugal's top-level frugal.go wires its own
// EncodeObject/DecodeObject entry points around its internal compiler
// and JIT loader.
package nrma

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/backtrack"
	"github.com/nrma/nrma/internal/codegen"
	"github.com/nrma/nrma/internal/defs"
	"github.com/nrma/nrma/internal/loader"
	"github.com/nrma/nrma/internal/macroops"
	"github.com/nrma/nrma/internal/verify"
)

// Mode, Flags, Result, InputOutputData and MatchPairs are the ABI-visible
// value types every caller needs; aliased rather than redeclared so a
// value built against internal/defs (as every macro op is) is
// interchangeable with the one a caller of this package constructs.
type (
	Mode            = defs.Mode
	Flags           = defs.Flags
	Result          = defs.Result
	InputOutputData = defs.InputOutputData
	MatchPairs      = defs.MatchPairs
)

const (
	ASCII  = defs.ASCII
	JSCHAR = defs.JSCHAR
)

const (
	FlagGlobal           = defs.FlagGlobal
	FlagGlobalZeroLength = defs.FlagGlobalZeroLength
)

const (
	ResultError    = defs.ResultError
	ResultNotFound = defs.ResultNotFound
	ResultSuccess  = defs.ResultSuccess
)

// Label and Register are the two building blocks the embedded macro-op
// methods take as arguments; aliased for the same reason as Mode/Flags
// above.
type (
	Label    = asm.Label
	Register = asm.Register
)

// NewLabel allocates an unbound label a caller can bind with
// a.Prog.Bind or pass to a backtracking macro op as its target.
func NewLabel(name string) *Label { return asm.NewLabel(name) }

// Assembler accepts one regular expression's worth of macro-op calls
// (promoted from the embedded *macroops.Assembler — LoadCurrentCharacter,
// CheckNotCharacter, PushBacktrack, and the rest) interleaved with
// a.Prog.Bind calls, then is consumed once by GenerateCode.
type Assembler struct {
	*macroops.Assembler
	opts codegen.Options
}

// NewAssembler constructs an Assembler for a single regular expression.
// mode picks the character width; numRegisters is the register-file
// size a caller's compiler front end has allocated (before
// frame.NewLayout's even-rounding); numSavedRegisters is 2x the capture
// group count. The prologue is emitted immediately and EntryLabel bound
// at its end — callers start emitting the compiled body's macro ops
// right after this call returns.
func NewAssembler(mode Mode, numRegisters, numSavedRegisters int, flags Flags, opts ...Option) *Assembler {
	ma := macroops.New(mode, numRegisters, numSavedRegisters, flags)
	codegen.Prologue(ma)

	a := &Assembler{Assembler: ma}
	for _, o := range opts {
		o(&a.opts)
	}
	return a
}

// GenerateCode finalizes the trampolines, assembles the routine, and
// loads it into executable memory. It must be called exactly once,
// after the caller has finished emitting the body's macro ops and
// binding a.SuccessLabel/a.ExitLabel is left to the trampolines
// themselves (GenerateCode's callee, codegen.Epilogue, binds both).
func (a *Assembler) GenerateCode() (*Program, error) {
	code, err := codegen.Epilogue(a.Assembler, a.opts)
	if err != nil {
		return nil, fmt.Errorf("nrma: %w", err)
	}

	loaded, err := loader.Load(code)
	if err != nil {
		return nil, ErrNoJITCompartment
	}

	stack := backtrack.New(code.InitialBacktrackEntries)
	return &Program{
		loaded:  loaded,
		runtime: backtrack.NewRuntime(stack, 0),
	}, nil
}

// Program is one loaded, callable instance of a compiled routine. A
// single Program serializes its own calls (Execute locks internally)
// since the backtrack arena it owns is not safe for concurrent use by
// two Execute calls at once; a caller matching many inputs concurrently
// should give each goroutine its own Program from a separate
// GenerateCode call, mirroring backtrack.Stack's own single-owner
// contract.
type Program struct {
	mu      sync.Mutex
	loaded  *loader.Program
	runtime *backtrack.Runtime
}

// Execute runs the compiled routine once against io, writing the match
// result and any captured pairs back into io in place. It never returns
// a Go error: backtrack-arena exhaustion (a failed grow) is reported the
// same way the emitted machine code reports it to any caller, native or
// otherwise — through io.Result, as ResultError. The routine does not
// check the native stack against a limit.
func (p *Program) Execute(io *InputOutputData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded.Call(io, unsafe.Pointer(p.runtime))
}

// Disassemble renders the loaded routine's machine code as a
// human-readable instruction listing, for debugging a miscompiled
// regular expression without runtime tracing; the listing is decoded
// from the assembled bytes.
func (p *Program) Disassemble() string {
	listing, err := verify.Listing(p.loaded.Code.Bytes)
	if err != nil {
		return fmt.Sprintf("nrma: disassembly failed: %v", err)
	}
	return listing
}

// Release unmaps the routine's executable memory. Calling it twice is a
// no-op; calling Execute after Release is undefined.
func (p *Program) Release() error {
	return p.loaded.Release()
}
