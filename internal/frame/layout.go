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

// Package frame carries the ABI-visible byte layout of the on-stack
// FrameData block and the regex-register file that sits above it. It is
// deliberately just offsets and sizes — no code generation lives here —
// mirroring cloudwego-frugal's internal/atm/frames.go, which keeps
// frame-shape arithmetic separate from instruction selection.
package frame

const PtrSize = 8

// Field offsets within FrameData, in declaration order. Every offset is
// a multiple of PtrSize; the struct is pointer-sized-field only, so no
// padding rules are needed beyond that.
const (
	OffInputStart          = 0 * PtrSize
	OffStartIndex          = 1 * PtrSize
	OffInputStartMinusOne  = 2 * PtrSize
	OffOutputRegisters     = 3 * PtrSize
	OffNumOutputRegisters  = 4 * PtrSize
	OffBacktrackStackBase  = 5 * PtrSize
	OffSuccessfulCaptures  = 6 * PtrSize
	OffBacktrackStackLimit = 7 * PtrSize

	// OffRuntimePtr holds the *backtrack.Runtime the overflow trampoline
	// passes to the external grow call — it needs to survive the whole
	// routine, so the prologue spills it here rather than pinning a
	// physical register to it for a call that (hopefully) never happens.
	OffRuntimePtr = 8 * PtrSize

	// OffIOPtr holds the *InputOutputData argument, spilled here for the
	// same reason as OffRuntimePtr: the argument register it arrives in
	// is not reserved and may be reused as scratch by the compiled body,
	// but the return trampoline still needs it at the very end.
	OffIOPtr = 9 * PtrSize

	// Size is sizeof(FrameData); the regex-register file begins here.
	Size = 10 * PtrSize
)

// Layout describes one Assembler instance's frame: how many pointer-
// sized regex registers follow FrameData, rounded up to an even count
// at construction time to keep the stack aligned.
type Layout struct {
	NumRegisters       int
	NumSavedRegisters  int
}

// NewLayout rounds numRegisters up to even and validates that at least
// the saved (capture) registers fit.
func NewLayout(numRegisters, numSavedRegisters int) Layout {
	if numRegisters%2 != 0 {
		numRegisters++
	}
	if numRegisters < numSavedRegisters {
		panic("frame: register file smaller than the saved-register count")
	}
	return Layout{NumRegisters: numRegisters, NumSavedRegisters: numSavedRegisters}
}

// RegisterOffset returns the byte offset of regex register i, measured
// from the start of FrameData (i.e. it already accounts for Size).
func (l Layout) RegisterOffset(i int) int32 {
	if i < 0 || i >= l.NumRegisters {
		panic("frame: register index out of range")
	}
	return int32(Size + i*PtrSize)
}

// FrameSize is the total stack reservation GenerateCode's prologue
// makes for FrameData plus the register file, before platform stack-
// alignment padding.
func (l Layout) FrameSize() int32 {
	return int32(Size + l.NumRegisters*PtrSize)
}

// AlignedFrameSize rounds FrameSize up to align, the platform's required
// native stack alignment (16 on the System V and Windows amd64 ABIs).
func (l Layout) AlignedFrameSize(align int32) int32 {
	sz := l.FrameSize()
	if r := sz % align; r != 0 {
		sz += align - r
	}
	return sz
}
