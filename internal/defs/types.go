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

// Package defs holds the ABI-visible value types every other package
// needs: InputOutputData, MatchPairs, and the small Mode/Flags/Result
// enums. Kept separate from internal/frame (which only carries
// FrameData's byte offsets) so a caller can construct and inspect these
// values without importing the codegen packages.
package defs

import "unsafe"

// Mode selects the character width generated code assumes. Only JSCHAR
// has fast paths implemented; ASCII sites panic, treating those as
// explicit unimplemented sites that must fault loudly if reached rather
// than silently miscompile.
type Mode byte

const (
	ASCII Mode = iota
	JSCHAR
)

func (m Mode) CharSize() int32 {
	if m == ASCII {
		return 1
	}
	return 2
}

// Flags is the small bitset carrying the global and global-with-zero-
// length-check switches a compiled routine's success trampoline
// consults.
type Flags uint8

const (
	FlagGlobal Flags = 1 << iota
	FlagGlobalZeroLength
)

func (f Flags) Global() bool           { return f&FlagGlobal != 0 }
func (f Flags) GlobalZeroLength() bool { return f&FlagGlobalZeroLength != 0 }

// Result is the tri-state value a non-global match writes into
// InputOutputData.Result; in global mode the field instead holds a
// nonnegative capture count (or ResultError), so a count of 0 or 1 has
// the same value as ResultNotFound or ResultSuccess and the routine's
// Flags decide which reading applies.
type Result int32

const (
	ResultError    Result = -1
	ResultNotFound Result = 0
	ResultSuccess  Result = 1
)

// MatchPairs is the caller-allocated capture buffer. Pairs holds
// 2*NumPairs int32 character indices (start, end interleaved); NumPairs
// is the capacity in pairs, not the count actually written.
type MatchPairs struct {
	Pairs    []int32
	NumPairs int32
}

// InputOutputData is the ABI-visible struct a compiled routine's
// prologue and trampolines read and write by fixed offset (see Off*
// below), the same way they access FrameData — this struct is never
// accessed by field name from generated code, only from the Go code
// that populates it before calling Execute and reads it back after.
type InputOutputData struct {
	InputStart unsafe.Pointer
	InputEnd   unsafe.Pointer
	StartIndex int32
	Matches    *MatchPairs
	Result     Result
}

// Field offsets within InputOutputData, used by the prologue to load
// FrameData from the caller-supplied struct. Taken from unsafe.Offsetof
// rather than hand-computed, so a future field reorder or addition
// fails to compile-time-fold instead of silently desynchronizing the
// by-offset reads in internal/codegen.
const (
	OffInputStart = unsafe.Offsetof(InputOutputData{}.InputStart)
	OffInputEnd   = unsafe.Offsetof(InputOutputData{}.InputEnd)
	OffStartIndex = unsafe.Offsetof(InputOutputData{}.StartIndex)
	OffMatches    = unsafe.Offsetof(InputOutputData{}.Matches)
	OffResult     = unsafe.Offsetof(InputOutputData{}.Result)
)

const PtrSize = 8

// Field offsets within MatchPairs, used the same way: generated code
// reaches into *MatchPairs by fixed offset rather than through Go's
// slice-header semantics. OffPairsData and OffNumPairs come from
// unsafe.Offsetof; OffPairsLen and OffPairsCap address words inside the
// Pairs slice header itself, which has no exported fields to select on,
// so they stay relative to OffPairsData using the language-guaranteed
// data/len/cap slice layout.
const (
	OffPairsData = unsafe.Offsetof(MatchPairs{}.Pairs)
	OffPairsLen  = OffPairsData + PtrSize
	OffPairsCap  = OffPairsLen + PtrSize
	OffNumPairs  = unsafe.Offsetof(MatchPairs{}.NumPairs)
)

// CallArgs is the single struct pointer generated code receives as its
// one SysV-ABI argument (in RDI), grouping everything the prologue
// needs that isn't already reachable through InputOutputData: the
// backtrack runtime handle it must spill into FrameData.OffRuntimePtr
// for the overflow trampoline to use later.
type CallArgs struct {
	IO      *InputOutputData
	Runtime unsafe.Pointer // *backtrack.Runtime; untyped here to avoid an import cycle
}

const (
	OffCallArgsIO      = unsafe.Offsetof(CallArgs{}.IO)
	OffCallArgsRuntime = unsafe.Offsetof(CallArgs{}.Runtime)
)
