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

// Package backtrack implements the thread-local growable byte arena
// generated code uses as its backtrack stack. The shape
// mirrors cloudwego-frugal's iovec package (a growable buffer exposing a
// base pointer and an Add-style growth call) adapted from a byte-vector
// used for zero-copy serialization to one used as a pointer-sized value
// stack: entries are either resume addresses (from PushBacktrack(Label))
// or raw saved state (from PushBacktrack(register|literal)).
package backtrack

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// StackLimitSlack is the conservative scratch reserve CheckBacktrackStackLimit
// leaves between the stack pointer and the arena limit, so a single
// PushBacktrack sequence never straddles a limit check. Fixed rather
// than derived from a per-regex worst-case push count, the same
// simplification SpiderMonkey's own irregexp backend makes with its
// stack_limit_slack() constant.
const StackLimitSlack = 32 * PtrSize

const PtrSize = 8

// Stack is the arena. It is owned by one goroutine's regex runtime at a
// time and is never touched concurrently by generated code and Go code.
type Stack struct {
	data []byte
}

// New allocates an arena with an initial capacity of n pointer-sized
// entries.
func New(entries int) *Stack {
	return &Stack{data: dirtmake.Bytes(entries*PtrSize, entries*PtrSize)}
}

// Base returns the absolute address of the arena's first byte — the
// value FrameData.OffBacktrackStackBase and registers.BacktrackStackPtr
// are both seeded from this at prologue time.
func (s *Stack) Base() uintptr {
	if len(s.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s.data[0]))
}

// Limit returns the address one byte past the arena, the bound
// CheckBacktrackStackLimit compares backtrackStackPointer against
// (after subtracting StackLimitSlack).
func (s *Stack) Limit() uintptr {
	return s.Base() + uintptr(len(s.data))
}

// Cap reports the arena's capacity in bytes.
func (s *Stack) Cap() int { return len(s.data) }

// Grow doubles the arena's capacity, copying the old contents (base-
// relative offsets stay valid — internal/codegen's overflow trampoline
// is exactly the code that rewrites BacktrackStackPtr and
// FrameData.OffBacktrackStackBase for the new base after this call
// returns). It reports whether growth succeeded; growth only fails if
// dirtmake's underlying allocator cannot satisfy the request, which in
// practice means process-wide OOM.
func (s *Stack) Grow() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	next := dirtmake.Bytes(len(s.data)*2, len(s.data)*2)
	copy(next, s.data)
	s.data = next
	return true
}
