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

package backtrack

// Runtime is the per-call handle generated code's stack-overflow
// trampoline calls back into. StackBase/StackLimit are
// snapshots of Stack's current bounds, kept alongside the *Stack itself
// so the trampoline's external call can hand back updated bounds as two
// plain uintptr fields at fixed offsets, without generated code needing
// to know anything about Go slice headers.
//
// One Runtime belongs to exactly one goroutine at a time: the
// generated routine and this struct's owner never run concurrently.
type Runtime struct {
	Stack         *Stack
	StackBase     uintptr
	StackLimit    uintptr
	JitStackLimit uintptr
}

// Field offsets within Runtime, used by internal/codegen to read
// StackBase/StackLimit back out after the external Grow call returns,
// without either side needing reflection or cgo-style struct tags.
const (
	OffStack         = 0
	OffStackBase     = OffStack + PtrSize
	OffStackLimit    = OffStackBase + PtrSize
	OffJitStackLimit = OffStackLimit + PtrSize
)

// NewRuntime snapshots stack's current bounds into a fresh Runtime.
func NewRuntime(stack *Stack, jitStackLimit uintptr) *Runtime {
	return &Runtime{
		Stack:         stack,
		StackBase:     stack.Base(),
		StackLimit:    stack.Limit(),
		JitStackLimit: jitStackLimit,
	}
}

// Grow is the out-of-band `grow(runtime) -> bool` call that is part of
// the backtrack-stack contract. Generated code reaches this
// through the ABI adapter in internal/codegen (see codegen.emitGoCall),
// the rendition of cloudwego-frugal's OP_gcall bridge for calls that
// originate in JIT'd machine code but land on ordinary Go functions. On
// success it refreshes StackBase/StackLimit so the caller's trampoline
// can reload FrameData's copies from fixed offsets.
func Grow(rt *Runtime) bool {
	if !rt.Stack.Grow() {
		return false
	}
	rt.StackBase = rt.Stack.Base()
	rt.StackLimit = rt.Stack.Limit()
	return true
}
