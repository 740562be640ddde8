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

package nrma

import "errors"

// ErrNoJITCompartment is returned by GenerateCode when the loader
// cannot obtain executable memory for the compiled routine (an mmap or
// mprotect failure). It is the one synchronous, environment-caused
// failure GenerateCode can hit; every other error path here is a
// compiler bug (a dangling backtrack label) rather than something a
// caller can retry around.
var ErrNoJITCompartment = errors.New("nrma: no JIT compartment available")
