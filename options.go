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

import (
	"fmt"

	"github.com/nrma/nrma/internal/codegen"
)

// Option is the property setter function for a *codegen.Options,
// following the same functional-option shape cloudwego-frugal's own
// Option type (options.go) uses for its compiler tuning knobs.
type Option func(*codegen.Options)

// WithInitialBacktrackEntries sets the backtrack arena's starting
// capacity, in pointer-sized entries, for programs built from this
// Assembler. The default is 512 entries (4KiB) if never set.
func WithInitialBacktrackEntries(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("nrma: invalid initial backtrack entry count: %d", n))
	}
	return func(o *codegen.Options) { o.InitialBacktrackEntries = n }
}
