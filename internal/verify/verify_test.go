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

package verify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/codegen"
	"github.com/nrma/nrma/internal/defs"
	"github.com/nrma/nrma/internal/macroops"
	"github.com/nrma/nrma/internal/verify"
)

// buildTrivialCode assembles the smallest possible complete routine:
// match a single literal character, otherwise fail.
func buildTrivialCode(t *testing.T, flags defs.Flags) (*macroops.Assembler, *codegen.Code) {
	t.Helper()

	a := macroops.New(defs.JSCHAR, 2, 2, flags)
	codegen.Prologue(a) // binds a.EntryLabel at its end

	a.LoadCurrentCharacter(0, nil, true, 1)
	a.CheckNotCharacter('a', nil)
	a.AdvanceCurrentPosition(1)
	a.Succeed()

	code, err := codegen.Epilogue(a, codegen.Options{})
	require.NoError(t, err)
	return a, code
}

func TestDisassembleAndListing(t *testing.T) {
	_, code := buildTrivialCode(t, 0)

	insts, err := verify.Disassemble(code.Bytes)
	require.NoError(t, err)
	require.NotEmpty(t, insts)

	listing, err := verify.Listing(code.Bytes)
	require.NoError(t, err)
	require.True(t, strings.Contains(listing, "ret"), "listing should disassemble the final RET:\n%s", listing)
}

func TestCheckNonVolatileSave(t *testing.T) {
	for _, flags := range []defs.Flags{0, defs.FlagGlobal} {
		_, code := buildTrivialCode(t, flags)
		err := verify.CheckNonVolatileSave(code.Bytes, code.EntryOffset, asm.DefaultRegisters.NonVolatile)
		require.NoError(t, err)
	}
}

func TestCheckNonVolatileSaveRejectsWrongOrder(t *testing.T) {
	_, code := buildTrivialCode(t, 0)

	shuffled := append([]asm.Register(nil), asm.DefaultRegisters.NonVolatile...)
	shuffled[0], shuffled[1] = shuffled[1], shuffled[0]

	err := verify.CheckNonVolatileSave(code.Bytes, code.EntryOffset, shuffled)
	require.Error(t, err)
}

func TestCheckReachable(t *testing.T) {
	a, code := buildTrivialCode(t, defs.FlagGlobal)
	_ = code

	err := verify.CheckReachable(a.Prog.Patcher(), a.SuccessLabel, a.ExitLabel)
	require.NoError(t, err)
}
