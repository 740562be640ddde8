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

package macroops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/asm"
	"github.com/nrma/nrma/internal/defs"
	"github.com/nrma/nrma/internal/macroops"
)

func TestNewRoundsRegisterCountAndInstallsBacktrackLabel(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 3, 2, 0)
	require.Equal(t, 4, a.Layout.NumRegisters)
	require.NotNil(t, a.BacktrackLabel())
	require.NotNil(t, a.EntryLabel)
	require.NotNil(t, a.SuccessLabel)
	require.NotNil(t, a.ExitLabel)
}

func TestRequireJSCHAROpsPanicInASCIIMode(t *testing.T) {
	a := macroops.New(defs.ASCII, 2, 2, 0)
	require.Panics(t, func() { a.LoadCurrentCharacterUnchecked(0, 1) })
}

func TestNewInstallsAnOverflowLabelSoChecksCanEmitDuringBodyEmission(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 2, 2, 0)
	require.NotNil(t, a.OverflowLabel())
	require.NotPanics(t, a.CheckBacktrackStackLimit)
}

func TestSetOverflowLabelOverridesTheDefault(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 2, 2, 0)
	overflow := asm.NewLabel("_overflow")
	a.SetOverflowLabel(overflow)
	require.Same(t, overflow, a.OverflowLabel())
}

// TestPushBacktrackLabelRecordsDanglingSite exercises the same
// LabelPatcher ledger internal/codegen.Epilogue consults, at the
// macro-op layer directly: a PushBacktrackLabel naming a label that is
// never bound must be caught by Verify.
func TestPushBacktrackLabelRecordsDanglingSite(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 2, 2, 0)

	never := asm.NewLabel("_never_bound")
	a.PushBacktrackLabel(never)

	err := a.Prog.Patcher().Verify()
	require.Error(t, err)
}

func TestPushBacktrackLabelResolvedOnceBound(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 2, 2, 0)

	target := asm.NewLabel("_target")
	a.PushBacktrackLabel(target)
	a.BindBacktrack(target)

	require.NoError(t, a.Prog.Patcher().Verify())
}

// TestSetRegisterPanicsOnSavedRegister guards the capture-register
// invariant SetRegister documents: only scratch registers (index >=
// NumSavedRegisters) may be set to a literal.
func TestSetRegisterPanicsOnSavedRegister(t *testing.T) {
	a := macroops.New(defs.JSCHAR, 4, 2, 0)
	require.Panics(t, func() { a.SetRegister(1, 5) })
	require.NotPanics(t, func() { a.SetRegister(2, 5) })
}
