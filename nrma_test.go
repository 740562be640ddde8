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

package nrma_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma"
)

// buildLiteralMatch assembles the smallest complete routine through the
// public API: match a single literal character, otherwise fail. It
// mirrors internal/verify's buildTrivialCode helper one layer up, at
// the surface a caller of this package actually uses.
func buildLiteralMatch(t *testing.T, opts ...nrma.Option) *nrma.Assembler {
	t.Helper()
	a := nrma.NewAssembler(nrma.JSCHAR, 2, 2, 0, opts...)
	a.LoadCurrentCharacter(0, nil, true, 1)
	a.CheckNotCharacter('a', nil)
	a.AdvanceCurrentPosition(1)
	a.Succeed()
	return a
}

func TestGenerateCodeLoadsAndDisassembles(t *testing.T) {
	a := buildLiteralMatch(t)

	prog, err := a.GenerateCode()
	require.NoError(t, err)
	require.NotNil(t, prog)
	defer prog.Release()

	listing := prog.Disassemble()
	require.True(t, strings.Contains(listing, "ret"), "listing should disassemble the final RET:\n%s", listing)
}

func TestGenerateCodeAcceptsInitialBacktrackEntriesOption(t *testing.T) {
	a := buildLiteralMatch(t, nrma.WithInitialBacktrackEntries(1024))

	prog, err := a.GenerateCode()
	require.NoError(t, err)
	defer prog.Release()
	require.NotNil(t, prog)
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := buildLiteralMatch(t)
	prog, err := a.GenerateCode()
	require.NoError(t, err)

	require.NoError(t, prog.Release())
	require.NoError(t, prog.Release())
}

func TestWithInitialBacktrackEntriesPanicsOnNegative(t *testing.T) {
	require.Panics(t, func() { nrma.WithInitialBacktrackEntries(-1) })
}

func TestNewLabelKeepsItsName(t *testing.T) {
	l := nrma.NewLabel("_probe")
	require.Equal(t, "_probe", l.String())
}
