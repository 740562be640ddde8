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

package asm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/asm"
)

func TestLabelPatcherVerifyRejectsDanglingSite(t *testing.T) {
	lp := asm.NewLabelPatcher()
	target := asm.NewLabel("_target")
	lp.Record(target)

	err := lp.Verify()
	require.Error(t, err)
	require.Contains(t, err.Error(), "_target")
}

func TestLabelPatcherVerifyAcceptsBoundLabel(t *testing.T) {
	p := asm.NewProgram()
	lp := p.Patcher()

	target := asm.NewLabel("_target")
	lp.Record(target)
	p.Bind(target)

	require.NoError(t, lp.Verify())
}

func TestLabelPatcherVerifyAcceptsBindBacktrackResolvedSite(t *testing.T) {
	p := asm.NewProgram()
	lp := p.Patcher()

	target := asm.NewLabel("_target")
	lp.Record(target)
	p.BindBacktrack(target)

	require.NoError(t, lp.Verify())
}

func TestLabelPatcherReachableFollowsRecordedEdges(t *testing.T) {
	lp := asm.NewLabelPatcher()
	entry := asm.NewLabel("_entry")
	mid := asm.NewLabel("_mid")
	tail := asm.NewLabel("_tail")
	unreachable := asm.NewLabel("_unreachable")

	lp.AddEdge(entry, mid)
	lp.AddEdge(mid, tail)

	seen := lp.Reachable(entry)
	require.True(t, seen[entry])
	require.True(t, seen[mid])
	require.True(t, seen[tail])
	require.False(t, seen[unreachable])
}

func TestBranchOrBacktrackFallsBackToInstalledLabel(t *testing.T) {
	p := asm.NewProgram()
	backtrack := asm.NewLabel("_backtrack")
	p.SetBacktrackLabel(backtrack)

	require.Same(t, backtrack, p.BranchOrBacktrack(nil))

	explicit := asm.NewLabel("_explicit")
	require.Same(t, explicit, p.BranchOrBacktrack(explicit))
}

func TestBranchOrBacktrackPanicsWithoutInstalledLabel(t *testing.T) {
	p := asm.NewProgram()
	require.Panics(t, func() { p.BranchOrBacktrack(nil) })
}
