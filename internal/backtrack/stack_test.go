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

package backtrack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/backtrack"
)

func TestStackBaseAndLimitBoundTheArena(t *testing.T) {
	s := backtrack.New(4)
	require.Equal(t, 4*backtrack.PtrSize, s.Cap())
	require.Equal(t, s.Base()+uintptr(s.Cap()), s.Limit())
}

func TestStackGrowDoublesCapacityAndKeepsLimitAtEnd(t *testing.T) {
	s := backtrack.New(4)
	before := s.Cap()

	ok := s.Grow()
	require.True(t, ok)
	require.Equal(t, before*2, s.Cap())
	require.Equal(t, s.Base()+uintptr(s.Cap()), s.Limit())
}

func TestNewRuntimeSnapshotsStackBounds(t *testing.T) {
	s := backtrack.New(8)
	rt := backtrack.NewRuntime(s, 0)

	require.Equal(t, s.Base(), rt.StackBase)
	require.Equal(t, s.Limit(), rt.StackLimit)
	require.Same(t, s, rt.Stack)
}

func TestRuntimeGrowRefreshesBounds(t *testing.T) {
	s := backtrack.New(4)
	rt := backtrack.NewRuntime(s, 0)

	ok := backtrack.Grow(rt)
	require.True(t, ok)
	require.Equal(t, s.Base(), rt.StackBase)
	require.Equal(t, s.Limit(), rt.StackLimit)
	require.Equal(t, 8*backtrack.PtrSize, s.Cap())
}
