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

package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/frame"
)

func TestNewLayoutRoundsRegisterCountUpToEven(t *testing.T) {
	l := frame.NewLayout(3, 2)
	require.Equal(t, 4, l.NumRegisters)
	require.Equal(t, 2, l.NumSavedRegisters)
}

func TestNewLayoutPanicsWhenRegisterFileTooSmall(t *testing.T) {
	require.Panics(t, func() { frame.NewLayout(2, 4) })
}

func TestRegisterOffsetIsContiguousAfterFrameData(t *testing.T) {
	l := frame.NewLayout(4, 2)
	require.Equal(t, int32(frame.Size), l.RegisterOffset(0))
	require.Equal(t, int32(frame.Size+frame.PtrSize), l.RegisterOffset(1))
	require.Equal(t, int32(frame.Size+3*frame.PtrSize), l.RegisterOffset(3))
}

func TestRegisterOffsetPanicsOutOfRange(t *testing.T) {
	l := frame.NewLayout(2, 2)
	require.Panics(t, func() { l.RegisterOffset(-1) })
	require.Panics(t, func() { l.RegisterOffset(2) })
}

func TestFrameSizeAccountsForRegisterFile(t *testing.T) {
	l := frame.NewLayout(4, 2)
	require.Equal(t, int32(frame.Size+4*frame.PtrSize), l.FrameSize())
}

func TestAlignedFrameSizeRoundsUpToAlignment(t *testing.T) {
	l := frame.NewLayout(2, 2)
	raw := l.FrameSize()
	aligned := l.AlignedFrameSize(16)

	require.Zero(t, aligned%16)
	require.GreaterOrEqual(t, aligned, raw)
	require.Less(t, aligned-raw, int32(16))
}
