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

package charclass_test

import (
	"testing"
	"unicode"
	"unsafe"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/nrma/nrma/internal/charclass"
)

func TestIsWordChar(t *testing.T) {
	for _, c := range "abcXYZ019_" {
		require.True(t, charclass.IsWordChar(uint16(c)), "%q should be a word character", c)
	}
	for _, c := range " \t.,;:!?" {
		require.False(t, charclass.IsWordChar(uint16(c)), "%q should not be a word character", c)
	}
	require.False(t, charclass.IsWordChar(0x8000), "code units above 'z' short-circuit to false")
}

func TestIsDigit(t *testing.T) {
	for c := uint16('0'); c <= '9'; c++ {
		require.True(t, charclass.IsDigit(c))
	}
	require.False(t, charclass.IsDigit('a'))
	require.False(t, charclass.IsDigit(':'))
}

func TestIsLineTerminator(t *testing.T) {
	for _, lt := range charclass.LineTerminators {
		require.True(t, charclass.IsLineTerminator(lt))
	}
	require.False(t, charclass.IsLineTerminator('a'))
}

func TestCaseInsensitiveEqual(t *testing.T) {
	require.True(t, charclass.CaseInsensitiveEqual('a', 'A'))
	require.True(t, charclass.CaseInsensitiveEqual('z', 'Z'))
	require.True(t, charclass.CaseInsensitiveEqual('x', 'x'))
	require.False(t, charclass.CaseInsensitiveEqual('a', 'b'))
}

// TestCaseInsensitiveCompareStringsAgainstRandomFixtures fills each span
// with gofakeit-generated letters rather than a hand-picked table — the
// same "populate the struct with random data" role it plays in
// generating fixtures for round-trip tests — and checks the whole-span
// comparator agrees with case-flipping every unit, then disagrees once
// one unit is corrupted.
func TestCaseInsensitiveCompareStringsAgainstRandomFixtures(t *testing.T) {
	for i := 0; i < 20; i++ {
		word := gofakeit.LetterN(uint(gofakeit.Number(1, 12)))

		units := make([]uint16, len(word))
		flipped := make([]uint16, len(word))
		for j, r := range word {
			units[j] = uint16(r)
			if unicode.IsUpper(r) {
				flipped[j] = uint16(unicode.ToLower(r))
			} else {
				flipped[j] = uint16(unicode.ToUpper(r))
			}
		}

		addr1 := uintptr(unsafe.Pointer(&units[0]))
		addr2 := uintptr(unsafe.Pointer(&flipped[0]))
		byteLength := int64(len(units)) * 2

		require.True(t, charclass.CaseInsensitiveCompareStrings(addr1, addr2, byteLength),
			"case-flipped copy of %q should still compare equal", word)

		corrupted := append([]uint16(nil), flipped...)
		corrupted[0]++ // still a valid uint16, no longer a fold of units[0]
		require.False(t, charclass.CaseInsensitiveCompareStrings(addr1, uintptr(unsafe.Pointer(&corrupted[0])), byteLength),
			"corrupting one unit of %q should break the match", word)
	}
}

func TestHasFastPath(t *testing.T) {
	fast := []charclass.Kind{
		charclass.KindDigit, charclass.KindNotDigit, charclass.KindAny,
		charclass.KindNewlineClass, charclass.KindWord, charclass.KindNotWord,
		charclass.KindEverything,
	}
	for _, k := range fast {
		require.True(t, charclass.HasFastPath(k), "kind %q should report a fast path", k)
	}
	require.False(t, charclass.HasFastPath(charclass.KindSpace))
	require.False(t, charclass.HasFastPath(charclass.KindNotSpace))
}
