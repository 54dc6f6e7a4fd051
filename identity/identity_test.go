// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIPDeterministicAndDistinct(t *testing.T) {
	a1 := AnonymizeIP("203.0.113.5")
	a2 := AnonymizeIP("203.0.113.5")
	b := AnonymizeIP("203.0.113.6")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 10) // 5 bytes hex-encoded
}

func TestSelfIDHashShorterAndDistinctFromAnonID(t *testing.T) {
	ip := "198.51.100.9"
	assert.Len(t, SelfIDHash(ip), 6) // 3 bytes hex-encoded
	assert.NotEqual(t, AnonymizeIP(ip), SelfIDHash(ip))
}

func TestMnemonicDeterministicTwoWords(t *testing.T) {
	id := AnonymizeIP("203.0.113.5")
	m1 := Mnemonic(id)
	m2 := Mnemonic(id)
	assert.Equal(t, m1, m2)
	assert.Contains(t, m1, "-")
}

func TestIsPublic(t *testing.T) {
	cases := map[string]bool{
		"8.8.8.8":         true,
		"203.0.113.5":     false, // TEST-NET-3
		"10.0.0.1":        false,
		"172.16.5.4":      false,
		"192.168.1.1":     false,
		"127.0.0.1":       false,
		"169.254.1.1":     false,
		"100.64.0.1":      false,
		"not-an-ip":       false,
		"2001:4860::1":    true,
		"::1":             false,
		"fe80::1":         false,
	}
	for ip, want := range cases {
		assert.Equalf(t, want, IsPublic(ip), "IsPublic(%s)", ip)
	}
}

func TestParsePeerStringValid(t *testing.T) {
	ref, err := ParsePeerString("abc123@203.0.113.5:30303 (@ 12.5)")
	require.NoError(t, err)
	assert.Equal(t, "abc123", ref.ID)
	assert.Equal(t, "203.0.113.5", ref.IP)
	assert.Equal(t, 30303, ref.Port)
	assert.InDelta(t, 12.5, ref.Location, 0.0001)
}

func TestParsePeerStringMalformed(t *testing.T) {
	_, err := ParsePeerString("not a peer string")
	assert.Error(t, err)
}

func TestParsePeerStringMemoized(t *testing.T) {
	raw := "deadbeef@198.51.100.9:9999 (@ -3.1)"
	r1, err := ParsePeerString(raw)
	require.NoError(t, err)
	r2, err := ParsePeerString(raw)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
