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

// Package identity deterministically anonymizes peer IPs, classifies them
// as public/private/loopback/test, and parses the peer-string grammar
// telemetry records embed peer references in.
package identity

import (
	"crypto/sha256"
	"net"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/status-im/keycard-go/hexutils"
	"github.com/tyler-smith/go-bip39"

	"github.com/probeum/probewatch/common"
)

// AnonSalt is mixed into every anonymization hash. It has no secrecy
// requirement (the mapping need only be stable, not unguessable) but
// keeps the output distinct from a bare hash of the IP.
const AnonSalt = "probewatch-anon-v1"

// AnonymizeIP is a pure function: the same IP always yields the same
// short anonymous id. The id is the first 10 hex characters (5 bytes) of
// sha256(salt || ip), which is ample to avoid collisions across a single
// overlay network's peer population while staying short on the wire.
func AnonymizeIP(ip string) string {
	sum := sha256.Sum256([]byte(AnonSalt + ip))
	return hexutils.BytesToHex(sum[:5])
}

// SelfIDHash derives the shorter self-id hash used to key the peer-name
// map: 6 hex characters (3 bytes) of sha256(salt || "self" || ip).
func SelfIDHash(ip string) string {
	sum := sha256.Sum256([]byte(AnonSalt + "self" + ip))
	return hexutils.BytesToHex(sum[:3])
}

// bip39Words is the reference English wordlist; indices are stable across
// invocations, which is exactly what a deterministic-mnemonic nickname
// needs.
var bip39Words = bip39.GetWordList()

// Mnemonic derives a deterministic two-word nickname from an anonymous id
// for display purposes only. No other package in this module calls it;
// it is never used as a map key — AnonymizeIP remains the sole identity
// key.
func Mnemonic(anonID string) string {
	sum := sha256.Sum256([]byte(anonID))
	n := len(bip39Words)
	if n == 0 {
		return anonID
	}
	a := int(sum[0])<<8|int(sum[1])
	b := int(sum[2])<<8|int(sum[3])
	return bip39Words[a%n] + "-" + bip39Words[b%n]
}

var privateBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // link-local, also covers cloud metadata/test ranges
		"::1/128",
		"fc00::/7",
		"fe80::/10",
		"100.64.0.0/10", // carrier-grade NAT
		"192.0.2.0/24",  // TEST-NET-1
		"198.51.100.0/24",
		"203.0.113.0/24",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			privateBlocks = append(privateBlocks, n)
		}
	}
}

// IsPublic reports whether ip is routable on the public internet: not
// loopback, not a private range, not a well-known test/documentation
// range, and syntactically valid.
func IsPublic(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() || parsed.IsUnspecified() || parsed.IsMulticast() {
		return false
	}
	for _, b := range privateBlocks {
		if b.Contains(parsed) {
			return false
		}
	}
	return true
}

// PeerRef is a parsed "<id>@<ip>:<port> (@ <location>)" reference.
type PeerRef struct {
	ID       string
	IP       string
	Port     int
	Location float64
}

var peerStringRE = regexp.MustCompile(`^(\w+)@(\d{1,3}(?:\.\d{1,3}){3}):(\d+)\s*\(@\s*([0-9.eE+-]+)\)$`)

var parseCache *lru.Cache

func init() {
	c, err := lru.New(4096)
	if err == nil {
		parseCache = c
	}
}

// ParsePeerString parses the telemetry peer-string grammar
// "<peerId>@<ip>:<port> (@ <location>)". Results are memoized in a
// bounded LRU since the same raw field is re-observed across many
// records referencing the same peer within a short span.
func ParsePeerString(s string) (PeerRef, error) {
	s = strings.TrimSpace(s)
	if parseCache != nil {
		if v, ok := parseCache.Get(s); ok {
			if ref, ok := v.(PeerRef); ok {
				return ref, nil
			}
			return PeerRef{}, common.ErrMalformedPeerString
		}
	}
	ref, err := parsePeerString(s)
	if parseCache != nil {
		if err == nil {
			parseCache.Add(s, ref)
		} else {
			parseCache.Add(s, struct{}{})
		}
	}
	return ref, err
}

func parsePeerString(s string) (PeerRef, error) {
	m := peerStringRE.FindStringSubmatch(s)
	if m == nil {
		return PeerRef{}, common.ErrMalformedPeerString
	}
	port, err := strconv.Atoi(m[3])
	if err != nil {
		return PeerRef{}, common.ErrMalformedPeerString
	}
	loc, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return PeerRef{}, common.ErrMalformedPeerString
	}
	return PeerRef{ID: m[1], IP: m[2], Port: port, Location: loc}, nil
}
