// Copyright 2014 The go-probeum Authors
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

package common

import "errors"

var (
	// ErrPrivateAddress describes a peer address that is loopback, private
	// or otherwise non-routable. No function in this module returns it:
	// identity.IsPublic reports the same condition as a bool.
	ErrPrivateAddress = errors.New("peer address is not publicly routable")

	// ErrMalformedPeerString is returned when a peer field does not match
	// the "<id>@<ip>:<port> (@ <location>)" grammar.
	ErrMalformedPeerString = errors.New("malformed peer string")

	// ErrCapacityFull describes an exhausted session cap (and, for
	// non-priority sessions, the reserved slice). No function in this
	// module returns it: the session package rejects such connections
	// with a WebSocket close code.
	ErrCapacityFull = errors.New("connection capacity exhausted")

	// ErrRateLimited describes a self-id hash that has exceeded its
	// rolling-hour name-change allowance. No function in this module
	// returns it: the session package replies with a name_set_result.
	ErrRateLimited = errors.New("too many name changes")

	// ErrNameRejected describes a candidate name the moderator rejected.
	// No function in this module returns it: moderation.Sanitizer reports
	// rejection as a bool plus a Reason.
	ErrNameRejected = errors.New("name rejected")
)
