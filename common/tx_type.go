// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package common

// OperationKind is the retained operation kind of a telemetry transaction.
type OperationKind string

const (
	OpPut        OperationKind = "put"
	OpGet        OperationKind = "get"
	OpUpdate     OperationKind = "update"
	OpSubscribe  OperationKind = "subscribe"
	OpConnect    OperationKind = "connect"
	OpDisconnect OperationKind = "disconnect"
	OpBroadcast  OperationKind = "broadcast"
	OpOther      OperationKind = "other"
)

// Retained reports whether transactions of this kind are kept in the
// transaction log. Only put/get/update/broadcast transactions survive;
// everything else is observed but never retained (see data model §3).
func (k OperationKind) Retained() bool {
	switch k {
	case OpPut, OpGet, OpUpdate, OpBroadcast:
		return true
	default:
		return false
	}
}

// OperationKindFromPrefix infers the operation kind from a record's
// event-kind prefix (e.g. "put_request" -> OpPut).
func OperationKindFromPrefix(eventKind string) OperationKind {
	for _, k := range []OperationKind{OpPut, OpGet, OpUpdate, OpSubscribe, OpConnect, OpDisconnect, OpBroadcast} {
		if hasPrefix(eventKind, string(k)) {
			return k
		}
	}
	return OpOther
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// TransactionStatus is the lifecycle state of a retained transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusSuccess  TransactionStatus = "success"
	StatusNotFound TransactionStatus = "not_found"
	StatusComplete TransactionStatus = "complete"
)
