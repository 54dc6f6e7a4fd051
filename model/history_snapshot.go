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

package model

// TxView is the client-facing rendering of a retained transaction.
type TxView struct {
	ID          string `json:"id"`
	Op          string `json:"op"`
	ContractKey string `json:"contract_key,omitempty"`
	Start       int64  `json:"start"`
	End         int64  `json:"end,omitempty"`
	Status      string `json:"status"`
}

// PresenceView is one peer's observed lifetime window at snapshot time.
type PresenceView struct {
	AnonID    string `json:"peer_id"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

// TimeRange bounds the events included in a history snapshot.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// HistorySnapshot is the "history" message payload.
type HistorySnapshot struct {
	Events       []OutboundEvent `json:"events"`
	Transactions []TxView        `json:"transactions"`
	PeerPresence []PresenceView  `json:"peer_presence"`
	TimeRange    TimeRange       `json:"time_range"`
}

// GetHistorySnapshot renders up to InitialHistorySend events and
// InitialTransactionSend transactions, plus the presence window of every
// peer currently in the peer index (live or not yet swept).
func (m *NetworkModel) GetHistorySnapshot() HistorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snap HistorySnapshot
	events := m.history
	if len(events) > InitialHistorySend {
		events = events[len(events)-InitialHistorySend:]
	}
	snap.Events = append(snap.Events, events...)
	if len(snap.Events) > 0 {
		snap.TimeRange.Start = snap.Events[0].Timestamp.UnixNano()
		snap.TimeRange.End = snap.Events[len(snap.Events)-1].Timestamp.UnixNano()
	}

	txs := m.transactions
	if len(txs) > InitialTransactionSend {
		txs = txs[len(txs)-InitialTransactionSend:]
	}
	for _, tx := range txs {
		snap.Transactions = append(snap.Transactions, TxView{
			ID:          tx.ID,
			Op:          string(tx.Op),
			ContractKey: tx.ContractKey,
			Start:       tx.Start.UnixNano(),
			End:         tx.End.UnixNano(),
			Status:      string(tx.Status),
		})
	}

	for _, p := range m.peers {
		snap.PeerPresence = append(snap.PeerPresence, PresenceView{
			AnonID:    p.AnonID,
			FirstSeen: p.FirstSeen.UnixNano(),
			LastSeen:  p.LastSeen.UnixNano(),
		})
	}

	return snap
}
