// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package synctest provides in-memory fixtures standing in for the
// SQL-backed stores, so that SyncEngine's orchestration logic can be
// exercised without a running database.
package synctest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// MemStates is an in-memory syncstate.Store.
type MemStates struct {
	mu    sync.Mutex
	state map[string]types.SyncState
}

func NewMemStates() *MemStates { return &MemStates{state: make(map[string]types.SyncState)} }

func (m *MemStates) Load(_ context.Context, peerID string) (types.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.state[peerID]; ok {
		return s, nil
	}
	return types.SyncState{PeerID: peerID}, nil
}

func (m *MemStates) AdvancePulled(_ context.Context, peerID string, changeID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state[peerID]
	s.PeerID = peerID
	if changeID > s.LastPulledChangeID {
		s.LastPulledChangeID = changeID
	}
	m.state[peerID] = s
	return nil
}

func (m *MemStates) AdvancePushed(_ context.Context, peerID string, changeID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state[peerID]
	s.PeerID = peerID
	if changeID > s.LastPushedChangeID {
		s.LastPushedChangeID = changeID
	}
	m.state[peerID] = s
	return nil
}

// memRow is one row's current sync-relevant state and full payload.
type memRow struct {
	version   uint64
	updatedAt time.Time
	payload   map[string]any
}

// MemRows is an in-memory types.RowStore. It has no real transactions;
// Begin returns a no-op EntityTx.
type MemRows struct {
	mu   sync.Mutex
	rows map[string]map[types.RowId]memRow // table -> rowID -> row
}

func NewMemRows() *MemRows { return &MemRows{rows: make(map[string]map[types.RowId]memRow)} }

func (m *MemRows) CurrentVersion(_ context.Context, _ types.EntityQuerier, table string, rowID types.RowId) (uint64, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[table][rowID]
	if !ok {
		return 0, time.Time{}, false, nil
	}
	return row.version, row.updatedAt, true, nil
}

func (m *MemRows) Upsert(_ context.Context, _ types.EntityQuerier, table string, rowID types.RowId, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[table] == nil {
		m.rows[table] = make(map[types.RowId]memRow)
	}
	version, _ := payload["version"].(uint64)
	updatedAt, _ := payload["updated_at"].(time.Time)
	m.rows[table][rowID] = memRow{version: version, updatedAt: updatedAt, payload: payload}
	return nil
}

func (m *MemRows) Begin(_ context.Context) (types.EntityTx, error) { return noopTx{}, nil }

// Get exposes a row's payload for test assertions.
func (m *MemRows) Get(table string, rowID types.RowId) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[table][rowID]
	return row.payload, ok
}

type noopTx struct{ types.EntityQuerier }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

// MemLog is an in-memory changelog implementing both capture.Appender
// and syncengine.ChangeLog.
type MemLog struct {
	mu      sync.Mutex
	entries []types.ChangeEntry
	nextID  uint64
}

func NewMemLog() *MemLog { return &MemLog{} }

func (l *MemLog) Append(_ context.Context, _ types.EngineQuerier, entry types.ChangeEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	entry.ChangeID = l.nextID
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemLog) Since(_ context.Context, _ types.EngineQuerier, originNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	return l.filtered(afterChangeID, limit, func(e types.ChangeEntry) bool {
		return e.OriginNodeID == originNodeID
	})
}

func (l *MemLog) SinceExcluding(_ context.Context, _ types.EngineQuerier, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	return l.filtered(afterChangeID, limit, func(e types.ChangeEntry) bool {
		return e.OriginNodeID != excludeOriginNodeID
	})
}

func (l *MemLog) filtered(afterChangeID uint64, limit int, keep func(types.ChangeEntry) bool) ([]types.ChangeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.ChangeEntry
	for _, e := range l.entries {
		if keep(e) && e.ChangeID > afterChangeID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeID < out[j].ChangeID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemDedup is an in-memory syncengine.PushDedup.
type MemDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemDedup() *MemDedup { return &MemDedup{seen: make(map[string]bool)} }

func (d *MemDedup) SeenAndRecord(_ context.Context, originNodeID string, rowID types.RowId, version uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := originNodeID + "|" + rowID.String() + "|" + strconv.FormatUint(version, 10)
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

// LoopbackTransport hands Pull/Push requests directly to a peer
// Engine-like Receiver, with no network hop — useful for exercising
// two engines against each other in-process.
type LoopbackTransport struct {
	Peer interface {
		Since(ctx context.Context, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error)
		Receive(ctx context.Context, entries []types.ChangeEntry) (uint64, error)
	}
	// LocalNodeID is the node id of the engine that owns this
	// transport, sent to the peer as exclude_origin so pulled batches
	// never echo back our own writes.
	LocalNodeID string
}

func (t *LoopbackTransport) Pull(ctx context.Context, _ string, sinceChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	return t.Peer.Since(ctx, t.LocalNodeID, sinceChangeID, limit)
}

func (t *LoopbackTransport) Push(ctx context.Context, _ string, entries []types.ChangeEntry) (uint64, error) {
	return t.Peer.Receive(ctx, entries)
}
