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

package syncengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/syncengine"
	"github.com/systemizing-solutions/shuttle-bridge/internal/synctest"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

func newEngine(nodeID string, policy syncengine.Policy, log *synctest.MemLog, rows *synctest.MemRows) *syncengine.Engine {
	return &syncengine.Engine{
		NodeID: nodeID,
		States: synctest.NewMemStates(),
		Rows:   rows,
		Log:    log,
		Dedup:  synctest.NewMemDedup(),
		Policy: policy,
	}
}

func entry(changeID uint64, table string, rowID types.RowId, origin string, version uint64, updatedAt time.Time) types.ChangeEntry {
	return types.ChangeEntry{
		ChangeID:     changeID,
		Table:        table,
		RowID:        rowID,
		Op:           types.OpInsert,
		Payload:      map[string]any{"id": rowID, "version": version, "updated_at": updatedAt, "name": "Ada"},
		Version:      version,
		UpdatedAt:    updatedAt,
		OriginNodeID: origin,
	}
}

func TestPullAppliesAcceptedEntriesAndAdvancesWatermark(t *testing.T) {
	rows := synctest.NewMemRows()
	engine := newEngine("node-a", syncengine.PolicyLastWriteWins, synctest.NewMemLog(), rows)

	now := time.Unix(1000, 0)
	peerLog := synctest.NewMemLog()
	_ = peerLog.Append(context.Background(), nil, entry(0, "customers", types.RowId(1), "node-b", 1, now))
	_ = peerLog.Append(context.Background(), nil, entry(0, "customers", types.RowId(2), "node-b", 1, now))

	peerEngine := newEngine("node-b", syncengine.PolicyLastWriteWins, peerLog, synctest.NewMemRows())
	engine.Transport = &synctest.LoopbackTransport{Peer: peerEngine, LocalNodeID: "node-a"}

	pulled, pushed, err := engine.PullThenPush(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, 2, pulled)
	assert.Equal(t, 0, pushed)

	_, ok := rows.Get("customers", types.RowId(1))
	assert.True(t, ok)

	state, err := engine.States.Load(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.LastPulledChangeID)
}

func TestLastWriteWinsDropsStaleIncomingEntrySilently(t *testing.T) {
	rows := synctest.NewMemRows()
	engine := newEngine("node-a", syncengine.PolicyLastWriteWins, synctest.NewMemLog(), rows)

	newer := time.Unix(2000, 0)
	older := time.Unix(1000, 0)
	_ = rows.Upsert(context.Background(), nil, "customers", types.RowId(1), map[string]any{"version": uint64(5), "updated_at": newer})

	peerLog := synctest.NewMemLog()
	_ = peerLog.Append(context.Background(), nil, entry(0, "customers", types.RowId(1), "node-b", 5, older))
	peerEngine := newEngine("node-b", syncengine.PolicyLastWriteWins, peerLog, synctest.NewMemRows())
	engine.Transport = &synctest.LoopbackTransport{Peer: peerEngine, LocalNodeID: "node-a"}

	pulled, _, err := engine.PullThenPush(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, 0, pulled)

	payload, _ := rows.Get("customers", types.RowId(1))
	assert.Equal(t, newer, payload["updated_at"])
}

func TestVersionStrictSurfacesVersionGapAndStopsRun(t *testing.T) {
	rows := synctest.NewMemRows()
	engine := newEngine("node-a", syncengine.PolicyVersionStrict, synctest.NewMemLog(), rows)

	now := time.Unix(1000, 0)
	peerLog := synctest.NewMemLog()
	_ = peerLog.Append(context.Background(), nil, entry(0, "customers", types.RowId(1), "node-b", 3, now)) // skips 1,2
	peerEngine := newEngine("node-b", syncengine.PolicyVersionStrict, peerLog, synctest.NewMemRows())
	engine.Transport = &synctest.LoopbackTransport{Peer: peerEngine, LocalNodeID: "node-a"}

	_, _, err := engine.PullThenPush(context.Background(), "node-b")
	require.Error(t, err)
	var gap *types.VersionGap
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, uint64(3), gap.IncomingVersion)
}

func TestTransportFailureAbortsWithoutAdvancingWatermark(t *testing.T) {
	rows := synctest.NewMemRows()
	engine := newEngine("node-a", syncengine.PolicyLastWriteWins, synctest.NewMemLog(), rows)
	engine.Transport = failingTransport{}

	_, _, err := engine.PullThenPush(context.Background(), "node-b")
	require.Error(t, err)
	var te *types.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "pull", te.Op)

	state, err := engine.States.Load(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.LastPulledChangeID)
	assert.Equal(t, uint64(0), state.LastPushedChangeID)
}

type failingTransport struct{}

func (failingTransport) Pull(context.Context, string, uint64, int) ([]types.ChangeEntry, error) {
	return nil, assert.AnError
}

func (failingTransport) Push(context.Context, string, []types.ChangeEntry) (uint64, error) {
	return 0, assert.AnError
}

func TestPushSendsLocallyAuthoredEntriesAndAdvancesWatermark(t *testing.T) {
	localLog := synctest.NewMemLog()
	engine := newEngine("node-a", syncengine.PolicyLastWriteWins, localLog, synctest.NewMemRows())

	now := time.Unix(1000, 0)
	_ = localLog.Append(context.Background(), nil, entry(0, "customers", types.RowId(9), "node-a", 1, now))

	peerEngine := newEngine("node-b", syncengine.PolicyLastWriteWins, synctest.NewMemLog(), synctest.NewMemRows())
	engine.Transport = &synctest.LoopbackTransport{Peer: peerEngine, LocalNodeID: "node-a"}

	pulled, pushed, err := engine.PullThenPush(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, 0, pulled)
	assert.Equal(t, 1, pushed)

	_, ok := peerEngine.Rows.(*synctest.MemRows).Get("customers", types.RowId(9))
	assert.True(t, ok)

	state, err := engine.States.Load(context.Background(), "node-b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.LastPushedChangeID)
}

func TestRetriedPushIsIdempotentViaDedupLedger(t *testing.T) {
	rows := synctest.NewMemRows()
	engine := newEngine("node-a", syncengine.PolicyVersionStrict, synctest.NewMemLog(), rows)

	now := time.Unix(1000, 0)
	e := entry(1, "customers", types.RowId(1), "node-b", 1, now)

	highest1, err := engine.Receive(context.Background(), []types.ChangeEntry{e})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), highest1)

	// Re-deliver the same push: must not trip version_strict's
	// expected-version check against the now-current local row.
	highest2, err := engine.Receive(context.Background(), []types.ChangeEntry{e})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), highest2)
}
