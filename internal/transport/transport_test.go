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

package transport_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

type fakeChanges struct {
	entries  []types.ChangeEntry
	received []types.ChangeEntry
}

func (f *fakeChanges) Since(_ context.Context, _ string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	var out []types.ChangeEntry
	for _, e := range f.entries {
		if e.ChangeID > afterChangeID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeChanges) Receive(_ context.Context, entries []types.ChangeEntry) (uint64, error) {
	f.received = append(f.received, entries...)
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].ChangeID, nil
}

func TestClientServerPullRoundTrip(t *testing.T) {
	changes := &fakeChanges{entries: []types.ChangeEntry{
		{ChangeID: 1, Table: "customers", RowID: types.RowId(1), Op: types.OpInsert, Payload: map[string]any{"name": "Ada"}, UpdatedAt: time.Unix(1, 0)},
		{ChangeID: 2, Table: "customers", RowID: types.RowId(2), Op: types.OpInsert, Payload: map[string]any{"name": "Grace"}, UpdatedAt: time.Unix(2, 0)},
	}}
	srv := httptest.NewServer((&transport.Server{Changes: changes, NodeID: "node-a"}).Router())
	defer srv.Close()

	client := &transport.Client{BaseURL: srv.URL, NodeID: "node-b"}
	got, err := client.Pull(context.Background(), "node-a", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.RowId(1), got[0].RowID)
}

func TestClientServerPushRoundTrip(t *testing.T) {
	changes := &fakeChanges{}
	srv := httptest.NewServer((&transport.Server{Changes: changes, NodeID: "node-a"}).Router())
	defer srv.Close()

	client := &transport.Client{BaseURL: srv.URL, NodeID: "node-b"}
	highest, err := client.Push(context.Background(), "node-a", []types.ChangeEntry{
		{ChangeID: 5, Table: "customers", RowID: types.RowId(1), Op: types.OpUpdate, Payload: map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), highest)
	require.Len(t, changes.received, 1)
}
