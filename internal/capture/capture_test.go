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

package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/capture"
	"github.com/systemizing-solutions/shuttle-bridge/internal/idalloc"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

type fakeAppender struct {
	entries []types.ChangeEntry
}

func (f *fakeAppender) Append(_ context.Context, _ types.EngineQuerier, entry types.ChangeEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func TestBeforeInsertAssignsIDAndVersion(t *testing.T) {
	alloc, err := idalloc.New(2)
	require.NoError(t, err)
	ctx := idalloc.NewContext(context.Background(), alloc)

	h := &capture.Hooks{NodeID: "node-2", Appender: &fakeAppender{}}
	row, err := h.BeforeInsert(ctx, "customers", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), row["version"])
	assert.NotNil(t, row["id"])
	assert.Nil(t, row["deleted_at"])
}

func TestBeforeInsertRequiresBoundAllocator(t *testing.T) {
	h := &capture.Hooks{NodeID: "node-2", Appender: &fakeAppender{}}
	_, err := h.BeforeInsert(context.Background(), "customers", map[string]any{})
	require.ErrorIs(t, err, types.ErrNoAllocatorBound)
}

func TestTimestampOnlyUpdateIsNonMeaningful(t *testing.T) {
	h := &capture.Hooks{NodeID: "node-2", Appender: &fakeAppender{}}
	pre := map[string]any{"name": "Ada", "version": uint64(3), "updated_at": time.Unix(0, 0)}
	proposed := map[string]any{"name": "Ada", "updated_at": time.Unix(100, 0)}

	dirty, meaningful, post := h.BeforeUpdate(pre, proposed)
	assert.Equal(t, []string{"updated_at"}, dirty)
	assert.False(t, meaningful)
	assert.NotContains(t, post, "version") // untouched: no bump requested
}

func TestDomainColumnChangeIsMeaningfulAndBumpsVersion(t *testing.T) {
	h := &capture.Hooks{NodeID: "node-2", Appender: &fakeAppender{}}
	pre := map[string]any{"name": "Ada", "version": uint64(3)}
	proposed := map[string]any{"name": "Grace"}

	dirty, meaningful, post := h.BeforeUpdate(pre, proposed)
	assert.Contains(t, dirty, "name")
	assert.True(t, meaningful)
	assert.Equal(t, uint64(4), post["version"])
}

func TestReassigningIdenticalValueIsNotDirty(t *testing.T) {
	h := &capture.Hooks{NodeID: "node-2", Appender: &fakeAppender{}}
	pre := map[string]any{"name": "Ada", "version": uint64(3)}
	proposed := map[string]any{"name": "Ada"}

	dirty, meaningful, _ := h.BeforeUpdate(pre, proposed)
	assert.Empty(t, dirty)
	assert.False(t, meaningful)
}

func TestAfterWriteSuppressedDuringApply(t *testing.T) {
	app := &fakeAppender{}
	h := &capture.Hooks{NodeID: "node-2", Appender: app}

	ctx := capture.Suppressed(context.Background(), "node-9")
	err := h.AfterWrite(ctx, nil, "customers", types.OpUpdate, map[string]any{"id": types.RowId(1)}, true)
	require.NoError(t, err)
	assert.Empty(t, app.entries)
}

func TestAfterWriteEmitsEntry(t *testing.T) {
	app := &fakeAppender{}
	h := &capture.Hooks{NodeID: "node-2", Appender: app}

	post := map[string]any{"id": types.RowId(42), "version": uint64(1), "updated_at": time.Unix(1, 0), "name": "Ada"}
	err := h.AfterWrite(context.Background(), nil, "customers", types.OpInsert, post, true)
	require.NoError(t, err)
	require.Len(t, app.entries, 1)
	assert.Equal(t, "node-2", app.entries[0].OriginNodeID)
	assert.Equal(t, types.OpInsert, app.entries[0].Op)
}
