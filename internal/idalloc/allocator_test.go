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

package idalloc_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/idalloc"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

func TestBadNodeID(t *testing.T) {
	_, err := idalloc.New(1024)
	require.ErrorIs(t, err, types.ErrBadNodeID)
}

func TestNodeEmbedding(t *testing.T) {
	a, err := idalloc.New(517)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		id := a.NextID()
		assert.Equal(t, uint16(517), id.NodeID())
	}
}

func TestUniqueAndMonotonicAcrossWorkers(t *testing.T) {
	a, err := idalloc.New(1)
	require.NoError(t, err)

	const workers = 16
	const perWorker = 2000

	ids := make(chan types.RowId, workers*perWorker)
	var backwards atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			var prev types.RowId
			for i := 0; i < perWorker; i++ {
				id := a.NextID()
				if id <= prev {
					backwards.Add(1)
				}
				prev = id
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)
	assert.Zero(t, backwards.Load(), "ids handed to one worker did not increase")

	seen := make(map[types.RowId]struct{}, workers*perWorker)
	all := make([]types.RowId, 0, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		all = append(all, id)
	}
	require.Len(t, all, workers*perWorker)
}

func TestContextBinding(t *testing.T) {
	ctx := context.Background()
	_, err := idalloc.RequireFromContext(ctx)
	require.ErrorIs(t, err, types.ErrNoAllocatorBound)

	a, err := idalloc.New(3)
	require.NoError(t, err)

	bound := idalloc.NewContext(ctx, a)
	got, err := idalloc.RequireFromContext(bound)
	require.NoError(t, err)
	assert.Same(t, a, got)

	// The original context is untouched: binding is scoped to the
	// derived context only.
	_, err = idalloc.RequireFromContext(ctx)
	require.ErrorIs(t, err, types.ErrNoAllocatorBound)
}
