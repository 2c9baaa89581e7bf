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

package noderegistry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/noderegistry"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

type memStore struct {
	mu  sync.Mutex
	ids []uint16
}

func (m *memStore) AllocatedIDs(context.Context) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16{}, m.ids...), nil
}

func (m *memStore) Record(_ context.Context, nodeID uint16, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, nodeID)
	return nil
}

func TestRegisterIssuesSmallestFreeID(t *testing.T) {
	store := &memStore{ids: []uint16{1, 2, 4}}
	reg := &noderegistry.Registry{Store: store, Signer: []byte("secret"), BootEpoch: 1}

	nodeID, token, err := reg.Register(context.Background(), "host-a")
	require.NoError(t, err)
	assert.Equal(t, uint16(3), nodeID)
	assert.NotEmpty(t, token)
}

func TestRegisterExhaustsRange(t *testing.T) {
	ids := make([]uint16, 0, 1023)
	for i := uint16(1); i <= 1023; i++ {
		ids = append(ids, i)
	}
	store := &memStore{ids: ids}
	reg := &noderegistry.Registry{Store: store, Signer: []byte("secret"), BootEpoch: 1}

	_, _, err := reg.Register(context.Background(), "host-a")
	require.ErrorIs(t, err, types.ErrRegistryExhausted)
}

func TestVerifyRejectsStaleBootEpoch(t *testing.T) {
	store := &memStore{}
	reg := &noderegistry.Registry{Store: store, Signer: []byte("secret"), BootEpoch: 1}
	_, token, err := reg.Register(context.Background(), "host-a")
	require.NoError(t, err)

	recreated := &noderegistry.Registry{Store: &memStore{}, Signer: []byte("secret"), BootEpoch: 2}
	_, err = recreated.Verify(token)
	require.Error(t, err)
}

func TestVerifyAcceptsMatchingBootEpoch(t *testing.T) {
	store := &memStore{}
	reg := &noderegistry.Registry{Store: store, Signer: []byte("secret"), BootEpoch: 7}
	nodeID, token, err := reg.Register(context.Background(), "host-a")
	require.NoError(t, err)

	verified, err := reg.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, nodeID, verified)
}
