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

package transport

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// ErrChaos is the error injected by WithChaos.
var ErrChaos = errors.New("chaos")

// transporter mirrors syncengine.Transport without importing that
// package, avoiding an import cycle between transport and syncengine.
type transporter interface {
	Pull(ctx context.Context, peerID string, sinceChangeID uint64, limit int) ([]types.ChangeEntry, error)
	Push(ctx context.Context, peerID string, entries []types.ChangeEntry) (highestAccepted uint64, err error)
}

// WithChaos wraps delegate so that prob fraction of calls fail with
// ErrChaos instead of reaching the network. It is intended for tests
// that exercise SyncEngine's *types.TransportError abort semantics. If
// prob <= 0, delegate is returned unwrapped.
func WithChaos(delegate transporter, prob float32) transporter {
	if prob <= 0 {
		return delegate
	}
	return &chaosTransport{delegate: delegate, prob: prob}
}

type chaosTransport struct {
	delegate transporter
	prob     float32
}

func (c *chaosTransport) Pull(ctx context.Context, peerID string, sinceChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	if rand.Float32() < c.prob {
		return nil, errors.WithMessage(ErrChaos, "Pull")
	}
	return c.delegate.Pull(ctx, peerID, sinceChangeID, limit)
}

func (c *chaosTransport) Push(ctx context.Context, peerID string, entries []types.ChangeEntry) (uint64, error) {
	if rand.Float32() < c.prob {
		return 0, errors.WithMessage(ErrChaos, "Push")
	}
	return c.delegate.Push(ctx, peerID, entries)
}
