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

// Package idalloc generates K-sorted, globally unique row identifiers.
// An Allocator is safe for concurrent use; the "current allocator" for
// a request is bound onto a context.Context rather than held in a
// package-level singleton, so that a multi-tenant host can serve
// several node ids from one process.
package idalloc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Epoch is the fixed point from which the 42-bit millisecond component
// of a RowId is measured. It is comfortably far in the past to leave
// headroom (2^42 ms is ~139 years) without requiring callers to reason
// about it.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	sequenceBits  = 12
	nodeBits      = 10
	maxSequence   = 1 << sequenceBits // 4096; overflow at this value
	maxNodeID     = 1<<nodeBits - 1   // 1023
	sequenceMask  = maxSequence - 1
)

// Allocator mints RowId values for a single node id. The zero value is
// not usable; construct with New.
type Allocator struct {
	nodeID uint16

	mu       sync.Mutex
	lastMs   int64
	sequence uint32
}

// New constructs an Allocator for the given node id, which must be in
// 0..1023.
func New(nodeID uint16) (*Allocator, error) {
	if nodeID > maxNodeID {
		return nil, errors.WithStack(types.ErrBadNodeID)
	}
	return &Allocator{nodeID: nodeID}, nil
}

// NodeID returns the node id this Allocator was constructed with.
func (a *Allocator) NodeID() uint16 { return a.nodeID }

// NextID returns a new, distinct RowId. Safe for concurrent use.
func (a *Allocator) NextID() types.RowId {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms := nowMillis()
	if ms < a.lastMs {
		// Clock went backwards. Never go back: clamp to the last value
		// we handed out from and keep incrementing the sequence as
		// though no time had passed.
		log.WithFields(log.Fields{
			"observed": ms,
			"clamped":  a.lastMs,
		}).Warn("idalloc: clock moved backwards, clamping")
		ms = a.lastMs
	}

	if ms == a.lastMs {
		a.sequence++
		if a.sequence >= maxSequence {
			// Exhausted this millisecond's id space; spin until the
			// clock advances rather than overflow into the node bits.
			for ms <= a.lastMs {
				ms = nowMillis()
			}
			a.sequence = 0
		}
	} else {
		a.sequence = 0
	}
	a.lastMs = ms

	elapsed := uint64(ms - Epoch.UnixMilli())
	id := (elapsed << (nodeBits + sequenceBits)) |
		(uint64(a.nodeID) << sequenceBits) |
		(uint64(a.sequence) & sequenceMask)
	return types.RowId(id)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

type ctxKey struct{}

// NewContext returns a copy of ctx with a bound Allocator. Because the
// binding lives on the context, it is automatically scoped to that
// context's call graph; there is no separate Unbind step, as letting
// the context fall out of scope (e.g. an HTTP handler returning)
// releases the binding for free.
func NewContext(ctx context.Context, a *Allocator) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext retrieves the Allocator bound to ctx, if any.
func FromContext(ctx context.Context) (*Allocator, bool) {
	a, ok := ctx.Value(ctxKey{}).(*Allocator)
	return a, ok
}

// RequireFromContext is a convenience for capture hooks: it returns
// types.ErrNoAllocatorBound, wrapped with a stack trace, if no
// Allocator is bound.
func RequireFromContext(ctx context.Context) (*Allocator, error) {
	a, ok := FromContext(ctx)
	if !ok {
		return nil, errors.WithStack(types.ErrNoAllocatorBound)
	}
	return a, nil
}
