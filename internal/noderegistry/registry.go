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

// Package noderegistry issues the small, dense node ids RowId embeds,
// and signs a client_token that lets a node detect when the registry's
// backing storage was lost and its old id may have been reissued to
// someone else.
package noderegistry

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

const (
	minNodeID uint16 = 1
	maxNodeID uint16 = 1023
)

// Schema is the DDL for the nodes table.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  node_id    INT2 PRIMARY KEY,
  hostname   STRING NOT NULL,
  registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is the persistence surface Registry needs. It is intentionally
// narrow so that an in-memory implementation is trivial for tests.
type Store interface {
	// AllocatedIDs returns every node id currently on record, in no
	// particular order.
	AllocatedIDs(ctx context.Context) ([]uint16, error)

	// Record durably assigns nodeID to hostname.
	Record(ctx context.Context, nodeID uint16, hostname string) error
}

// tokenClaims is the JWT payload embedded in a client_token.
type tokenClaims struct {
	NodeID    uint16 `json:"node_id"`
	BootEpoch int64  `json:"boot_epoch"`
	jwt.RegisteredClaims
}

// Registry issues node ids over the smallest-free-id in 1..1023, 0
// reserved for the registry's own bookkeeping use. BootEpoch
// distinguishes one incarnation of the registry from another (cmd/syncd
// sets it from the clock at process start and does not persist it): a
// client_token issued under a different boot epoch fails Verify, since
// its node id may since have been handed to someone else.
type Registry struct {
	Store     Store
	Signer    []byte
	BootEpoch int64
}

// Register allocates the smallest free node id in 1..1023 and signs a
// client_token binding it to the registry's current boot epoch.
func (r *Registry) Register(ctx context.Context, hostname string) (nodeID uint16, clientToken string, err error) {
	taken, err := r.Store.AllocatedIDs(ctx)
	if err != nil {
		return 0, "", errors.Wrap(err, "listing allocated node ids")
	}
	isTaken := make(map[uint16]bool, len(taken))
	for _, id := range taken {
		isTaken[id] = true
	}

	for candidate := minNodeID; candidate <= maxNodeID; candidate++ {
		if isTaken[candidate] {
			continue
		}
		if err := r.Store.Record(ctx, candidate, hostname); err != nil {
			return 0, "", errors.Wrapf(err, "recording node id %d", candidate)
		}
		token, err := r.sign(candidate)
		if err != nil {
			return 0, "", err
		}
		return candidate, token, nil
	}
	return 0, "", types.ErrRegistryExhausted
}

func (r *Registry) sign(nodeID uint16) (string, error) {
	claims := tokenClaims{
		NodeID:    nodeID,
		BootEpoch: r.BootEpoch,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.Signer)
	if err != nil {
		return "", errors.Wrap(err, "signing client token")
	}
	return signed, nil
}

// Verify checks that clientToken was signed by this registry instance
// and belongs to its current boot epoch. A mismatch means the token was
// issued by an earlier incarnation of the registry, and the embedded
// node id must not be trusted.
func (r *Registry) Verify(clientToken string) (nodeID uint16, err error) {
	parsed, err := jwt.ParseWithClaims(clientToken, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return r.Signer, nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "parsing client token")
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return 0, errors.New("invalid client token")
	}
	if claims.BootEpoch != r.BootEpoch {
		return 0, fmt.Errorf("client token issued by a prior registry incarnation (epoch %d, current %d)", claims.BootEpoch, r.BootEpoch)
	}
	return claims.NodeID, nil
}
