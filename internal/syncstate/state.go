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

// Package syncstate tracks per-peer pull/push watermarks.
package syncstate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Schema is the DDL for the sync_state table. %s is substituted with
// the table's fully-qualified name by the caller, following the
// teacher's fmt.Sprintf-template-constant convention.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  peer_id                  STRING PRIMARY KEY,
  last_pulled_change_id    INT8 NOT NULL DEFAULT 0,
  last_pushed_change_id    INT8 NOT NULL DEFAULT 0
)`

// Store is the per-(local, peer) watermark store.
type Store interface {
	// Load returns the SyncState for peerID, or a zero-initialized
	// value (LastPulledChangeID=0, LastPushedChangeID=0) if no row
	// exists yet.
	Load(ctx context.Context, peerID string) (types.SyncState, error)

	// AdvancePulled raises last_pulled_change_id to changeID, but never
	// lowers it (invariant 5).
	AdvancePulled(ctx context.Context, peerID string, changeID uint64) error

	// AdvancePushed raises last_pushed_change_id to changeID, but never
	// lowers it (invariant 5).
	AdvancePushed(ctx context.Context, peerID string, changeID uint64) error
}

// pgStore is the pgxpool-backed Store implementation, mirroring the
// engine's own bookkeeping pool (internal/types.EnginePool).
type pgStore struct {
	pool  *types.EnginePool
	table string // fully-qualified sync_state table name
}

// New constructs a Store backed by pool, operating against
// table (already schema-qualified).
func New(pool *types.EnginePool, table string) Store {
	return &pgStore{pool: pool, table: table}
}

const loadTemplate = `SELECT last_pulled_change_id, last_pushed_change_id FROM %s WHERE peer_id = $1`

func (s *pgStore) Load(ctx context.Context, peerID string) (types.SyncState, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(loadTemplate, s.table), peerID)

	out := types.SyncState{PeerID: peerID}
	err := row.Scan(&out.LastPulledChangeID, &out.LastPushedChangeID)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return out, nil
	}
	return types.SyncState{}, errors.Wrapf(err, "loading sync state for peer %s", peerID)
}

// advanceTemplate is a conditional UPSERT: it never lowers the target
// column, enforcing invariant 5 at the SQL layer in addition to the
// engine only ever calling Advance* with a larger value.
const advanceTemplate = `
INSERT INTO %[1]s (peer_id, %[2]s) VALUES ($1, $2)
ON CONFLICT (peer_id) DO UPDATE SET %[2]s = GREATEST(%[1]s.%[2]s, excluded.%[2]s)`

func (s *pgStore) AdvancePulled(ctx context.Context, peerID string, changeID uint64) error {
	return s.advance(ctx, peerID, "last_pulled_change_id", changeID)
}

func (s *pgStore) AdvancePushed(ctx context.Context, peerID string, changeID uint64) error {
	return s.advance(ctx, peerID, "last_pushed_change_id", changeID)
}

func (s *pgStore) advance(ctx context.Context, peerID, column string, changeID uint64) error {
	sql := fmt.Sprintf(advanceTemplate, s.table, column)
	_, err := s.pool.Exec(ctx, sql, peerID, changeID)
	if err != nil {
		return errors.Wrapf(err, "advancing %s for peer %s", column, peerID)
	}
	return nil
}
