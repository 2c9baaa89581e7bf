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

package noderegistry

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// pgStore is the pgxpool-backed Store implementation, mirroring the
// engine's own bookkeeping pool (internal/types.EnginePool).
type pgStore struct {
	pool  *types.EnginePool
	table string // fully-qualified nodes table name
}

// NewStore constructs a Store backed by pool, operating against table
// (already schema-qualified).
func NewStore(pool *types.EnginePool, table string) Store {
	return &pgStore{pool: pool, table: table}
}

func (s *pgStore) AllocatedIDs(ctx context.Context) ([]uint16, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT node_id FROM %s", s.table))
	if err != nil {
		return nil, errors.Wrap(err, "listing allocated node ids")
	}
	defer rows.Close()

	var out []uint16
	for rows.Next() {
		var id uint16
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning node id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *pgStore) Record(ctx context.Context, nodeID uint16, hostname string) error {
	query := fmt.Sprintf("INSERT INTO %s (node_id, hostname) VALUES ($1, $2)", s.table)
	if _, err := s.pool.Exec(ctx, query, nodeID, hostname); err != nil {
		return errors.Wrapf(err, "recording node id %d", nodeID)
	}
	return nil
}
