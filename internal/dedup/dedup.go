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

// Package dedup implements syncengine.PushDedup, making a retried push
// of a batch this node already applied a no-op instead of a conflict.
package dedup

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Schema is the DDL for the push ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  origin_node_id  STRING NOT NULL,
  row_id          STRING NOT NULL,
  version         INT8 NOT NULL,
  PRIMARY KEY (origin_node_id, row_id, version)
)`

// Ledger is the pgxpool-backed implementation of syncengine.PushDedup.
type Ledger struct {
	Pool  *types.EnginePool
	Table string
}

const insertTemplate = `INSERT INTO %s (origin_node_id, row_id, version) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

// SeenAndRecord implements syncengine.PushDedup. It relies on the
// ledger's primary key to make the check-and-insert atomic under
// concurrent pushes for the same row.
func (l *Ledger) SeenAndRecord(ctx context.Context, originNodeID string, rowID types.RowId, version uint64) (alreadySeen bool, err error) {
	tag, err := l.Pool.Exec(ctx, fmt.Sprintf(insertTemplate, l.Table), originNodeID, rowID.String(), version)
	if err != nil {
		return false, errors.Wrap(err, "recording push ledger entry")
	}
	return tag.RowsAffected() == 0, nil
}
