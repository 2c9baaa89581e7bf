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

// Package changelog stores the append-only sync_changelog table that
// ChangeCapture writes to and SyncEngine reads from.
package changelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Schema is the DDL for the sync_changelog table. change_id is a
// per-database dense sequence, distinct from the globally unique
// RowId each entry's row_id carries.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  change_id        INT8 GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
  table_name       STRING NOT NULL,
  row_id           STRING NOT NULL,
  op               STRING NOT NULL,
  payload          JSONB NOT NULL,
  version          INT8 NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL,
  origin_node_id   STRING NOT NULL,
  captured_at      TIMESTAMPTZ NOT NULL DEFAULT now(),

  INDEX (origin_node_id, change_id)
)`

// Log is the pgxpool-backed implementation of syncengine.ChangeLog and
// capture.Appender.
type Log struct {
	Table string // fully-qualified table name
}

const insertTemplate = `
INSERT INTO %s (table_name, row_id, op, payload, version, updated_at, origin_node_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Append implements capture.Appender.
func (l *Log) Append(ctx context.Context, tx types.EngineQuerier, entry types.ChangeEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return errors.Wrap(types.ErrSerialization, err.Error())
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(insertTemplate, l.Table),
		entry.Table, entry.RowID.String(), entry.Op.String(), payload, entry.Version, entry.UpdatedAt, entry.OriginNodeID)
	if err != nil {
		return errors.Wrapf(err, "appending change entry for %s", entry.Table)
	}
	return nil
}

const sinceTemplate = `
SELECT change_id, table_name, row_id, op, payload, version, updated_at, origin_node_id, captured_at
FROM %s
WHERE origin_node_id = $1 AND change_id > $2
ORDER BY change_id ASC
LIMIT $3`

// Since implements syncengine.ChangeLog.
func (l *Log) Since(ctx context.Context, tx types.EngineQuerier, originNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(sinceTemplate, l.Table), originNodeID, afterChangeID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying changelog")
	}
	defer rows.Close()
	return scanChangeEntries(rows)
}

const sinceExcludingTemplate = `
SELECT change_id, table_name, row_id, op, payload, version, updated_at, origin_node_id, captured_at
FROM %s
WHERE origin_node_id != $1 AND change_id > $2
ORDER BY change_id ASC
LIMIT $3`

// SinceExcluding implements syncengine.ChangeLog.
func (l *Log) SinceExcluding(ctx context.Context, tx types.EngineQuerier, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(sinceExcludingTemplate, l.Table), excludeOriginNodeID, afterChangeID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying changelog")
	}
	defer rows.Close()
	return scanChangeEntries(rows)
}

// changeRows is the subset of pgx.Rows both Since queries scan.
type changeRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanChangeEntries(rows changeRows) ([]types.ChangeEntry, error) {
	var out []types.ChangeEntry
	for rows.Next() {
		var entry types.ChangeEntry
		var rowID string
		var op string
		var payload []byte
		if err := rows.Scan(&entry.ChangeID, &entry.Table, &rowID, &op, &payload,
			&entry.Version, &entry.UpdatedAt, &entry.OriginNodeID, &entry.CapturedAt); err != nil {
			return nil, errors.Wrap(err, "scanning change entry")
		}
		if err := json.Unmarshal([]byte(`"`+op+`"`), &entry.Op); err != nil {
			return nil, errors.Wrap(err, "decoding op")
		}
		parsedRowID, err := parseRowID(rowID)
		if err != nil {
			return nil, err
		}
		entry.RowID = parsedRowID
		if err := json.Unmarshal(payload, &entry.Payload); err != nil {
			return nil, errors.Wrap(err, "decoding payload")
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func parseRowID(s string) (types.RowId, error) {
	var id types.RowId
	if err := id.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return 0, errors.Wrap(err, "parsing row id")
	}
	return id, nil
}
