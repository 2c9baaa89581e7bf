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

package types

import (
	"context"
	"database/sql"
	"time"
)

// EntityQuerier is implemented by sql.DB and sql.Tx. It is the surface
// mirrored-entity rows are read and written through, independent of
// which product (PostgreSQL, CockroachDB, MySQL/MariaDB) backs it.
type EntityQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ EntityQuerier = (*sql.DB)(nil)
	_ EntityQuerier = (*sql.Tx)(nil)
)

// EntityTx is implemented by sql.Tx.
type EntityTx interface {
	EntityQuerier
	Commit() error
	Rollback() error
}

var _ EntityTx = (*sql.Tx)(nil)

// EntityPool is an injection point for a connection to the database
// holding the mirrored entity tables that ChangeCapture observes and
// SyncEngine applies incoming changes into.
type EntityPool struct {
	*sql.DB
	PoolInfo
	_ noCopy
}

// RowStore is the minimal interface SyncEngine needs against the
// mirrored-entity database in order to read a row's current state (for
// conflict resolution) and to upsert an accepted change's payload.
// Implementations are expected to issue dialect-appropriate SQL built
// from the Schema's column metadata; this package only describes the
// contract.
type RowStore interface {
	// CurrentVersion returns the live row's version and updated_at for
	// (table, rowID), or ok=false if no such row exists locally yet
	// (the "ghost row at version 0" case from the conflict-resolution
	// rules).
	CurrentVersion(ctx context.Context, tx EntityQuerier, table string, rowID RowId) (version uint64, updatedAt time.Time, ok bool, err error)

	// Upsert applies the full post-image of an accepted change,
	// including its system columns, to (table, rowID).
	Upsert(ctx context.Context, tx EntityQuerier, table string, rowID RowId, payload map[string]any) error

	// Begin starts a transaction on the underlying pool.
	Begin(ctx context.Context) (EntityTx, error)
}
