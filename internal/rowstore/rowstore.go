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

// Package rowstore implements types.RowStore against the mirrored
// entity tables, generalized across the product (PostgreSQL/MySQL)
// backing an EntityPool.
package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/mixin"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Store is a types.RowStore backed by an EntityPool. Column lists come
// from the schema so that Upsert only ever touches declared columns.
type Store struct {
	Pool    *types.EntityPool
	Schema  *schema.Schema
	Product types.Product
}

var _ types.RowStore = (*Store)(nil)

// placeholder renders the nth bind parameter in the dialect the
// underlying product expects.
func (s *Store) placeholder(n int) string {
	if s.Product == types.ProductMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// CurrentVersion implements types.RowStore.
func (s *Store) CurrentVersion(ctx context.Context, tx types.EntityQuerier, table string, rowID types.RowId) (version uint64, updatedAt time.Time, ok bool, err error) {
	query := fmt.Sprintf("SELECT version, updated_at FROM %s WHERE id = %s", table, s.placeholder(1))
	row := tx.QueryRowContext(ctx, query, rowID.String())
	if err := row.Scan(&version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, errors.Wrapf(err, "reading current version for %s", table)
	}
	return version, updatedAt, true, nil
}

// Upsert implements types.RowStore. It applies payload (a full
// post-image including system columns) via an INSERT .. ON CONFLICT
// (Postgres) or INSERT .. ON DUPLICATE KEY UPDATE (MySQL) over the
// schema's declared data columns plus the sync mixin columns.
func (s *Store) Upsert(ctx context.Context, tx types.EntityQuerier, table string, rowID types.RowId, payload map[string]any) error {
	columns := append([]string{}, s.Schema.DataColumns(table)...)
	for _, c := range mixin.SystemColumnNames {
		columns = append(columns, c)
	}

	values := make([]any, 0, len(columns))
	values = append(values, rowID.String())
	placeholders := []string{s.placeholder(1)}
	cols := []string{"id"}
	n := 2
	for _, col := range columns {
		if col == "id" {
			continue
		}
		v, present := payload[col]
		if !present {
			continue
		}
		cols = append(cols, col)
		placeholders = append(placeholders, s.placeholder(n))
		values = append(values, v)
		n++
	}

	query := s.upsertQuery(table, cols, placeholders)
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return errors.Wrapf(err, "upserting %s row %s", table, rowID)
	}
	return nil
}

func (s *Store) upsertQuery(table string, cols, placeholders []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var assignments []string
	for _, col := range cols[1:] {
		if s.Product == types.ProductMySQL {
			assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", col, col))
		} else {
			assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	if s.Product == types.ProductMySQL {
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s", strings.Join(assignments, ", "))
	} else {
		fmt.Fprintf(&b, " ON CONFLICT (id) DO UPDATE SET %s", strings.Join(assignments, ", "))
	}
	return b.String()
}

// Begin implements types.RowStore.
func (s *Store) Begin(ctx context.Context) (types.EntityTx, error) {
	return s.Pool.BeginTx(ctx, nil)
}
