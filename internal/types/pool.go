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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Product is an enum identifying the database product backing a pool.
type Product int

// The products the mirrored-entity side of this engine supports.
const (
	ProductUnknown Product = iota
	ProductPostgreSQL
	ProductCockroachDB
	ProductMySQL
)

func (p Product) String() string {
	switch p {
	case ProductPostgreSQL:
		return "PostgreSQL"
	case ProductCockroachDB:
		return "CockroachDB"
	case ProductMySQL:
		return "MySQL"
	default:
		return "Unknown"
	}
}

// PoolInfo describes a connection pool and what it's connected to.
type PoolInfo struct {
	ConnectionString string
	Product          Product
	Version          string
}

// Info returns the PoolInfo when embedded.
func (i *PoolInfo) Info() *PoolInfo { return i }

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// EngineQuerier is implemented by pgxpool.Pool, pgxpool.Conn, and
// pgxpool.Tx. It is the minimal surface the engine's own bookkeeping
// tables (sync_changelog, sync_state, nodes) are written through.
type EngineQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

var (
	_ EngineQuerier = (*pgxpool.Conn)(nil)
	_ EngineQuerier = (*pgxpool.Pool)(nil)
	_ EngineQuerier = (pgx.Tx)(nil)
)

// EnginePool is an injection point for a connection to the database
// holding this engine's own bookkeeping tables.
type EnginePool struct {
	*pgxpool.Pool
	PoolInfo
	_ noCopy
}

// BeginFunc runs fn inside a transaction, committing on a nil error and
// rolling back otherwise, mirroring pgx.BeginFunc but against the
// EnginePool's embedded *pgxpool.Pool.
func (p *EnginePool) BeginFunc(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, p.Pool, fn)
}
